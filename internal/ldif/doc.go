// Package ldif implements a streaming RFC 2849 LDIF reader: it consumes a
// text stream and produces either full directory entries (bulk import) or
// change records (add/delete/modify/modify-DN) for replay against a
// directory.
//
// # Overview
//
// A Reader is built over an ImportConfig, which supplies the underlying
// byte streams (with source rollover), the include/exclude policy, and
// the optional reject/skip side channels. Entries are decoded against a
// SchemaReader, consumed read-only and never mutated.
//
// # Reading entries
//
//	r := ldif.NewReader(cfg, schemaAdapter, nil)
//	defer r.Close()
//	for {
//	    entry, err := r.ReadEntry()
//	    if err == ldif.ErrEndOfInput {
//	        break
//	    }
//	    var perr *ldif.ParseError
//	    if errors.As(err, &perr) {
//	        if !perr.CanContinue {
//	            break
//	        }
//	        continue
//	    }
//	    if err != nil {
//	        break // I/O failure
//	    }
//	    // use entry — ReadEntry already looped past any policy- or
//	    // plugin-excluded record internally, so entry is never nil here
//	}
//
// # Reading change records
//
// ReadChangeRecord follows the same shape, dispatching on the
// "changetype" sub-header to add/delete/modify/modify-DN sub-grammars.
//
// # Counters
//
// Reader.Stats returns the number of records read, ignored (silent
// policy/plugin exclusion, routed to the skip channel), and rejected
// (parse or schema defect, routed to the reject channel and raised to
// the caller as a *ParseError) so far; for any exhausted source,
// read = emitted + ignored + rejected.
package ldif
