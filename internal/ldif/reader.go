package ldif

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Reader streams entries or change records out of an ImportConfig's
// sequence of sources, wiring together the line source, record framer,
// entry assembler, and change-record parser (spec.md §4). It keeps the
// running read/ignored/rejected counters spec.md §6 requires callers be
// able to inspect, the way internal/backend keeps request counters with
// atomic operations instead of a mutex-guarded struct.
type Reader struct {
	cfg    ImportConfig
	schema SchemaReader
	log    *logrus.Logger

	framer *recordFramer
	asm    *assembler
	chp    *changeParser

	read     uint64
	ignored  uint64
	rejected uint64

	rejectMu  sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewReader builds a Reader over cfg, validating against schema. A nil
// logger gets logrus's standard logger, matching the zero-value-friendly
// construction internal/logging's other call sites rely on.
func NewReader(cfg ImportConfig, schema SchemaReader, log *logrus.Logger) *Reader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ls := newLineSource(cfg)
	return &Reader{
		cfg:    cfg,
		schema: schema,
		log:    log,
		framer: newRecordFramer(ls),
		asm:    newAssembler(cfg, schema),
		chp:    newChangeParser(cfg, schema),
	}
}

// Stats returns the running (read, ignored, rejected) counters, safe to
// call concurrently with ReadEntry/ReadChangeRecord.
func (r *Reader) Stats() (read, ignored, rejected uint64) {
	return atomic.LoadUint64(&r.read), atomic.LoadUint64(&r.ignored), atomic.LoadUint64(&r.rejected)
}

// ReadEntry returns the next accepted content entry. Parse and schema
// defects are routed to the reject channel, counted, and raised to the
// caller as a *ParseError (spec.md §7.2); the caller should call
// ReadEntry again when the error's CanContinue is true. Policy exclusions
// (DN/entry filter, plugin rejection) are routed to the skip channel,
// counted, and never raised — ReadEntry loops past them on its own
// (spec.md §7.3). It returns ErrEndOfInput once every configured source
// is exhausted.
func (r *Reader) ReadEntry() (*Entry, error) {
	for {
		rec, ferr := r.framer.nextRecord()
		if ferr == errRetry {
			continue
		}
		if ferr != nil {
			return nil, r.routeFramerError(ferr)
		}

		atomic.AddUint64(&r.read, 1)

		out, err := r.asm.assemble(rec)
		if err != nil {
			return nil, r.routeParseError(rec, err)
		}

		if out.skipReason != "" {
			r.skip(rec, out.skipReason)
			continue
		}

		if rejected, reason := r.runPlugins(out.entry); rejected {
			r.skip(rec, reason)
			continue
		}

		return out.entry, nil
	}
}

// ReadChangeRecord returns the next accepted change record. An "add"
// change record runs through the same entry-assembly, filtering, and
// plugin pipeline as ReadEntry; the other three kinds bypass schema
// conformance and plugins, which only operate on full entries.
func (r *Reader) ReadChangeRecord() (*ChangeRecord, error) {
	for {
		rec, ferr := r.framer.nextRecord()
		if ferr == errRetry {
			continue
		}
		if ferr != nil {
			return nil, r.routeFramerError(ferr)
		}

		atomic.AddUint64(&r.read, 1)

		cr, skipReason, err := r.chp.parse(rec)
		if err != nil {
			return nil, r.routeParseError(rec, err)
		}
		if skipReason != "" {
			r.skip(rec, skipReason)
			continue
		}

		if cr.Kind == ChangeAdd && cr.Entry != nil {
			if rejected, reason := r.runPlugins(cr.Entry); rejected {
				r.skip(rec, reason)
				continue
			}
		}

		return cr, nil
	}
}

// RejectEntry lets a caller reject an already-returned entry after the
// fact (e.g. a commit step failed downstream), routing it to the same
// reject channel and counter under the same mutex ReadEntry uses, so
// concurrent callers never interleave partial writes to RejectWriter.
func (r *Reader) RejectEntry(e *Entry, reason string) {
	r.rejectMu.Lock()
	defer r.rejectMu.Unlock()
	r.writeChannel(r.cfg.RejectWriter(), "rejected", 0, e.DN.String(), nil, reason)
	atomic.AddUint64(&r.rejected, 1)
}

// Close releases the underlying sources exactly once.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.cfg.Close()
	})
	return r.closeErr
}

// routeFramerError handles an error from the record framer: ErrEndOfInput
// and I/O failures pass through unchanged and uncounted; a malformed-
// record *ParseError (e.g. a continuation line with no predecessor) is
// routed to the reject channel and counted before being returned.
func (r *Reader) routeFramerError(err error) error {
	perr, ok := err.(*ParseError)
	if !ok {
		return err
	}
	r.log.WithFields(logrus.Fields{"line": perr.Line}).Warn("ldif: rejecting malformed record: ", perr.Message)
	r.rejectMu.Lock()
	r.writeChannel(r.cfg.RejectWriter(), "rejected", perr.Line, "", nil, perr.Message)
	r.rejectMu.Unlock()
	atomic.AddUint64(&r.rejected, 1)
	return perr
}

// routeParseError handles an assembler/change-parser error for an
// already-framed record: a *ParseError is routed to the reject channel
// and counted (spec.md §7.2); any other error is an I/O failure and is
// surfaced unchanged, per spec.md §7.1.
func (r *Reader) routeParseError(rec *Record, err error) error {
	perr, ok := err.(*ParseError)
	if !ok {
		return err
	}
	r.log.WithFields(logrus.Fields{"line": perr.Line}).Warn("ldif: rejecting record: ", perr.Message)
	r.rejectMu.Lock()
	r.writeChannel(r.cfg.RejectWriter(), "rejected", rec.StartLine, rec.Header, rec.Body, perr.Message)
	r.rejectMu.Unlock()
	atomic.AddUint64(&r.rejected, 1)
	return perr
}

// skip routes a policy-excluded record (DN/entry filter, plugin
// rejection) to the skip channel and the ignored counter, without ever
// raising an error to the caller (spec.md §7.3).
func (r *Reader) skip(rec *Record, reason string) {
	r.rejectMu.Lock()
	defer r.rejectMu.Unlock()
	r.writeChannel(r.cfg.SkipWriter(), "skipped", rec.StartLine, rec.Header, rec.Body, reason)
	atomic.AddUint64(&r.ignored, 1)
}

// runPlugins invokes every configured ImportPlugin's PreImport hook, in
// order, short-circuiting on the first rejection.
func (r *Reader) runPlugins(e *Entry) (rejected bool, reason string) {
	if !r.cfg.InvokeImportPlugins() {
		return false, ""
	}
	for _, plugin := range r.cfg.Plugins() {
		if reject, why := plugin.PreImport(e); reject {
			return true, why
		}
	}
	return false, ""
}

// writeChannel renders one side-channel record in the format spec.md §6
// requires: a comment line, then the verbatim header and body lines, then
// a blank line separating it from the next record.
func (r *Reader) writeChannel(w io.Writer, verb string, line int, header string, body []string, reason string) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "# %s (line %d): %s\n%s\n", verb, line, reason, header)
	for _, bodyLine := range body {
		fmt.Fprintln(w, bodyLine)
	}
	fmt.Fprintln(w)
}
