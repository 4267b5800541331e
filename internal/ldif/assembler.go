package ldif

import (
	"bytes"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/oba-ldap/oba/internal/dn"
	"github.com/oba-ldap/oba/internal/schema"
)

// assembler turns a framed Record into an Entry, running the
// HEADER -> BODY -> VALIDATE -> EMIT pipeline of spec.md §4.4: DN
// parsing, attribute grouping into user/operational buckets, object-class
// resolution, schema/syntax enforcement, and include/exclude filtering.
type assembler struct {
	cfg            ImportConfig
	schema         SchemaReader
	allowedSchemes map[string]bool
	log            *logrus.Logger
}

func newAssembler(cfg ImportConfig, schema SchemaReader) *assembler {
	return &assembler{cfg: cfg, schema: schema, allowedSchemes: allowedSchemeSet(cfg), log: logrus.StandardLogger()}
}

// outcome distinguishes an emitted entry from one a policy decision
// excluded (spec.md §7.3: DN filter, entry filter, plugin rejection route
// to the skip channel and the ignored counter, silently, never raised to
// the caller). Schema and grammar defects are not modeled here — they
// surface as a *ParseError instead, routed to the reject channel and
// raised to the caller (spec.md §7.2).
type outcome struct {
	entry      *Entry
	skipReason string
}

func (a *assembler) assemble(rec *Record) (*outcome, error) {
	entryDN, err := a.parseHeaderDN(rec.Header, rec.StartLine)
	if err != nil {
		return nil, err
	}

	if ok, reason := a.cfg.IncludeEntryDN(entryDN); !ok {
		return &outcome{skipReason: reason}, nil
	}

	bucket := newAttributeBucket()
	var objectClassNames []string

	for i, line := range rec.Body {
		lineNo := rec.StartLine + 1 + i
		desc, value, _, err := decodeAttrLine(line, lineNo, a.allowedSchemes)
		if err != nil {
			return nil, err
		}
		if !a.cfg.IncludeAttribute(desc) {
			continue
		}

		if strings.EqualFold(desc.Type, "objectClass") {
			if !a.cfg.IncludeObjectClasses() {
				continue
			}
			if !containsFold(objectClassNames, string(value)) {
				objectClassNames = append(objectClassNames, string(value))
			} else {
				a.log.WithFields(logrus.Fields{"line": lineNo}).Warnf("ldif: duplicate objectClass %q in entry %s", value, entryDN.String())
			}
			continue
		}

		if at, ok := a.schema.LookupAttributeType(desc); ok {
			if adapter, ok := a.schema.(interface {
				RequiresBEREncoding(*schema.AttributeType) bool
			}); ok && adapter.RequiresBEREncoding(at) && !desc.HasOption("binary") {
				desc = desc.WithOption("binary")
			}
		}

		existing := bucket.find(desc)
		if existing == nil {
			bucket.add(desc, value)
			continue
		}
		if !existing.AddValue(value) {
			if a.cfg.ValidateSchema() {
				return nil, newParseError(lineNo, "duplicate value for attribute %q", desc.Type)
			}
			// schema check off: silently ignore the duplicate (spec.md §9).
		}
	}

	objectClasses := make([]ObjectClassRef, 0, len(objectClassNames))
	for _, name := range objectClassNames {
		def, _ := a.schema.ResolveObjectClass(name)
		objectClasses = append(objectClasses, ObjectClassRef{Name: name, Def: def})
	}

	entry := &Entry{DN: entryDN, ObjectClasses: objectClasses}
	a.splitAttributes(entry, bucket)
	a.promoteRDNAttributes(entry)

	if a.cfg.ValidateSchema() {
		if err := a.schema.ConformsToSchema(entry); err != nil {
			return nil, newParseError(rec.StartLine, "entry does not conform to schema: %v", err)
		}
	}

	if ok, reason := a.cfg.IncludeEntry(entry); !ok {
		return &outcome{skipReason: reason}, nil
	}

	return &outcome{entry: entry}, nil
}

// splitAttributes routes each materialized attribute to the entry's user
// or operational bucket based on the schema's declared usage, defaulting
// unknown attribute types to user attributes.
func (a *assembler) splitAttributes(entry *Entry, bucket *attributeBucket) {
	order, materialized := bucket.materialize()

	entry.userAttrs = make(map[string][]*Attribute)
	entry.operationalAttrs = make(map[string][]*Attribute)

	for _, key := range order {
		attrs := materialized[key]
		operational := false
		if at, ok := a.schema.LookupAttributeType(AttributeDescription{Type: key}); ok {
			operational = at.IsOperational()
		}
		if operational {
			entry.operationalOrder = append(entry.operationalOrder, key)
			entry.operationalAttrs[key] = attrs
		} else {
			entry.userOrder = append(entry.userOrder, key)
			entry.userAttrs[key] = attrs
		}
	}
}

// promoteRDNAttributes implements spec.md §4.4 step 6: every attribute-
// value assertion named in the entry's own RDN must be materially present
// in the attribute map, even when the record's body never repeats it as
// its own line (a common shorthand LDIF producers rely on).
func (a *assembler) promoteRDNAttributes(entry *Entry) {
	for _, ava := range entry.DN.RDN() {
		desc := AttributeDescription{Type: ava.Type}
		value := []byte(ava.Value)
		if attrsHaveValue(entry.UserAttribute(desc.Type), value) || attrsHaveValue(entry.OperationalAttribute(desc.Type), value) {
			continue
		}
		a.appendAttribute(entry, desc, value)
	}
}

// attrsHaveValue reports whether value is already present among attrs,
// across every option-set variant of the attribute type.
func attrsHaveValue(attrs []*Attribute, value []byte) bool {
	for _, attr := range attrs {
		for _, v := range attr.Values {
			if bytes.Equal(v, value) {
				return true
			}
		}
	}
	return false
}

// appendAttribute adds value under desc to entry's user or operational
// bucket, mirroring splitAttributes' usage-based routing, merging into an
// existing same-option-set Attribute rather than creating a duplicate one.
func (a *assembler) appendAttribute(entry *Entry, desc AttributeDescription, value []byte) {
	operational := false
	if at, ok := a.schema.LookupAttributeType(desc); ok {
		operational = at.IsOperational()
	}
	key := desc.LowerType()
	if operational {
		if _, seen := entry.operationalAttrs[key]; !seen {
			entry.operationalOrder = append(entry.operationalOrder, key)
		}
		entry.operationalAttrs[key] = mergeAttribute(entry.operationalAttrs[key], desc, value)
		return
	}
	if _, seen := entry.userAttrs[key]; !seen {
		entry.userOrder = append(entry.userOrder, key)
	}
	entry.userAttrs[key] = mergeAttribute(entry.userAttrs[key], desc, value)
}

// mergeAttribute appends value to the Attribute in attrs matching desc's
// option set, or appends a brand-new single-value Attribute if none match.
func mergeAttribute(attrs []*Attribute, desc AttributeDescription, value []byte) []*Attribute {
	for _, attr := range attrs {
		if attr.Description.SameOptions(desc) {
			attr.Values = append(attr.Values, value)
			return attrs
		}
	}
	return append(attrs, &Attribute{Description: desc, Values: [][]byte{value}})
}

// containsFold reports whether name is already in names, compared
// case-insensitively as object class names are.
func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// parseHeaderDN parses the "dn: <value>" or "dn:: <base64>" header line
// required to start every record (spec.md §4.4 step 1). The RDN
// completion invariant (spec.md §3) is enforced afterward, by
// promoteRDNAttributes, once the attribute map exists.
func (a *assembler) parseHeaderDN(header string, lineNo int) (dn.DN, error) {
	desc, value, _, err := decodeAttrLine(header, lineNo, a.allowedSchemes)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(desc.Type, "dn") {
		return nil, newParseError(lineNo, "record must start with a \"dn:\" line, got %q", desc.Type)
	}
	parsed, err := dn.Parse(string(value))
	if err != nil {
		return nil, newParseError(lineNo, "invalid distinguished name %q: %v", value, err)
	}
	return parsed, nil
}
