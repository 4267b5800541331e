package ldif

import (
	"strconv"
	"strings"

	"github.com/oba-ldap/oba/internal/dn"
)

// changeParser parses the four change-record sub-grammars (spec.md §4.5):
// add, delete, modify, and moddn/modrdn. A record with no "changetype:"
// line defaults to add, per RFC 2849.
type changeParser struct {
	cfg            ImportConfig
	schema         SchemaReader
	allowedSchemes map[string]bool
}

func newChangeParser(cfg ImportConfig, schema SchemaReader) *changeParser {
	return &changeParser{cfg: cfg, schema: schema, allowedSchemes: allowedSchemeSet(cfg)}
}

// parse returns the parsed change record, or a non-empty skip reason if
// an "add" change record's entry was excluded by policy (spec.md §7.3 —
// silent skip, not an error); delete/modify/moddn carry no entry and so
// are never policy-skippable here.
func (p *changeParser) parse(rec *Record) (cr *ChangeRecord, skipReason string, err error) {
	entryDN, err := p.parseHeaderDN(rec.Header, rec.StartLine)
	if err != nil {
		return nil, "", err
	}

	body := rec.Body
	kind := ChangeAdd
	if len(body) > 0 {
		desc, value, _, err := decodeAttrLine(body[0], rec.StartLine+1, p.allowedSchemes)
		if err == nil && strings.EqualFold(desc.Type, "changetype") {
			kind, err = parseChangeKind(string(value))
			if err != nil {
				return nil, "", newParseError(rec.StartLine+1, "%v", err)
			}
			body = body[1:]
		}
	}

	switch kind {
	case ChangeAdd:
		return p.parseAdd(rec, entryDN, body)
	case ChangeDelete:
		return &ChangeRecord{Kind: ChangeDelete, DN: entryDN}, "", nil
	case ChangeModify:
		cr, err := p.parseModify(rec, entryDN, body)
		return cr, "", err
	case ChangeModifyDN:
		cr, err := p.parseModifyDN(rec, entryDN, body)
		return cr, "", err
	default:
		return nil, "", newParseError(rec.StartLine, "unsupported changetype")
	}
}

func parseChangeKind(value string) (ChangeKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "add":
		return ChangeAdd, nil
	case "delete":
		return ChangeDelete, nil
	case "modify":
		return ChangeModify, nil
	case "moddn", "modrdn":
		return ChangeModifyDN, nil
	default:
		return 0, errUnsupportedChangeType(value)
	}
}

func errUnsupportedChangeType(value string) error {
	return &ParseError{Message: "unsupported changetype: " + value, CanContinue: true}
}

// parseAdd reuses the entry assembler: an add change record's body is a
// plain attribute list, identical in shape to a content record's.
func (p *changeParser) parseAdd(rec *Record, entryDN dn.DN, body []string) (*ChangeRecord, string, error) {
	asm := newAssembler(p.cfg, p.schema)
	sub := &Record{StartLine: rec.StartLine, Header: rec.Header, Body: body}
	out, err := asm.assemble(sub)
	if err != nil {
		return nil, "", err
	}
	if out.skipReason != "" {
		return nil, out.skipReason, nil
	}
	return &ChangeRecord{Kind: ChangeAdd, DN: entryDN, Entry: out.entry}, "", nil
}

// parseModify parses the "modify" sub-grammar: a sequence of
// add/delete/replace/increment blocks, each opened by
// "<op>: <attrdesc>" and closed by a bare "-" line.
func (p *changeParser) parseModify(rec *Record, entryDN dn.DN, body []string) (*ChangeRecord, error) {
	var mods []Modification
	i := 0
	for i < len(body) {
		lineNo := rec.StartLine + 1 + i
		desc, value, _, err := decodeAttrLine(body[i], lineNo, p.allowedSchemes)
		if err != nil {
			return nil, err
		}
		op, err := parseModOp(desc.Type)
		if err != nil {
			return nil, newParseError(lineNo, "%v", err)
		}
		attrType := string(value)
		i++

		attr := &Attribute{Description: ParseAttributeDescription(attrType)}
		for i < len(body) && strings.TrimSpace(body[i]) != "-" {
			valLineNo := rec.StartLine + 1 + i
			valDesc, val, _, err := decodeAttrLine(body[i], valLineNo, p.allowedSchemes)
			if err != nil {
				return nil, err
			}
			if !strings.EqualFold(valDesc.Type, attrType) {
				return nil, newParseError(valLineNo, "modification block for %q contains line for %q", attrType, valDesc.Type)
			}
			attr.Values = append(attr.Values, val)
			i++
		}
		if i < len(body) {
			i++ // consume the "-" separator
		}

		mods = append(mods, Modification{Op: op, Attribute: attr})
	}

	return &ChangeRecord{Kind: ChangeModify, DN: entryDN, Modifications: mods}, nil
}

func parseModOp(raw string) (ModOp, error) {
	switch strings.ToLower(raw) {
	case "add":
		return ModOpAdd, nil
	case "delete":
		return ModOpDelete, nil
	case "replace":
		return ModOpReplace, nil
	case "increment":
		return ModOpIncrement, nil
	default:
		return 0, &ParseError{Message: "unsupported modification operation: " + raw, CanContinue: true}
	}
}

// parseModifyDN parses the "moddn"/"modrdn" sub-grammar: newrdn,
// deleteoldrdn, and an optional newsuperior.
func (p *changeParser) parseModifyDN(rec *Record, entryDN dn.DN, body []string) (*ChangeRecord, error) {
	cr := &ChangeRecord{Kind: ChangeModifyDN, DN: entryDN}
	seenDeleteOldRDN := false

	for i, line := range body {
		lineNo := rec.StartLine + 1 + i
		desc, value, _, err := decodeAttrLine(line, lineNo, p.allowedSchemes)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(desc.Type) {
		case "newrdn":
			rdn, err := dn.ParseRDN(string(value))
			if err != nil {
				return nil, newParseError(lineNo, "invalid newrdn %q: %v", value, err)
			}
			cr.NewRDN = rdn
		case "deleteoldrdn":
			b, err := parseDeleteOldRDN(string(value))
			if err != nil {
				return nil, newParseError(lineNo, "invalid deleteoldrdn value %q", value)
			}
			cr.DeleteOldRDN = b
			seenDeleteOldRDN = true
		case "newsuperior":
			sup, err := dn.Parse(string(value))
			if err != nil {
				return nil, newParseError(lineNo, "invalid newsuperior %q: %v", value, err)
			}
			cr.NewSuperior = &sup
		default:
			return nil, newParseError(lineNo, "unexpected line %q in moddn record", desc.Type)
		}
	}

	if cr.NewRDN == nil {
		return nil, newParseError(rec.StartLine, "moddn record missing required newrdn line")
	}
	if !seenDeleteOldRDN {
		return nil, newParseError(rec.StartLine, "moddn record missing required deleteoldrdn line")
	}
	return cr, nil
}

// parseDeleteOldRDN accepts the boolean vocabulary spec.md §4.5 requires
// for "deleteoldrdn": "0"/"1"/"true"/"false"/"yes"/"no", case-insensitive,
// falling back to strconv.ParseBool for its wider "t"/"f"/"T"/"F" set.
func parseDeleteOldRDN(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(raw))
}

func (p *changeParser) parseHeaderDN(header string, lineNo int) (dn.DN, error) {
	desc, value, _, err := decodeAttrLine(header, lineNo, p.allowedSchemes)
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
