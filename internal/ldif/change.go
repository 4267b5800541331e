package ldif

import "github.com/oba-ldap/oba/internal/dn"

// ModOp is the operation of a single modification within a modify change
// record. The vocabulary mirrors internal/backend/entry.go's
// ModificationType (ModAdd/ModDelete/ModReplace) plus ModIncrement,
// without importing internal/backend (spec.md §9: generalise the
// vocabulary, don't reach across layers for it).
type ModOp int

const (
	// ModOpAdd adds values to an attribute.
	ModOpAdd ModOp = iota
	// ModOpDelete removes values (or the whole attribute if none given).
	ModOpDelete
	// ModOpReplace replaces all values of an attribute.
	ModOpReplace
	// ModOpIncrement increments a numeric attribute value.
	ModOpIncrement
)

// String renders the modification operation using its LDIF keyword.
func (m ModOp) String() string {
	switch m {
	case ModOpAdd:
		return "add"
	case ModOpDelete:
		return "delete"
	case ModOpReplace:
		return "replace"
	case ModOpIncrement:
		return "increment"
	default:
		return "unknown"
	}
}

// Modification is one (operation, attribute) pair within a modify change
// record's ordered modification list (spec.md §3).
type Modification struct {
	Op        ModOp
	Attribute *Attribute
}

// ChangeKind identifies which change-record sub-grammar was parsed.
type ChangeKind int

const (
	// ChangeAdd is an "add" change record, carrying a full entry.
	ChangeAdd ChangeKind = iota
	// ChangeDelete is a "delete" change record.
	ChangeDelete
	// ChangeModify is a "modify" change record.
	ChangeModify
	// ChangeModifyDN is a "moddn"/"modrdn" change record.
	ChangeModifyDN
)

// ChangeRecord is the tagged variant over Add/Delete/Modify/ModifyDN
// described in spec.md §3. Exactly the fields relevant to Kind are
// populated.
type ChangeRecord struct {
	Kind ChangeKind
	DN   dn.DN

	// ChangeAdd
	Entry *Entry

	// ChangeModify
	Modifications []Modification

	// ChangeModifyDN
	NewRDN       dn.RDN
	DeleteOldRDN bool
	NewSuperior  *dn.DN
}
