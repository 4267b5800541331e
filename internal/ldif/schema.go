package ldif

import "github.com/oba-ldap/oba/internal/schema"

// SchemaReader is the narrow, read-only contract the assembler consumes
// (spec.md §6 "Schema (contract consumed)"). It is implemented by
// SchemaAdapter, which wraps a *schema.Schema handle passed in at
// construction — never looked up implicitly (spec.md §9).
type SchemaReader interface {
	ResolveObjectClass(name string) (*schema.ObjectClass, bool)
	LookupAttributeType(desc AttributeDescription) (*schema.AttributeType, bool)
	ConformsToSchema(e *Entry) error
}

// SchemaAdapter adapts *schema.Schema to the SchemaReader contract the
// assembler needs, reusing the existing schema.Validator for whole-entry
// conformance instead of re-implementing MUST/MAY/single-value/syntax
// checking a second time.
type SchemaAdapter struct {
	schema    *schema.Schema
	validator *schema.Validator
}

// NewSchemaAdapter wraps s for use by a Reader.
func NewSchemaAdapter(s *schema.Schema) *SchemaAdapter {
	return &SchemaAdapter{schema: s, validator: schema.NewValidator(s)}
}

// ResolveObjectClass looks up an object class by name or OID. Unknown
// classes are tolerated by the assembler (spec.md §4.4 step 3), so the
// second return value, not an error, signals absence.
func (a *SchemaAdapter) ResolveObjectClass(name string) (*schema.ObjectClass, bool) {
	oc := a.schema.GetObjectClass(name)
	return oc, oc != nil
}

// LookupAttributeType resolves an attribute description's type against
// the schema. Options do not affect the lookup; only the type name does.
func (a *SchemaAdapter) LookupAttributeType(desc AttributeDescription) (*schema.AttributeType, bool) {
	at := a.schema.GetAttributeType(desc.Type)
	return at, at != nil
}

// RequiresBEREncoding reports whether an attribute type's declared syntax
// demands binary transfer (spec.md §3's "binary" option-forcing
// invariant).
func (a *SchemaAdapter) RequiresBEREncoding(at *schema.AttributeType) bool {
	if at == nil || at.Syntax == "" {
		return false
	}
	syn := a.schema.GetSyntax(at.Syntax)
	return syn != nil && syn.IsBEREncodingRequired()
}

// ConformsToSchema runs whole-entry schema conformance (spec.md §4.4
// step 5) by converting e to schema.Entry and delegating to the existing
// Validator.
func (a *SchemaAdapter) ConformsToSchema(e *Entry) error {
	se := schema.NewEntry(e.DN.String())
	for _, ocRef := range e.ObjectClasses {
		se.Attributes["objectClass"] = append(se.Attributes["objectClass"], []byte(ocRef.Name))
	}
	for _, attrType := range e.UserAttributeTypes() {
		for _, attr := range e.UserAttribute(attrType) {
			se.Attributes[attrType] = append(se.Attributes[attrType], attr.Values...)
		}
	}
	for _, attrType := range e.OperationalAttributeTypes() {
		for _, attr := range e.OperationalAttribute(attrType) {
			se.Attributes[attrType] = append(se.Attributes[attrType], attr.Values...)
		}
	}
	return a.validator.ValidateEntry(se)
}
