package ldif

import (
	"strings"

	"github.com/oba-ldap/oba/internal/dn"
	"github.com/oba-ldap/oba/internal/schema"
)

// attributeBucket is an insertion-ordered {attribute type -> builders}
// map. Builders are keyed by type; within a type, several builders may
// coexist with distinct option sets (spec.md §3's "two builders with
// equal option sets for the same type merge by value addition").
type attributeBucket struct {
	order    []string
	builders map[string][]*AttributeBuilder
}

func newAttributeBucket() *attributeBucket {
	return &attributeBucket{builders: make(map[string][]*AttributeBuilder)}
}

// find returns the builder matching desc's type and option set, if any.
func (b *attributeBucket) find(desc AttributeDescription) *AttributeBuilder {
	for _, candidate := range b.builders[desc.LowerType()] {
		if candidate.Desc.SameOptions(desc) {
			return candidate
		}
	}
	return nil
}

// add inserts a new builder for desc with an initial value, recording
// type order on first sight.
func (b *attributeBucket) add(desc AttributeDescription, value []byte) *AttributeBuilder {
	key := desc.LowerType()
	if _, seen := b.builders[key]; !seen {
		b.order = append(b.order, key)
	}
	builder := newAttributeBuilder(desc, value)
	b.builders[key] = append(b.builders[key], builder)
	return builder
}

// materialize returns {attribute type -> attributes} preserving insertion
// order of types; within a type, builders keep their creation order.
func (b *attributeBucket) materialize() ([]string, map[string][]*Attribute) {
	result := make(map[string][]*Attribute, len(b.builders))
	for _, key := range b.order {
		attrs := make([]*Attribute, 0, len(b.builders[key]))
		for _, builder := range b.builders[key] {
			attrs = append(attrs, builder.Materialize())
		}
		result[key] = attrs
	}
	return b.order, result
}

// ObjectClassRef pairs the name an entry declared for an object class
// with its schema definition, or a nil Def if the class is unknown to
// the schema (tolerated per spec.md §4.4 step 3).
type ObjectClassRef struct {
	Name string
	Def  *schema.ObjectClass
}

// Entry is a fully assembled LDIF entry: a DN, an ordered object-class
// list, and two ordered {attribute type -> attributes} maps, one for
// user attributes and one for operational attributes (spec.md §3).
type Entry struct {
	DN               dn.DN
	ObjectClasses    []ObjectClassRef
	userOrder        []string
	userAttrs        map[string][]*Attribute
	operationalOrder []string
	operationalAttrs map[string][]*Attribute
}

// UserAttributeTypes returns user attribute types in first-seen order.
func (e *Entry) UserAttributeTypes() []string {
	return e.userOrder
}

// OperationalAttributeTypes returns operational attribute types in
// first-seen order.
func (e *Entry) OperationalAttributeTypes() []string {
	return e.operationalOrder
}

// UserAttribute returns the attributes (one per distinct option set) for
// a user attribute type (case-insensitive), or nil.
func (e *Entry) UserAttribute(attrType string) []*Attribute {
	return e.userAttrs[strings.ToLower(attrType)]
}

// OperationalAttribute returns the attributes for an operational
// attribute type (case-insensitive), or nil.
func (e *Entry) OperationalAttribute(attrType string) []*Attribute {
	return e.operationalAttrs[strings.ToLower(attrType)]
}

// HasObjectClass reports whether name (case-insensitive) was declared on
// the entry.
func (e *Entry) HasObjectClass(name string) bool {
	for _, oc := range e.ObjectClasses {
		if strings.EqualFold(oc.Name, name) {
			return true
		}
	}
	return false
}
