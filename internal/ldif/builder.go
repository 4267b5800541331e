package ldif

import "bytes"

// AttributeBuilder is a mutable, stack-local accumulator for one
// attribute-description/option-set combination within a single record
// parse (spec.md §3, §9 — ephemeral, never shared with the emitted
// Entry).
type AttributeBuilder struct {
	Desc   AttributeDescription
	Values [][]byte
}

// newAttributeBuilder starts a builder with a single value.
func newAttributeBuilder(desc AttributeDescription, value []byte) *AttributeBuilder {
	return &AttributeBuilder{Desc: desc, Values: [][]byte{value}}
}

// AddValue appends value if it is not already present for this builder.
// It reports whether the value was added; the caller decides what a
// duplicate means (record-fatal under schema-check, silently ignored
// otherwise — spec.md §9's first Open Question, preserved verbatim).
func (b *AttributeBuilder) AddValue(value []byte) bool {
	for _, existing := range b.Values {
		if bytes.Equal(existing, value) {
			return false
		}
	}
	b.Values = append(b.Values, value)
	return true
}

// Materialize freezes the builder into an immutable Attribute, copying
// value slices so the result outlives the builder without aliasing it.
func (b *AttributeBuilder) Materialize() *Attribute {
	values := make([][]byte, len(b.Values))
	copy(values, b.Values)
	return &Attribute{Description: b.Desc, Values: values}
}

// Attribute is an immutable attribute description plus its decoded
// values, materialized from an AttributeBuilder on record emit.
type Attribute struct {
	Description AttributeDescription
	Values      [][]byte
}

// FirstValue returns the first value, or nil if the attribute has none.
func (a *Attribute) FirstValue() []byte {
	if len(a.Values) == 0 {
		return nil
	}
	return a.Values[0]
}
