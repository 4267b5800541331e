package ldif

import (
	"sort"
	"strings"
)

// AttributeDescription is an attribute type identifier plus an unordered
// set of lowercase option tags (e.g. "lang-fr", "binary").
type AttributeDescription struct {
	Type    string
	Options map[string]bool
}

// ParseAttributeDescription splits "type;opt1;opt2" into an
// AttributeDescription. The type is kept as written; options are
// lower-cased, per spec.md §3.
func ParseAttributeDescription(raw string) AttributeDescription {
	parts := strings.Split(raw, ";")
	desc := AttributeDescription{Type: parts[0]}
	if len(parts) > 1 {
		desc.Options = make(map[string]bool, len(parts)-1)
		for _, opt := range parts[1:] {
			opt = strings.ToLower(strings.TrimSpace(opt))
			if opt != "" {
				desc.Options[opt] = true
			}
		}
	}
	return desc
}

// HasOption reports whether the given lower-case option tag is present.
func (d AttributeDescription) HasOption(opt string) bool {
	return d.Options[strings.ToLower(opt)]
}

// WithOption returns a copy of d with the given option tag added.
func (d AttributeDescription) WithOption(opt string) AttributeDescription {
	opts := make(map[string]bool, len(d.Options)+1)
	for k := range d.Options {
		opts[k] = true
	}
	opts[strings.ToLower(opt)] = true
	return AttributeDescription{Type: d.Type, Options: opts}
}

// LowerType returns the attribute type lower-cased, for case-insensitive
// comparisons and schema lookups.
func (d AttributeDescription) LowerType() string {
	return strings.ToLower(d.Type)
}

// optionKey returns a canonical, order-independent string for the option
// set so two AttributeDescriptions with equal option sets (regardless of
// source ordering) compare equal, per spec.md §3's Attribute Builder
// merge rule.
func (d AttributeDescription) optionKey() string {
	if len(d.Options) == 0 {
		return ""
	}
	opts := make([]string, 0, len(d.Options))
	for k := range d.Options {
		opts = append(opts, k)
	}
	sort.Strings(opts)
	return strings.Join(opts, ";")
}

// SameOptions reports whether d and other carry the same option set,
// regardless of the order options were declared in.
func (d AttributeDescription) SameOptions(other AttributeDescription) bool {
	return d.optionKey() == other.optionKey()
}

// String renders the attribute description in "type;opt1;opt2" form with
// options sorted for deterministic output.
func (d AttributeDescription) String() string {
	if len(d.Options) == 0 {
		return d.Type
	}
	opts := make([]string, 0, len(d.Options))
	for k := range d.Options {
		opts = append(opts, k)
	}
	sort.Strings(opts)
	return d.Type + ";" + strings.Join(opts, ";")
}
