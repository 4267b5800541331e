package ldif

import (
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oba-ldap/oba/internal/dn"
)

// ImportConfig is the contract the reader consumes for source rollover,
// include/exclude policy, and the reject/skip side channels (spec.md
// §6). DefaultImportConfig is the implementation most callers construct
// against.
type ImportConfig interface {
	// NextReader returns the next byte source, or ok=false once sources
	// are exhausted.
	NextReader() (r io.ReadCloser, ok bool, err error)

	IncludeEntryDN(d dn.DN) (bool, string)
	IncludeEntry(e *Entry) (bool, string)

	IncludeObjectClasses() bool
	IncludeAttribute(desc AttributeDescription) bool

	ValidateSchema() bool
	InvokeImportPlugins() bool

	// AllowedURLSchemes lists the URL schemes URL-referenced values may
	// be fetched from; "file" is always implicitly allowed.
	AllowedURLSchemes() []string

	RejectWriter() io.Writer
	SkipWriter() io.Writer

	Plugins() []ImportPlugin

	Close() error
}

// ImportPolicy is the YAML-shaped policy document DefaultImportConfig
// loads, the same tagging convention internal/config uses for its own
// structs, decoded here with a real YAML library (gopkg.in/yaml.v3)
// instead of internal/config's hand-rolled line parser.
type ImportPolicy struct {
	IncludeAttributes []string `yaml:"includeAttributes"`
	ExcludeAttributes []string `yaml:"excludeAttributes"`
	IncludeBaseDNs    []string `yaml:"includeBaseDNs"`
	ExcludeBaseDNs    []string `yaml:"excludeBaseDNs"`
	SchemaCheck       bool     `yaml:"schemaCheck"`
	InvokePlugins     bool     `yaml:"invokePlugins"`
	IncludeObjectCls  bool     `yaml:"includeObjectClasses"`
	URLSchemes        []string `yaml:"urlSchemes"`
}

// LoadImportPolicy reads and decodes an ImportPolicy document from path.
func LoadImportPolicy(path string) (*ImportPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapIO(err, "reading import policy %q", path)
	}
	policy := ImportPolicy{IncludeObjectCls: true} // default: keep objectClass attributes
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, wrapIO(err, "parsing import policy %q", path)
	}
	return &policy, nil
}

// DefaultImportConfig is the default ImportConfig implementation: a
// fixed list of sources, consumed in order, filtered by an ImportPolicy.
type DefaultImportConfig struct {
	Policy  *ImportPolicy
	sources []io.ReadCloser
	next    int

	reject io.Writer
	skip   io.Writer

	plugins []ImportPlugin
}

// NewDefaultImportConfig builds a DefaultImportConfig over sources, to be
// consumed strictly in order (source rollover, spec.md §4.1). A nil
// policy behaves as "include everything, schema-check on".
func NewDefaultImportConfig(policy *ImportPolicy, sources []io.ReadCloser, reject, skip io.Writer, plugins []ImportPlugin) *DefaultImportConfig {
	if policy == nil {
		policy = &ImportPolicy{SchemaCheck: true, InvokePlugins: true, IncludeObjectCls: true}
	}
	return &DefaultImportConfig{Policy: policy, sources: sources, reject: reject, skip: skip, plugins: plugins}
}

func (c *DefaultImportConfig) NextReader() (io.ReadCloser, bool, error) {
	if c.next >= len(c.sources) {
		return nil, false, nil
	}
	r := c.sources[c.next]
	c.next++
	return r, true, nil
}

func (c *DefaultImportConfig) IncludeEntryDN(d dn.DN) (bool, string) {
	for _, raw := range c.Policy.ExcludeBaseDNs {
		excl, err := dn.Parse(raw)
		if err == nil && d.HasSuffix(excl) {
			return false, "excluded by base DN policy: " + raw
		}
	}
	if len(c.Policy.IncludeBaseDNs) == 0 {
		return true, ""
	}
	for _, raw := range c.Policy.IncludeBaseDNs {
		incl, err := dn.Parse(raw)
		if err == nil && d.HasSuffix(incl) {
			return true, ""
		}
	}
	return false, "not under any included base DN"
}

// IncludeEntry applies a second, post-assembly filter pass (spec.md §4.4
// step 5). DefaultImportConfig has no filter expression support beyond
// the DN check already applied in IncludeEntryDN, so it always accepts.
func (c *DefaultImportConfig) IncludeEntry(e *Entry) (bool, string) {
	return true, ""
}

func (c *DefaultImportConfig) IncludeObjectClasses() bool {
	return c.Policy.IncludeObjectCls
}

func (c *DefaultImportConfig) IncludeAttribute(desc AttributeDescription) bool {
	lower := desc.LowerType()
	for _, excl := range c.Policy.ExcludeAttributes {
		if strings.EqualFold(excl, lower) {
			return false
		}
	}
	if len(c.Policy.IncludeAttributes) == 0 {
		return true
	}
	for _, incl := range c.Policy.IncludeAttributes {
		if strings.EqualFold(incl, lower) {
			return true
		}
	}
	return false
}

func (c *DefaultImportConfig) ValidateSchema() bool {
	return c.Policy.SchemaCheck
}

func (c *DefaultImportConfig) InvokeImportPlugins() bool {
	return c.Policy.InvokePlugins && len(c.plugins) > 0
}

func (c *DefaultImportConfig) AllowedURLSchemes() []string {
	schemes := make([]string, 0, len(c.Policy.URLSchemes)+1)
	schemes = append(schemes, "file")
	schemes = append(schemes, c.Policy.URLSchemes...)
	return schemes
}

// allowedSchemeSet converts an ImportConfig's allowed URL scheme list into
// the lookup set decodeAttrLine expects, lower-casing each entry.
func allowedSchemeSet(cfg ImportConfig) map[string]bool {
	schemes := cfg.AllowedURLSchemes()
	set := make(map[string]bool, len(schemes))
	for _, s := range schemes {
		set[strings.ToLower(s)] = true
	}
	return set
}

func (c *DefaultImportConfig) RejectWriter() io.Writer { return c.reject }
func (c *DefaultImportConfig) SkipWriter() io.Writer   { return c.skip }
func (c *DefaultImportConfig) Plugins() []ImportPlugin { return c.plugins }

// Close closes every source, returning the first error encountered (if
// any) after attempting to close all of them.
func (c *DefaultImportConfig) Close() error {
	var firstErr error
	for _, src := range c.sources[c.next:] {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
