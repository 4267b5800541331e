package ldif

import (
	"io"
	"strings"

	"github.com/oba-ldap/oba/internal/dn"
	"github.com/oba-ldap/oba/internal/schema"
)

// chunkSource feeds a fixed list of strings to NextReader, one per call,
// modelling ImportConfig's source-rollover contract for tests.
type chunkSource struct {
	chunks []string
	next   int
}

func (s *chunkSource) NextReader() (io.ReadCloser, bool, error) {
	if s.next >= len(s.chunks) {
		return nil, false, nil
	}
	r := io.NopCloser(strings.NewReader(s.chunks[s.next]))
	s.next++
	return r, true, nil
}

// fakeConfig is a minimal, permissive ImportConfig used across this
// package's tests: no filtering, schema checks on, no plugins, "file"
// URL scheme only.
type fakeConfig struct {
	src          *chunkSource
	schemaCheck  bool
	invokePlugin bool
	plugins      []ImportPlugin
	includeDN    func(dn.DN) (bool, string)
	includeEntry func(*Entry) (bool, string)
	reject       io.Writer
	skip         io.Writer
	urlSchemes   []string
}

func newFakeConfig(chunks ...string) *fakeConfig {
	return &fakeConfig{src: &chunkSource{chunks: chunks}, schemaCheck: true}
}

func (c *fakeConfig) NextReader() (io.ReadCloser, bool, error) { return c.src.NextReader() }

func (c *fakeConfig) IncludeEntryDN(d dn.DN) (bool, string) {
	if c.includeDN != nil {
		return c.includeDN(d)
	}
	return true, ""
}

func (c *fakeConfig) IncludeEntry(e *Entry) (bool, string) {
	if c.includeEntry != nil {
		return c.includeEntry(e)
	}
	return true, ""
}

func (c *fakeConfig) IncludeObjectClasses() bool { return true }

func (c *fakeConfig) IncludeAttribute(desc AttributeDescription) bool { return true }

func (c *fakeConfig) ValidateSchema() bool { return c.schemaCheck }

func (c *fakeConfig) InvokeImportPlugins() bool { return c.invokePlugin && len(c.plugins) > 0 }

func (c *fakeConfig) AllowedURLSchemes() []string {
	if c.urlSchemes != nil {
		return c.urlSchemes
	}
	return []string{"file"}
}

func (c *fakeConfig) RejectWriter() io.Writer { return c.reject }
func (c *fakeConfig) SkipWriter() io.Writer   { return c.skip }
func (c *fakeConfig) Plugins() []ImportPlugin { return c.plugins }

func (c *fakeConfig) Close() error { return nil }

// fakeSchema is a permissive SchemaReader: every object class and
// attribute type resolves to nil/false, and conformance always passes,
// for tests that only exercise the framer/assembler's grammar handling.
type fakeSchema struct {
	conformErr error
}

func (s *fakeSchema) ResolveObjectClass(name string) (*schema.ObjectClass, bool) { return nil, false }

func (s *fakeSchema) LookupAttributeType(desc AttributeDescription) (*schema.AttributeType, bool) {
	return nil, false
}

func (s *fakeSchema) ConformsToSchema(e *Entry) error { return s.conformErr }
