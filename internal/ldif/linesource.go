package ldif

import (
	"bufio"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// lineSource turns the ImportConfig's sequence of byte streams into a
// lazy sequence of physical lines, each paired with its absolute line
// number (spec.md §4.1), the way internal/logging pairs a payload with
// monotonically increasing metadata (there a request ID).
type lineSource struct {
	cfg ImportConfig

	scanner *bufio.Scanner
	closer  io.Closer

	lineNo      int
	openedFirst bool
	exhausted   bool
}

func newLineSource(cfg ImportConfig) *lineSource {
	return &lineSource{cfg: cfg}
}

// nextLine returns the next physical line (terminator stripped) and its
// absolute line number, or ok=false once every configured source is
// exhausted.
func (ls *lineSource) nextLine() (line string, lineNo int, ok bool, err error) {
	for {
		if ls.scanner == nil {
			opened, err := ls.openNext()
			if err != nil {
				return "", 0, false, err
			}
			if !opened {
				ls.exhausted = true
				return "", 0, false, nil
			}
		}

		if ls.scanner.Scan() {
			ls.lineNo++
			return ls.scanner.Text(), ls.lineNo, true, nil
		}
		if err := ls.scanner.Err(); err != nil {
			return "", 0, false, wrapIO(err, "reading LDIF source")
		}

		// Current source exhausted cleanly; close it and roll over.
		if ls.closer != nil {
			ls.closer.Close()
		}
		ls.scanner = nil
		ls.closer = nil
	}
}

// openNext advances to the next configured source, applying UTF-8 BOM
// stripping only to the very first line of the very first stream
// (spec.md §4.1). Subsequent streams are read as plain UTF-8.
func (ls *lineSource) openNext() (bool, error) {
	r, ok, err := ls.cfg.NextReader()
	if err != nil {
		return false, wrapIO(err, "opening next LDIF source")
	}
	if !ok {
		return false, nil
	}
	ls.closer = r

	var reader io.Reader = r
	if !ls.openedFirst {
		// unicode.BOMOverride auto-detects a UTF-8/UTF-16 BOM and strips
		// it, falling back to plain UTF-8 decoding when none is present
		// — the same golang.org/x/text/encoding/unicode package
		// trevex-terraform-provider-ldap reaches for when it needs a
		// transform.Reader instead of a hand byte-prefix check.
		reader = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
		ls.openedFirst = true
	}

	ls.scanner = bufio.NewScanner(reader)
	ls.scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return true, nil
}
