package ldif

import "strings"

// Record is one framed logical record: a header line and the ordered
// body lines that followed it, tagged with the physical line number the
// record started at (spec.md §4.2; used for reject-channel reporting and
// parse-error tagging).
type Record struct {
	StartLine int
	Header    string
	Body      []string
}

// recordFramer folds physical lines from a lineSource into logical
// records: continuation handling, comment skipping, and blank-line
// separation, generalised from internal/backup/ldif.go's ad-hoc
// continuedLine accumulation into a standalone HEADER/BODY framer shared
// by the entry assembler and the change-record parser.
type recordFramer struct {
	ls *lineSource
}

func newRecordFramer(ls *lineSource) *recordFramer {
	return &recordFramer{ls: ls}
}

// nextRecord returns the next framed record, errRetry if a standalone
// "version:" record produced no output (the caller should call
// nextRecord again), or ErrEndOfInput once the source is exhausted.
func (f *recordFramer) nextRecord() (*Record, error) {
	var logical []string
	startLine := 0

	for {
		raw, lineNo, ok, err := f.ls.nextLine()
		if err != nil {
			return nil, err
		}
		if !ok {
			if len(logical) == 0 {
				return nil, ErrEndOfInput
			}
			return f.frame(startLine, logical)
		}

		switch {
		case raw == "":
			if len(logical) == 0 {
				continue // blank line between records: skip
			}
			return f.frame(startLine, logical)

		case raw[0] == '#':
			continue // comment: discard

		case raw[0] == ' ' || raw[0] == '\t':
			if len(logical) == 0 {
				return nil, newParseError(lineNo, "leading space without predecessor")
			}
			logical[len(logical)-1] += raw[1:]

		default:
			if len(logical) == 0 {
				startLine = lineNo
			}
			logical = append(logical, raw)
		}
	}
}

// frame consumes a leading standalone "version:" directive (spec.md
// §4.2) and splits the remaining logical lines into header + body.
func (f *recordFramer) frame(startLine int, logical []string) (*Record, error) {
	if isVersionLine(logical[0]) {
		logical = logical[1:]
		if len(logical) == 0 {
			return nil, errRetry
		}
	}
	return &Record{StartLine: startLine, Header: logical[0], Body: logical[1:]}, nil
}

func isVersionLine(line string) bool {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line[:colon]), "version")
}
