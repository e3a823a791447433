package vcs

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ParseError reports malformed parser input: a bad diff header, a hunk
// whose body does not match its declared ranges, or a corrupt metadata
// stream record. Line is 1-based within the parsed input.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Msg)
}

var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+(?:,\d+)?) \+(\d+(?:,\d+)?) @@`)

type diffScanner struct {
	sc     *bufio.Scanner
	line   int
	peeked bool
	cur    string
	done   bool
	ioErr  error
}

func newDiffScanner(r io.Reader) *diffScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &diffScanner{sc: sc}
}

func (s *diffScanner) peek() (string, bool) {
	if s.peeked {
		return s.cur, true
	}
	if s.done {
		return "", false
	}
	if !s.sc.Scan() {
		s.done = true
		s.ioErr = s.sc.Err()
		return "", false
	}
	s.cur = s.sc.Text()
	s.peeked = true
	return s.cur, true
}

func (s *diffScanner) next() (string, bool) {
	line, ok := s.peek()
	if !ok {
		return "", false
	}
	s.peeked = false
	s.line++
	return line, true
}

func (s *diffScanner) errorf(format string, args ...interface{}) error {
	return &ParseError{Line: s.line, Msg: fmt.Sprintf(format, args...)}
}

// ParseUnifiedDiff reads conventional unified-diff text: "---"/"+++"
// file headers followed by "@@" hunks. Lines outside file blocks are
// ignored; malformed headers and hunk bodies that do not match their
// declared ranges are hard errors.
func ParseUnifiedDiff(r io.Reader) ([]Patch, error) {
	s := newDiffScanner(r)
	var patches []Patch

	for {
		line, ok := s.peek()
		if !ok {
			break
		}
		if !strings.HasPrefix(line, "--- ") {
			s.next()
			continue
		}

		s.next()
		source := parseDiffPath(line[4:], "a/")
		plus, ok := s.next()
		if !ok || !strings.HasPrefix(plus, "+++ ") {
			return nil, s.errorf("expected '+++' after '---', got %q", plus)
		}
		target := parseDiffPath(plus[4:], "b/")
		if source == nil && target == nil {
			return nil, s.errorf("both sides of a patch are /dev/null")
		}

		hunks, err := parseHunks(s)
		if err != nil {
			return nil, err
		}

		patch := Patch{Source: source, Target: target, Hunks: hunks, Status: StatusModified}
		switch {
		case source == nil:
			patch.Status = StatusAdded
		case target == nil:
			patch.Status = StatusDeleted
		}
		patches = append(patches, patch)
	}
	if s.ioErr != nil {
		return nil, s.ioErr
	}
	return patches, nil
}

// ParseGitRawDiff reads the machine-oriented "diff --git" form with
// extended headers, which is the only diff shape that carries rename, copy
// and permission metadata.
func ParseGitRawDiff(r io.Reader) ([]Patch, error) {
	s := newDiffScanner(r)
	var patches []Patch

	for {
		line, ok := s.peek()
		if !ok {
			break
		}
		if !strings.HasPrefix(line, "diff --git ") {
			s.next()
			continue
		}
		s.next()

		patch, err := parseGitRawPatch(s, line)
		if err != nil {
			return nil, err
		}
		patches = append(patches, *patch)
	}
	if s.ioErr != nil {
		return nil, s.ioErr
	}
	return patches, nil
}

func parseGitRawPatch(s *diffScanner, header string) (*Patch, error) {
	tokens := diffLineTokens(strings.TrimSpace(header[len("diff --git "):]))
	if len(tokens) < 2 {
		return nil, s.errorf("malformed diff header %q", header)
	}
	patch := &Patch{
		Source: &FileRef{Path: stripPathPrefix(tokens[0], "a/")},
		Target: &FileRef{Path: stripPathPrefix(tokens[1], "b/")},
		Status: StatusModified,
	}

	// Extended header lines.
	for {
		line, ok := s.peek()
		if !ok {
			return patch, nil
		}
		switch {
		case strings.HasPrefix(line, "old mode "):
			patch.Source.Mode = FileMode(line[len("old mode "):])
		case strings.HasPrefix(line, "new mode "):
			patch.Target.Mode = FileMode(line[len("new mode "):])
		case strings.HasPrefix(line, "new file mode "):
			patch.Status = StatusAdded
			patch.Target.Mode = FileMode(line[len("new file mode "):])
			patch.Source = nil
		case strings.HasPrefix(line, "deleted file mode "):
			patch.Status = StatusDeleted
			patch.Source.Mode = FileMode(line[len("deleted file mode "):])
			patch.Target = nil
		case strings.HasPrefix(line, "rename from "):
			patch.Status = StatusRenamed
			patch.Source.Path = line[len("rename from "):]
		case strings.HasPrefix(line, "rename to "):
			patch.Status = StatusRenamed
			patch.Target.Path = line[len("rename to "):]
		case strings.HasPrefix(line, "copy from "):
			patch.Status = StatusCopied
			patch.Source.Path = line[len("copy from "):]
		case strings.HasPrefix(line, "copy to "):
			patch.Status = StatusCopied
			patch.Target.Path = line[len("copy to "):]
		case strings.HasPrefix(line, "similarity index "),
			strings.HasPrefix(line, "dissimilarity index "),
			strings.HasPrefix(line, "index "):
			// carried for information only
		default:
			return parseGitRawBody(s, patch)
		}
		s.next()
	}
}

func parseGitRawBody(s *diffScanner, patch *Patch) (*Patch, error) {
	line, ok := s.peek()
	if !ok {
		return patch, nil
	}
	switch {
	case strings.HasPrefix(line, "Binary files "):
		s.next()
		patch.Binary = true
		return patch, nil
	case line == "GIT binary patch":
		s.next()
		patch.Binary = true
		if err := skipBinarySections(s); err != nil {
			return nil, err
		}
		return patch, nil
	case strings.HasPrefix(line, "--- "):
		s.next()
		minus, ok2 := s.peek()
		if !ok2 || !strings.HasPrefix(minus, "+++ ") {
			return nil, s.errorf("expected '+++' after '---', got %q", minus)
		}
		s.next()
		hunks, err := parseHunks(s)
		if err != nil {
			return nil, err
		}
		patch.Hunks = hunks
		return patch, nil
	default:
		// Pure rename, copy or mode change has no body.
		return patch, nil
	}
}

func skipBinarySections(s *diffScanner) error {
	// One or two "literal N"/"delta N" blocks of base85 data, each
	// terminated by a blank line.
	for {
		line, ok := s.peek()
		if !ok {
			return nil
		}
		if !strings.HasPrefix(line, "literal ") && !strings.HasPrefix(line, "delta ") {
			return nil
		}
		s.next()
		for {
			data, ok := s.next()
			if !ok || data == "" {
				break
			}
		}
	}
}

func parseHunks(s *diffScanner) ([]Hunk, error) {
	var hunks []Hunk
	for {
		line, ok := s.peek()
		if !ok || !strings.HasPrefix(line, "@@") {
			return hunks, nil
		}
		s.next()

		m := hunkHeaderRegex.FindStringSubmatch(line)
		if m == nil {
			return nil, s.errorf("malformed hunk header %q", line)
		}
		sourceRange, err := ParseRange(m[1])
		if err != nil {
			return nil, s.errorf("malformed hunk header %q: %v", line, err)
		}
		targetRange, err := ParseRange(m[2])
		if err != nil {
			return nil, s.errorf("malformed hunk header %q: %v", line, err)
		}

		hunk := Hunk{SourceRange: sourceRange, TargetRange: targetRange}
		srcLeft, tgtLeft := sourceRange.Count, targetRange.Count
		for srcLeft > 0 || tgtLeft > 0 {
			body, ok := s.next()
			if !ok {
				return nil, s.errorf("hunk body ended before declared ranges %s/%s were satisfied",
					sourceRange, targetRange)
			}
			switch {
			case body == "", strings.HasPrefix(body, " "):
				// An entirely empty line is a context line whose
				// trailing space was stripped in transit.
				srcLeft--
				tgtLeft--
			case strings.HasPrefix(body, "-"):
				srcLeft--
			case strings.HasPrefix(body, "+"):
				tgtLeft--
			case strings.HasPrefix(body, "\\"):
				// "\ No newline at end of file" counts toward neither side.
			default:
				return nil, s.errorf("unexpected line %q in hunk body", body)
			}
			if srcLeft < 0 || tgtLeft < 0 {
				return nil, s.errorf("hunk body exceeds declared ranges %s/%s",
					sourceRange, targetRange)
			}
			hunk.Lines = append(hunk.Lines, body)
		}
		// A trailing no-newline marker belongs to this hunk.
		if trailer, ok := s.peek(); ok && strings.HasPrefix(trailer, "\\") {
			s.next()
			hunk.Lines = append(hunk.Lines, trailer)
		}
		hunks = append(hunks, hunk)
	}
}

func parseDiffPath(field string, prefix string) *FileRef {
	// Strip the optional timestamp some tools append after a tab.
	if i := strings.IndexByte(field, '\t'); i >= 0 {
		field = field[:i]
	}
	field = strings.TrimSpace(field)
	if field == "/dev/null" {
		return nil
	}
	return &FileRef{Path: stripPathPrefix(field, prefix)}
}

func stripPathPrefix(path string, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

// diffLineTokens splits a "diff --git" header into paths, honoring the
// C-style quoting git applies to paths with special characters.
func diffLineTokens(s string) []string {
	var tokens []string
	for {
		s = strings.TrimLeft(s, " \t")
		if s == "" {
			break
		}
		if s[0] == '"' {
			var buf strings.Builder
			escaped := false
			i := 1
			for i < len(s) {
				ch := s[i]
				if escaped {
					buf.WriteByte(ch)
					escaped = false
					i++
					continue
				}
				if ch == '\\' {
					escaped = true
					i++
					continue
				}
				if ch == '"' {
					i++
					break
				}
				buf.WriteByte(ch)
				i++
			}
			tokens = append(tokens, buf.String())
			s = s[i:]
			continue
		}
		j := 0
		for j < len(s) && s[j] != ' ' && s[j] != '\t' {
			j++
		}
		tokens = append(tokens, s[:j])
		s = s[j:]
	}
	return tokens
}
