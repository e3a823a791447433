package vcs

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// MetadataSentinel marks the start of one commit record on the metadata
// stream. The record framing is line oriented:
//
//	#@!skiff-commit
//	<40-hex hash>
//	<parent hashes, space separated; the null hash when the commit is a root>
//	<author name>
//	<author email>
//	<committer name>
//	<committer email>
//	<timestamp, epoch seconds>
//	<message line count N>
//	<N raw message lines>
//
// The explicit line count makes the variable-length message body safe to
// frame even when it contains blank lines or lines that look like the
// sentinel.
const MetadataSentinel = "#@!skiff-commit"

// MetadataReader decodes commit records incrementally from a live stream.
// It holds no more than one record in memory and never reads past the
// record it is asked for.
type MetadataReader struct {
	r    *bufio.Reader
	line int
}

func NewMetadataReader(r io.Reader) *MetadataReader {
	return &MetadataReader{r: bufio.NewReader(r)}
}

// Next decodes one record. It returns io.EOF when the stream ends cleanly
// at a record boundary; any other malformation is a *ParseError carrying
// the offending line number.
func (mr *MetadataReader) Next() (*CommitMetadata, error) {
	sentinel, err := mr.readLine()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	if sentinel != MetadataSentinel {
		return nil, mr.errorf("expected record sentinel, got %q", sentinel)
	}

	hashLine, err := mr.readField("hash")
	if err != nil {
		return nil, err
	}
	hash, err := ParseHash(hashLine)
	if err != nil {
		return nil, mr.errorf("bad hash field: %v", err)
	}

	parentsLine, err := mr.readField("parents")
	if err != nil {
		return nil, err
	}
	var parents []Hash
	for _, p := range strings.Fields(parentsLine) {
		parent, err := ParseHash(p)
		if err != nil {
			return nil, mr.errorf("bad parent field: %v", err)
		}
		parents = append(parents, parent)
	}
	if len(parents) == 0 {
		return nil, mr.errorf("empty parents field")
	}

	authorName, err := mr.readField("author name")
	if err != nil {
		return nil, err
	}
	authorEmail, err := mr.readField("author email")
	if err != nil {
		return nil, err
	}
	committerName, err := mr.readField("committer name")
	if err != nil {
		return nil, err
	}
	committerEmail, err := mr.readField("committer email")
	if err != nil {
		return nil, err
	}

	epochLine, err := mr.readField("timestamp")
	if err != nil {
		return nil, err
	}
	epoch, err := strconv.ParseInt(strings.TrimSpace(epochLine), 10, 64)
	if err != nil {
		return nil, mr.errorf("bad timestamp field %q", epochLine)
	}

	countLine, err := mr.readField("message line count")
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(countLine)
	if err != nil || count < 0 {
		return nil, mr.errorf("bad message line count %q", countLine)
	}

	message := make([]string, 0, count)
	for i := 0; i < count; i++ {
		line, err := mr.readField("message body")
		if err != nil {
			return nil, err
		}
		message = append(message, line)
	}

	return &CommitMetadata{
		Hash:      hash,
		Parents:   parents,
		Author:    Author{Name: authorName, Email: authorEmail},
		Committer: Author{Name: committerName, Email: committerEmail},
		Timestamp: time.Unix(epoch, 0).UTC(),
		Message:   message,
	}, nil
}

func (mr *MetadataReader) readLine() (string, error) {
	line, err := mr.r.ReadString('\n')
	if err == io.EOF {
		if line == "" {
			return "", io.EOF
		}
		// A final line without its newline still counts.
		mr.line++
		return line, nil
	}
	if err != nil {
		return "", err
	}
	mr.line++
	return strings.TrimSuffix(line, "\n"), nil
}

// readField is readLine with mid-record EOF turned into a framing error.
func (mr *MetadataReader) readField(field string) (string, error) {
	line, err := mr.readLine()
	if err == io.EOF {
		return "", mr.errorf("stream ended inside a record, reading %s", field)
	}
	if err != nil {
		return "", err
	}
	return line, nil
}

func (mr *MetadataReader) errorf(format string, args ...interface{}) error {
	return &ParseError{Line: mr.line, Msg: fmt.Sprintf(format, args...)}
}

// WriteMetadata encodes one record in the stream framing. Decoding what it
// writes reproduces the same field values.
func WriteMetadata(w io.Writer, m *CommitMetadata) error {
	var b strings.Builder
	b.WriteString(MetadataSentinel)
	b.WriteByte('\n')
	b.WriteString(string(m.Hash))
	b.WriteByte('\n')
	if len(m.Parents) == 0 {
		b.WriteString(string(NullHash))
	} else {
		for i, p := range m.Parents {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(string(p))
		}
	}
	b.WriteByte('\n')
	b.WriteString(m.Author.Name)
	b.WriteByte('\n')
	b.WriteString(m.Author.Email)
	b.WriteByte('\n')
	b.WriteString(m.Committer.Name)
	b.WriteByte('\n')
	b.WriteString(m.Committer.Email)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(m.Timestamp.Unix(), 10))
	b.WriteByte('\n')
	b.WriteString(strconv.Itoa(len(m.Message)))
	b.WriteByte('\n')
	for _, line := range m.Message {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
