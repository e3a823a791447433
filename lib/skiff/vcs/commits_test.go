package vcs

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	osutil "github.com/coveooss/skiff/lib/skiff/os"
)

// startMetadataStream feeds pre-encoded records through a real subprocess
// so the iterator's drain-and-reap behavior is exercised for real.
func startMetadataStream(t *testing.T, records []*CommitMetadata) *osutil.Stream {
	t.Helper()
	var b strings.Builder
	for _, m := range records {
		if err := WriteMetadata(&b, m); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "stream.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	stream, err := osutil.Start("", nil, "cat", path)
	if err != nil {
		t.Fatal(err)
	}
	return stream
}

func TestMetadataIterConsumesStream(t *testing.T) {
	records := sampleMetadata(t)
	stream := startMetadataStream(t, records)

	cleaned := false
	iter := newMetadataIter(stream, NewMetadataReader(stream.Out), func() error {
		cleaned = true
		return nil
	})

	got, err := iter.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(records) {
		t.Fatalf("got %d records, want %d", len(got), len(records))
	}
	for i := range records {
		assertMetadataEqual(t, i, got[i], records[i])
	}
	if !cleaned {
		t.Error("cleanup did not run on exhaustion")
	}

	// The iterator stays closed.
	if _, err := iter.Next(); err != io.EOF {
		t.Errorf("Next() after exhaustion = %v, want io.EOF", err)
	}
	if err := iter.Close(); err != nil {
		t.Errorf("repeated Close() = %v", err)
	}
}

func TestMetadataIterCloseBeforeExhaustion(t *testing.T) {
	records := sampleMetadata(t)
	stream := startMetadataStream(t, records)

	iter := newMetadataIter(stream, NewMetadataReader(stream.Out))
	first, err := iter.Next()
	if err != nil {
		t.Fatal(err)
	}
	assertMetadataEqual(t, 0, first, records[0])

	// Abandoning mid-stream must still reap the process.
	if err := iter.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := iter.Next(); err != io.EOF {
		t.Errorf("Next() after Close() = %v, want io.EOF", err)
	}
}

func TestCommitIterAttachesPatches(t *testing.T) {
	records := sampleMetadata(t)
	stream := startMetadataStream(t, records)

	var asked []Hash
	iter := newCommitIter(
		newMetadataIter(stream, NewMetadataReader(stream.Out)),
		func(m *CommitMetadata) ([]Patch, error) {
			asked = append(asked, m.Hash)
			return []Patch{{
				Target: &FileRef{Path: "x.txt"},
				Status: StatusAdded,
			}}, nil
		})

	commits, err := iter.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != len(records) {
		t.Fatalf("got %d commits, want %d", len(commits), len(records))
	}
	for i, c := range commits {
		if len(c.Patches) != 1 {
			t.Errorf("commit %d carries %d patches", i, len(c.Patches))
		}
		if asked[i] != records[i].Hash {
			t.Errorf("patches fetched for %s, want %s", asked[i], records[i].Hash)
		}
	}
}
