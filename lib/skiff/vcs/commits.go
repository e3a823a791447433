package vcs

import (
	"io"

	osutil "github.com/coveooss/skiff/lib/skiff/os"
)

// metadataDecoder yields commit records from one backend-specific stream
// shape, returning io.EOF at a clean end of stream.
type metadataDecoder interface {
	Next() (*CommitMetadata, error)
}

// MetadataIter is a lazy, non-restartable sequence of commit metadata
// backed by a live process. Exhausting or abandoning it must end with
// Close (Next does this itself on end of stream and on decode failure) so
// the process is drained and reaped exactly once.
type MetadataIter struct {
	dec      metadataDecoder
	stream   *osutil.Stream
	cleanup  []func() error
	closed   bool
	closeErr error
}

func newMetadataIter(stream *osutil.Stream, dec metadataDecoder, cleanup ...func() error) *MetadataIter {
	return &MetadataIter{dec: dec, stream: stream, cleanup: cleanup}
}

// Next yields the next record, or io.EOF once the backing process has been
// consumed. A decode failure still drains and reaps the process before
// propagating.
func (it *MetadataIter) Next() (*CommitMetadata, error) {
	if it.closed {
		return nil, io.EOF
	}
	m, err := it.dec.Next()
	if err == io.EOF {
		if cerr := it.Close(); cerr != nil {
			return nil, cerr
		}
		return nil, io.EOF
	}
	if err != nil {
		it.Close()
		return nil, err
	}
	return m, nil
}

// Close drains and reaps the backing process and runs any scoped cleanup
// (temp extension files). Idempotent.
func (it *MetadataIter) Close() error {
	if it.closed {
		return it.closeErr
	}
	it.closed = true
	it.closeErr = it.stream.Join()
	for _, fn := range it.cleanup {
		if err := fn(); err != nil && it.closeErr == nil {
			it.closeErr = err
		}
	}
	return it.closeErr
}

// List materializes the remainder of the sequence.
func (it *MetadataIter) List() ([]*CommitMetadata, error) {
	var out []*CommitMetadata
	for {
		m, err := it.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
}

// CommitIter combines each metadata record with the file-level patches the
// commit introduces relative to its primary parent. The patch set is
// fetched per commit as the sequence is pulled, so requesting the Nth
// commit never buffers the history before it.
type CommitIter struct {
	meta    *MetadataIter
	patches func(*CommitMetadata) ([]Patch, error)
}

func newCommitIter(meta *MetadataIter, patches func(*CommitMetadata) ([]Patch, error)) *CommitIter {
	return &CommitIter{meta: meta, patches: patches}
}

func (it *CommitIter) Next() (*Commit, error) {
	m, err := it.meta.Next()
	if err != nil {
		return nil, err
	}
	patches, err := it.patches(m)
	if err != nil {
		it.Close()
		return nil, err
	}
	return &Commit{CommitMetadata: *m, Patches: patches}, nil
}

func (it *CommitIter) Close() error {
	return it.meta.Close()
}

// List materializes the remainder of the sequence.
func (it *CommitIter) List() ([]*Commit, error) {
	var out []*Commit
	for {
		c, err := it.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
}
