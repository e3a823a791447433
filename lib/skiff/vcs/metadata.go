package vcs

import (
	"fmt"
	"time"
)

// CommitMetadata is the structured header of one commit, decoded from a
// single record of the metadata stream. It is never mutated after
// construction.
type CommitMetadata struct {
	Hash      Hash
	Parents   []Hash
	Author    Author
	Committer Author
	Timestamp time.Time
	Message   []string
}

// IsInitialCommit reports whether this is a root commit, recorded with the
// single null-hash parent sentinel.
func (m *CommitMetadata) IsInitialCommit() bool {
	return len(m.Parents) == 1 && m.Parents[0].IsNull()
}

// IsMerge reports whether the commit has more than one parent.
func (m *CommitMetadata) IsMerge() bool {
	return len(m.Parents) > 1
}

func (m *CommitMetadata) NumParents() int {
	return len(m.Parents)
}

func (m *CommitMetadata) String() string {
	first := ""
	if len(m.Message) > 0 {
		first = m.Message[0]
	}
	return fmt.Sprintf("%s  %-12s  %s  %s",
		m.Hash, m.Author, m.Timestamp.UTC().Format("2006-01-02 15:04"), first)
}

// Commit is the metadata of a commit together with the file-level changes
// it introduces relative to its primary parent.
type Commit struct {
	CommitMetadata
	Patches []Patch
}
