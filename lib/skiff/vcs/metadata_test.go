package vcs

import (
	"strings"
	"testing"
	"time"
)

func mustHash(t *testing.T, c byte) Hash {
	t.Helper()
	h, err := ParseHash(strings.Repeat(string(c), 40))
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func TestCommitMetadataParentClassification(t *testing.T) {
	a := mustHash(t, 'a')
	b := mustHash(t, 'b')

	root := &CommitMetadata{Hash: a, Parents: []Hash{NullHash}}
	if !root.IsInitialCommit() {
		t.Error("root commit not classified as initial")
	}
	if root.IsMerge() {
		t.Error("root commit classified as merge")
	}

	linear := &CommitMetadata{Hash: b, Parents: []Hash{a}}
	if linear.IsInitialCommit() || linear.IsMerge() {
		t.Errorf("linear commit misclassified: initial=%v merge=%v",
			linear.IsInitialCommit(), linear.IsMerge())
	}

	merge := &CommitMetadata{Hash: b, Parents: []Hash{a, mustHash(t, 'c')}}
	if !merge.IsMerge() || merge.IsInitialCommit() {
		t.Error("two-parent commit not classified as merge")
	}
	if merge.NumParents() != 2 {
		t.Errorf("NumParents() = %d, want 2", merge.NumParents())
	}
}

func TestCommitMetadataString(t *testing.T) {
	m := &CommitMetadata{
		Hash:      mustHash(t, 'a'),
		Parents:   []Hash{NullHash},
		Author:    Author{Name: "Jane Doe", Email: "jane@example.com"},
		Timestamp: time.Date(2020, 5, 4, 12, 30, 0, 0, time.UTC),
		Message:   []string{"first line", "second line"},
	}
	s := m.String()
	for _, want := range []string{"first line", "2020-05-04 12:30", "Jane Doe"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
	if strings.Contains(s, "second line") {
		t.Errorf("String() = %q, should only show the first message line", s)
	}
}
