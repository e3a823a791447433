package vcs

import (
	"errors"
	"fmt"
	"time"
)

const (
	Git = "git"
	Hg  = "hg"
)

// ErrMultipleHeads is returned by Fetch when a pull makes more than one new
// head visible; picking one silently would be a guess.
var ErrMultipleHeads = errors.New("fetching multiple heads is not supported")

// ErrNotImplemented marks contract operations a backend has not grown yet.
var ErrNotImplemented = errors.New("not implemented")

// UnsupportedError reports a semantic gap: the backend cannot express the
// requested operation and refuses before doing anything destructive.
type UnsupportedError struct {
	Backend string
	Op      string
	Reason  string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s not supported: %s", e.Backend, e.Op, e.Reason)
}

// New returns the driver registered under name ("hg" or "git") for dir.
// The directory is not touched; call Init or Exists on the result.
func New(name, dir string) (Repository, error) {
	switch name {
	case Hg:
		return NewHgRepository(dir)
	case Git:
		return NewGitRepository(dir)
	default:
		return nil, fmt.Errorf("unknown version control system %q", name)
	}
}

// Open locates the repository containing path, trying each known backend.
func Open(path string) (Repository, bool, error) {
	if r, ok, err := OpenHg(path); err != nil {
		return nil, false, err
	} else if ok {
		return r, true, nil
	}
	if r, ok, err := OpenGit(path); err != nil {
		return nil, false, err
	} else if ok {
		return r, true, nil
	}
	return nil, false, nil
}

// Repository is the unified operation set over one local working copy.
// Implementations drive the backend's command-line tool as a subprocess;
// every call is synchronous, and holders of a live CommitIter or
// MetadataIter own a running process until the iterator is closed. Two
// Repository instances must never share a working directory.
type Repository interface {
	// Identity and location.
	Name() string
	Root() (string, error)
	Exists() (bool, error)

	// Named references. Always re-queried, never cached.
	Branches() ([]Branch, error)
	Tags() ([]Tag, error)
	CurrentBranch() (Branch, error)
	DefaultBranch() Branch
	DefaultTag() Tag

	// Resolution. A missing ref is (zero, false, nil), not an error.
	Resolve(ref string) (Hash, bool, error)
	Head() (Hash, error)
	Heads() ([]Hash, error)
	Lookup(h Hash) (*Commit, bool, error)
	LookupBranch(b Branch) (*Commit, error)
	LookupTag(t Tag) (*Commit, error)
	IsValidRevisionRange(expression string) (bool, error)

	// History traversal. rng is a backend-native revision-set expression
	// ("" selects everything), limit <= 0 means unlimited, reverse asks
	// the backend for oldest-first ordering.
	Commits(rng string, limit int, reverse bool) (*CommitIter, error)
	Metadata(rng string, limit int, reverse bool) (*MetadataIter, error)

	// Working copy movement and mutation.
	Checkout(ref string, force bool) error
	Commit(message string, author Author, date *time.Time) (Hash, error)
	CommitWithCommitter(message string, author, committer Author, authorDate, committerDate *time.Time) (Hash, error)
	CreateTag(h Hash, name, message string, author Author) (Tag, error)
	CreateBranch(h Hash, name string) (Branch, error)
	Add(paths ...string) error
	Remove(paths ...string) error
	Move(from, to string) error
	Copy(from, to string) error

	// History relations and rewrites.
	MergeBase(first, second Hash) (Hash, error)
	IsAncestor(ancestor, descendant Hash) (bool, error)
	Merge(h Hash, strategy string) error
	Rebase(onto Hash, committer Author) error
	Squash(h Hash) error

	// Diffing. An empty to compares from against the working tree. The
	// result is complete or the call fails; it is never partial.
	Diff(from, to Hash) (*Diff, error)
	Apply(d *Diff, force bool) error
	Show(path string, h Hash) ([]byte, bool, error)

	// Remote exchange.
	Fetch(uri string, refspec string) (Hash, error)
	Push(uri string, refspec string, force bool) error
	Pull(remote string, refspec string) error

	// Introspection and recovery.
	IsClean() (bool, error)
	IsHealthy() (bool, error)
	IsEmpty() (bool, error)
	Clean() error

	// Configuration.
	Config(key string) ([]string, error)
	Username() (string, bool, error)

	// Lifecycle.
	Init() error
	CopyTo(destination string) (Repository, error)
}
