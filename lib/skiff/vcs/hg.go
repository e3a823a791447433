package vcs

import (
	"errors"
	"fmt"
	"io"
	stdos "os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/coveooss/skiff/lib/skiff/log"
	osutil "github.com/coveooss/skiff/lib/skiff/os"
	"github.com/coveooss/skiff/lib/skiff/workdir"
)

// hgEnv forces a deterministic Mercurial: config discovery off, plain
// output on, regardless of the invoking user's hgrc.
var hgEnv = map[string]string{
	"HGRCPATH": "",
	"HGPLAIN":  "",
}

// HgRepository drives a Mercurial working copy. Operations the contract
// requires but Mercurial lacks (lightweight branches, distinct committer
// identity, rebase, squash) are emulated or refused explicitly; see the
// individual methods.
type HgRepository struct {
	dir string
}

var _ Repository = (*HgRepository)(nil)

// NewHgRepository wraps dir without touching it; call Init to create a
// repository there or Exists to probe for one.
func NewHgRepository(dir string) (*HgRepository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &HgRepository{dir: abs}, nil
}

// OpenHg returns the repository containing path, or ok == false when path
// is not inside one.
func OpenHg(path string) (*HgRepository, bool, error) {
	r, err := NewHgRepository(path)
	if err != nil {
		return nil, false, err
	}
	root, err := r.Root()
	if err != nil {
		return nil, false, nil
	}
	rooted, err := NewHgRepository(root)
	if err != nil {
		return nil, false, err
	}
	return rooted, true, nil
}

// CloneHg clones from into to and returns the new repository.
func CloneHg(from, to string) (*HgRepository, error) {
	if err := CheckHgVersion(); err != nil {
		return nil, err
	}
	log.Logger.Infof("cloning %s to %s", from, to)
	if _, err := osutil.Capture("", hgEnv, "hg", "clone", from, to).Await(); err != nil {
		return nil, err
	}
	return NewHgRepository(to)
}

func (r *HgRepository) capture(args ...string) *osutil.Execution {
	return osutil.Capture(r.dir, hgEnv, "hg", args...)
}

func (r *HgRepository) await(args ...string) (*osutil.Result, error) {
	return r.capture(args...).Await()
}

func (r *HgRepository) Name() string {
	return Hg
}

func (r *HgRepository) Root() (string, error) {
	res, err := r.await("root")
	if err != nil {
		return "", err
	}
	if len(res.Stdout) != 1 {
		return "", fmt.Errorf("unexpected 'hg root' output: %s", res)
	}
	return res.Stdout[0], nil
}

func (r *HgRepository) Exists() (bool, error) {
	_, err := r.Root()
	return err == nil, nil
}

func (r *HgRepository) Init() error {
	if err := CheckHgVersion(); err != nil {
		return err
	}
	if err := stdos.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	_, err := r.await("init")
	return err
}

func (r *HgRepository) Branches() ([]Branch, error) {
	res, err := r.await("branches")
	if err != nil {
		return nil, err
	}
	branches := make([]Branch, 0, len(res.Stdout))
	for _, line := range res.Stdout {
		branches = append(branches, NewBranch(strings.Fields(line)[0]))
	}
	return branches, nil
}

func (r *HgRepository) Tags() ([]Tag, error) {
	res, err := r.await("tags")
	if err != nil {
		return nil, err
	}
	tags := make([]Tag, 0, len(res.Stdout))
	for _, line := range res.Stdout {
		tags = append(tags, NewTag(strings.Fields(line)[0]))
	}
	return tags, nil
}

func (r *HgRepository) CurrentBranch() (Branch, error) {
	res, err := r.await("branch")
	if err != nil {
		return Branch{}, err
	}
	if len(res.Stdout) != 1 {
		return Branch{}, fmt.Errorf("no current branch: %s", res)
	}
	return NewBranch(res.Stdout[0]), nil
}

func (r *HgRepository) DefaultBranch() Branch {
	return NewBranch("default")
}

func (r *HgRepository) DefaultTag() Tag {
	return NewTag("tip")
}

func (r *HgRepository) Resolve(ref string) (Hash, bool, error) {
	res, err := r.capture("log", "--rev="+ref, "--template={node}\n").Result()
	if err != nil {
		return "", false, err
	}
	if res.Status != 0 || len(res.Stdout) != 1 {
		return "", false, nil
	}
	h, err := ParseHash(res.Stdout[0])
	if err != nil {
		return "", false, err
	}
	return h, true, nil
}

func (r *HgRepository) Head() (Hash, error) {
	h, ok, err := r.Resolve(".")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("'.' not available")
	}
	return h, nil
}

func (r *HgRepository) Heads() ([]Hash, error) {
	// 'hg heads' exits 1 on an empty repository; that is an answer, not
	// a failure.
	res, err := r.capture("heads", "--template={node}\n").Result()
	if err != nil {
		return nil, err
	}
	var heads []Hash
	if res.Status == 0 {
		for _, line := range res.Stdout {
			h, err := ParseHash(line)
			if err != nil {
				return nil, err
			}
			heads = append(heads, h)
		}
	}
	return heads, nil
}

func (r *HgRepository) IsValidRevisionRange(expression string) (bool, error) {
	res, err := r.capture("log", "--template", " ", "--rev", expression).Result()
	if err != nil {
		return false, err
	}
	return res.Status == 0, nil
}

func (r *HgRepository) Metadata(rng string, limit int, reverse bool) (*MetadataIter, error) {
	ext, cleanup, err := materializeHgExtension()
	if err != nil {
		return nil, err
	}
	args := []string{"--config", "extensions.skiff=" + ext, "skiff-metadata"}
	if rng != "" {
		args = append(args, "--rev", rng)
	}
	if limit > 0 {
		args = append(args, "--limit", strconv.Itoa(limit))
	}
	if reverse {
		args = append(args, "--reverse")
	}
	stream, err := osutil.Start(r.dir, hgEnv, "hg", args...)
	if err != nil {
		cleanup()
		return nil, err
	}
	return newMetadataIter(stream, NewMetadataReader(stream.Out), cleanup), nil
}

func (r *HgRepository) Commits(rng string, limit int, reverse bool) (*CommitIter, error) {
	meta, err := r.Metadata(rng, limit, reverse)
	if err != nil {
		return nil, err
	}
	return newCommitIter(meta, r.commitPatches), nil
}

// commitPatches loads the changes a commit introduces relative to its
// primary parent; root commits diff against the null revision.
func (r *HgRepository) commitPatches(m *CommitMetadata) ([]Patch, error) {
	from := "null"
	if !m.Parents[0].IsNull() {
		from = m.Parents[0].String()
	}
	return r.rawDiff(from, m.Hash.String())
}

// rawDiff streams the extension's git-style raw diff between two revisions
// (to == "" compares against the working tree) through the parser.
func (r *HgRepository) rawDiff(from, to string) ([]Patch, error) {
	ext, cleanup, err := materializeHgExtension()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	args := []string{"--config", "extensions.skiff=" + ext, "skiff-diff-raw", from}
	if to != "" {
		args = append(args, to)
	}
	stream, err := osutil.Start(r.dir, hgEnv, "hg", args...)
	if err != nil {
		return nil, err
	}
	patches, parseErr := ParseGitRawDiff(stream.Out)
	joinErr := stream.Join()
	if parseErr != nil {
		return nil, parseErr
	}
	if joinErr != nil {
		return nil, joinErr
	}
	return patches, nil
}

func (r *HgRepository) Lookup(h Hash) (*Commit, bool, error) {
	iter, err := r.Commits(h.String(), 1, false)
	if err != nil {
		return nil, false, err
	}
	commits, err := iter.List()
	if err != nil {
		return nil, false, err
	}
	if len(commits) != 1 {
		return nil, false, nil
	}
	return commits[0], true, nil
}

func (r *HgRepository) LookupBranch(b Branch) (*Commit, error) {
	return r.lookupRef(b.Name(), "branch")
}

func (r *HgRepository) LookupTag(t Tag) (*Commit, error) {
	return r.lookupRef(t.Name(), "tag")
}

func (r *HgRepository) lookupRef(name, kind string) (*Commit, error) {
	h, ok, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s %s not found", kind, name)
	}
	commit, ok, err := r.Lookup(h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s %s resolved to unknown revision %s", kind, name, h)
	}
	return commit, nil
}

// Checkout moves the working copy to ref. A non-forced checkout fails
// rather than discard local modifications; a forced one discards them.
func (r *HgRepository) Checkout(ref string, force bool) error {
	args := []string{"update"}
	if force {
		args = append(args, "--clean")
	} else {
		args = append(args, "--check")
	}
	args = append(args, ref)
	_, err := r.await(args...)
	return err
}

func (r *HgRepository) Commit(message string, author Author, date *time.Time) (Hash, error) {
	args := []string{"commit", "--message=" + message, "--user=" + author.String()}
	if date != nil {
		args = append(args, fmt.Sprintf("--date=%d 0", date.Unix()))
	}
	if _, err := r.await(args...); err != nil {
		return "", err
	}
	h, ok, err := r.Resolve("tip")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("could not resolve 'tip'")
	}
	return h, nil
}

// CommitWithCommitter fails fast when the identities differ: Mercurial has
// no committer distinct from the author and silently dropping one would
// record the wrong history.
func (r *HgRepository) CommitWithCommitter(message string, author, committer Author, authorDate, committerDate *time.Time) (Hash, error) {
	if author != committer || !equalTimes(authorDate, committerDate) {
		return "", &UnsupportedError{
			Backend: Hg,
			Op:      "commit",
			Reason:  "distinct author and committer identities or dates",
		}
	}
	return r.Commit(message, author, authorDate)
}

func equalTimes(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (r *HgRepository) CreateTag(h Hash, name, message string, author Author) (Tag, error) {
	_, err := r.await("tag",
		"--message", message,
		"--user", author.String(),
		"--rev", h.String(),
		name)
	if err != nil {
		return Tag{}, err
	}
	return NewTag(name), nil
}

// CreateBranch models a lightweight branch with a bookmark, the closest
// Mercurial construct. It does not carry named-branch update tracking.
func (r *HgRepository) CreateBranch(h Hash, name string) (Branch, error) {
	if _, err := r.await("bookmark", "--rev", h.String(), name); err != nil {
		return Branch{}, err
	}
	return NewBranch(name), nil
}

func (r *HgRepository) Add(paths ...string) error {
	_, err := r.await(append([]string{"add"}, paths...)...)
	return err
}

func (r *HgRepository) Remove(paths ...string) error {
	_, err := r.await(append([]string{"rm"}, paths...)...)
	return err
}

func (r *HgRepository) Move(from, to string) error {
	_, err := r.await("move", from, to)
	return err
}

func (r *HgRepository) Copy(from, to string) error {
	_, err := r.await("copy", from, to)
	return err
}

// MergeBase resolves the nearest common ancestor via the ancestor()
// revset. Anything but exactly one resulting hash (disjoint histories,
// ambiguous ancestry) is an error, never a guess.
func (r *HgRepository) MergeBase(first, second Hash) (Hash, error) {
	revset := "ancestor(" + first.String() + ", " + second.String() + ")"
	res, err := r.await("log", "--rev="+revset, "--template={node}\n")
	if err != nil {
		return "", err
	}
	if len(res.Stdout) != 1 {
		return "", fmt.Errorf("no unique merge base of %s and %s: %s",
			first.Abbreviate(), second.Abbreviate(), res)
	}
	return ParseHash(res.Stdout[0])
}

func (r *HgRepository) IsAncestor(ancestor, descendant Hash) (bool, error) {
	return false, ErrNotImplemented
}

func (r *HgRepository) Merge(h Hash, strategy string) error {
	args := []string{"merge", "--rev=" + h.String()}
	if strategy != "" {
		args = append(args, "--tool="+strategy)
	}
	_, err := r.await(args...)
	return err
}

// Rebase moves the line of work ending at the working parent onto onto via
// the bundled rebase extension. Mercurial keeps the original single
// identity; the committer argument exists for contract symmetry and is not
// recordable here.
func (r *HgRepository) Rebase(onto Hash, committer Author) error {
	_, err := r.await("--config", "extensions.rebase=",
		"rebase", "--dest", onto.String(), "--base", ".")
	return err
}

// Squash collapses the commits between the working parent and h into
// uncommitted working-tree changes: export the range as a patch, strip the
// commits, re-import without committing. The sequence is not atomic; a
// failed import leaves the stripped state behind (accepted limitation).
func (r *HgRepository) Squash(h Hash) error {
	revset := ".:" + h.String() + " and not ."

	patchFile, err := workdir.TempFile("skiff-squash-", ".patch")
	if err != nil {
		return err
	}
	defer stdos.Remove(patchFile)

	if err := r.exportTo(revset, patchFile); err != nil {
		return err
	}
	if _, err := r.await("--config", "extensions.mq=", "strip", "--rev", revset); err != nil {
		return err
	}
	_, err = r.await("import", "--no-commit", patchFile)
	return err
}

// exportTo streams 'hg export --git' for revset into path.
func (r *HgRepository) exportTo(revset, path string) error {
	stream, err := osutil.Start(r.dir, hgEnv, "hg", "export", "--git", "--rev", revset)
	if err != nil {
		return err
	}
	f, err := stdos.Create(path)
	if err != nil {
		stream.Join()
		return err
	}
	_, copyErr := io.Copy(f, stream.Out)
	closeErr := f.Close()
	joinErr := stream.Join()
	if copyErr != nil {
		return copyErr
	}
	if joinErr != nil {
		return joinErr
	}
	return closeErr
}

func (r *HgRepository) Diff(from, to Hash) (*Diff, error) {
	toRef := ""
	if to != "" {
		toRef = to.String()
	}
	patches, err := r.rawDiff(from.String(), toRef)
	if err != nil {
		return nil, err
	}
	return &Diff{From: from, To: to, Patches: patches}, nil
}

func (r *HgRepository) Apply(d *Diff, force bool) error {
	patchFile, err := workdir.TempFile("skiff-import-", ".patch")
	if err != nil {
		return err
	}
	defer stdos.Remove(patchFile)

	if err := d.ToFile(patchFile); err != nil {
		return err
	}
	args := []string{"import", "--no-commit"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, patchFile)
	_, err = r.await(args...)
	return err
}

func (r *HgRepository) Show(path string, h Hash) ([]byte, bool, error) {
	output, err := workdir.TempFile("skiff-cat-"+h.Abbreviate()+"-", ".bin")
	if err != nil {
		return nil, false, err
	}
	defer stdos.Remove(output)

	res, err := r.capture("cat", "--output="+output, "--rev="+h.String(), path).Result()
	if err != nil {
		return nil, false, err
	}
	if res.Status != 0 {
		return nil, false, nil
	}
	bytes, err := stdos.ReadFile(output)
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

// Fetch pulls refspec from uri and returns the single newly-visible head.
// More than one new head is ErrMultipleHeads; zero new heads returns the
// pre-existing head. An empty refspec pulls everything the remote has.
func (r *HgRepository) Fetch(uri string, refspec string) (Hash, error) {
	oldHeads, err := r.Heads()
	if err != nil {
		return "", err
	}
	args := []string{"pull"}
	if refspec != "" {
		args = append(args, "--rev="+refspec)
	}
	args = append(args, uri)
	if _, err := r.await(args...); err != nil {
		return "", err
	}
	newHeads, err := r.Heads()
	if err != nil {
		return "", err
	}

	seen := make(map[Hash]bool, len(oldHeads))
	for _, h := range oldHeads {
		seen[h] = true
	}
	var added []Hash
	for _, h := range newHeads {
		if !seen[h] {
			added = append(added, h)
		}
	}
	switch len(added) {
	case 0:
		return r.Head()
	case 1:
		return added[0], nil
	default:
		return "", fmt.Errorf("%w: pull of %s from %s exposed %d heads",
			ErrMultipleHeads, refspec, uri, len(added))
	}
}

func (r *HgRepository) Push(uri string, refspec string, force bool) error {
	args := []string{"push", "--rev=" + refspec}
	if force {
		args = append(args, "--force")
	}
	args = append(args, uri)
	_, err := r.await(args...)
	return err
}

func (r *HgRepository) Pull(remote string, refspec string) error {
	_, err := r.await("pull", "--update", "--branch", refspec, remote)
	return err
}

func (r *HgRepository) IsClean() (bool, error) {
	res, err := r.await("status")
	if err != nil {
		return false, err
	}
	return len(res.Stdout) == 0, nil
}

// IsHealthy reports false when a crashed prior operation left Mercurial's
// on-disk locks behind; Clean must run before further mutation is safe.
func (r *HgRepository) IsHealthy() (bool, error) {
	root, err := r.Root()
	if err != nil {
		return false, err
	}
	for _, lock := range []string{
		filepath.Join(root, ".hg", "wlock"),
		filepath.Join(root, ".hg", "store", "lock"),
	} {
		if _, err := stdos.Lstat(lock); err == nil {
			return false, nil
		}
	}
	return true, nil
}

func (r *HgRepository) IsEmpty() (bool, error) {
	branches, err := r.Branches()
	if err != nil {
		return false, err
	}
	tags, err := r.Tags()
	if err != nil {
		return false, err
	}
	// A repository always carries the 'tip' pseudo tag.
	if len(branches) > 0 || len(tags) > 1 {
		return false, nil
	}
	tip, ok, err := r.Resolve("tip")
	if err != nil {
		return false, err
	}
	return !ok || tip.IsNull(), nil
}

// Clean is best-effort recovery back to a pristine working copy: abort any
// in-progress merge, run crash recovery, delete ignored and unknown files,
// revert tracked changes. Each step runs even when an earlier one fails.
func (r *HgRepository) Clean() error {
	var errs []error

	// Nothing to abort and nothing to recover are normal outcomes.
	if _, err := r.capture("merge", "--abort").Result(); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.capture("recover").Result(); err != nil {
		errs = append(errs, err)
	}

	for _, status := range []string{"--ignored", "--unknown"} {
		res, err := r.capture("status", status, "--no-status").Result()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if res.Status != 0 {
			errs = append(errs, &osutil.ExecError{Result: res})
			continue
		}
		root, err := r.Root()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, name := range res.Stdout {
			if err := stdos.Remove(filepath.Join(root, name)); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if _, err := r.await("revert", "--no-backup", "--all"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Config reads key with the user's full configuration visible; unlike
// every other operation this must not run under the cleared environment.
func (r *HgRepository) Config(key string) ([]string, error) {
	res, err := osutil.Capture(r.dir, nil, "hg", "showconfig", key).Result()
	if err != nil {
		return nil, err
	}
	if res.Status == 1 {
		return nil, nil
	}
	if res.Status != 0 {
		return nil, &osutil.ExecError{Result: res}
	}
	return res.Stdout, nil
}

func (r *HgRepository) Username() (string, bool, error) {
	lines, err := r.Config("ui.username")
	if err != nil {
		return "", false, err
	}
	if len(lines) != 1 {
		return "", false, nil
	}
	return lines[0], true, nil
}

func (r *HgRepository) CopyTo(destination string) (Repository, error) {
	root, err := r.Root()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(destination)
	if err != nil {
		return nil, err
	}
	if _, err := r.await("clone", root, abs); err != nil {
		return nil, err
	}
	return NewHgRepository(abs)
}
