package vcs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	stdos "os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coveooss/skiff/lib/skiff/log"
	osutil "github.com/coveooss/skiff/lib/skiff/os"
	"github.com/coveooss/skiff/lib/skiff/workdir"
)

// gitEnv disables system and global config discovery so behavior does not
// depend on the invoking user's dotfiles.
var gitEnv = map[string]string{
	"GIT_CONFIG_NOSYSTEM": "true",
	"GIT_CONFIG_GLOBAL":   stdos.DevNull,
}

// gitMetadataFormat lays out one commit as eight newline-separated fields
// followed by the raw message body; records are NUL delimited via -z.
const gitMetadataFormat = "%H%n%P%n%an%n%ae%n%cn%n%ce%n%ct%n%B"

// GitRepository drives a git working copy.
type GitRepository struct {
	dir string
}

var _ Repository = (*GitRepository)(nil)

// NewGitRepository wraps dir without touching it; call Init to create a
// repository there or Exists to probe for one.
func NewGitRepository(dir string) (*GitRepository, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &GitRepository{dir: abs}, nil
}

// OpenGit returns the repository containing path, or ok == false when path
// is not inside one.
func OpenGit(path string) (*GitRepository, bool, error) {
	r, err := NewGitRepository(path)
	if err != nil {
		return nil, false, err
	}
	root, err := r.Root()
	if err != nil {
		return nil, false, nil
	}
	rooted, err := NewGitRepository(root)
	if err != nil {
		return nil, false, err
	}
	return rooted, true, nil
}

// CloneGit clones from into to and returns the new repository.
func CloneGit(from, to string) (*GitRepository, error) {
	if err := CheckGitVersion(); err != nil {
		return nil, err
	}
	log.Logger.Infof("cloning %s to %s", from, to)
	if _, err := osutil.Capture("", gitEnv, "git", "clone", from, to).Await(); err != nil {
		return nil, err
	}
	return NewGitRepository(to)
}

func (r *GitRepository) capture(args ...string) *osutil.Execution {
	return osutil.Capture(r.dir, gitEnv, "git", args...)
}

func (r *GitRepository) await(args ...string) (*osutil.Result, error) {
	return r.capture(args...).Await()
}

func (r *GitRepository) Name() string {
	return Git
}

func (r *GitRepository) Root() (string, error) {
	res, err := r.await("rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	if len(res.Stdout) != 1 {
		return "", fmt.Errorf("unexpected 'git rev-parse --show-toplevel' output: %s", res)
	}
	return res.Stdout[0], nil
}

func (r *GitRepository) Exists() (bool, error) {
	_, err := r.Root()
	return err == nil, nil
}

func (r *GitRepository) Init() error {
	if err := CheckGitVersion(); err != nil {
		return err
	}
	if err := stdos.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	_, err := r.await("init")
	return err
}

func (r *GitRepository) Branches() ([]Branch, error) {
	res, err := r.await("for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, err
	}
	branches := make([]Branch, 0, len(res.Stdout))
	for _, line := range res.Stdout {
		branches = append(branches, NewBranch(line))
	}
	return branches, nil
}

func (r *GitRepository) Tags() ([]Tag, error) {
	res, err := r.await("for-each-ref", "--format=%(refname:short)", "refs/tags")
	if err != nil {
		return nil, err
	}
	tags := make([]Tag, 0, len(res.Stdout))
	for _, line := range res.Stdout {
		tags = append(tags, NewTag(line))
	}
	return tags, nil
}

func (r *GitRepository) CurrentBranch() (Branch, error) {
	res, err := r.await("symbolic-ref", "--short", "HEAD")
	if err != nil {
		return Branch{}, err
	}
	if len(res.Stdout) != 1 {
		return Branch{}, fmt.Errorf("no current branch: %s", res)
	}
	return NewBranch(res.Stdout[0]), nil
}

func (r *GitRepository) DefaultBranch() Branch {
	return NewBranch("master")
}

func (r *GitRepository) DefaultTag() Tag {
	return NewTag("HEAD")
}

func (r *GitRepository) Resolve(ref string) (Hash, bool, error) {
	res, err := r.capture("rev-parse", "--verify", "--quiet", ref+"^{commit}").Result()
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

func (r *GitRepository) Head() (Hash, error) {
	h, ok, err := r.Resolve("HEAD")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("HEAD not available")
	}
	return h, nil
}

func (r *GitRepository) Heads() ([]Hash, error) {
	res, err := r.await("for-each-ref", "--format=%(objectname)", "refs/heads")
	if err != nil {
		return nil, err
	}
	var heads []Hash
	for _, line := range res.Stdout {
		h, err := ParseHash(line)
		if err != nil {
			return nil, err
		}
		heads = append(heads, h)
	}
	return heads, nil
}

func (r *GitRepository) IsValidRevisionRange(expression string) (bool, error) {
	res, err := r.capture("rev-list", "--max-count=0", expression).Result()
	if err != nil {
		return false, err
	}
	return res.Status == 0, nil
}

// gitLogReader decodes 'git log -z' records: NUL-delimited, eight
// newline-separated fields with the raw message body last.
type gitLogReader struct {
	r *bufio.Reader
}

func (gr *gitLogReader) Next() (*CommitMetadata, error) {
	record, err := gr.r.ReadString(0)
	if err == io.EOF {
		if record == "" {
			return nil, io.EOF
		}
		// The final record has no trailing NUL.
	} else if err != nil {
		return nil, err
	} else {
		record = strings.TrimSuffix(record, "\x00")
	}

	fields := strings.SplitN(record, "\n", 8)
	if len(fields) < 8 {
		return nil, fmt.Errorf("truncated git log record %q", record)
	}

	hash, err := ParseHash(fields[0])
	if err != nil {
		return nil, fmt.Errorf("bad hash in git log record: %w", err)
	}

	var parents []Hash
	if fields[1] == "" {
		parents = []Hash{NullHash}
	} else {
		for _, p := range strings.Fields(fields[1]) {
			parent, err := ParseHash(p)
			if err != nil {
				return nil, fmt.Errorf("bad parent in git log record: %w", err)
			}
			parents = append(parents, parent)
		}
	}

	var epoch int64
	if _, err := fmt.Sscanf(fields[6], "%d", &epoch); err != nil {
		return nil, fmt.Errorf("bad timestamp %q in git log record", fields[6])
	}

	// %B keeps the body's trailing newline; strip it so the message is
	// exactly the logical lines.
	body := strings.TrimSuffix(fields[7], "\n")
	var message []string
	if body != "" || fields[7] != "" {
		message = strings.Split(body, "\n")
	}

	return &CommitMetadata{
		Hash:      hash,
		Parents:   parents,
		Author:    Author{Name: fields[2], Email: fields[3]},
		Committer: Author{Name: fields[4], Email: fields[5]},
		Timestamp: time.Unix(epoch, 0).UTC(),
		Message:   message,
	}, nil
}

func (r *GitRepository) Metadata(rng string, limit int, reverse bool) (*MetadataIter, error) {
	args := []string{"log", "-z", "--format=" + gitMetadataFormat}
	if limit > 0 {
		args = append(args, fmt.Sprintf("--max-count=%d", limit))
	}
	if reverse {
		args = append(args, "--reverse")
	}
	if rng != "" {
		args = append(args, rng)
	} else {
		args = append(args, "--all")
	}
	stream, err := osutil.Start(r.dir, gitEnv, "git", args...)
	if err != nil {
		return nil, err
	}
	return newMetadataIter(stream, &gitLogReader{r: bufio.NewReader(stream.Out)}), nil
}

func (r *GitRepository) Commits(rng string, limit int, reverse bool) (*CommitIter, error) {
	meta, err := r.Metadata(rng, limit, reverse)
	if err != nil {
		return nil, err
	}
	return newCommitIter(meta, r.commitPatches), nil
}

func (r *GitRepository) commitPatches(m *CommitMetadata) ([]Patch, error) {
	var args []string
	if m.Parents[0].IsNull() {
		args = []string{"show", "--format=", "--find-renames", "--find-copies", m.Hash.String()}
	} else {
		args = []string{"diff", "--find-renames", "--find-copies",
			m.Parents[0].String(), m.Hash.String()}
	}
	return r.rawDiff(args)
}

func (r *GitRepository) rawDiff(args []string) ([]Patch, error) {
	stream, err := osutil.Start(r.dir, gitEnv, "git", args...)
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

func (r *GitRepository) Lookup(h Hash) (*Commit, bool, error) {
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

func (r *GitRepository) LookupBranch(b Branch) (*Commit, error) {
	return r.lookupRef(b.Name(), "branch")
}

func (r *GitRepository) LookupTag(t Tag) (*Commit, error) {
	return r.lookupRef(t.Name(), "tag")
}

func (r *GitRepository) lookupRef(name, kind string) (*Commit, error) {
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

func (r *GitRepository) Checkout(ref string, force bool) error {
	args := []string{"checkout"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, ref)
	_, err := r.await(args...)
	return err
}

func (r *GitRepository) Commit(message string, author Author, date *time.Time) (Hash, error) {
	return r.CommitWithCommitter(message, author, author, date, date)
}

func (r *GitRepository) CommitWithCommitter(message string, author, committer Author, authorDate, committerDate *time.Time) (Hash, error) {
	env := map[string]string{
		"GIT_AUTHOR_NAME":     author.Name,
		"GIT_AUTHOR_EMAIL":    author.Email,
		"GIT_COMMITTER_NAME":  committer.Name,
		"GIT_COMMITTER_EMAIL": committer.Email,
	}
	if authorDate != nil {
		env["GIT_AUTHOR_DATE"] = fmt.Sprintf("%d +0000", authorDate.Unix())
	}
	if committerDate != nil {
		env["GIT_COMMITTER_DATE"] = fmt.Sprintf("%d +0000", committerDate.Unix())
	}
	for k, v := range gitEnv {
		env[k] = v
	}
	_, err := osutil.Capture(r.dir, env, "git", "commit", "--all", "--message="+message).Await()
	if err != nil {
		return "", err
	}
	return r.Head()
}

func (r *GitRepository) CreateTag(h Hash, name, message string, author Author) (Tag, error) {
	env := map[string]string{
		"GIT_COMMITTER_NAME":  author.Name,
		"GIT_COMMITTER_EMAIL": author.Email,
	}
	for k, v := range gitEnv {
		env[k] = v
	}
	_, err := osutil.Capture(r.dir, env, "git", "tag", "--annotate",
		"--message="+message, name, h.String()).Await()
	if err != nil {
		return Tag{}, err
	}
	return NewTag(name), nil
}

func (r *GitRepository) CreateBranch(h Hash, name string) (Branch, error) {
	if _, err := r.await("branch", name, h.String()); err != nil {
		return Branch{}, err
	}
	return NewBranch(name), nil
}

func (r *GitRepository) Add(paths ...string) error {
	_, err := r.await(append([]string{"add"}, paths...)...)
	return err
}

func (r *GitRepository) Remove(paths ...string) error {
	_, err := r.await(append([]string{"rm"}, paths...)...)
	return err
}

func (r *GitRepository) Move(from, to string) error {
	_, err := r.await("mv", from, to)
	return err
}

// Copy has no native git command; the copy is staged so a later commit
// records it, and rename/copy detection recovers the relation in diffs.
func (r *GitRepository) Copy(from, to string) error {
	src := filepath.Join(r.dir, from)
	dst := filepath.Join(r.dir, to)
	bytes, err := stdos.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := stdos.Stat(src)
	if err != nil {
		return err
	}
	if err := stdos.WriteFile(dst, bytes, info.Mode()); err != nil {
		return err
	}
	return r.Add(to)
}

func (r *GitRepository) MergeBase(first, second Hash) (Hash, error) {
	res, err := r.await("merge-base", first.String(), second.String())
	if err != nil {
		return "", err
	}
	if len(res.Stdout) != 1 {
		return "", fmt.Errorf("no unique merge base of %s and %s: %s",
			first.Abbreviate(), second.Abbreviate(), res)
	}
	return ParseHash(res.Stdout[0])
}

func (r *GitRepository) IsAncestor(ancestor, descendant Hash) (bool, error) {
	res, err := r.capture("merge-base", "--is-ancestor",
		ancestor.String(), descendant.String()).Result()
	if err != nil {
		return false, err
	}
	return res.Status == 0, nil
}

func (r *GitRepository) Merge(h Hash, strategy string) error {
	args := []string{"merge", "--no-edit"}
	if strategy != "" {
		args = append(args, "--strategy="+strategy)
	}
	args = append(args, h.String())
	_, err := r.await(args...)
	return err
}

func (r *GitRepository) Rebase(onto Hash, committer Author) error {
	env := map[string]string{
		"GIT_COMMITTER_NAME":  committer.Name,
		"GIT_COMMITTER_EMAIL": committer.Email,
	}
	for k, v := range gitEnv {
		env[k] = v
	}
	_, err := osutil.Capture(r.dir, env, "git", "rebase", "--onto",
		onto.String(), onto.String()).Await()
	return err
}

// Squash collapses everything after h into uncommitted working-tree
// changes: snapshot the delta, hard-reset to h, re-apply the delta.
func (r *GitRepository) Squash(h Hash) error {
	head, err := r.Head()
	if err != nil {
		return err
	}
	diff, err := r.Diff(h, head)
	if err != nil {
		return err
	}
	if _, err := r.await("reset", "--hard", h.String()); err != nil {
		return err
	}
	if len(diff.Patches) == 0 {
		return nil
	}
	return r.Apply(diff, false)
}

func (r *GitRepository) Diff(from, to Hash) (*Diff, error) {
	args := []string{"diff", "--find-renames", "--find-copies", from.String()}
	if to != "" {
		args = append(args, to.String())
	}
	patches, err := r.rawDiff(args)
	if err != nil {
		return nil, err
	}
	return &Diff{From: from, To: to, Patches: patches}, nil
}

func (r *GitRepository) Apply(d *Diff, force bool) error {
	patchFile, err := workdir.TempFile("skiff-apply-", ".patch")
	if err != nil {
		return err
	}
	defer stdos.Remove(patchFile)

	if err := d.ToFile(patchFile); err != nil {
		return err
	}
	args := []string{"apply", "--index"}
	if force {
		args = append(args, "--3way")
	}
	args = append(args, patchFile)
	_, err = r.await(args...)
	return err
}

func (r *GitRepository) Show(path string, h Hash) ([]byte, bool, error) {
	stream, err := osutil.Start(r.dir, gitEnv, "git", "show", h.String()+":"+path)
	if err != nil {
		return nil, false, err
	}
	bytes, readErr := io.ReadAll(stream.Out)
	joinErr := stream.Join()
	if readErr != nil {
		return nil, false, readErr
	}
	if joinErr != nil {
		// A missing path at that revision is an answer, not a failure.
		var execErr *osutil.ExecError
		if errors.As(joinErr, &execErr) && execErr.Result.Status == 128 {
			return nil, false, nil
		}
		return nil, false, joinErr
	}
	return bytes, true, nil
}

// Fetch pulls refspec from uri and returns the single fetched head. More
// than one independent fetched head is ErrMultipleHeads. An empty refspec
// fetches the remote's default ref.
func (r *GitRepository) Fetch(uri string, refspec string) (Hash, error) {
	args := []string{"fetch", uri}
	if refspec != "" {
		args = append(args, refspec)
	}
	if _, err := r.await(args...); err != nil {
		return "", err
	}
	heads, err := r.fetchedHeads()
	if err != nil {
		return "", err
	}
	switch len(heads) {
	case 0:
		return r.Head()
	case 1:
		return heads[0], nil
	default:
		return "", fmt.Errorf("%w: fetch of %s from %s exposed %d heads",
			ErrMultipleHeads, refspec, uri, len(heads))
	}
}

// fetchedHeads reads every FETCH_HEAD entry the last fetch wrote. FETCH_HEAD
// used as a revision resolves to only the first entry, so the file is read
// directly; the entries are then reduced to the heads that are not ancestors
// of one another.
func (r *GitRepository) fetchedHeads() ([]Hash, error) {
	res, err := r.await("rev-parse", "--git-path", "FETCH_HEAD")
	if err != nil {
		return nil, err
	}
	if len(res.Stdout) != 1 {
		return nil, fmt.Errorf("unexpected 'git rev-parse --git-path' output: %s", res)
	}
	path := res.Stdout[0]
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.dir, path)
	}
	content, err := stdos.ReadFile(path)
	if err != nil {
		if stdos.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	seen := make(map[Hash]bool)
	var fetched []Hash
	for _, line := range strings.Split(string(content), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		h, err := ParseHash(fields[0])
		if err != nil {
			return nil, fmt.Errorf("unexpected FETCH_HEAD entry %q: %w", line, err)
		}
		if !seen[h] {
			seen[h] = true
			fetched = append(fetched, h)
		}
	}
	if len(fetched) < 2 {
		return fetched, nil
	}

	args := []string{"merge-base", "--independent"}
	for _, h := range fetched {
		args = append(args, h.String())
	}
	res, err = r.await(args...)
	if err != nil {
		return nil, err
	}
	heads := make([]Hash, 0, len(res.Stdout))
	for _, line := range res.Stdout {
		h, err := ParseHash(line)
		if err != nil {
			return nil, err
		}
		heads = append(heads, h)
	}
	return heads, nil
}

func (r *GitRepository) Push(uri string, refspec string, force bool) error {
	args := []string{"push"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, uri, refspec)
	_, err := r.await(args...)
	return err
}

func (r *GitRepository) Pull(remote string, refspec string) error {
	_, err := r.await("pull", remote, refspec)
	return err
}

func (r *GitRepository) IsClean() (bool, error) {
	res, err := r.await("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return len(res.Stdout) == 0, nil
}

// IsHealthy reports false when a crashed prior operation left git's
// on-disk locks behind; Clean must run before further mutation is safe.
func (r *GitRepository) IsHealthy() (bool, error) {
	root, err := r.Root()
	if err != nil {
		return false, err
	}
	for _, lock := range []string{
		filepath.Join(root, ".git", "index.lock"),
		filepath.Join(root, ".git", "HEAD.lock"),
	} {
		if _, err := stdos.Lstat(lock); err == nil {
			return false, nil
		}
	}
	return true, nil
}

func (r *GitRepository) IsEmpty() (bool, error) {
	res, err := r.await("for-each-ref", "--count=1", "--format=%(objectname)")
	if err != nil {
		return false, err
	}
	return len(res.Stdout) == 0, nil
}

// Clean is best-effort recovery back to a pristine working copy. Each step
// runs even when an earlier one fails.
func (r *GitRepository) Clean() error {
	var errs []error

	// Nothing to abort is a normal outcome.
	if _, err := r.capture("merge", "--abort").Result(); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.capture("rebase", "--abort").Result(); err != nil {
		errs = append(errs, err)
	}

	if _, err := r.await("clean", "-x", "-d", "--force"); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.await("reset", "--hard"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Config reads key with the user's full configuration visible; unlike
// every other operation this must not run under the isolated environment.
func (r *GitRepository) Config(key string) ([]string, error) {
	res, err := osutil.Capture(r.dir, nil, "git", "config", "--get-all", key).Result()
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

func (r *GitRepository) Username() (string, bool, error) {
	lines, err := r.Config("user.name")
	if err != nil {
		return "", false, err
	}
	if len(lines) != 1 {
		return "", false, nil
	}
	return lines[0], true, nil
}

func (r *GitRepository) CopyTo(destination string) (Repository, error) {
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
	return NewGitRepository(abs)
}
