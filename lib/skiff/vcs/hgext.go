package vcs

import (
	stdos "os"

	"github.com/coveooss/skiff/lib/skiff/workdir"
)

// hgExtensionScript is the Mercurial extension backing the metadata stream
// and the raw diff emission, neither of which plain hg can produce in a
// machine-parseable form. It is materialized to a scoped temp file per
// invocation and loaded with --config extensions.skiff=<path>.
const hgExtensionScript = `# Emits skiff's line-oriented commit metadata framing and git-style raw
# diffs. Loaded per invocation, never installed.

from __future__ import absolute_import

from mercurial import (
    mdiff,
    node,
    patch,
    registrar,
    scmutil,
)

cmdtable = {}
command = registrar.command(cmdtable)

SENTINEL = b'#@!skiff-commit'


def _split_user(user):
    if user.endswith(b'>') and b'<' in user:
        i = user.rindex(b'<')
        return user[:i].strip(), user[i + 1:-1]
    return user.strip(), b''


def _emit(ui, repo, rev):
    ctx = repo[rev]
    ui.write(SENTINEL + b'\n')
    ui.write(node.hex(ctx.node()) + b'\n')
    parents = [p for p in ctx.parents() if p.node() != node.nullid]
    if parents:
        ui.write(b' '.join(node.hex(p.node()) for p in parents) + b'\n')
    else:
        ui.write(node.hex(node.nullid) + b'\n')
    name, email = _split_user(ctx.user())
    # Mercurial records a single identity: committer == author.
    for field in (name, email, name, email):
        ui.write(field + b'\n')
    ui.write(b'%d\n' % int(ctx.date()[0]))
    lines = ctx.description().split(b'\n')
    ui.write(b'%d\n' % len(lines))
    for line in lines:
        ui.write(line + b'\n')


@command(
    b'skiff-metadata',
    [
        (b'', b'rev', b'', b'revset to traverse', b'REVSET'),
        (b'', b'limit', 0, b'stop after this many commits', b'NUM'),
        (b'', b'reverse', False, b'oldest first'),
    ],
    b'hg skiff-metadata [--rev REVSET] [--limit NUM] [--reverse]',
)
def metadata(ui, repo, **opts):
    expr = opts.get('rev') or b'all()'
    order = b'rev' if opts.get('reverse') else b'-rev'
    revs = repo.revs(b'sort((%s), %s)' % (expr, order))
    limit = opts.get('limit') or 0
    emitted = 0
    for rev in revs:
        if limit and emitted >= limit:
            break
        _emit(ui, repo, rev)
        emitted += 1


@command(
    b'skiff-diff-raw',
    [],
    b'hg skiff-diff-raw REV1 [REV2]',
)
def diffraw(ui, repo, rev1, rev2=None):
    ctx1 = scmutil.revsingle(repo, rev1)
    node2 = scmutil.revsingle(repo, rev2).node() if rev2 else None
    opts = mdiff.diffopts(git=True, nodates=True)
    for chunk in patch.diff(repo, ctx1.node(), node2, opts=opts):
        ui.write(chunk)
`

// materializeHgExtension writes the extension payload to a temp file and
// returns its path with a cleanup that must run on every exit path.
func materializeHgExtension() (string, func() error, error) {
	path, err := workdir.TempFile("skiff-ext-", ".py")
	if err != nil {
		return "", nil, err
	}
	if err := stdos.WriteFile(path, []byte(hgExtensionScript), 0o600); err != nil {
		stdos.Remove(path)
		return "", nil, err
	}
	return path, func() error { return stdos.Remove(path) }, nil
}
