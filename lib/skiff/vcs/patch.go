package vcs

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// FileMode is the octal permission field of a git extended diff header.
type FileMode string

const (
	FileRegular    FileMode = "100644"
	FileExecutable FileMode = "100755"
	FileSymlink    FileMode = "120000"
)

func (m FileMode) String() string {
	return string(m)
}

// FileRef describes one side of a patch. A nil *FileRef on a Patch models
// the absent side of an addition or deletion.
type FileRef struct {
	Path string
	Mode FileMode
}

// PatchStatus classifies what a patch does to its file.
type PatchStatus string

const (
	StatusAdded    PatchStatus = "added"
	StatusModified PatchStatus = "modified"
	StatusDeleted  PatchStatus = "deleted"
	StatusRenamed  PatchStatus = "renamed"
	StatusCopied   PatchStatus = "copied"
)

// Hunk is one contiguous changed region. Lines holds the body verbatim,
// each line starting with its ' ', '-', '+' or '\' marker, so a parsed hunk
// re-renders exactly.
type Hunk struct {
	SourceRange Range
	TargetRange Range
	Lines       []string
}

// Header renders the "@@ -a,b +c,d @@" form with explicit counts.
func (h *Hunk) Header() string {
	return fmt.Sprintf("@@ -%s +%s @@", h.SourceRange, h.TargetRange)
}

// SourceLines returns the content visible on the source side (context and
// removed lines), markers stripped.
func (h *Hunk) SourceLines() []string {
	return h.sideLines('-')
}

// TargetLines returns the content visible on the target side (context and
// added lines), markers stripped.
func (h *Hunk) TargetLines() []string {
	return h.sideLines('+')
}

func (h *Hunk) sideLines(marker byte) []string {
	var out []string
	for _, line := range h.Lines {
		if line == "" {
			out = append(out, "")
			continue
		}
		switch line[0] {
		case ' ', marker:
			out = append(out, line[1:])
		}
	}
	return out
}

// Patch is the change to one file: an optional source side, an optional
// target side and the hunks between them. Binary patches carry no hunks.
type Patch struct {
	Source *FileRef
	Target *FileRef
	Status PatchStatus
	Binary bool
	Hunks  []Hunk
}

// Path returns the post-change path, falling back to the pre-change path
// for deletions.
func (p *Patch) Path() string {
	if p.Target != nil {
		return p.Target.Path
	}
	if p.Source != nil {
		return p.Source.Path
	}
	return ""
}

func (p *Patch) IsAddition() bool {
	return p.Source == nil
}

func (p *Patch) IsDeletion() bool {
	return p.Target == nil
}

// Diff is an ordered set of patches between two endpoints. An empty To
// means the comparison ran against the working tree.
type Diff struct {
	From    Hash
	To      Hash
	Patches []Patch
}

// Write renders the diff as unified-diff text with git extended headers,
// importable by both backends.
func (d *Diff) Write(w io.Writer) error {
	var b strings.Builder
	for i := range d.Patches {
		writePatch(&b, &d.Patches[i])
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// ToFile writes the rendered diff to path, creating or truncating it.
func (d *Diff) ToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := d.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writePatch(b *strings.Builder, p *Patch) {
	oldPath, newPath := p.Path(), p.Path()
	if p.Source != nil {
		oldPath = p.Source.Path
	}
	if p.Target != nil {
		newPath = p.Target.Path
	}
	fmt.Fprintf(b, "diff --git a/%s b/%s\n", oldPath, newPath)

	switch p.Status {
	case StatusAdded:
		fmt.Fprintf(b, "new file mode %s\n", modeOrDefault(p.Target))
	case StatusDeleted:
		fmt.Fprintf(b, "deleted file mode %s\n", modeOrDefault(p.Source))
	case StatusRenamed:
		fmt.Fprintf(b, "rename from %s\n", oldPath)
		fmt.Fprintf(b, "rename to %s\n", newPath)
		writeModeChange(b, p)
	case StatusCopied:
		fmt.Fprintf(b, "copy from %s\n", oldPath)
		fmt.Fprintf(b, "copy to %s\n", newPath)
		writeModeChange(b, p)
	default:
		writeModeChange(b, p)
	}

	if p.Binary {
		fmt.Fprintf(b, "Binary files a/%s and b/%s differ\n", oldPath, newPath)
		return
	}
	if len(p.Hunks) == 0 {
		// Pure rename/copy/mode change has no body.
		return
	}

	if p.Source == nil {
		b.WriteString("--- /dev/null\n")
	} else {
		fmt.Fprintf(b, "--- a/%s\n", p.Source.Path)
	}
	if p.Target == nil {
		b.WriteString("+++ /dev/null\n")
	} else {
		fmt.Fprintf(b, "+++ b/%s\n", p.Target.Path)
	}

	for i := range p.Hunks {
		h := &p.Hunks[i]
		b.WriteString(h.Header())
		b.WriteByte('\n')
		for _, line := range h.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
}

func writeModeChange(b *strings.Builder, p *Patch) {
	if p.Source == nil || p.Target == nil {
		return
	}
	if p.Source.Mode != "" && p.Target.Mode != "" && p.Source.Mode != p.Target.Mode {
		fmt.Fprintf(b, "old mode %s\n", p.Source.Mode)
		fmt.Fprintf(b, "new mode %s\n", p.Target.Mode)
	}
}

func modeOrDefault(ref *FileRef) FileMode {
	if ref != nil && ref.Mode != "" {
		return ref.Mode
	}
	return FileRegular
}
