package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coveooss/skiff/lib/skiff/vcs"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skiff.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"projects": [
			{"name": "legacy", "remote": "https://hg.example.com/legacy"},
			{"name": "modern", "vcs": "git", "remote": "https://git.example.com/modern"}
		]
	}`)

	config, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(config.Projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(config.Projects))
	}

	legacy := config.Projects[0]
	if legacy.Vcs != vcs.Hg {
		t.Errorf("default vcs = %q, want %q", legacy.Vcs, vcs.Hg)
	}
	if legacy.DefaultBranch != "default" {
		t.Errorf("hg default branch = %q", legacy.DefaultBranch)
	}
	if legacy.BranchPrefix != "skiff-" {
		t.Errorf("branch prefix = %q", legacy.BranchPrefix)
	}

	modern := config.Projects[1]
	if modern.DefaultBranch != "master" {
		t.Errorf("git default branch = %q", modern.DefaultBranch)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{"},
		{"unknown vcs", `{"projects": [{"name": "p", "vcs": "svn", "remote": "x"}]}`},
		{"missing remote", `{"projects": [{"name": "p", "vcs": "git"}]}`},
	}
	for _, tt := range tests {
		path := writeConfig(t, tt.content)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestOpenPicksDriver(t *testing.T) {
	p := Project{Vcs: vcs.Git, Remote: "https://git.example.com/x", Name: "x"}
	repo, err := p.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if repo.Name() != vcs.Git {
		t.Errorf("driver = %q, want %q", repo.Name(), vcs.Git)
	}
}
