package vcs

import "testing"

func TestParseBanner(t *testing.T) {
	tests := []struct {
		tool  string
		lines []string
		want  string
	}{
		{"git", []string{"git version 2.39.2"}, "2.39.2"},
		{"git", []string{"git version 2.39.2.windows.1"}, "2.39.2"},
		{"hg", []string{"Mercurial Distributed SCM (version 6.1.1)"}, "6.1.1"},
		{"hg", []string{"Mercurial Distributed SCM (version 4.9)"}, "4.9.0"},
	}
	for _, tt := range tests {
		re := gitBannerRegex
		if tt.tool == "hg" {
			re = hgBannerRegex
		}
		v, err := parseBanner(re, tt.lines, tt.tool)
		if err != nil {
			t.Errorf("parseBanner(%q): %v", tt.lines[0], err)
			continue
		}
		if v.String() != tt.want {
			t.Errorf("parseBanner(%q) = %s, want %s", tt.lines[0], v, tt.want)
		}
	}
}

func TestMinimumsExcludeUnisolatableTools(t *testing.T) {
	// git honors GIT_CONFIG_GLOBAL only from 2.32; anything older would
	// leak the user's global config into every command.
	v, err := parseBanner(gitBannerRegex, []string{"git version 2.31.1"}, "git")
	if err != nil {
		t.Fatal(err)
	}
	if !v.LT(minGitVersion) {
		t.Errorf("git %s passes the %s minimum", v, minGitVersion)
	}

	v, err = parseBanner(hgBannerRegex, []string{"Mercurial Distributed SCM (version 4.8.2)"}, "hg")
	if err != nil {
		t.Fatal(err)
	}
	if !v.LT(minHgVersion) {
		t.Errorf("hg %s passes the %s minimum", v, minHgVersion)
	}
}

func TestParseBannerRejectsGarbage(t *testing.T) {
	if _, err := parseBanner(gitBannerRegex, nil, "git"); err == nil {
		t.Error("empty banner accepted")
	}
	if _, err := parseBanner(gitBannerRegex, []string{"no version here"}, "git"); err == nil {
		t.Error("unrecognized banner accepted")
	}
}
