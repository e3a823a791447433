package vcs

import "testing"

func TestParseAuthor(t *testing.T) {
	tests := []struct {
		in    string
		name  string
		email string
	}{
		{"Jane Doe <jane@example.com>", "Jane Doe", "jane@example.com"},
		{"Jane Doe", "Jane Doe", ""},
		{"  Jane Doe <jane@example.com>  ", "Jane Doe", "jane@example.com"},
		{"<jane@example.com>", "", "jane@example.com"},
	}
	for _, tt := range tests {
		a, err := ParseAuthor(tt.in)
		if err != nil {
			t.Errorf("ParseAuthor(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if a.Name != tt.name || a.Email != tt.email {
			t.Errorf("ParseAuthor(%q) = %+v, want {%q %q}", tt.in, a, tt.name, tt.email)
		}
	}
}

func TestParseAuthorRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "   ", "Jane <jane@example.com"} {
		if _, err := ParseAuthor(in); err == nil {
			t.Errorf("ParseAuthor(%q): expected error", in)
		}
	}
}

func TestAuthorStringRoundTrip(t *testing.T) {
	a := Author{Name: "Jane Doe", Email: "jane@example.com"}
	if got := a.String(); got != "Jane Doe <jane@example.com>" {
		t.Errorf("String() = %q", got)
	}
	back, err := ParseAuthor(a.String())
	if err != nil || back != a {
		t.Errorf("round trip of %v gave %v, %v", a, back, err)
	}

	bare := Author{Name: "Jane Doe"}
	if got := bare.String(); got != "Jane Doe" {
		t.Errorf("String() without email = %q", got)
	}
}

func TestBranchAndTagNames(t *testing.T) {
	b := NewBranch("feature/x")
	if b.Name() != "feature/x" || b.String() != "feature/x" {
		t.Errorf("branch accessors returned %q / %q", b.Name(), b.String())
	}
	tag := NewTag("v1.2.3")
	if tag.Name() != "v1.2.3" {
		t.Errorf("tag name = %q", tag.Name())
	}
}
