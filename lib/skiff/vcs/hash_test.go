package vcs

import (
	"strings"
	"testing"
)

func TestParseHash(t *testing.T) {
	full := strings.Repeat("0123456789abcdef", 2) + "01234567"
	h, err := ParseHash(full)
	if err != nil {
		t.Fatalf("ParseHash(%q): %v", full, err)
	}
	if h.String() != full {
		t.Errorf("String() = %q, want %q", h, full)
	}
	if h.Abbreviate() != full[:8] {
		t.Errorf("Abbreviate() = %q, want %q", h.Abbreviate(), full[:8])
	}
	if h.IsNull() {
		t.Error("IsNull() = true for a non-null hash")
	}
}

func TestParseHashRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"abc123",
		strings.Repeat("a", 39),
		strings.Repeat("a", 41),
		strings.Repeat("A", 40),
		strings.Repeat("a", 39) + "g",
	}
	for _, in := range tests {
		if _, err := ParseHash(in); err == nil {
			t.Errorf("ParseHash(%q): expected error", in)
		}
	}
}

func TestNullHash(t *testing.T) {
	if !NullHash.IsNull() {
		t.Error("NullHash.IsNull() = false")
	}
	parsed, err := ParseHash(strings.Repeat("0", 40))
	if err != nil {
		t.Fatal(err)
	}
	if parsed != NullHash {
		t.Errorf("parsed all-zero hash %q != NullHash", parsed)
	}
}
