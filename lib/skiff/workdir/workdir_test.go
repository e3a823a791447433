package workdir

import (
	"os"
	"strings"
	"testing"
)

func TestNewCreatesUniqueDirs(t *testing.T) {
	a, err := New("skiff-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Remove()
	b, err := New("skiff-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer b.Remove()

	if a.Path == b.Path {
		t.Fatalf("two scratch dirs share the path %s", a.Path)
	}
	info, err := os.Stat(a.Path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Errorf("%s is not a directory", a.Path)
	}
}

func TestRemoveDeletesContents(t *testing.T) {
	d, err := New("skiff-test-")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(d.Path+"/inner.txt", []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := d.Remove(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(d.Path); !os.IsNotExist(err) {
		t.Errorf("directory still present after Remove: %v", err)
	}
}

func TestTempFile(t *testing.T) {
	path, err := TempFile("skiff-test-", ".patch")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(path)

	if !strings.HasSuffix(path, ".patch") {
		t.Errorf("path %s does not carry the suffix", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}

	other, err := TempFile("skiff-test-", ".patch")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(other)
	if other == path {
		t.Errorf("two temp files share the path %s", path)
	}
}
