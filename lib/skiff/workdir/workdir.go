// Package workdir hands out uniquely named scratch paths under the system
// temp directory. Names embed a guid so concurrent processes and repeated
// runs never collide.
package workdir

import (
	"os"
	"path/filepath"

	"github.com/vsekhar/govtil/guid"
)

// Dir is a scratch directory owned by the caller until Remove.
type Dir struct {
	Path string
}

// New creates a fresh scratch directory named prefix-<guid>.
func New(prefix string) (*Dir, error) {
	g, err := guid.V4()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(os.TempDir(), prefix+g.String())
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, err
	}
	return &Dir{Path: path}, nil
}

// Remove deletes the directory and everything under it.
func (d *Dir) Remove() error {
	return os.RemoveAll(d.Path)
}

// TempFile reserves a unique file path prefix<guid>suffix under the system
// temp directory and creates an empty file there.
func TempFile(prefix, suffix string) (string, error) {
	g, err := guid.V4()
	if err != nil {
		return "", err
	}
	path := filepath.Join(os.TempDir(), prefix+g.String()+suffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
