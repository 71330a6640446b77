package storage

import (
	"io"
	"os"
	"path/filepath"
)

// FileSystemAdaptor abstracts the byte-level filesystem operations the
// snapshot machinery performs, so implementations can be pointed at an
// overlay, a fault-injecting test filesystem, or remote-mounted storage.
type FileSystemAdaptor interface {
	// OpenRead opens path for sequential reading.
	OpenRead(path string) (io.ReadCloser, error)

	// CreateWrite creates or truncates path for sequential writing.
	CreateWrite(path string) (io.WriteCloser, error)

	// MkdirAll creates the directory path together with any missing
	// parents.
	MkdirAll(path string) error

	// RemoveAll deletes path and everything under it.
	RemoveAll(path string) error

	// Rename atomically moves oldPath to newPath.
	Rename(oldPath, newPath string) error

	// Exists reports whether path exists.
	Exists(path string) (bool, error)

	// List returns the names of the directory entries under path.
	List(path string) ([]string, error)
}

// OSFileSystem is the default FileSystemAdaptor backed by the local
// operating system filesystem.
type OSFileSystem struct{}

// NewOSFileSystem returns the default adaptor.
func NewOSFileSystem() *OSFileSystem { return &OSFileSystem{} }

func (*OSFileSystem) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(filepath.Clean(path))
}

func (*OSFileSystem) CreateWrite(path string) (io.WriteCloser, error) {
	//nolint:gosec // path is derived from the configured storage directory.
	return os.Create(filepath.Clean(path))
}

func (*OSFileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o750)
}

func (*OSFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (*OSFileSystem) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (*OSFileSystem) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (*OSFileSystem) List(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
