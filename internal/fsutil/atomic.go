// Package fsutil provides durable file-write helpers shared by the disk
// backends.
package fsutil

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// WriteFileAtomic durably replaces path with data: the bytes go to a temp
// file in the same directory, are fsynced, renamed over path, and the
// parent directory is synced so the rename itself survives a crash.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	//nolint:gosec // tmpName and path are derived from internal storage paths, not user input.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return SyncDir(dir)
}

// WriteJSONAtomic marshals v and writes it through WriteFileAtomic.
func WriteJSONAtomic(path string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, payload)
}

// SyncDir fsyncs the directory at path.
func SyncDir(path string) error {
	//nolint:gosec // path is derived from the configured storage directory under our control.
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = dir.Close() }()
	return dir.Sync()
}
