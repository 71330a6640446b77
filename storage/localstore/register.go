package localstore

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/i-melnichenko/raftstore-lab/storage"
)

// Scheme is the ConnectionURI scheme served by this backend.
const Scheme = "local"

// Layout under the configured directory. Log, stable state, and snapshots
// of one replica share the root so the whole replica state moves together.
const (
	logSubdir      = "log"
	snapshotSubdir = "snapshot"
)

// Register binds the local disk backend to the "local" scheme on r. Extra
// options (logger, metrics, tracer) apply to every instance the registered
// factories construct; per-URI the sync parameter tunes append durability.
func Register(r *storage.Registry, opts ...Option) error {
	if err := r.RegisterLogStorage(Scheme, func(uri storage.ConnectionURI) (storage.LogStorage, error) {
		instOpts, err := uriOptions(uri, opts)
		if err != nil {
			return nil, err
		}
		return NewLogStorage(filepath.Join(rootDir(uri), logSubdir), instOpts...), nil
	}); err != nil {
		return err
	}
	if err := r.RegisterStableStorage(Scheme, func(uri storage.ConnectionURI) (storage.StableStorage, error) {
		instOpts, err := uriOptions(uri, opts)
		if err != nil {
			return nil, err
		}
		return NewStableStorage(rootDir(uri), instOpts...), nil
	}); err != nil {
		return err
	}
	return r.RegisterSnapshotStorage(Scheme, func(uri storage.ConnectionURI) (storage.SnapshotStorage, error) {
		instOpts, err := uriOptions(uri, opts)
		if err != nil {
			return nil, err
		}
		return NewSnapshotStorage(filepath.Join(rootDir(uri), snapshotSubdir), instOpts...), nil
	})
}

func rootDir(uri storage.ConnectionURI) string {
	return filepath.Clean(uri.Path)
}

func uriOptions(uri storage.ConnectionURI, base []Option) ([]Option, error) {
	opts := append([]Option(nil), base...)
	if raw := uri.Param("sync", ""); raw != "" {
		sync, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: sync parameter %q", storage.ErrInvalidArgument, raw)
		}
		opts = append(opts, WithSyncWrites(sync))
	}
	return opts, nil
}
