package memstore

import "github.com/i-melnichenko/raftstore-lab/storage"

// Scheme is the ConnectionURI scheme served by this backend.
const Scheme = "memory"

// Register binds the in-memory backend to the "memory" scheme on r.
// The URI path names the instance, e.g. memory://node-1.
func Register(r *storage.Registry) error {
	if err := r.RegisterLogStorage(Scheme, func(storage.ConnectionURI) (storage.LogStorage, error) {
		return NewLogStorage(), nil
	}); err != nil {
		return err
	}
	if err := r.RegisterStableStorage(Scheme, func(storage.ConnectionURI) (storage.StableStorage, error) {
		return NewStableStorage(), nil
	}); err != nil {
		return err
	}
	return r.RegisterSnapshotStorage(Scheme, func(uri storage.ConnectionURI) (storage.SnapshotStorage, error) {
		return NewSnapshotStorage(uri.Path), nil
	})
}
