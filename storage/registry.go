package storage

import (
	"fmt"
	"sync"
)

// Factory functions construct a fresh, uninitialized backend instance from
// a parsed connection URI. Factories are stateless: registering one never
// creates a prototype instance, and the same factory may be invoked any
// number of times for independent replicas.
type (
	LogStorageFactory      func(uri ConnectionURI) (LogStorage, error)
	StableStorageFactory   func(uri ConnectionURI) (StableStorage, error)
	SnapshotStorageFactory func(uri ConnectionURI) (SnapshotStorage, error)
)

// Registry maps ConnectionURI schemes to backend factories. It is an
// explicit object constructed and populated during process startup and
// passed to whoever resolves connection strings; there is no implicit
// ahead-of-main registration. Re-registering a scheme is rejected, so the
// first registration for a scheme wins and a conflict surfaces loudly.
type Registry struct {
	mu       sync.RWMutex
	log      map[string]LogStorageFactory
	stable   map[string]StableStorageFactory
	snapshot map[string]SnapshotStorageFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		log:      make(map[string]LogStorageFactory),
		stable:   make(map[string]StableStorageFactory),
		snapshot: make(map[string]SnapshotStorageFactory),
	}
}

// RegisterLogStorage binds scheme to a LogStorage factory.
func (r *Registry) RegisterLogStorage(scheme string, f LogStorageFactory) error {
	if err := checkRegistration(scheme, f == nil); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.log[scheme]; dup {
		return fmt.Errorf("%w: log storage scheme %q already registered", ErrInvalidArgument, scheme)
	}
	r.log[scheme] = f
	return nil
}

// RegisterStableStorage binds scheme to a StableStorage factory.
func (r *Registry) RegisterStableStorage(scheme string, f StableStorageFactory) error {
	if err := checkRegistration(scheme, f == nil); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.stable[scheme]; dup {
		return fmt.Errorf("%w: stable storage scheme %q already registered", ErrInvalidArgument, scheme)
	}
	r.stable[scheme] = f
	return nil
}

// RegisterSnapshotStorage binds scheme to a SnapshotStorage factory.
func (r *Registry) RegisterSnapshotStorage(scheme string, f SnapshotStorageFactory) error {
	if err := checkRegistration(scheme, f == nil); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.snapshot[scheme]; dup {
		return fmt.Errorf("%w: snapshot storage scheme %q already registered", ErrInvalidArgument, scheme)
	}
	r.snapshot[scheme] = f
	return nil
}

// NewLogStorage resolves uri to a fresh, uninitialized LogStorage.
func (r *Registry) NewLogStorage(uri string) (LogStorage, error) {
	parsed, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.log[parsed.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no log storage registered for scheme %q", ErrInvalidArgument, parsed.Scheme)
	}
	return f(parsed)
}

// NewStableStorage resolves uri to a fresh, uninitialized StableStorage.
func (r *Registry) NewStableStorage(uri string) (StableStorage, error) {
	parsed, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.stable[parsed.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no stable storage registered for scheme %q", ErrInvalidArgument, parsed.Scheme)
	}
	return f(parsed)
}

// NewSnapshotStorage resolves uri to a fresh, uninitialized SnapshotStorage.
func (r *Registry) NewSnapshotStorage(uri string) (SnapshotStorage, error) {
	parsed, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.snapshot[parsed.Scheme]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no snapshot storage registered for scheme %q", ErrInvalidArgument, parsed.Scheme)
	}
	return f(parsed)
}

func checkRegistration(scheme string, nilFactory bool) error {
	if scheme == "" {
		return fmt.Errorf("%w: empty scheme", ErrInvalidArgument)
	}
	if nilFactory {
		return fmt.Errorf("%w: nil factory for scheme %q", ErrInvalidArgument, scheme)
	}
	return nil
}
