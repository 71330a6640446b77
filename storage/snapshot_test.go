package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

// bareSnapshotStorage implements no optional capability.
type bareSnapshotStorage struct{ SnapshotStorage }

// capableSnapshotStorage records capability configuration calls.
type capableSnapshotStorage struct {
	SnapshotStorage
	fs       FileSystemAdaptor
	throttle SnapshotThrottle
	filtered bool
}

func (s *capableSnapshotStorage) SetFileSystemAdaptor(fs FileSystemAdaptor) error {
	s.fs = fs
	return nil
}

func (s *capableSnapshotStorage) SetSnapshotThrottle(t SnapshotThrottle) error {
	s.throttle = t
	return nil
}

func (s *capableSnapshotStorage) SetFilterBeforeCopyRemote() error {
	s.filtered = true
	return nil
}

func TestCapabilityHelpers_Unsupported(t *testing.T) {
	t.Parallel()

	bare := &bareSnapshotStorage{}
	if err := SetFileSystemAdaptor(bare, NewOSFileSystem()); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("SetFileSystemAdaptor() error = %v, want ErrUnsupported", err)
	}
	if err := SetSnapshotThrottle(bare, nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("SetSnapshotThrottle() error = %v, want ErrUnsupported", err)
	}
	if err := SetFilterBeforeCopyRemote(bare); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("SetFilterBeforeCopyRemote() error = %v, want ErrUnsupported", err)
	}
}

func TestCapabilityHelpers_Supported(t *testing.T) {
	t.Parallel()

	capable := &capableSnapshotStorage{}
	fs := NewOSFileSystem()
	if err := SetFileSystemAdaptor(capable, fs); err != nil {
		t.Fatalf("SetFileSystemAdaptor() error = %v", err)
	}
	if capable.fs != fs {
		t.Fatalf("adaptor not forwarded")
	}

	throttle, err := NewThroughputThrottle(1 << 20)
	if err != nil {
		t.Fatalf("NewThroughputThrottle() error = %v", err)
	}
	if err := SetSnapshotThrottle(capable, throttle); err != nil {
		t.Fatalf("SetSnapshotThrottle() error = %v", err)
	}
	if err := SetFilterBeforeCopyRemote(capable); err != nil {
		t.Fatalf("SetFilterBeforeCopyRemote() error = %v", err)
	}
	if !capable.filtered {
		t.Fatalf("filter flag not set")
	}
}

func TestCopierState_Terminal(t *testing.T) {
	t.Parallel()

	if CopierRunning.Terminal() {
		t.Fatalf("running must not be terminal")
	}
	for _, s := range []CopierState{CopierCompleted, CopierCancelled, CopierFailed} {
		if !s.Terminal() {
			t.Fatalf("%v must be terminal", s)
		}
	}
}

func TestThroughputThrottle_Acquire(t *testing.T) {
	t.Parallel()

	throttle, err := NewThroughputThrottle(1 << 30)
	if err != nil {
		t.Fatalf("NewThroughputThrottle() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := throttle.Acquire(ctx, 64*1024); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	// A budget far beyond what the deadline allows must respect the
	// context instead of blocking.
	slow, err := NewThroughputThrottle(1 << 20)
	if err != nil {
		t.Fatalf("NewThroughputThrottle() error = %v", err)
	}
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	if err := slow.Acquire(shortCtx, 64<<20); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Acquire() error = %v, want ErrCancelled", err)
	}
}

func TestThroughputThrottle_CancelledContext(t *testing.T) {
	t.Parallel()

	throttle, err := NewThroughputThrottle(16) // tiny budget forces waiting
	if err != nil {
		t.Fatalf("NewThroughputThrottle() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := throttle.Acquire(ctx, 1024); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Acquire() error = %v, want ErrCancelled", err)
	}

	if _, err := NewThroughputThrottle(0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("NewThroughputThrottle(0) error = %v, want ErrInvalidArgument", err)
	}
}
