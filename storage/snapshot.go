package storage

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Snapshot is the read/write-agnostic view of one snapshot generation: a
// backend-specific location plus a manifest of member files, each with
// optional backend-opaque metadata.
type Snapshot interface {
	// Path returns the backend-specific location of this generation.
	Path() string

	// ListFiles enumerates the files currently in the manifest.
	ListFiles() []string

	// GetFileMeta unmarshals the per-file metadata attached to filename
	// into out. When the file carries no metadata, or the backend does
	// not support file-level metadata, out is reset to its zero state
	// and nil is returned; absence of metadata is never an error.
	GetFileMeta(filename string, out proto.Message) error
}

// SnapshotWriter builds a new snapshot generation. At most one writer is
// live per SnapshotStorage at a time; it is finalized (or discarded)
// through SnapshotStorage.CloseWriter.
type SnapshotWriter interface {
	Snapshot

	// SaveMeta persists the SnapshotMeta manifest. Must be called at
	// most once per writer; a reader opened after a successful close
	// observes exactly this meta.
	SaveMeta(meta SnapshotMeta) error

	// AddFile registers a file in the manifest, with optional opaque
	// metadata (nil is allowed). Whether bytes are created at call time
	// or expected to already exist under Path is backend-defined, but
	// the manifest entry is visible to ListFiles immediately.
	AddFile(filename string, meta proto.Message) error

	// RemoveFile reverses AddFile. Removing an absent file is a no-op.
	RemoveFile(filename string) error
}

// SnapshotReader exposes a finalized generation for reading.
type SnapshotReader interface {
	Snapshot

	// LoadMeta returns the manifest meta, or ErrNotFound when no
	// manifest was ever saved.
	LoadMeta() (SnapshotMeta, error)

	// GenerateURIForCopy produces a URI another node can pass to
	// SnapshotStorage.CopyFrom / StartToCopyFrom to replicate this
	// exact snapshot. It returns "" when the reader cannot be exposed
	// remotely; callers must treat "" as a hard failure, not a URI.
	GenerateURIForCopy() string
}

// CopierState is the lifecycle state of a snapshot copy job.
type CopierState int

// Copy job states. A copier is created Running; the three terminal states
// are absorbing.
const (
	CopierRunning CopierState = iota
	CopierCompleted
	CopierCancelled
	CopierFailed
)

// String returns a short human-readable name for the state.
func (s CopierState) String() string {
	switch s {
	case CopierRunning:
		return "running"
	case CopierCompleted:
		return "completed"
	case CopierCancelled:
		return "cancelled"
	case CopierFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether the state is absorbing.
func (s CopierState) Terminal() bool { return s != CopierRunning }

// SnapshotCopier supervises an asynchronous transfer of a remote snapshot
// into local storage. The job runs on its own goroutine from the moment
// StartToCopyFrom returns. Outcome is carried by the copier itself (State
// and Err), not by a separate error channel.
type SnapshotCopier interface {
	// Cancel requests early termination. It may be called in any state
	// and is idempotent; a copier already terminal ignores it.
	// Cancellation races with natural completion - whichever happens
	// first decides the final state - but Cancel followed by Join never
	// leaves the job silently running.
	Cancel()

	// Join blocks the caller until the job reaches a terminal state.
	// Calling it again after termination returns immediately.
	Join()

	// State returns the current job state. After Join returns, the
	// state is terminal and will not transition further.
	State() CopierState

	// Err returns the failure that moved the job to CopierFailed, an
	// error wrapping ErrCancelled for CopierCancelled, and nil
	// otherwise.
	Err() error

	// GetReader returns the reader for the copied snapshot. It is
	// non-nil only after Join has observed CopierCompleted; ownership
	// passes to the caller, who releases it through
	// SnapshotStorage.CloseReader.
	GetReader() SnapshotReader
}

// SnapshotStorage orchestrates the snapshot lifecycle for one replica:
// writer/reader creation and finalization, and local-to-remote copy.
type SnapshotStorage interface {
	// Init prepares the backing location and discovers the latest valid
	// existing generation, if any.
	Init() error

	// Create returns a writer for a new generation, never overlapping an
	// existing readable one. ErrInProgress when a writer is already live.
	Create() (SnapshotWriter, error)

	// CloseWriter finalizes w. On success the new generation becomes the
	// one Open returns; on failure the writer's partial data never
	// becomes visible and the previous generation stays current.
	CloseWriter(w SnapshotWriter) error

	// Open returns a reader on the latest finalized generation, or
	// (nil, nil) when no generation exists yet. Multiple concurrent
	// readers of one generation are permitted; the generation's files
	// are not retired while any reader holds it.
	Open() (SnapshotReader, error)

	// CloseReader releases r and allows its generation to be retired
	// once it is no longer the latest.
	CloseReader(r SnapshotReader) error

	// CopyFrom replicates the snapshot at uri as one blocking call:
	// StartToCopyFrom + Join + GetReader. It returns an error on any
	// failure, including cancellation.
	CopyFrom(uri string) (SnapshotReader, error)

	// StartToCopyFrom launches an asynchronous copy job. The caller must
	// eventually release the copier through CloseCopier.
	StartToCopyFrom(uri string) (SnapshotCopier, error)

	// CloseCopier cancels c if still running, joins it, and releases its
	// resources. A reader already taken via GetReader stays valid.
	CloseCopier(c SnapshotCopier) error
}

// Optional SnapshotStorage capabilities. A backend advertises a capability
// by implementing the corresponding interface; the package-level setters
// below turn a missing capability into a typed ErrUnsupported instead of a
// silent no-op, since silently ignoring the configuration would change
// resource-consumption guarantees behind the caller's back.

// FileSystemAware is implemented by snapshot storages that can route
// byte-level I/O through an injected FileSystemAdaptor.
type FileSystemAware interface {
	SetFileSystemAdaptor(fs FileSystemAdaptor) error
}

// Throttleable is implemented by snapshot storages that can bound copy
// bandwidth through an injected SnapshotThrottle.
type Throttleable interface {
	SetSnapshotThrottle(t SnapshotThrottle) error
}

// CopyFilterAware is implemented by snapshot storages that can reuse
// locally present files instead of fetching them from the copy source.
type CopyFilterAware interface {
	SetFilterBeforeCopyRemote() error
}

// SetFileSystemAdaptor configures s to perform byte-level I/O through fs,
// or returns ErrUnsupported when the backend lacks the capability.
func SetFileSystemAdaptor(s SnapshotStorage, fs FileSystemAdaptor) error {
	a, ok := s.(FileSystemAware)
	if !ok {
		return fmt.Errorf("%w: %T does not support a file system adaptor", ErrUnsupported, s)
	}
	return a.SetFileSystemAdaptor(fs)
}

// SetSnapshotThrottle configures copy bandwidth throttling on s, or
// returns ErrUnsupported when the backend lacks the capability.
func SetSnapshotThrottle(s SnapshotStorage, t SnapshotThrottle) error {
	a, ok := s.(Throttleable)
	if !ok {
		return fmt.Errorf("%w: %T does not support a snapshot throttle", ErrUnsupported, s)
	}
	return a.SetSnapshotThrottle(t)
}

// SetFilterBeforeCopyRemote enables file reuse before remote copy on s, or
// returns ErrUnsupported when the backend lacks the capability.
func SetFilterBeforeCopyRemote(s SnapshotStorage) error {
	a, ok := s.(CopyFilterAware)
	if !ok {
		return fmt.Errorf("%w: %T does not support filtering before remote copy", ErrUnsupported, s)
	}
	return a.SetFilterBeforeCopyRemote()
}
