package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/i-melnichenko/raftstore-lab/storage"
)

// copyChunkSize is the unit of transfer; cancellation and throttling are
// observed between chunks, bounding how long Cancel+Join can take.
const copyChunkSize = 64 * 1024

// SnapshotCopier transfers a snapshot generation from a local:// source
// directory into this storage on its own goroutine.
type SnapshotCopier struct {
	store     *SnapshotStorage
	sourceDir string
	fs        storage.FileSystemAdaptor
	throttle  storage.SnapshotThrottle

	// filter-before-copy state: the latest local generation's manifest,
	// directory, and the reader reference held on it for the duration of
	// the job so it cannot be retired mid-copy.
	filter      *manifest
	filterDir   string
	filterIndex int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	state       storage.CopierState
	err         error
	reader      storage.SnapshotReader
	readerTaken bool
}

// CopyFrom replicates the snapshot at uri as one blocking call.
func (s *SnapshotStorage) CopyFrom(uri string) (storage.SnapshotReader, error) {
	c, err := s.StartToCopyFrom(uri)
	if err != nil {
		return nil, err
	}
	c.Join()
	reader := c.GetReader()
	if closeErr := s.CloseCopier(c); closeErr != nil {
		return nil, closeErr
	}
	if reader == nil {
		return nil, c.Err()
	}
	return reader, nil
}

// StartToCopyFrom launches an asynchronous copy of the snapshot at uri,
// which must name a local:// generation directory (typically the output of
// GenerateURIForCopy on the source reader).
func (s *SnapshotStorage) StartToCopyFrom(uri string) (storage.SnapshotCopier, error) {
	parsed, err := storage.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme != Scheme {
		return nil, fmt.Errorf("%w: cannot copy snapshot from scheme %q", storage.ErrInvalidArgument, parsed.Scheme)
	}

	s.mu.Lock()
	if s.copier != nil && !s.copier.State().Terminal() {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: snapshot copy already running", storage.ErrInProgress)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &SnapshotCopier{
		store:     s,
		sourceDir: parsed.Path,
		fs:        s.fs,
		throttle:  s.throttle,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     storage.CopierRunning,
	}
	if s.filterBeforeCopy && s.last > 0 {
		if m, err := readManifest(s.genDir(s.last)); err == nil {
			c.filter = m
			c.filterDir = s.genDir(s.last)
			c.filterIndex = s.last
			s.refs[s.last]++
		}
	}
	s.copier = c
	s.mu.Unlock()

	go c.run()
	return c, nil
}

// CloseCopier cancels c if still running, waits for termination, and
// releases the copied reader unless the caller already took it.
func (s *SnapshotStorage) CloseCopier(c storage.SnapshotCopier) error {
	sc, ok := c.(*SnapshotCopier)
	if !ok || sc == nil {
		return fmt.Errorf("%w: foreign snapshot copier %T", storage.ErrInvalidArgument, c)
	}
	sc.Cancel()
	sc.Join()

	s.mu.Lock()
	if s.copier == sc {
		s.copier = nil
	}
	s.mu.Unlock()

	sc.mu.Lock()
	reader, taken := sc.reader, sc.readerTaken
	sc.reader = nil
	sc.mu.Unlock()
	if reader != nil && !taken {
		return s.CloseReader(reader)
	}
	return nil
}

func (s *SnapshotStorage) discardWriter(w *SnapshotWriter) {
	s.mu.Lock()
	if s.writer == w {
		s.writer = nil
	}
	s.mu.Unlock()
	_ = os.RemoveAll(w.dir)
}

// Cancel requests early termination; idempotent in any state.
func (c *SnapshotCopier) Cancel() { c.cancel() }

// Join blocks until the job reaches a terminal state.
func (c *SnapshotCopier) Join() { <-c.done }

// State returns the current job state.
func (c *SnapshotCopier) State() storage.CopierState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the terminal failure, wrapping ErrCancelled when the job was
// cancelled, and nil after completion.
func (c *SnapshotCopier) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// GetReader hands the copied snapshot's reader to the caller. Non-nil only
// after Join has observed CopierCompleted; the caller then owns the reader
// and must release it through CloseReader.
func (c *SnapshotCopier) GetReader() storage.SnapshotReader {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != storage.CopierCompleted || c.reader == nil {
		return nil
	}
	c.readerTaken = true
	return c.reader
}

func (c *SnapshotCopier) run() {
	defer close(c.done)
	defer c.cancel()
	defer c.releaseFilterRef()

	_, span := c.store.tracer.Start(c.ctx, "snapshot.copy",
		trace.WithAttributes(attribute.String("snapshot.source", c.sourceDir)))
	defer span.End()

	reader, copied, err := c.copy()

	c.mu.Lock()
	switch {
	case err == nil:
		c.state = storage.CopierCompleted
		c.reader = reader
	case errors.Is(err, storage.ErrCancelled) || c.ctx.Err() != nil:
		c.state = storage.CopierCancelled
		if !errors.Is(err, storage.ErrCancelled) {
			err = fmt.Errorf("%w: %v", storage.ErrCancelled, err)
		}
		c.err = err
	default:
		c.state = storage.CopierFailed
		c.err = err
	}
	state := c.state
	c.mu.Unlock()

	c.store.metrics.ObserveSnapshotCopyBytes(backendName, copied)
	c.store.metrics.IncSnapshotCopy(backendName, state.String())
	if err != nil {
		span.RecordError(err)
		c.store.logger.Warn("snapshot copy finished",
			zap.String("state", state.String()), zap.Error(err))
		return
	}
	c.store.logger.Info("snapshot copy finished",
		zap.String("state", state.String()), zap.Int64("bytes", copied))
}

func (c *SnapshotCopier) copy() (storage.SnapshotReader, int64, error) {
	src, err := c.readSourceManifest()
	if err != nil {
		return nil, 0, err
	}
	if src.Meta.LastIncludedIndex <= 0 {
		return nil, 0, fmt.Errorf("%w: source snapshot has no meta", storage.ErrCorrupted)
	}

	c.store.mu.Lock()
	writer, err := c.store.createLocked()
	c.store.mu.Unlock()
	if err != nil {
		return nil, 0, err
	}

	var copied int64
	for _, f := range src.Files {
		if err := c.ctx.Err(); err != nil {
			c.store.discardWriter(writer)
			return nil, copied, fmt.Errorf("%w: %v", storage.ErrCancelled, err)
		}
		n, err := c.copyFile(f, writer.dir)
		copied += n
		if err != nil {
			c.store.discardWriter(writer)
			return nil, copied, err
		}
		if err := writer.addFileRaw(f.Name, f.Meta); err != nil {
			c.store.discardWriter(writer)
			return nil, copied, err
		}
	}

	if err := writer.SaveMeta(src.Meta); err != nil {
		c.store.discardWriter(writer)
		return nil, copied, err
	}
	if err := c.store.CloseWriter(writer); err != nil {
		return nil, copied, err
	}

	c.store.mu.Lock()
	reader, err := c.store.openLocked()
	c.store.mu.Unlock()
	if err != nil {
		return nil, copied, err
	}
	return reader, copied, nil
}

func (c *SnapshotCopier) readSourceManifest() (*manifest, error) {
	rc, err := c.fs.OpenRead(filepath.Join(c.sourceDir, manifestFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: open source manifest in %s: %v", storage.ErrIO, c.sourceDir, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read source manifest: %v", storage.ErrIO, err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode source manifest: %v", storage.ErrCorrupted, err)
	}
	return &m, nil
}

// copyFile transfers one member file in chunks, reusing the local copy when
// filter-before-copy found an identical file in the latest generation.
func (c *SnapshotCopier) copyFile(f manifestFile, dstDir string) (int64, error) {
	srcDir := c.sourceDir
	if c.filter != nil {
		if i := c.filter.find(f.Name); i >= 0 && bytes.Equal(c.filter.Files[i].Meta, f.Meta) {
			srcDir = c.filterDir
		}
	}

	in, err := c.fs.OpenRead(filepath.Join(srcDir, f.Name))
	if err != nil {
		return 0, fmt.Errorf("%w: open source file %s: %v", storage.ErrIO, f.Name, err)
	}
	defer func() { _ = in.Close() }()

	out, err := c.fs.CreateWrite(filepath.Join(dstDir, f.Name))
	if err != nil {
		return 0, fmt.Errorf("%w: create destination file %s: %v", storage.ErrIO, f.Name, err)
	}

	var copied int64
	buf := make([]byte, copyChunkSize)
	for {
		if err := c.ctx.Err(); err != nil {
			_ = out.Close()
			return copied, fmt.Errorf("%w: %v", storage.ErrCancelled, err)
		}
		n, readErr := in.Read(buf)
		if n > 0 {
			if c.throttle != nil {
				if err := c.throttle.Acquire(c.ctx, int64(n)); err != nil {
					_ = out.Close()
					return copied, err
				}
			}
			if _, err := out.Write(buf[:n]); err != nil {
				_ = out.Close()
				return copied, fmt.Errorf("%w: write %s: %v", storage.ErrIO, f.Name, err)
			}
			copied += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = out.Close()
			return copied, fmt.Errorf("%w: read %s: %v", storage.ErrIO, f.Name, readErr)
		}
	}
	if err := out.Close(); err != nil {
		return copied, fmt.Errorf("%w: close %s: %v", storage.ErrIO, f.Name, err)
	}
	return copied, nil
}

func (c *SnapshotCopier) releaseFilterRef() {
	if c.filterIndex <= 0 {
		return
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	if c.store.refs[c.filterIndex] > 0 {
		c.store.refs[c.filterIndex]--
	}
	c.store.retireLocked(c.filterIndex)
	c.filterIndex = 0
}
