package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/i-melnichenko/raftstore-lab/internal/fsutil"
	"github.com/i-melnichenko/raftstore-lab/storage"
)

const (
	manifestFileName  = "__raft_snapshot_meta.json"
	tempDirName       = "temp"
	snapshotDirPrefix = "snapshot_"
)

// manifest is the on-disk record describing one snapshot generation: its
// SnapshotMeta plus the member files with their opaque metadata blobs.
type manifest struct {
	Meta  storage.SnapshotMeta `json:"meta"`
	Files []manifestFile       `json:"files"`
}

type manifestFile struct {
	Name string `json:"name"`
	Meta []byte `json:"meta,omitempty"`
}

func (m *manifest) find(name string) int {
	for i, f := range m.Files {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (m *manifest) listFiles() []string {
	names := make([]string, 0, len(m.Files))
	for _, f := range m.Files {
		names = append(names, f.Name)
	}
	return names
}

func (m *manifest) fileMeta(name string, out proto.Message) error {
	if out == nil {
		return fmt.Errorf("%w: nil file meta target", storage.ErrInvalidArgument)
	}
	i := m.find(name)
	if i < 0 {
		proto.Reset(out)
		return nil
	}
	return storage.UnmarshalFileMeta(m.Files[i].Meta, out)
}

// SnapshotStorage keeps one directory per finalized generation under dir
// (snapshot_<index>), builds new generations in a temp directory, and
// atomically promotes them by rename. Reader generations are
// reference-counted so Create never retires files a reader still holds.
type SnapshotStorage struct {
	dir     string
	logger  *zap.Logger
	metrics storage.Metrics
	tracer  trace.Tracer

	mu               sync.Mutex
	fs               storage.FileSystemAdaptor
	throttle         storage.SnapshotThrottle
	filterBeforeCopy bool
	last             int64
	refs             map[int64]int
	writer           *SnapshotWriter
	copier           *SnapshotCopier
}

// NewSnapshotStorage returns an uninitialized snapshot storage rooted at dir.
func NewSnapshotStorage(dir string, opts ...Option) *SnapshotStorage {
	o := applyOptions(opts)
	return &SnapshotStorage{
		dir:     dir,
		logger:  o.logger.Named("snapshotstore"),
		metrics: o.metrics,
		tracer:  o.tracer,
		fs:      storage.NewOSFileSystem(),
		refs:    make(map[int64]int),
	}
}

// SetFileSystemAdaptor routes copy-source I/O through fs.
func (s *SnapshotStorage) SetFileSystemAdaptor(fs storage.FileSystemAdaptor) error {
	if fs == nil {
		return fmt.Errorf("%w: nil file system adaptor", storage.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fs = fs
	return nil
}

// SetSnapshotThrottle bounds copy bandwidth with t.
func (s *SnapshotStorage) SetSnapshotThrottle(t storage.SnapshotThrottle) error {
	if t == nil {
		return fmt.Errorf("%w: nil snapshot throttle", storage.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttle = t
	return nil
}

// SetFilterBeforeCopyRemote makes copy jobs reuse files already present in
// the latest local generation instead of fetching them from the source.
func (s *SnapshotStorage) SetFilterBeforeCopyRemote() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterBeforeCopy = true
	return nil
}

// Init prepares the directory, discards interrupted temp builds, and
// discovers the latest valid generation.
func (s *SnapshotStorage) Init() error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("%w: prepare snapshot dir %s: %v", storage.ErrIO, s.dir, err)
	}
	if err := os.RemoveAll(s.tempDir()); err != nil {
		return fmt.Errorf("%w: clear snapshot temp dir: %v", storage.ErrIO, err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: list snapshot dir %s: %v", storage.ErrIO, s.dir, err)
	}

	var last int64
	var stale []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), snapshotDirPrefix) {
			continue
		}
		index, err := strconv.ParseInt(strings.TrimPrefix(e.Name(), snapshotDirPrefix), 10, 64)
		if err != nil || index <= 0 {
			s.logger.Warn("ignoring malformed snapshot dir", zap.String("name", e.Name()))
			continue
		}
		if _, err := readManifest(filepath.Join(s.dir, e.Name())); err != nil {
			s.logger.Warn("dropping snapshot with unreadable manifest",
				zap.String("name", e.Name()), zap.Error(err))
			stale = append(stale, filepath.Join(s.dir, e.Name()))
			continue
		}
		if index > last {
			if last > 0 {
				stale = append(stale, s.genDir(last))
			}
			last = index
		} else {
			stale = append(stale, filepath.Join(s.dir, e.Name()))
		}
	}
	for _, dir := range stale {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("%w: retire stale snapshot %s: %v", storage.ErrIO, dir, err)
		}
	}

	s.mu.Lock()
	s.last = last
	s.mu.Unlock()

	s.logger.Info("snapshot storage initialized", zap.Int64("last_snapshot_index", last))
	return nil
}

// Create returns a writer building a new generation in the temp directory.
func (s *SnapshotStorage) Create() (storage.SnapshotWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked()
}

func (s *SnapshotStorage) createLocked() (*SnapshotWriter, error) {
	if s.writer != nil {
		return nil, fmt.Errorf("%w: snapshot writer already open", storage.ErrInProgress)
	}
	temp := s.tempDir()
	if err := os.RemoveAll(temp); err != nil {
		return nil, fmt.Errorf("%w: clear snapshot temp dir: %v", storage.ErrIO, err)
	}
	if err := os.MkdirAll(temp, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create snapshot temp dir: %v", storage.ErrIO, err)
	}
	s.writer = &SnapshotWriter{store: s, dir: temp, m: &manifest{}}
	return s.writer, nil
}

// CloseWriter finalizes w: the manifest is persisted, the temp directory is
// renamed to its generation name, and the previous generation is retired
// unless a reader still references it. Closing a writer whose meta was
// never saved discards the build and keeps the previous generation current.
func (s *SnapshotStorage) CloseWriter(w storage.SnapshotWriter) error {
	sw, ok := w.(*SnapshotWriter)
	if !ok || sw == nil {
		return fmt.Errorf("%w: foreign snapshot writer %T", storage.ErrInvalidArgument, w)
	}

	start := time.Now()
	_, span := s.tracer.Start(context.Background(), "snapshot.save")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != sw {
		return fmt.Errorf("%w: writer is not the active one", storage.ErrInvalidArgument)
	}
	s.writer = nil

	discard := func(err error) error {
		_ = os.RemoveAll(sw.dir)
		s.metrics.IncStorageError(backendName, "snapshot_save")
		return err
	}

	sw.mu.Lock()
	metaSaved, m := sw.metaSaved, sw.m
	sw.mu.Unlock()

	if !metaSaved {
		return discard(fmt.Errorf("%w: snapshot writer closed without meta", storage.ErrInvalidArgument))
	}
	index := m.Meta.LastIncludedIndex
	span.SetAttributes(attribute.Int64("snapshot.last_included_index", index))
	if index <= 0 {
		return discard(fmt.Errorf("%w: snapshot meta has last included index %d",
			storage.ErrInvalidArgument, index))
	}
	if index <= s.last {
		return discard(fmt.Errorf("%w: snapshot generation %d not newer than %d",
			storage.ErrInvalidArgument, index, s.last))
	}

	if err := fsutil.WriteJSONAtomic(filepath.Join(sw.dir, manifestFileName), m); err != nil {
		return discard(fmt.Errorf("%w: write snapshot manifest: %v", storage.ErrIO, err))
	}
	if err := os.Rename(sw.dir, s.genDir(index)); err != nil {
		return discard(fmt.Errorf("%w: promote snapshot %d: %v", storage.ErrIO, index, err))
	}

	// The rename is the promotion point: the generation is current on disk,
	// so the in-memory state follows it even if the directory sync below
	// fails.
	prev := s.last
	s.last = index
	s.retireLocked(prev)

	if err := fsutil.SyncDir(s.dir); err != nil {
		s.metrics.IncStorageError(backendName, "snapshot_save")
		return fmt.Errorf("%w: sync snapshot dir: %v", storage.ErrIO, err)
	}

	s.metrics.ObserveSnapshotSaveDuration(backendName, time.Since(start))
	s.logger.Info("snapshot saved",
		zap.Int64("last_included_index", index),
		zap.Int("files", len(m.Files)),
	)
	return nil
}

// Open returns a reader on the latest generation, or (nil, nil) when no
// generation exists yet.
func (s *SnapshotStorage) Open() (storage.SnapshotReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *SnapshotStorage) openLocked() (storage.SnapshotReader, error) {
	if s.last == 0 {
		return nil, nil
	}
	dir := s.genDir(s.last)
	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	s.refs[s.last]++
	return &SnapshotReader{store: s, index: s.last, dir: dir, m: m}, nil
}

// CloseReader releases r's reference on its generation.
func (s *SnapshotStorage) CloseReader(r storage.SnapshotReader) error {
	sr, ok := r.(*SnapshotReader)
	if !ok || sr == nil {
		return fmt.Errorf("%w: foreign snapshot reader %T", storage.ErrInvalidArgument, r)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs[sr.index] <= 0 {
		return fmt.Errorf("%w: reader on generation %d already closed", storage.ErrInvalidArgument, sr.index)
	}
	s.refs[sr.index]--
	s.retireLocked(sr.index)
	return nil
}

// retireLocked deletes the generation at index if it is no longer the
// latest and no reader references it.
func (s *SnapshotStorage) retireLocked(index int64) {
	if index <= 0 || index == s.last || s.refs[index] > 0 {
		return
	}
	delete(s.refs, index)
	if err := os.RemoveAll(s.genDir(index)); err != nil {
		s.logger.Warn("failed to retire snapshot generation",
			zap.Int64("index", index), zap.Error(err))
	}
}

func (s *SnapshotStorage) tempDir() string {
	return filepath.Join(s.dir, tempDirName)
}

func (s *SnapshotStorage) genDir(index int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%020d", snapshotDirPrefix, index))
}

func readManifest(dir string) (*manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: snapshot manifest in %s", storage.ErrNotFound, dir)
		}
		return nil, fmt.Errorf("%w: read snapshot manifest in %s: %v", storage.ErrIO, dir, err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot manifest in %s: %v", storage.ErrCorrupted, dir, err)
	}
	return &m, nil
}

// SnapshotWriter builds a generation under the storage's temp directory.
// Whether member file bytes exist at AddFile time is up to the caller; the
// manifest entry is visible immediately either way.
type SnapshotWriter struct {
	store *SnapshotStorage
	dir   string

	mu        sync.Mutex
	m         *manifest
	metaSaved bool
}

// Path returns the directory the generation is being built in.
func (w *SnapshotWriter) Path() string { return w.dir }

// ListFiles returns the manifest files registered so far.
func (w *SnapshotWriter) ListFiles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.m.listFiles()
}

// GetFileMeta unmarshals the metadata registered for filename into out.
func (w *SnapshotWriter) GetFileMeta(filename string, out proto.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.m.fileMeta(filename, out)
}

// SaveMeta records the manifest meta; at most once per writer.
func (w *SnapshotWriter) SaveMeta(meta storage.SnapshotMeta) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.metaSaved {
		return fmt.Errorf("%w: snapshot meta already saved", storage.ErrInvalidArgument)
	}
	w.m.Meta = meta
	w.metaSaved = true
	return nil
}

// AddFile registers filename in the manifest with optional opaque metadata.
func (w *SnapshotWriter) AddFile(filename string, meta proto.Message) error {
	data, err := storage.MarshalFileMeta(meta)
	if err != nil {
		return err
	}
	return w.addFileRaw(filename, data)
}

func (w *SnapshotWriter) addFileRaw(filename string, metaBytes []byte) error {
	if filename == "" || strings.Contains(filename, "/") {
		return fmt.Errorf("%w: snapshot file name %q", storage.ErrInvalidArgument, filename)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if i := w.m.find(filename); i >= 0 {
		w.m.Files[i].Meta = metaBytes
		return nil
	}
	w.m.Files = append(w.m.Files, manifestFile{Name: filename, Meta: metaBytes})
	return nil
}

// RemoveFile reverses AddFile; absent files are a no-op.
func (w *SnapshotWriter) RemoveFile(filename string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.m.find(filename)
	if i < 0 {
		return nil
	}
	w.m.Files = append(w.m.Files[:i], w.m.Files[i+1:]...)
	return nil
}

// SnapshotReader exposes one finalized generation.
type SnapshotReader struct {
	store *SnapshotStorage
	index int64
	dir   string
	m     *manifest
}

// Path returns the generation directory.
func (r *SnapshotReader) Path() string { return r.dir }

// ListFiles returns the manifest files.
func (r *SnapshotReader) ListFiles() []string { return r.m.listFiles() }

// GetFileMeta unmarshals the metadata stored for filename into out.
func (r *SnapshotReader) GetFileMeta(filename string, out proto.Message) error {
	return r.m.fileMeta(filename, out)
}

// LoadMeta returns the manifest meta.
func (r *SnapshotReader) LoadMeta() (storage.SnapshotMeta, error) {
	if r.m.Meta.LastIncludedIndex == 0 {
		return storage.SnapshotMeta{}, fmt.Errorf("%w: snapshot meta in %s", storage.ErrNotFound, r.dir)
	}
	return r.m.Meta, nil
}

// GenerateURIForCopy exposes this generation as a local:// URI other
// replicas on the same filesystem can copy from.
func (r *SnapshotReader) GenerateURIForCopy() string {
	abs, err := filepath.Abs(r.dir)
	if err != nil {
		return ""
	}
	return "local://" + abs
}
