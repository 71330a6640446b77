package memstore

import (
	"fmt"
	"sort"
	"sync"

	"google.golang.org/protobuf/proto"

	"github.com/i-melnichenko/raftstore-lab/storage"
)

// SnapshotStorage keeps snapshot generations in memory, keyed by their
// last included index. It supports the full writer/reader lifecycle but
// cannot expose snapshots for remote copy, so GenerateURIForCopy returns
// "" and the copy operations report ErrUnsupported. The optional
// filesystem-adaptor and throttle capabilities are likewise absent.
type SnapshotStorage struct {
	mu     sync.Mutex
	name   string
	gens   map[int64]*generation
	refs   map[int64]int
	last   int64
	writer *SnapshotWriter
}

type generation struct {
	meta  storage.SnapshotMeta
	files map[string][]byte
	order []string
}

func (g *generation) listFiles() []string {
	return append([]string(nil), g.order...)
}

func (g *generation) fileMeta(filename string, out proto.Message) error {
	if out == nil {
		return fmt.Errorf("%w: nil file meta target", storage.ErrInvalidArgument)
	}
	data, ok := g.files[filename]
	if !ok {
		proto.Reset(out)
		return nil
	}
	return storage.UnmarshalFileMeta(data, out)
}

// NewSnapshotStorage returns an empty snapshot store named for diagnostics.
func NewSnapshotStorage(name string) *SnapshotStorage {
	return &SnapshotStorage{
		name: name,
		gens: make(map[int64]*generation),
		refs: make(map[int64]int),
	}
}

// Init is a no-op for the in-memory backend.
func (s *SnapshotStorage) Init() error { return nil }

// Create returns a writer building a new generation.
func (s *SnapshotStorage) Create() (storage.SnapshotWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != nil {
		return nil, fmt.Errorf("%w: snapshot writer already open", storage.ErrInProgress)
	}
	s.writer = &SnapshotWriter{
		store: s,
		gen:   &generation{files: make(map[string][]byte)},
	}
	return s.writer, nil
}

// CloseWriter finalizes w. Without a saved meta the pending generation is
// discarded and the previous one stays current.
func (s *SnapshotStorage) CloseWriter(w storage.SnapshotWriter) error {
	sw, ok := w.(*SnapshotWriter)
	if !ok || sw == nil {
		return fmt.Errorf("%w: foreign snapshot writer %T", storage.ErrInvalidArgument, w)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer != sw {
		return fmt.Errorf("%w: writer is not the active one", storage.ErrInvalidArgument)
	}
	s.writer = nil

	if !sw.metaSaved {
		return fmt.Errorf("%w: snapshot writer closed without meta", storage.ErrInvalidArgument)
	}
	index := sw.gen.meta.LastIncludedIndex
	if index <= 0 {
		return fmt.Errorf("%w: snapshot meta has last included index %d", storage.ErrInvalidArgument, index)
	}
	if _, exists := s.gens[index]; exists {
		return fmt.Errorf("%w: snapshot generation %d already exists", storage.ErrInvalidArgument, index)
	}

	s.gens[index] = sw.gen
	if index > s.last {
		s.last = index
	}
	s.retireLocked()
	return nil
}

// Open returns a reader on the latest generation, or (nil, nil) when none
// exists yet.
func (s *SnapshotStorage) Open() (storage.SnapshotReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == 0 {
		return nil, nil
	}
	gen := s.gens[s.last]
	s.refs[s.last]++
	return &SnapshotReader{store: s, gen: gen, index: s.last}, nil
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
	s.retireLocked()
	return nil
}

// CopyFrom is not supported by the in-memory backend.
func (s *SnapshotStorage) CopyFrom(uri string) (storage.SnapshotReader, error) {
	return nil, fmt.Errorf("%w: memory snapshot storage cannot copy from %q", storage.ErrUnsupported, uri)
}

// StartToCopyFrom is not supported by the in-memory backend.
func (s *SnapshotStorage) StartToCopyFrom(uri string) (storage.SnapshotCopier, error) {
	return nil, fmt.Errorf("%w: memory snapshot storage cannot copy from %q", storage.ErrUnsupported, uri)
}

// CloseCopier releases c. The in-memory backend never hands out copiers,
// so any copier presented here is foreign.
func (s *SnapshotStorage) CloseCopier(c storage.SnapshotCopier) error {
	return fmt.Errorf("%w: foreign snapshot copier %T", storage.ErrInvalidArgument, c)
}

// retireLocked drops every non-latest generation with no open readers.
func (s *SnapshotStorage) retireLocked() {
	for index := range s.gens {
		if index != s.last && s.refs[index] == 0 {
			delete(s.gens, index)
			delete(s.refs, index)
		}
	}
}

func (s *SnapshotStorage) genPath(index int64) string {
	return fmt.Sprintf("memory://%s/snapshot_%020d", s.name, index)
}

// SnapshotWriter accumulates a pending generation.
type SnapshotWriter struct {
	mu        sync.Mutex
	store     *SnapshotStorage
	gen       *generation
	metaSaved bool
}

// Path returns the pending generation's in-memory location.
func (w *SnapshotWriter) Path() string {
	return fmt.Sprintf("memory://%s/temp", w.store.name)
}

// ListFiles returns the files registered so far, in insertion order.
func (w *SnapshotWriter) ListFiles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen.listFiles()
}

// GetFileMeta returns the metadata registered for filename.
func (w *SnapshotWriter) GetFileMeta(filename string, out proto.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen.fileMeta(filename, out)
}

// SaveMeta records the manifest meta; at most once per writer.
func (w *SnapshotWriter) SaveMeta(meta storage.SnapshotMeta) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.metaSaved {
		return fmt.Errorf("%w: snapshot meta already saved", storage.ErrInvalidArgument)
	}
	w.gen.meta = meta
	w.metaSaved = true
	return nil
}

// AddFile registers filename with optional opaque metadata.
func (w *SnapshotWriter) AddFile(filename string, meta proto.Message) error {
	if filename == "" {
		return fmt.Errorf("%w: empty snapshot file name", storage.ErrInvalidArgument)
	}
	data, err := storage.MarshalFileMeta(meta)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.gen.files[filename]; !exists {
		w.gen.order = append(w.gen.order, filename)
	}
	w.gen.files[filename] = data
	return nil
}

// RemoveFile reverses AddFile; absent files are a no-op.
func (w *SnapshotWriter) RemoveFile(filename string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.gen.files[filename]; !exists {
		return nil
	}
	delete(w.gen.files, filename)
	for i, name := range w.gen.order {
		if name == filename {
			w.gen.order = append(w.gen.order[:i], w.gen.order[i+1:]...)
			break
		}
	}
	return nil
}

// SnapshotReader exposes one finalized in-memory generation.
type SnapshotReader struct {
	store *SnapshotStorage
	gen   *generation
	index int64
}

// Path returns the generation's in-memory location.
func (r *SnapshotReader) Path() string { return r.store.genPath(r.index) }

// ListFiles returns the manifest files in sorted order.
func (r *SnapshotReader) ListFiles() []string {
	files := r.gen.listFiles()
	sort.Strings(files)
	return files
}

// GetFileMeta returns the metadata stored for filename.
func (r *SnapshotReader) GetFileMeta(filename string, out proto.Message) error {
	return r.gen.fileMeta(filename, out)
}

// LoadMeta returns the manifest meta.
func (r *SnapshotReader) LoadMeta() (storage.SnapshotMeta, error) {
	return r.gen.meta, nil
}

// GenerateURIForCopy returns "" because in-memory snapshots cannot be
// reached from other processes.
func (r *SnapshotReader) GenerateURIForCopy() string { return "" }
