package localstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"

	"github.com/i-melnichenko/raftstore-lab/storage"
)

const backendName = "local"

// LogStorage stores the replicated log in a goleveldb database under
// <dir>/log. Entry keys sort in log order, so first/last discovery and
// range deletes are iterator walks. Reads go straight to leveldb and may
// overlap an in-flight append; truncation and reset serialize with appends
// on an internal mutex.
type LogStorage struct {
	dir        string
	syncWrites bool
	logger     *zap.Logger
	metrics    storage.Metrics

	db *leveldb.DB

	// opMu serializes mutators (append, truncate, reset); mu guards the
	// cached index range for concurrent readers.
	opMu  sync.Mutex
	mu    sync.RWMutex
	first int64
	last  int64
}

// NewLogStorage returns an uninitialized log storage rooted at dir.
func NewLogStorage(dir string, opts ...Option) *LogStorage {
	o := applyOptions(opts)
	return &LogStorage{
		dir:        dir,
		syncWrites: o.syncWrites,
		logger:     o.logger.Named("logstore"),
		metrics:    o.metrics,
		first:      1,
	}
}

// Init opens the database, verifies the persisted log is contiguous, and
// replays configuration entries into cm in increasing index order.
func (s *LogStorage) Init(cm storage.ConfigurationManager) error {
	db, err := leveldb.OpenFile(s.dir, nil)
	if err != nil {
		if ldberrors.IsCorrupted(err) {
			return fmt.Errorf("%w: open log db at %s: %v", storage.ErrCorrupted, s.dir, err)
		}
		return fmt.Errorf("%w: open log db at %s: %v", storage.ErrIO, s.dir, err)
	}
	s.db = db

	first := int64(1)
	if value, err := db.Get(firstIndexKey, nil); err == nil {
		if first, err = decodeIndex(value); err != nil {
			return err
		}
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("%w: read first index marker: %v", storage.ErrIO, err)
	}

	// Entries below the marker are leftovers from an interrupted prefix
	// truncation; drop them now instead of tripping the gap check.
	stale := new(leveldb.Batch)
	expected := first
	iter := s.db.NewIterator(util.BytesPrefix([]byte{'l'}), nil)
	defer iter.Release()
	for iter.Next() {
		index, ok := entryKeyIndex(iter.Key())
		if !ok {
			return fmt.Errorf("%w: unexpected key %q in log column", storage.ErrCorrupted, iter.Key())
		}
		if index < first {
			stale.Delete(entryKey(index))
			continue
		}
		if index != expected {
			return fmt.Errorf("%w: log gap: found index %d, want %d", storage.ErrCorrupted, index, expected)
		}
		term, typ, err := decodeEntryHeader(iter.Value())
		if err != nil {
			return err
		}
		if typ == storage.EntryConfiguration && cm != nil {
			conf, err := decodeEntryConfiguration(index, iter.Value())
			if err != nil {
				return err
			}
			err = cm.Append(storage.ConfigurationEntry{
				Index:    index,
				Term:     term,
				Peers:    conf.Peers,
				OldPeers: conf.OldPeers,
			})
			if err != nil {
				return fmt.Errorf("replay configuration at index %d: %w", index, err)
			}
		}
		expected++
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("%w: scan log: %v", storage.ErrIO, err)
	}
	if stale.Len() > 0 {
		if err := s.db.Write(stale, &opt.WriteOptions{Sync: true}); err != nil {
			return fmt.Errorf("%w: drop stale log prefix: %v", storage.ErrIO, err)
		}
	}

	s.mu.Lock()
	s.first = first
	s.last = expected - 1
	s.mu.Unlock()

	s.logger.Info("log storage initialized",
		zap.Int64("first_log_index", first),
		zap.Int64("last_log_index", expected-1),
	)
	return nil
}

// Close releases the underlying database. Not part of the LogStorage
// contract; owners call it when retiring the replica.
func (s *LogStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// FirstLogIndex returns the first stored index.
func (s *LogStorage) FirstLogIndex() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.first
}

// LastLogIndex returns the last stored index, FirstLogIndex-1 when empty.
func (s *LogStorage) LastLogIndex() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// GetEntry returns the fully materialized entry at index.
func (s *LogStorage) GetEntry(index int64) (*storage.LogEntry, error) {
	if err := s.checkRange(index); err != nil {
		return nil, err
	}
	value, err := s.db.Get(entryKey(index), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			// Raced with a truncation that removed the index.
			return nil, fmt.Errorf("%w: log index %d", storage.ErrNotFound, index)
		}
		s.metrics.IncStorageError(backendName, "get_entry")
		return nil, fmt.Errorf("%w: read log index %d: %v", storage.ErrIO, index, err)
	}
	return decodeEntry(index, value)
}

// GetTerm returns the term at index, decoding only the entry header.
func (s *LogStorage) GetTerm(index int64) (int64, error) {
	if err := s.checkRange(index); err != nil {
		return 0, err
	}
	value, err := s.db.Get(entryKey(index), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return 0, fmt.Errorf("%w: log index %d", storage.ErrNotFound, index)
		}
		s.metrics.IncStorageError(backendName, "get_term")
		return 0, fmt.Errorf("%w: read log index %d: %v", storage.ErrIO, index, err)
	}
	term, _, err := decodeEntryHeader(value)
	return term, err
}

func (s *LogStorage) checkRange(index int64) error {
	s.mu.RLock()
	first, last := s.first, s.last
	s.mu.RUnlock()
	if index < first || index > last {
		return fmt.Errorf("%w: log index %d outside [%d, %d]", storage.ErrNotFound, index, first, last)
	}
	return nil
}

// AppendEntry durably appends a single entry at LastLogIndex+1.
func (s *LogStorage) AppendEntry(entry *storage.LogEntry) error {
	_, err := s.AppendEntries([]*storage.LogEntry{entry})
	return err
}

// AppendEntries durably appends a contiguous batch and returns the count
// persisted. Entries are written in one batch per contiguous validated
// run, so a count short of len(entries) tells the caller exactly where to
// resume.
func (s *LogStorage) AppendEntries(entries []*storage.LogEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	start := time.Now()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	next := s.last + 1
	s.mu.RUnlock()

	batch := new(leveldb.Batch)
	bytes := 0
	accepted := 0
	var appendErr error
	for i, e := range entries {
		if e == nil {
			appendErr = fmt.Errorf("%w: nil entry in append batch", storage.ErrInvalidArgument)
			break
		}
		if e.Index != next+int64(i) {
			appendErr = fmt.Errorf("%w: entry index %d not contiguous, want %d",
				storage.ErrInvalidArgument, e.Index, next+int64(i))
			break
		}
		value, err := encodeEntry(e)
		if err != nil {
			appendErr = err
			break
		}
		batch.Put(entryKey(e.Index), value)
		bytes += len(value)
		accepted++
	}

	if accepted > 0 {
		if err := s.db.Write(batch, &opt.WriteOptions{Sync: s.syncWrites}); err != nil {
			// The batch is atomic: nothing of it reached the log.
			s.metrics.IncStorageError(backendName, "append")
			return 0, fmt.Errorf("%w: append %d entries at %d: %v", storage.ErrIO, accepted, next, err)
		}
		s.mu.Lock()
		s.last = next + int64(accepted) - 1
		s.mu.Unlock()
	}

	s.metrics.ObserveLogAppendDuration(backendName, accepted, time.Since(start))
	s.metrics.ObserveLogAppendBytes(backendName, bytes)
	return accepted, appendErr
}

// TruncatePrefix discards [FirstLogIndex, firstIndexKept). The marker move
// and the entry deletes commit in one synced batch.
func (s *LogStorage) TruncatePrefix(firstIndexKept int64) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	first, last := s.first, s.last
	s.mu.RUnlock()
	if firstIndexKept <= first {
		return nil
	}

	batch := new(leveldb.Batch)
	batch.Put(firstIndexKey, encodeIndex(firstIndexKept))
	for index := first; index <= last && index < firstIndexKept; index++ {
		batch.Delete(entryKey(index))
	}
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		s.metrics.IncStorageError(backendName, "truncate_prefix")
		return fmt.Errorf("%w: truncate prefix to %d: %v", storage.ErrIO, firstIndexKept, err)
	}

	s.mu.Lock()
	s.first = firstIndexKept
	if s.last < firstIndexKept-1 {
		s.last = firstIndexKept - 1
	}
	s.mu.Unlock()

	s.metrics.IncLogTruncate(backendName, "prefix")
	s.logger.Debug("truncated log prefix", zap.Int64("first_index_kept", firstIndexKept))
	return nil
}

// TruncateSuffix discards (lastIndexKept, LastLogIndex].
func (s *LogStorage) TruncateSuffix(lastIndexKept int64) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	first, last := s.first, s.last
	s.mu.RUnlock()
	if lastIndexKept >= last {
		return nil
	}
	if lastIndexKept < first-1 {
		lastIndexKept = first - 1
	}

	batch := new(leveldb.Batch)
	for index := lastIndexKept + 1; index <= last; index++ {
		batch.Delete(entryKey(index))
	}
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		s.metrics.IncStorageError(backendName, "truncate_suffix")
		return fmt.Errorf("%w: truncate suffix to %d: %v", storage.ErrIO, lastIndexKept, err)
	}

	s.mu.Lock()
	s.last = lastIndexKept
	s.mu.Unlock()

	s.metrics.IncLogTruncate(backendName, "suffix")
	s.logger.Debug("truncated log suffix", zap.Int64("last_index_kept", lastIndexKept))
	return nil
}

// Reset empties the log and moves both ends to nextLogIndex. Used after
// installing a snapshot whose range the local log does not cover.
func (s *LogStorage) Reset(nextLogIndex int64) error {
	if nextLogIndex < 1 {
		return fmt.Errorf("%w: reset to index %d", storage.ErrInvalidArgument, nextLogIndex)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	first, last := s.first, s.last
	s.mu.RUnlock()

	batch := new(leveldb.Batch)
	batch.Put(firstIndexKey, encodeIndex(nextLogIndex))
	for index := first; index <= last; index++ {
		batch.Delete(entryKey(index))
	}
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		s.metrics.IncStorageError(backendName, "reset")
		return fmt.Errorf("%w: reset log to %d: %v", storage.ErrIO, nextLogIndex, err)
	}

	s.mu.Lock()
	s.first = nextLogIndex
	s.last = nextLogIndex - 1
	s.mu.Unlock()

	s.logger.Info("log reset", zap.Int64("next_log_index", nextLogIndex))
	return nil
}
