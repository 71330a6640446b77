package memstore

import (
	"fmt"
	"sync"

	"github.com/i-melnichenko/raftstore-lab/storage"
)

// LogStorage keeps the replicated log in memory behind a RWMutex.
// Reads may overlap appends; truncation and reset serialize on the write
// lock together with appends.
type LogStorage struct {
	mu      sync.RWMutex
	first   int64
	entries []*storage.LogEntry // entries[0], if any, has Index == first
}

// NewLogStorage returns an empty in-memory log.
func NewLogStorage() *LogStorage {
	return &LogStorage{first: 1}
}

// Init verifies internal consistency and replays configuration entries
// into cm. A fresh instance is empty, so this mostly matters for instances
// reused across a simulated restart in tests.
func (s *LogStorage) Init(cm storage.ConfigurationManager) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, e := range s.entries {
		want := s.first + int64(i)
		if e.Index != want {
			return fmt.Errorf("%w: log entry at position %d has index %d, want %d",
				storage.ErrCorrupted, i, e.Index, want)
		}
		if e.Type != storage.EntryConfiguration || cm == nil {
			continue
		}
		err := cm.Append(storage.ConfigurationEntry{
			Index:    e.Index,
			Term:     e.Term,
			Peers:    append([]storage.PeerID(nil), e.Peers...),
			OldPeers: append([]storage.PeerID(nil), e.OldPeers...),
		})
		if err != nil {
			return fmt.Errorf("replay configuration at index %d: %w", e.Index, err)
		}
	}
	return nil
}

// FirstLogIndex returns the first stored index.
func (s *LogStorage) FirstLogIndex() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.first
}

// LastLogIndex returns the last stored index, first-1 when empty.
func (s *LogStorage) LastLogIndex() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastLocked()
}

func (s *LogStorage) lastLocked() int64 {
	return s.first + int64(len(s.entries)) - 1
}

// GetEntry returns a copy of the entry at index.
func (s *LogStorage) GetEntry(index int64) (*storage.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < s.first || index > s.lastLocked() {
		return nil, fmt.Errorf("%w: log index %d outside [%d, %d]",
			storage.ErrNotFound, index, s.first, s.lastLocked())
	}
	return s.entries[index-s.first].Clone(), nil
}

// GetTerm returns the term at index without copying the payload.
func (s *LogStorage) GetTerm(index int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < s.first || index > s.lastLocked() {
		return 0, fmt.Errorf("%w: log index %d outside [%d, %d]",
			storage.ErrNotFound, index, s.first, s.lastLocked())
	}
	return s.entries[index-s.first].Term, nil
}

// AppendEntry appends a single entry at LastLogIndex+1.
func (s *LogStorage) AppendEntry(entry *storage.LogEntry) error {
	_, err := s.AppendEntries([]*storage.LogEntry{entry})
	return err
}

// AppendEntries appends a contiguous batch and returns the count stored.
func (s *LogStorage) AppendEntries(entries []*storage.LogEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.lastLocked() + 1
	for i, e := range entries {
		if e == nil {
			return 0, fmt.Errorf("%w: nil entry in append batch", storage.ErrInvalidArgument)
		}
		if e.Index != next+int64(i) {
			return 0, fmt.Errorf("%w: entry index %d not contiguous, want %d",
				storage.ErrInvalidArgument, e.Index, next+int64(i))
		}
	}
	for _, e := range entries {
		s.entries = append(s.entries, e.Clone())
	}
	return len(entries), nil
}

// TruncatePrefix discards [first, firstIndexKept).
func (s *LogStorage) TruncatePrefix(firstIndexKept int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if firstIndexKept <= s.first {
		return nil
	}
	last := s.lastLocked()
	if firstIndexKept > last {
		// Everything goes; keep the log empty at the new first index.
		s.entries = nil
		s.first = firstIndexKept
		return nil
	}
	kept := s.entries[firstIndexKept-s.first:]
	s.entries = append([]*storage.LogEntry(nil), kept...)
	s.first = firstIndexKept
	return nil
}

// TruncateSuffix discards (lastIndexKept, last].
func (s *LogStorage) TruncateSuffix(lastIndexKept int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lastIndexKept >= s.lastLocked() {
		return nil
	}
	if lastIndexKept < s.first-1 {
		lastIndexKept = s.first - 1
	}
	s.entries = s.entries[:lastIndexKept-s.first+1]
	return nil
}

// Reset empties the log and moves both ends to nextLogIndex.
func (s *LogStorage) Reset(nextLogIndex int64) error {
	if nextLogIndex < 1 {
		return fmt.Errorf("%w: reset to index %d", storage.ErrInvalidArgument, nextLogIndex)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.first = nextLogIndex
	return nil
}
