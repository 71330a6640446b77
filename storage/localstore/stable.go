package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/i-melnichenko/raftstore-lab/internal/fsutil"
	"github.com/i-melnichenko/raftstore-lab/storage"
)

const stableFileName = "stable.json"

// stableRecord is the on-disk form of the (term, voted-for) pair. It is
// rewritten as a whole on every change; the rename inside the atomic write
// is the point where the new pair becomes visible, so readers never see a
// mixed record.
type stableRecord struct {
	Term     int64           `json:"term"`
	VotedFor *storage.PeerID `json:"voted_for,omitempty"`
}

// StableStorage persists the current term and vote in a single JSON file
// under dir, rewritten atomically and fsynced on every update.
type StableStorage struct {
	path   string
	logger *zap.Logger

	mu  sync.RWMutex
	rec stableRecord
}

// NewStableStorage returns an uninitialized stable storage rooted at dir.
func NewStableStorage(dir string, opts ...Option) *StableStorage {
	o := applyOptions(opts)
	return &StableStorage{
		path:   filepath.Join(dir, stableFileName),
		logger: o.logger.Named("stablestore"),
	}
}

// Init loads the record from disk, treating a missing file as the zero
// record. The single-file rewrite makes SetTermAndVotedFor atomic by
// construction, so there is no capability to verify here.
func (s *StableStorage) Init() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", storage.ErrIO, s.path, err)
	}
	if len(data) == 0 {
		return nil
	}

	var rec stableRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("%w: decode %s: %v", storage.ErrCorrupted, s.path, err)
	}

	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()
	return nil
}

// SetTerm durably records term. Moving to a different term discards the
// recorded vote, which belongs to the term it was cast in.
func (s *StableStorage) SetTerm(term int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := stableRecord{Term: term}
	if term == s.rec.Term {
		rec.VotedFor = s.rec.VotedFor
	}
	return s.writeLocked(rec)
}

// GetTerm returns the recorded term, 0 when none was ever set.
func (s *StableStorage) GetTerm() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Term, nil
}

// SetVotedFor durably records the vote for the current term.
func (s *StableStorage) SetVotedFor(peer storage.PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(stableRecord{Term: s.rec.Term, VotedFor: &peer})
}

// GetVotedFor returns the vote recorded for the current term.
func (s *StableStorage) GetVotedFor() (storage.PeerID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec.VotedFor == nil {
		return storage.PeerID{}, fmt.Errorf("%w: no vote recorded for term %d", storage.ErrNotFound, s.rec.Term)
	}
	return *s.rec.VotedFor, nil
}

// SetTermAndVotedFor durably records both values in one write.
func (s *StableStorage) SetTermAndVotedFor(term int64, peer storage.PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(stableRecord{Term: term, VotedFor: &peer})
}

func (s *StableStorage) writeLocked(rec stableRecord) error {
	if err := fsutil.WriteJSONAtomic(s.path, rec); err != nil {
		return fmt.Errorf("%w: write %s: %v", storage.ErrIO, s.path, err)
	}
	s.rec = rec
	s.logger.Debug("stable state updated",
		zap.Int64("term", rec.Term),
		zap.Bool("has_vote", rec.VotedFor != nil),
	)
	return nil
}
