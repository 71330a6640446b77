package memstore

import (
	"fmt"
	"sync"

	"github.com/i-melnichenko/raftstore-lab/storage"
)

// StableStorage keeps the (term, voted-for) pair in memory. The single
// mutex makes the combined update trivially atomic.
type StableStorage struct {
	mu       sync.RWMutex
	term     int64
	votedFor storage.PeerID
	hasVote  bool
}

// NewStableStorage returns an empty stable store.
func NewStableStorage() *StableStorage {
	return &StableStorage{}
}

// Init is a no-op for the in-memory backend.
func (s *StableStorage) Init() error { return nil }

// SetTerm records the current term. Moving to a different term discards the
// recorded vote, which belongs to the term it was cast in.
func (s *StableStorage) SetTerm(term int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if term != s.term {
		s.votedFor = storage.PeerID{}
		s.hasVote = false
	}
	s.term = term
	return nil
}

// GetTerm returns the recorded term.
func (s *StableStorage) GetTerm() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.term, nil
}

// SetVotedFor records the vote cast in the current term.
func (s *StableStorage) SetVotedFor(peer storage.PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votedFor = peer
	s.hasVote = true
	return nil
}

// GetVotedFor returns the recorded vote.
func (s *StableStorage) GetVotedFor() (storage.PeerID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasVote {
		return storage.PeerID{}, fmt.Errorf("%w: no vote recorded", storage.ErrNotFound)
	}
	return s.votedFor, nil
}

// SetTermAndVotedFor records both values under one lock acquisition.
func (s *StableStorage) SetTermAndVotedFor(term int64, peer storage.PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term = term
	s.votedFor = peer
	s.hasVote = true
	return nil
}
