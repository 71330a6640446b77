package storage

// LogStorage is a durable, append-only, index-addressed store of log
// entries, one instance per replica. Indices are 1-based and contiguous
// between FirstLogIndex and LastLogIndex; FirstLogIndex == LastLogIndex+1
// denotes an empty log.
//
// Implementations must allow GetEntry/GetTerm reads to overlap an in-flight
// append (observing either the pre- or post-append state, never a torn
// entry) and must serialize truncation and reset against appends and each
// other.
type LogStorage interface {
	// Init scans persisted entries, verifies integrity (no gaps, no
	// duplicate indices), and replays configuration-change entries into
	// cm in increasing index order. Returns ErrCorrupted on gap or
	// duplicate detection and ErrIO on unreadable backing storage.
	Init(cm ConfigurationManager) error

	// FirstLogIndex returns the first index in the log. Well-defined on
	// an empty log, where it equals LastLogIndex()+1.
	FirstLogIndex() int64

	// LastLogIndex returns the last index in the log, 0 when no entry
	// has ever been appended.
	LastLogIndex() int64

	// GetEntry returns the entry at index, or ErrNotFound when index is
	// outside [FirstLogIndex, LastLogIndex]. The returned entry is never
	// partially materialized.
	GetEntry(index int64) (*LogEntry, error)

	// GetTerm returns the term of the entry at index without decoding
	// its payload. Same range behavior as GetEntry.
	GetTerm(index int64) (int64, error)

	// AppendEntry durably appends a single entry. The entry's index must
	// be exactly LastLogIndex()+1, otherwise ErrInvalidArgument.
	AppendEntry(entry *LogEntry) error

	// AppendEntries durably appends a batch of entries with strictly
	// increasing, contiguous indices immediately following the current
	// last index. It returns the count of entries durably persisted; a
	// short count with a non-nil error reports exactly how far
	// persistence reached, letting the caller resume from the first
	// failed index.
	AppendEntries(entries []*LogEntry) (int, error)

	// TruncatePrefix discards [FirstLogIndex, firstIndexKept). No-op when
	// firstIndexKept <= FirstLogIndex.
	TruncatePrefix(firstIndexKept int64) error

	// TruncateSuffix discards (lastIndexKept, LastLogIndex]; used to roll
	// back uncommitted entries after a leadership change. No-op when
	// lastIndexKept >= LastLogIndex.
	TruncateSuffix(lastIndexKept int64) error

	// Reset unconditionally empties the log and sets
	// FirstLogIndex == LastLogIndex+1 == nextLogIndex, independent of
	// prior contents. Called only after installing a snapshot whose
	// range the local log does not cover.
	Reset(nextLogIndex int64) error
}

// StableStorage is a durable record of exactly the pair (current term,
// voted-for peer). It is separate from the log because every vote cast must
// be individually durable, independent of log batching.
type StableStorage interface {
	// Init loads or creates the record and verifies the backend can
	// honor the atomicity contract of SetTermAndVotedFor. A backend that
	// cannot must fail here rather than weaken the guarantee.
	Init() error

	// SetTerm durably records the current term.
	SetTerm(term int64) error

	// GetTerm returns the recorded term, 0 when none was ever set.
	GetTerm() (int64, error)

	// SetVotedFor durably records the vote cast in the current term.
	SetVotedFor(peer PeerID) error

	// GetVotedFor returns the recorded vote, or ErrNotFound when no vote
	// is recorded.
	GetVotedFor() (PeerID, error)

	// SetTermAndVotedFor atomically records both values. A concurrent or
	// later read observes either the old or the new pair, never a mix.
	SetTermAndVotedFor(term int64, peer PeerID) error
}
