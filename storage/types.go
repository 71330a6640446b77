package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// EntryType identifies the kind of replicated log entry payload.
type EntryType uint8

// Supported log entry types.
const (
	EntryNormal        EntryType = 0 // opaque application command
	EntryConfiguration EntryType = 1 // membership change
	EntryNoOp          EntryType = 2 // leader barrier entry
)

// String returns a short human-readable name for the entry type.
func (t EntryType) String() string {
	switch t {
	case EntryNormal:
		return "normal"
	case EntryConfiguration:
		return "configuration"
	case EntryNoOp:
		return "no-op"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// PeerID identifies a cluster member: a network address plus an optional
// replica-group index for processes hosting multiple replicas. The zero
// value means "no peer". Storage only ever compares PeerIDs for equality.
type PeerID struct {
	Addr string `json:"addr"`
	Idx  int    `json:"idx,omitempty"`
}

// IsEmpty reports whether the PeerID is the zero "no peer" value.
func (p PeerID) IsEmpty() bool { return p.Addr == "" && p.Idx == 0 }

// String renders the peer as "addr" or "addr:idx" when idx is non-zero.
func (p PeerID) String() string {
	if p.Idx == 0 {
		return p.Addr
	}
	return p.Addr + ":" + strconv.Itoa(p.Idx)
}

// ParsePeerID parses the output of PeerID.String. A trailing ":<int>"
// segment after a host:port address is interpreted as the replica index.
func ParsePeerID(s string) (PeerID, error) {
	if s == "" {
		return PeerID{}, fmt.Errorf("%w: empty peer id", ErrInvalidArgument)
	}
	// "host:port:idx" carries at least two colons; a plain "host:port"
	// (or bare host) is an address with index 0.
	if parts := strings.Split(s, ":"); len(parts) >= 3 {
		if idx, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			return PeerID{Addr: strings.Join(parts[:len(parts)-1], ":"), Idx: idx}, nil
		}
	}
	return PeerID{Addr: s}, nil
}

// LogEntry is a single record of the replicated log, identified by
// (Index, Term). Data is opaque to storage. Peers and OldPeers are only
// populated on EntryConfiguration entries and describe the configuration
// being transitioned to and from.
type LogEntry struct {
	Index    int64     `json:"index"`
	Term     int64     `json:"term"`
	Type     EntryType `json:"type"`
	Data     []byte    `json:"data,omitempty"`
	Peers    []PeerID  `json:"peers,omitempty"`
	OldPeers []PeerID  `json:"old_peers,omitempty"`
}

// Clone returns a deep copy of the entry.
func (e *LogEntry) Clone() *LogEntry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Data = append([]byte(nil), e.Data...)
	cp.Peers = append([]PeerID(nil), e.Peers...)
	cp.OldPeers = append([]PeerID(nil), e.OldPeers...)
	return &cp
}

// SnapshotMeta describes a snapshot generation: the last log position it
// covers and the peer configuration effective at that point.
type SnapshotMeta struct {
	LastIncludedIndex int64    `json:"last_included_index"`
	LastIncludedTerm  int64    `json:"last_included_term"`
	Peers             []PeerID `json:"peers,omitempty"`
	OldPeers          []PeerID `json:"old_peers,omitempty"`
}

// ConfigurationEntry is a membership change observed in the log, keyed by
// the index of the configuration entry that introduced it.
type ConfigurationEntry struct {
	Index    int64
	Term     int64
	Peers    []PeerID
	OldPeers []PeerID
}

// ConfigurationManager is the membership tracker supplied to
// LogStorage.Init. The log storage replays persisted configuration entries
// into it in increasing index order during the startup scan.
type ConfigurationManager interface {
	Append(entry ConfigurationEntry) error
}
