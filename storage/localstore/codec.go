package localstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/i-melnichenko/raftstore-lab/storage"
)

// On-disk log entry value layout:
//
//	[0]     format version
//	[1:9]   term, big endian
//	[9]     entry type
//	[10:14] length of the configuration block, big endian (0 when absent)
//	[14:..] configuration block (JSON peer sets), then the raw payload
//
// The fixed header lets GetTerm and the init scan classify an entry without
// touching the payload.
const (
	entryFormatVersion = 1
	entryHeaderSize    = 14
)

type entryConfiguration struct {
	Peers    []storage.PeerID `json:"peers,omitempty"`
	OldPeers []storage.PeerID `json:"old_peers,omitempty"`
}

func encodeEntry(e *storage.LogEntry) ([]byte, error) {
	var conf []byte
	if len(e.Peers) > 0 || len(e.OldPeers) > 0 {
		var err error
		conf, err = json.Marshal(entryConfiguration{Peers: e.Peers, OldPeers: e.OldPeers})
		if err != nil {
			return nil, fmt.Errorf("%w: encode configuration for index %d: %v",
				storage.ErrInvalidArgument, e.Index, err)
		}
	}

	buf := make([]byte, entryHeaderSize, entryHeaderSize+len(conf)+len(e.Data))
	buf[0] = entryFormatVersion
	binary.BigEndian.PutUint64(buf[1:9], uint64(e.Term))
	buf[9] = byte(e.Type)
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(conf)))
	buf = append(buf, conf...)
	buf = append(buf, e.Data...)
	return buf, nil
}

// decodeEntryHeader extracts term and type without materializing the entry.
func decodeEntryHeader(value []byte) (term int64, typ storage.EntryType, err error) {
	if len(value) < entryHeaderSize || value[0] != entryFormatVersion {
		return 0, 0, fmt.Errorf("%w: malformed log entry header", storage.ErrCorrupted)
	}
	return int64(binary.BigEndian.Uint64(value[1:9])), storage.EntryType(value[9]), nil
}

func decodeEntry(index int64, value []byte) (*storage.LogEntry, error) {
	term, typ, err := decodeEntryHeader(value)
	if err != nil {
		return nil, err
	}
	confLen := binary.BigEndian.Uint32(value[10:14])
	if int(confLen) > len(value)-entryHeaderSize {
		return nil, fmt.Errorf("%w: log entry %d configuration block exceeds value",
			storage.ErrCorrupted, index)
	}

	e := &storage.LogEntry{Index: index, Term: term, Type: typ}
	rest := value[entryHeaderSize:]
	if confLen > 0 {
		var conf entryConfiguration
		if err := json.Unmarshal(rest[:confLen], &conf); err != nil {
			return nil, fmt.Errorf("%w: log entry %d configuration block: %v",
				storage.ErrCorrupted, index, err)
		}
		e.Peers = conf.Peers
		e.OldPeers = conf.OldPeers
	}
	if payload := rest[confLen:]; len(payload) > 0 {
		e.Data = append([]byte(nil), payload...)
	}
	return e, nil
}

// decodeEntryConfiguration decodes only the peer sets, for the init scan.
func decodeEntryConfiguration(index int64, value []byte) (entryConfiguration, error) {
	if len(value) < entryHeaderSize {
		return entryConfiguration{}, fmt.Errorf("%w: malformed log entry header", storage.ErrCorrupted)
	}
	confLen := binary.BigEndian.Uint32(value[10:14])
	if confLen == 0 || int(confLen) > len(value)-entryHeaderSize {
		return entryConfiguration{}, fmt.Errorf("%w: log entry %d has no valid configuration block",
			storage.ErrCorrupted, index)
	}
	var conf entryConfiguration
	if err := json.Unmarshal(value[entryHeaderSize:entryHeaderSize+confLen], &conf); err != nil {
		return entryConfiguration{}, fmt.Errorf("%w: log entry %d configuration block: %v",
			storage.ErrCorrupted, index, err)
	}
	return conf, nil
}

// Log keys: 'l' + 8-byte big-endian index, so leveldb iteration order is
// log order. The first-index marker lives under a separate 'm' prefix.
var firstIndexKey = []byte("m:first_log_index")

func entryKey(index int64) []byte {
	key := make([]byte, 9)
	key[0] = 'l'
	binary.BigEndian.PutUint64(key[1:], uint64(index))
	return key
}

func entryKeyIndex(key []byte) (int64, bool) {
	if len(key) != 9 || key[0] != 'l' {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(key[1:])), true
}

func encodeIndex(index int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(index))
	return buf
}

func decodeIndex(value []byte) (int64, error) {
	if len(value) != 8 {
		return 0, fmt.Errorf("%w: malformed index marker", storage.ErrCorrupted)
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}
