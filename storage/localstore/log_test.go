package localstore

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/i-melnichenko/raftstore-lab/storage"
)

func entry(index, term int64, payload string) *storage.LogEntry {
	return &storage.LogEntry{
		Index: index,
		Term:  term,
		Type:  storage.EntryNormal,
		Data:  []byte(payload),
	}
}

func openLog(t *testing.T, dir string) *LogStorage {
	t.Helper()
	s := NewLogStorage(dir)
	if err := s.Init(nil); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLogStorage_EmptyLogScenario(t *testing.T) {
	t.Parallel()

	s := openLog(t, t.TempDir())
	if first, last := s.FirstLogIndex(), s.LastLogIndex(); first != 1 || last != 0 {
		t.Fatalf("fresh log first=%d last=%d, want 1/0", first, last)
	}
	if _, err := s.GetEntry(1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetEntry(1) error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetTerm(1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetTerm(1) error = %v, want ErrNotFound", err)
	}
}

func TestLogStorage_AppendReadRoundTrip(t *testing.T) {
	t.Parallel()

	s := openLog(t, t.TempDir())
	entries := []*storage.LogEntry{
		entry(1, 1, "payload-1"),
		{Index: 2, Term: 1, Type: storage.EntryNoOp},
		{
			Index: 3, Term: 2, Type: storage.EntryConfiguration,
			Peers:    []storage.PeerID{{Addr: "10.0.0.1:7000"}, {Addr: "10.0.0.2:7000", Idx: 1}},
			OldPeers: []storage.PeerID{{Addr: "10.0.0.1:7000"}},
		},
	}
	if n, err := s.AppendEntries(entries); err != nil || n != 3 {
		t.Fatalf("AppendEntries() = (%d, %v), want (3, nil)", n, err)
	}

	for _, want := range entries {
		got, err := s.GetEntry(want.Index)
		if err != nil {
			t.Fatalf("GetEntry(%d) error = %v", want.Index, err)
		}
		if got.Index != want.Index || got.Term != want.Term || got.Type != want.Type ||
			string(got.Data) != string(want.Data) ||
			len(got.Peers) != len(want.Peers) || len(got.OldPeers) != len(want.OldPeers) {
			t.Fatalf("GetEntry(%d) = %+v, want %+v", want.Index, got, want)
		}
		if term, err := s.GetTerm(want.Index); err != nil || term != want.Term {
			t.Fatalf("GetTerm(%d) = (%d, %v), want %d", want.Index, term, err, want.Term)
		}
	}
}

func TestLogStorage_AppendShortCount(t *testing.T) {
	t.Parallel()

	s := openLog(t, t.TempDir())
	batch := []*storage.LogEntry{
		entry(1, 1, "a"),
		entry(2, 1, "b"),
		entry(5, 1, "gap"),
	}
	n, err := s.AppendEntries(batch)
	if !errors.Is(err, storage.ErrInvalidArgument) {
		t.Fatalf("AppendEntries() error = %v, want ErrInvalidArgument", err)
	}
	if n != 2 {
		t.Fatalf("AppendEntries() count = %d, want 2", n)
	}
	// The validated prefix must be durable.
	if got := s.LastLogIndex(); got != 2 {
		t.Fatalf("LastLogIndex() = %d, want 2", got)
	}
	if e, err := s.GetEntry(2); err != nil || string(e.Data) != "b" {
		t.Fatalf("GetEntry(2) = (%+v, %v)", e, err)
	}
}

func TestLogStorage_PersistsAcrossRestart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewLogStorage(dir)
	if err := s.Init(nil); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	for i := int64(1); i <= 5; i++ {
		if err := s.AppendEntry(entry(i, 1, "x")); err != nil {
			t.Fatalf("AppendEntry(%d) error = %v", i, err)
		}
	}
	if err := s.TruncatePrefix(3); err != nil {
		t.Fatalf("TruncatePrefix() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened := openLog(t, dir)
	if first, last := reopened.FirstLogIndex(), reopened.LastLogIndex(); first != 3 || last != 5 {
		t.Fatalf("after restart first=%d last=%d, want 3/5", first, last)
	}
	if _, err := reopened.GetEntry(2); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetEntry(2) error = %v, want ErrNotFound", err)
	}
	if e, err := reopened.GetEntry(5); err != nil || e.Index != 5 {
		t.Fatalf("GetEntry(5) = (%+v, %v)", e, err)
	}
}

func TestLogStorage_TruncateSuffixAndReset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := openLog(t, dir)
	for i := int64(1); i <= 5; i++ {
		if err := s.AppendEntry(entry(i, 2, "x")); err != nil {
			t.Fatalf("AppendEntry(%d) error = %v", i, err)
		}
	}

	if err := s.TruncateSuffix(3); err != nil {
		t.Fatalf("TruncateSuffix() error = %v", err)
	}
	if got := s.LastLogIndex(); got != 3 {
		t.Fatalf("LastLogIndex() = %d, want 3", got)
	}
	if _, err := s.GetEntry(4); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetEntry(4) error = %v, want ErrNotFound", err)
	}
	// The log stays appendable at the cut point.
	if err := s.AppendEntry(entry(4, 3, "rewritten")); err != nil {
		t.Fatalf("AppendEntry(4) error = %v", err)
	}
	if term, err := s.GetTerm(4); err != nil || term != 3 {
		t.Fatalf("GetTerm(4) = (%d, %v), want 3", term, err)
	}

	if err := s.Reset(0); !errors.Is(err, storage.ErrInvalidArgument) {
		t.Fatalf("Reset(0) error = %v, want ErrInvalidArgument", err)
	}
	if err := s.Reset(100); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if first, last := s.FirstLogIndex(), s.LastLogIndex(); first != 100 || last != 99 {
		t.Fatalf("after reset first=%d last=%d, want 100/99", first, last)
	}
	if err := s.AppendEntry(entry(100, 7, "resumed")); err != nil {
		t.Fatalf("AppendEntry(100) error = %v", err)
	}
}

func TestLogStorage_InitReplaysConfigurations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewLogStorage(dir)
	if err := s.Init(nil); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	peersA := []storage.PeerID{{Addr: "a:1"}}
	peersB := []storage.PeerID{{Addr: "a:1"}, {Addr: "b:1"}}
	batch := []*storage.LogEntry{
		{Index: 1, Term: 1, Type: storage.EntryConfiguration, Peers: peersA},
		entry(2, 1, "cmd"),
		{Index: 3, Term: 2, Type: storage.EntryConfiguration, Peers: peersB, OldPeers: peersA},
	}
	if n, err := s.AppendEntries(batch); err != nil || n != 3 {
		t.Fatalf("AppendEntries() = (%d, %v)", n, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	cm := storage.NewMockConfigurationManager(ctrl)
	gomock.InOrder(
		cm.EXPECT().Append(gomock.Any()).DoAndReturn(func(e storage.ConfigurationEntry) error {
			if e.Index != 1 || e.Term != 1 || len(e.Peers) != 1 {
				t.Errorf("first configuration = %+v", e)
			}
			return nil
		}),
		cm.EXPECT().Append(gomock.Any()).DoAndReturn(func(e storage.ConfigurationEntry) error {
			if e.Index != 3 || e.Term != 2 || len(e.Peers) != 2 || len(e.OldPeers) != 1 {
				t.Errorf("second configuration = %+v", e)
			}
			return nil
		}),
	)

	reopened := NewLogStorage(dir)
	if err := reopened.Init(cm); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
}

func TestLogStorage_InitDetectsGap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewLogStorage(dir)
	if err := s.Init(nil); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		if err := s.AppendEntry(entry(i, 1, "x")); err != nil {
			t.Fatalf("AppendEntry(%d) error = %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Punch a hole in the middle of the persisted log.
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		t.Fatalf("leveldb.OpenFile() error = %v", err)
	}
	if err := db.Delete(entryKey(2), &opt.WriteOptions{Sync: true}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("db.Close() error = %v", err)
	}

	reopened := NewLogStorage(dir)
	if err := reopened.Init(nil); !errors.Is(err, storage.ErrCorrupted) {
		t.Fatalf("Init() error = %v, want ErrCorrupted", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
}

func TestLogStorage_InitDropsStalePrefix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewLogStorage(dir)
	if err := s.Init(nil); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	for i := int64(1); i <= 4; i++ {
		if err := s.AppendEntry(entry(i, 1, "x")); err != nil {
			t.Fatalf("AppendEntry(%d) error = %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Move the marker without deleting entries, as an interrupted prefix
	// truncation would leave it.
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		t.Fatalf("leveldb.OpenFile() error = %v", err)
	}
	if err := db.Put(firstIndexKey, encodeIndex(3), &opt.WriteOptions{Sync: true}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("db.Close() error = %v", err)
	}

	reopened := openLog(t, dir)
	if first, last := reopened.FirstLogIndex(), reopened.LastLogIndex(); first != 3 || last != 4 {
		t.Fatalf("after cleanup first=%d last=%d, want 3/4", first, last)
	}
	if _, err := reopened.GetEntry(1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetEntry(1) error = %v, want ErrNotFound", err)
	}
}
