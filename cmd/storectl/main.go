// Package main implements storectl, an operator tool that opens a replica's
// storage location and dumps its persisted state: log range, term/vote, and
// the latest snapshot manifest.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/i-melnichenko/raftstore-lab/storage"
	"github.com/i-melnichenko/raftstore-lab/storage/localstore"
	"github.com/i-melnichenko/raftstore-lab/storage/memstore"
)

const usage = `Usage:
  storectl [--uri local:///path/to/replica] log          Print first/last index and entry terms
  storectl [--uri local:///path/to/replica] entry <idx>  Print one log entry
  storectl [--uri local:///path/to/replica] stable       Print current term and vote
  storectl [--uri local:///path/to/replica] snapshot     Print the latest snapshot manifest

Flags:
  --uri      Storage connection URI (default $RAFTSTORE_URI or local://./var/replica)
  --verbose  Enable debug logging
`

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "storectl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	uri := flag.String("uri", defaultURI(), "storage connection uri")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Usage = func() { _, _ = fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	logger := newLogger(*verbose)
	defer func() { _ = logger.Sync() }()

	registry := storage.NewRegistry()
	if err := localstore.Register(registry, localstore.WithLogger(logger)); err != nil {
		return err
	}
	if err := memstore.Register(registry); err != nil {
		return err
	}

	switch args[0] {
	case "log":
		return dumpLog(registry, *uri)
	case "entry":
		if len(args) != 2 {
			return errors.New("entry requires an index argument")
		}
		index, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad index %q: %w", args[1], err)
		}
		return dumpEntry(registry, *uri, index)
	case "stable":
		return dumpStable(registry, *uri)
	case "snapshot":
		return dumpSnapshot(registry, *uri)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func dumpLog(registry *storage.Registry, uri string) error {
	logStore, err := registry.NewLogStorage(uri)
	if err != nil {
		return err
	}
	if err := logStore.Init(nil); err != nil {
		return err
	}
	defer closeIfCloser(logStore)

	first, last := logStore.FirstLogIndex(), logStore.LastLogIndex()
	fmt.Printf("first_log_index: %d\nlast_log_index:  %d\n", first, last)
	for index := first; index <= last; index++ {
		term, err := logStore.GetTerm(index)
		if err != nil {
			return err
		}
		fmt.Printf("  %d: term=%d\n", index, term)
	}
	return nil
}

func dumpEntry(registry *storage.Registry, uri string, index int64) error {
	logStore, err := registry.NewLogStorage(uri)
	if err != nil {
		return err
	}
	if err := logStore.Init(nil); err != nil {
		return err
	}
	defer closeIfCloser(logStore)

	entry, err := logStore.GetEntry(index)
	if err != nil {
		return err
	}
	fmt.Printf("index:   %d\nterm:    %d\ntype:    %s\npayload: %d bytes\n",
		entry.Index, entry.Term, entry.Type, len(entry.Data))
	if len(entry.Peers) > 0 {
		fmt.Printf("peers:   %v\n", entry.Peers)
	}
	if len(entry.OldPeers) > 0 {
		fmt.Printf("old:     %v\n", entry.OldPeers)
	}
	return nil
}

func dumpStable(registry *storage.Registry, uri string) error {
	stable, err := registry.NewStableStorage(uri)
	if err != nil {
		return err
	}
	if err := stable.Init(); err != nil {
		return err
	}

	term, err := stable.GetTerm()
	if err != nil {
		return err
	}
	fmt.Printf("term: %d\n", term)

	vote, err := stable.GetVotedFor()
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Println("voted_for: <none>")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("voted_for: %s\n", vote)
	return nil
}

func dumpSnapshot(registry *storage.Registry, uri string) error {
	snaps, err := registry.NewSnapshotStorage(uri)
	if err != nil {
		return err
	}
	if err := snaps.Init(); err != nil {
		return err
	}

	reader, err := snaps.Open()
	if err != nil {
		return err
	}
	if reader == nil {
		fmt.Println("no snapshot")
		return nil
	}
	defer func() { _ = snaps.CloseReader(reader) }()

	meta, err := reader.LoadMeta()
	if err != nil {
		return err
	}
	fmt.Printf("path: %s\nlast_included_index: %d\nlast_included_term:  %d\n",
		reader.Path(), meta.LastIncludedIndex, meta.LastIncludedTerm)
	if len(meta.Peers) > 0 {
		fmt.Printf("peers: %v\n", meta.Peers)
	}
	for _, name := range reader.ListFiles() {
		fmt.Printf("  file: %s\n", name)
	}
	return nil
}

func defaultURI() string {
	if v := os.Getenv("RAFTSTORE_URI"); v != "" {
		return v
	}
	return "local://./var/replica"
}

func closeIfCloser(v any) {
	if c, ok := v.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

func newLogger(verbose bool) *zap.Logger {
	level := zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg := zap.Config{
		Level:    level,
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:      "timestamp",
			LevelKey:     "level",
			MessageKey:   "msg",
			EncodeLevel:  zapcore.LowercaseLevelEncoder,
			EncodeTime:   zapcore.RFC3339TimeEncoder,
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
