package storage

import "time"

// Metrics captures the storage-layer metric sinks backends report into.
// The observability/metrics package provides a Prometheus implementation;
// NopMetrics is the default.
type Metrics interface {
	ObserveLogAppendDuration(backend string, entries int, d time.Duration)
	ObserveLogAppendBytes(backend string, n int)
	IncLogTruncate(backend, kind string)
	IncStorageError(backend, op string)
	ObserveSnapshotSaveDuration(backend string, d time.Duration)
	ObserveSnapshotCopyBytes(backend string, n int64)
	IncSnapshotCopy(backend, result string)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveLogAppendDuration(string, int, time.Duration) {}
func (NopMetrics) ObserveLogAppendBytes(string, int)                   {}
func (NopMetrics) IncLogTruncate(string, string)                       {}
func (NopMetrics) IncStorageError(string, string)                      {}
func (NopMetrics) ObserveSnapshotSaveDuration(string, time.Duration)   {}
func (NopMetrics) ObserveSnapshotCopyBytes(string, int64)              {}
func (NopMetrics) IncSnapshotCopy(string, string)                      {}
