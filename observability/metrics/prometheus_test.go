package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/i-melnichenko/raftstore-lab/storage"
)

var _ storage.Metrics = (*Prometheus)(nil)

func TestPrometheus_RecordsObservations(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewPrometheus(reg)
	if err != nil {
		t.Fatalf("NewPrometheus() error = %v", err)
	}

	m.ObserveLogAppendDuration("local", 3, 2*time.Millisecond)
	m.ObserveLogAppendBytes("local", 4096)
	m.IncLogTruncate("local", "prefix")
	m.IncLogTruncate("local", "prefix")
	m.IncStorageError("local", "append")
	m.ObserveSnapshotSaveDuration("local", 50*time.Millisecond)
	m.ObserveSnapshotCopyBytes("local", 1<<20)
	m.IncSnapshotCopy("local", "completed")

	if got := testutil.ToFloat64(m.logTruncateTotal.WithLabelValues("local", "prefix")); got != 2 {
		t.Fatalf("truncate_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.storageErrorTotal.WithLabelValues("local", "append")); got != 1 {
		t.Fatalf("error_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.snapshotCopyTotal.WithLabelValues("local", "completed")); got != 1 {
		t.Fatalf("copy_total = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) != 7 {
		t.Fatalf("Gather() returned %d families, want 7", len(families))
	}
}

func TestPrometheus_DoubleRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	if _, err := NewPrometheus(reg); err != nil {
		t.Fatalf("NewPrometheus() error = %v", err)
	}
	if _, err := NewPrometheus(reg); err == nil {
		t.Fatalf("second NewPrometheus() on one registry expected error")
	}
}
