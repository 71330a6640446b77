// Package metrics provides the Prometheus implementation of the
// storage.Metrics sink.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exposes storage-layer metrics. It satisfies storage.Metrics
// through method set compatibility without importing the storage package.
type Prometheus struct {
	logAppendDuration    *prometheus.HistogramVec
	logAppendBytes       *prometheus.HistogramVec
	logTruncateTotal     *prometheus.CounterVec
	storageErrorTotal    *prometheus.CounterVec
	snapshotSaveDuration *prometheus.HistogramVec
	snapshotCopyBytes    *prometheus.HistogramVec
	snapshotCopyTotal    *prometheus.CounterVec
}

// NewPrometheus registers the storage metric families on reg and returns
// the sink. A nil reg falls back to the default registerer.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Prometheus{
		logAppendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "raftstore",
				Subsystem: "log",
				Name:      "append_duration_seconds",
				Help:      "Time spent durably appending a batch of log entries.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"backend"},
		),
		logAppendBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "raftstore",
				Subsystem: "log",
				Name:      "append_bytes",
				Help:      "Encoded size of appended log batches.",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
			},
			[]string{"backend"},
		),
		logTruncateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "raftstore",
				Subsystem: "log",
				Name:      "truncate_total",
				Help:      "Log truncations by kind (prefix or suffix).",
			},
			[]string{"backend", "kind"},
		),
		storageErrorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "raftstore",
				Subsystem: "storage",
				Name:      "error_total",
				Help:      "Storage operation failures by operation.",
			},
			[]string{"backend", "op"},
		),
		snapshotSaveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "raftstore",
				Subsystem: "snapshot",
				Name:      "save_duration_seconds",
				Help:      "Time spent finalizing a snapshot generation.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"backend"},
		),
		snapshotCopyBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "raftstore",
				Subsystem: "snapshot",
				Name:      "copy_bytes",
				Help:      "Bytes transferred per snapshot copy job.",
				Buckets:   prometheus.ExponentialBuckets(4096, 4, 12),
			},
			[]string{"backend"},
		),
		snapshotCopyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "raftstore",
				Subsystem: "snapshot",
				Name:      "copy_total",
				Help:      "Snapshot copy jobs by terminal state.",
			},
			[]string{"backend", "result"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.logAppendDuration,
		m.logAppendBytes,
		m.logTruncateTotal,
		m.storageErrorTotal,
		m.snapshotSaveDuration,
		m.snapshotCopyBytes,
		m.snapshotCopyTotal,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Prometheus) ObserveLogAppendDuration(backend string, entries int, d time.Duration) {
	_ = entries
	m.logAppendDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (m *Prometheus) ObserveLogAppendBytes(backend string, n int) {
	m.logAppendBytes.WithLabelValues(backend).Observe(float64(n))
}

func (m *Prometheus) IncLogTruncate(backend, kind string) {
	m.logTruncateTotal.WithLabelValues(backend, kind).Inc()
}

func (m *Prometheus) IncStorageError(backend, op string) {
	m.storageErrorTotal.WithLabelValues(backend, op).Inc()
}

func (m *Prometheus) ObserveSnapshotSaveDuration(backend string, d time.Duration) {
	m.snapshotSaveDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (m *Prometheus) ObserveSnapshotCopyBytes(backend string, n int64) {
	m.snapshotCopyBytes.WithLabelValues(backend).Observe(float64(n))
}

func (m *Prometheus) IncSnapshotCopy(backend, result string) {
	m.snapshotCopyTotal.WithLabelValues(backend, result).Inc()
}
