package localstore

import (
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/i-melnichenko/raftstore-lab/storage"
)

type options struct {
	logger     *zap.Logger
	metrics    storage.Metrics
	tracer     trace.Tracer
	syncWrites bool
}

// Option customizes a localstore backend instance.
type Option func(*options)

// WithLogger attaches a zap logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics attaches a metrics sink; the default discards observations.
func WithMetrics(m storage.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer attaches an OpenTelemetry tracer; the default is a no-op.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithSyncWrites controls whether ordinary log appends fsync before
// returning. Defaults to true; turning it off trades crash durability of
// the most recent appends for throughput.
func WithSyncWrites(sync bool) Option {
	return func(o *options) { o.syncWrites = sync }
}

func applyOptions(opts []Option) options {
	o := options{
		logger:     zap.NewNop(),
		metrics:    storage.NopMetrics{},
		tracer:     noop.NewTracerProvider().Tracer("raftstore-lab/storage/localstore"),
		syncWrites: true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
