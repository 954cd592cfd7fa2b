package lode

import (
	"context"

	"github.com/pithecene-io/groupcat/metrics"
	"github.com/pithecene-io/groupcat/types"
)

// InstrumentedSink wraps a Sink and counts each Write as a sink write
// success or failure on the metrics collector.
type InstrumentedSink struct {
	inner     Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// Write delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) Write(ctx context.Context, rec *types.Record) (Written, error) {
	w, err := s.inner.Write(ctx, rec)
	if err != nil {
		s.collector.IncSinkWriteFailure()
	} else {
		s.collector.IncSinkWriteSuccess()
	}
	return w, err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

var _ Sink = (*InstrumentedSink)(nil)
