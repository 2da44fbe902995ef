package lode

import (
	"context"

	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/metrics"
	"github.com/justapithecus/ticktape/policy"
)

// InstrumentedSink wraps a policy.Sink and counts each WriteMessages call
// as a lode write success or failure.
type InstrumentedSink struct {
	inner     policy.Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner policy.Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteMessages delegates to the inner sink and records the result.
func (s *InstrumentedSink) WriteMessages(ctx context.Context, msgs []*itch.DecodedMessage) error {
	err := s.inner.WriteMessages(ctx, msgs)
	if err != nil {
		s.collector.IncLodeWriteFailure()
	} else {
		s.collector.IncLodeWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

var _ policy.Sink = (*InstrumentedSink)(nil)
