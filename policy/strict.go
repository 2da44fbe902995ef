package policy

import (
	"context"

	"github.com/justapithecus/ticktape/itch"
)

// StrictPolicy implements synchronous, unbuffered persistence.
//
//   - No buffering: each message is written immediately
//   - No drops: all messages are persisted
//   - Backpressure: caller blocks on sink latency
//   - Sink errors fail the session
type StrictPolicy struct {
	sink  Sink
	stats *statsRecorder
}

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{
		sink:  sink,
		stats: newStatsRecorder(),
	}
}

// IngestMessage writes the message immediately to the sink.
func (p *StrictPolicy) IngestMessage(ctx context.Context, msg *itch.DecodedMessage) error {
	p.stats.incTotalMessages()

	if err := p.sink.WriteMessages(ctx, []*itch.DecodedMessage{msg}); err != nil {
		p.stats.incErrors()
		return err
	}

	p.stats.incMessagesPersisted(1)
	return nil
}

// Flush is a no-op for strict policy (nothing is buffered).
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}

var _ Policy = (*StrictPolicy)(nil)
