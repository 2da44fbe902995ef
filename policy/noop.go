package policy

import (
	"context"

	"github.com/justapithecus/ticktape/itch"
)

// NoopPolicy accepts all messages but does not persist them.
// Used for dry runs (decode --dry-run) and tests.
//
// Stats count every message as persisted so that dry-run summaries match
// what a strict run would have written.
type NoopPolicy struct {
	stats *statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{stats: newStatsRecorder()}
}

// IngestMessage accepts the message but does not persist it.
func (p *NoopPolicy) IngestMessage(_ context.Context, _ *itch.DecodedMessage) error {
	p.stats.incTotalMessages()
	p.stats.incMessagesPersisted(1)
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}

var _ Policy = (*NoopPolicy)(nil)
