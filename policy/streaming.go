package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/log"
)

// StreamingConfig configures a StreamingPolicy.
type StreamingConfig struct {
	// FlushCount triggers a flush after N messages accumulate.
	// Zero means count-based flush is disabled.
	FlushCount int

	// FlushInterval triggers a flush every interval.
	// Zero means interval-based flush is disabled.
	FlushInterval time.Duration

	// Logger is an optional logger for policy observability.
	Logger *log.Logger
}

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	// FlushTriggerCount indicates a count-threshold flush.
	FlushTriggerCount FlushTrigger = "count"
	// FlushTriggerInterval indicates an interval-based flush.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerTermination indicates an end-of-session flush.
	FlushTriggerTermination FlushTrigger = "termination"
)

// ErrStreamingInvalidConfig is returned when StreamingConfig is invalid.
var ErrStreamingInvalidConfig = errors.New("invalid streaming config: at least one of FlushCount or FlushInterval must be set")

// StreamingPolicy implements continuous persistence with batched writes.
//
//   - No drops: all messages are persisted (same guarantee as strict)
//   - Messages accumulate in memory until a trigger fires
//   - On flush failure, the batch is restored ahead of newer messages
//     and retried on the next trigger
//
// Thread safety:
//   - mu guards buffer state (append, size tracking, stats)
//   - flushMu serializes flushes from the interval goroutine and the count trigger
type StreamingPolicy struct {
	sink   Sink
	config StreamingConfig
	logger *log.Logger

	mu          sync.Mutex // guards buffer state and stats
	buffer      []*itch.DecodedMessage
	bufferBytes int64
	stats       *statsRecorder

	flushMu sync.Mutex

	// Per-trigger flush counts. Guarded by mu.
	flushByCount       int64
	flushByInterval    int64
	flushByTermination int64

	// stopCh signals the interval goroutine to stop.
	stopCh chan struct{}
	// stopped indicates Close has been called. Guarded by mu.
	stopped bool
}

// NewStreamingPolicy creates a new streaming policy.
// Returns error if config is invalid.
func NewStreamingPolicy(sink Sink, config StreamingConfig) (*StreamingPolicy, error) {
	if config.FlushCount <= 0 && config.FlushInterval <= 0 {
		return nil, ErrStreamingInvalidConfig
	}

	p := &StreamingPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*itch.DecodedMessage, 0, 128),
		stats:  newStatsRecorder(),
		stopCh: make(chan struct{}),
	}

	if config.FlushInterval > 0 {
		go p.intervalLoop()
	}

	return p, nil
}

// IngestMessage adds the message to the buffer.
// Never drops. If the count threshold is reached, flushes before returning.
func (p *StreamingPolicy) IngestMessage(ctx context.Context, msg *itch.DecodedMessage) error {
	p.mu.Lock()

	p.stats.incTotalMessagesLocked()
	p.buffer = append(p.buffer, msg)
	p.bufferBytes += estimateMessageSize(msg)
	p.stats.setBufferSizeLocked(p.bufferBytes)

	shouldFlush := p.config.FlushCount > 0 && len(p.buffer) >= p.config.FlushCount
	p.mu.Unlock()

	if shouldFlush {
		return p.triggerFlush(ctx, FlushTriggerCount)
	}
	return nil
}

// Flush flushes all buffered data (termination trigger).
func (p *StreamingPolicy) Flush(ctx context.Context) error {
	return p.triggerFlush(ctx, FlushTriggerTermination)
}

// triggerFlush swaps the buffer under mu, writes outside mu, and restores
// the batch on failure so ingestion never blocks on the sink.
func (p *StreamingPolicy) triggerFlush(ctx context.Context, trigger FlushTrigger) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	switch trigger {
	case FlushTriggerCount:
		p.flushByCount++
	case FlushTriggerInterval:
		p.flushByInterval++
	case FlushTriggerTermination:
		p.flushByTermination++
	}
	p.stats.incFlushLocked()

	msgs := p.buffer
	if len(msgs) == 0 {
		p.mu.Unlock()
		return nil
	}
	p.buffer = make([]*itch.DecodedMessage, 0, 128)
	p.recalculateBufferBytes()
	p.mu.Unlock()

	if err := p.sink.WriteMessages(ctx, msgs); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.buffer = append(msgs, p.buffer...)
		p.recalculateBufferBytes()
		p.mu.Unlock()
		p.logFlushFailure(trigger, err)
		return err
	}

	p.mu.Lock()
	p.stats.incMessagesPersistedLocked(int64(len(msgs)))
	p.mu.Unlock()

	p.logFlush(trigger, len(msgs))
	return nil
}

// Close stops the interval goroutine, flushes, and closes the sink.
func (p *StreamingPolicy) Close() error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.stopCh)
	}
	p.mu.Unlock()

	// Best-effort flush on close
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StreamingPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats.snapshotLocked(p.bufferBytes)
}

// FlushTriggerStats returns per-trigger flush counts.
func (p *StreamingPolicy) FlushTriggerStats() map[FlushTrigger]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return map[FlushTrigger]int64{
		FlushTriggerCount:       p.flushByCount,
		FlushTriggerInterval:    p.flushByInterval,
		FlushTriggerTermination: p.flushByTermination,
	}
}

func (p *StreamingPolicy) intervalLoop() {
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			hasData := len(p.buffer) > 0
			p.mu.Unlock()

			if hasData {
				// Interval flush errors are logged; the batch stays buffered.
				_ = p.triggerFlush(context.Background(), FlushTriggerInterval)
			}
		case <-p.stopCh:
			return
		}
	}
}

// recalculateBufferBytes recalculates bufferBytes from the buffer. Caller must hold mu.
func (p *StreamingPolicy) recalculateBufferBytes() {
	var total int64
	for _, msg := range p.buffer {
		total += estimateMessageSize(msg)
	}
	p.bufferBytes = total
	p.stats.setBufferSizeLocked(p.bufferBytes)
}

// --- Logging helpers ---

func (p *StreamingPolicy) logFlush(trigger FlushTrigger, n int) {
	if p.logger == nil {
		return
	}
	p.logger.Info("streaming flush", map[string]any{
		"trigger":  string(trigger),
		"messages": n,
		"policy":   "streaming",
	})
}

func (p *StreamingPolicy) logFlushFailure(trigger FlushTrigger, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("streaming flush failed", map[string]any{
		"trigger": string(trigger),
		"error":   err.Error(),
		"policy":  "streaming",
	})
}

var _ Policy = (*StreamingPolicy)(nil)
