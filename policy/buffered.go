package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/log"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferMessages is the maximum number of messages to buffer.
	// Zero means no limit (use MaxBufferBytes instead).
	MaxBufferMessages int

	// MaxBufferBytes is the maximum buffer size in bytes (estimated).
	// Zero means no limit (use MaxBufferMessages instead).
	// At least one limit must be set.
	MaxBufferBytes int64

	// Droppable lists the message types that may be dropped when the buffer
	// is full. Empty means nothing is droppable.
	Droppable DroppableSet

	// Logger is an optional logger for policy observability.
	// If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxBufferMessages: 10_000,
		MaxBufferBytes:    16 * 1024 * 1024,
	}
}

// ErrBufferFull is returned when the buffer is full and the message is not droppable.
var ErrBufferFull = errors.New("buffer full: cannot accept non-droppable message")

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: at least one of MaxBufferMessages or MaxBufferBytes must be set")

// BufferedPolicy implements buffered persistence with drop rules.
//
//   - Bounded buffer with explicit limits
//   - May drop only types listed in Droppable
//   - Batch writes on flush, in emission order
//   - Buffer kept intact on flush failure (at-least-once)
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu          sync.Mutex // guards buffer state only
	buffer      []*itch.DecodedMessage
	bufferBytes int64
	stats       *statsRecorder
}

// NewBufferedPolicy creates a new buffered policy.
// Returns error if config is invalid.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferMessages <= 0 && config.MaxBufferBytes <= 0 {
		return nil, ErrInvalidConfig
	}

	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*itch.DecodedMessage, 0, min(max(config.MaxBufferMessages, 100), 4096)),
		stats:  newStatsRecorder(),
	}, nil
}

// IngestMessage buffers the message, applying drop rules if the buffer is full.
//
// Drop strategy when full:
//   - If the incoming message is droppable: drop it, record in stats
//   - If it is not droppable and the buffer holds droppable messages: evict the oldest
//   - Otherwise: return ErrBufferFull (fail session)
func (p *BufferedPolicy) IngestMessage(_ context.Context, msg *itch.DecodedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalMessagesLocked()

	size := estimateMessageSize(msg)

	if p.hasRoomForMessage(size) {
		p.appendMessage(msg, size)
		return nil
	}

	if p.config.Droppable.Contains(msg.Type) {
		p.stats.incMessagesDroppedLocked(msg.Type)
		p.logDrop(msg.Type, "buffer_full")
		return nil
	}

	if p.dropOldestDroppable() && p.hasRoomForBytes(size) {
		p.appendMessage(msg, size)
		return nil
	}

	p.stats.incErrorsLocked()
	p.logBufferOverflow(msg.Type)
	return ErrBufferFull
}

// appendMessage adds a message to the buffer. Caller must hold mu.
func (p *BufferedPolicy) appendMessage(msg *itch.DecodedMessage, size int64) {
	p.buffer = append(p.buffer, msg)
	p.bufferBytes += size
	p.stats.setBufferSizeLocked(p.bufferBytes)
}

// Flush writes all buffered messages to the sink.
// The buffer is cleared only after the write succeeds; a failed flush may
// cause duplicate writes on retry but never loses a message.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	p.stats.incFlushLocked()
	msgs := p.buffer
	p.mu.Unlock()

	if len(msgs) == 0 {
		return nil
	}

	if err := p.sink.WriteMessages(ctx, msgs); err != nil {
		p.mu.Lock()
		p.stats.incErrorsLocked()
		p.mu.Unlock()
		p.logFlushFailure(len(msgs), err)
		return err
	}

	p.mu.Lock()
	p.stats.incMessagesPersistedLocked(int64(len(msgs)))
	// Messages ingested during the write stay buffered.
	rest := p.buffer[min(len(msgs), len(p.buffer)):]
	p.buffer = append(make([]*itch.DecodedMessage, 0, cap(p.buffer)), rest...)
	p.recalculateBufferBytes()
	p.mu.Unlock()

	return nil
}

// recalculateBufferBytes recalculates bufferBytes from the buffer. Caller must hold mu.
func (p *BufferedPolicy) recalculateBufferBytes() {
	var total int64
	for _, msg := range p.buffer {
		total += estimateMessageSize(msg)
	}
	p.bufferBytes = total
	p.stats.setBufferSizeLocked(p.bufferBytes)
}

// Close flushes remaining data and closes the sink.
func (p *BufferedPolicy) Close() error {
	// Best-effort flush on close
	_ = p.Flush(context.Background())
	return p.sink.Close()
}

// Stats returns policy statistics.
// The buffer mutex is held while taking the snapshot, so all counters and
// the buffer size come from the same point in time.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats.snapshotLocked(p.bufferBytes)
}

// hasRoomForMessage checks if the buffer can accept a message of the given size.
func (p *BufferedPolicy) hasRoomForMessage(size int64) bool {
	if p.config.MaxBufferMessages > 0 && len(p.buffer) >= p.config.MaxBufferMessages {
		return false
	}
	return p.hasRoomForBytes(size)
}

// hasRoomForBytes checks if adding bytes would exceed the byte limit.
func (p *BufferedPolicy) hasRoomForBytes(size int64) bool {
	if p.config.MaxBufferBytes > 0 && p.bufferBytes+size > p.config.MaxBufferBytes {
		return false
	}
	return true
}

// dropOldestDroppable removes the oldest droppable message from the buffer.
// Returns true if a message was dropped. Caller must hold mu.
func (p *BufferedPolicy) dropOldestDroppable() bool {
	for i, msg := range p.buffer {
		if !p.config.Droppable.Contains(msg.Type) {
			continue
		}
		p.buffer = append(p.buffer[:i], p.buffer[i+1:]...)
		p.bufferBytes -= estimateMessageSize(msg)
		p.stats.setBufferSizeLocked(p.bufferBytes)
		p.stats.incMessagesDroppedLocked(msg.Type)
		p.logDrop(msg.Type, "evicted_for_non_droppable")
		return true
	}
	return false
}

// --- Logging helpers ---

func (p *BufferedPolicy) logDrop(t itch.MessageType, reason string) {
	if p.logger == nil {
		return
	}
	p.logger.Warn("message dropped", map[string]any{
		"msg_type": t.String(),
		"reason":   reason,
		"policy":   "buffered",
	})
}

func (p *BufferedPolicy) logBufferOverflow(t itch.MessageType) {
	if p.logger == nil {
		return
	}
	p.logger.Error("buffer overflow", map[string]any{
		"msg_type": t.String(),
		"policy":   "buffered",
	})
}

func (p *BufferedPolicy) logFlushFailure(n int, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error("flush failed", map[string]any{
		"messages": n,
		"error":    err.Error(),
		"policy":   "buffered",
	})
}

var _ Policy = (*BufferedPolicy)(nil)
