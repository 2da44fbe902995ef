// Package policy defines how decoded messages are buffered and handed to a sink.
package policy

import (
	"context"
	"sync"

	"github.com/justapithecus/ticktape/itch"
)

// Policy defines the delivery policy interface.
// Policies control buffering, dropping, and persistence behavior.
//
//   - Only message types configured as droppable may be dropped
//   - Policy must not alter messages
//   - Policy failure terminates the session
type Policy interface {
	// IngestMessage handles one decoded message.
	// Returns error to terminate the session.
	IngestMessage(ctx context.Context, msg *itch.DecodedMessage) error

	// Flush flushes any buffered data.
	// Called at end of stream or session termination.
	Flush(ctx context.Context) error

	// Close cleans up policy resources.
	Close() error

	// Stats returns an atomic snapshot of policy metrics.
	// All counters in the returned Stats are consistent with each other.
	Stats() Stats
}

// Stats represents policy observability metrics.
type Stats struct {
	// TotalMessages is the total number of messages received.
	TotalMessages int64
	// MessagesPersisted is the number of messages persisted.
	MessagesPersisted int64
	// MessagesDropped is the total number of messages dropped.
	MessagesDropped int64
	// DroppedByType maps message types to drop counts.
	DroppedByType map[itch.MessageType]int64
	// BufferSize is the current buffer size in bytes (if buffered).
	BufferSize int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the count of errors encountered.
	Errors int64
}

// DroppedByName returns DroppedByType keyed by type letter.
func (s Stats) DroppedByName() map[string]int64 {
	out := make(map[string]int64, len(s.DroppedByType))
	for t, n := range s.DroppedByType {
		out[t.String()] = n
	}
	return out
}

// DroppableSet is the set of message types a policy may drop under pressure.
type DroppableSet map[itch.MessageType]bool

// NewDroppableSet builds a set from a list of types.
func NewDroppableSet(types ...itch.MessageType) DroppableSet {
	s := make(DroppableSet, len(types))
	for _, t := range types {
		s[t] = true
	}
	return s
}

// Contains reports whether t may be dropped. A nil set drops nothing.
func (s DroppableSet) Contains(t itch.MessageType) bool {
	return s[t]
}

// estimateMessageSize returns an estimated persisted size in bytes.
// This is a rough estimate for buffer management.
func estimateMessageSize(msg *itch.DecodedMessage) int64 {
	size := int64(96)
	if l, ok := itch.LayoutFor(msg.Type); ok {
		size += int64(l.Terminal) * 3
	}
	return size
}

// statsRecorder is an internal helper for thread-safe stats management.
// Policies call explicit methods to record mutations; recorder does not
// infer or automate any policy decisions.
//
// Lock discipline:
//   - StrictPolicy uses the locking methods (incTotalMessages, snapshot, etc.)
//   - BufferedPolicy and StreamingPolicy use the Locked methods only while
//     holding their own mu, so buffer state and counters move together.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

// newStatsRecorder creates a new recorder with initialized DroppedByType map.
func newStatsRecorder() *statsRecorder {
	return &statsRecorder{
		stats: Stats{
			DroppedByType: make(map[itch.MessageType]int64),
		},
	}
}

func (r *statsRecorder) incTotalMessages() {
	r.mu.Lock()
	r.stats.TotalMessages++
	r.mu.Unlock()
}

func (r *statsRecorder) incMessagesPersisted(n int64) {
	r.mu.Lock()
	r.stats.MessagesPersisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(r.stats.BufferSize)
}

// --- Locked methods ---
// Caller must hold the owning policy's mu.

func (r *statsRecorder) incTotalMessagesLocked() {
	r.stats.TotalMessages++
}

func (r *statsRecorder) incMessagesPersistedLocked(n int64) {
	r.stats.MessagesPersisted += n
}

func (r *statsRecorder) incMessagesDroppedLocked(t itch.MessageType) {
	r.stats.MessagesDropped++
	r.stats.DroppedByType[t]++
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

func (r *statsRecorder) setBufferSizeLocked(bytes int64) {
	r.stats.BufferSize = bytes
}

// snapshotLocked returns an atomic snapshot of stats with the given bufferSize.
func (r *statsRecorder) snapshotLocked(bufferSize int64) Stats {
	s := r.stats
	s.BufferSize = bufferSize
	s.DroppedByType = make(map[itch.MessageType]int64, len(r.stats.DroppedByType))
	for k, v := range r.stats.DroppedByType {
		s.DroppedByType[k] = v
	}
	return s
}
