package policy

import (
	"context"
	"sync"

	"github.com/justapithecus/ticktape/itch"
)

// Sink abstracts persistence for policies.
// Implementations may write to storage, forward to a queue, or stub for testing.
//
// Methods are batch-oriented to support both strict (batch of 1) and buffered policies.
type Sink interface {
	// WriteMessages persists a batch of decoded messages.
	// Must preserve ordering within the batch.
	// Returns error on failure; caller decides whether to retry or fail.
	WriteMessages(ctx context.Context, msgs []*itch.DecodedMessage) error

	// Close releases any resources held by the sink.
	Close() error
}

// StubSink is a test sink that accepts writes without persisting.
// Tracks write statistics for test assertions.
type StubSink struct {
	mu sync.Mutex

	// MessagesWritten is the total count of messages written.
	MessagesWritten int64
	// Batches is the number of WriteMessages calls that succeeded.
	Batches int64
	// Closed indicates whether Close was called.
	Closed bool

	// Written stores all written messages for inspection.
	Written []*itch.DecodedMessage
	// BatchSizes records the size of each successful batch, in order.
	BatchSizes []int

	// ErrorOnWrite, if non-nil, is returned by WriteMessages.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// WriteMessages records the messages without persisting.
func (s *StubSink) WriteMessages(_ context.Context, msgs []*itch.DecodedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}

	s.Batches++
	s.MessagesWritten += int64(len(msgs))
	s.Written = append(s.Written, msgs...)
	s.BatchSizes = append(s.BatchSizes, len(msgs))
	return nil
}

// SetError sets or clears the write error.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	s.ErrorOnWrite = err
	s.mu.Unlock()
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Closed = true
	return nil
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StubSinkStats{
		MessagesWritten: s.MessagesWritten,
		Batches:         s.Batches,
		Closed:          s.Closed,
	}
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	MessagesWritten int64
	Batches         int64
	Closed          bool
}
