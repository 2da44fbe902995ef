// Package adapter publishes session completion notifications to
// downstream systems. The session runtime owns adapter lifecycle.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventTypeSessionCompleted is the event_type of every published event.
const EventTypeSessionCompleted = "session_completed"

// SessionCompletedEvent is the payload published when a decode session ends.
type SessionCompletedEvent struct {
	EventType     string `json:"event_type"`
	SessionID     string `json:"session_id"`
	Feed          string `json:"feed"`
	Day           string `json:"day"`
	Outcome       string `json:"outcome"` // completed, capture_error, policy_failure, canceled
	StoragePath   string `json:"storage_path"`
	Timestamp     string `json:"timestamp"` // RFC 3339
	Attempt       int    `json:"attempt"`
	MessageCount  int64  `json:"message_count"`
	RejectedCount int64  `json:"rejected_count"`
	Bytes         int64  `json:"bytes"`
	DurationMs    int64  `json:"duration_ms"`
}

// Adapter publishes session completion events.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry. It doubles per attempt.
const BaseBackoff = 500 * time.Millisecond

// Permanent marks an error that must not be retried.
type Permanent struct{ Err error }

func (e *Permanent) Error() string { return e.Err.Error() }
func (e *Permanent) Unwrap() error { return e.Err }

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. A *Permanent error stops the loop immediately.
func Retry(ctx context.Context, retries int, base time.Duration, fn func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-time.After(base << (i - 1)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("non-retriable error: %w", perm.Err)
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
