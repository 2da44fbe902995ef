// Package types defines core domain types shared across ticktape packages.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"regexp"
)

// SessionMeta identifies one decode session: a single pass over one capture.
type SessionMeta struct {
	// SessionID is the session identifier. Must be unique per feed and day.
	SessionID string
	// Feed names the market-data feed the capture came from.
	Feed string
	// Day is the trading day, YYYY-MM-DD.
	Day string
	// ParentSessionID links a replayed session to the one it replaces.
	ParentSessionID *string
	// Attempt is the attempt number. Starts at 1.
	Attempt int
}

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Validate checks identity and lineage rules:
//   - session_id and feed are non-empty
//   - day is YYYY-MM-DD
//   - attempt >= 1
//   - attempt == 1 => no parent_session_id
//   - attempt > 1 => parent_session_id present
func (m *SessionMeta) Validate() error {
	if m.SessionID == "" {
		return errors.New("session_id must be non-empty")
	}
	if m.Feed == "" {
		return errors.New("feed must be non-empty")
	}
	if !dayPattern.MatchString(m.Day) {
		return fmt.Errorf("day must be YYYY-MM-DD, got %q", m.Day)
	}
	if m.Attempt < 1 {
		return fmt.Errorf("attempt must be >= 1, got %d", m.Attempt)
	}
	if m.Attempt == 1 && m.ParentSessionID != nil {
		return errors.New("initial session (attempt=1) must not have parent_session_id")
	}
	if m.Attempt > 1 && m.ParentSessionID == nil {
		return fmt.Errorf("replayed session (attempt=%d) must have parent_session_id", m.Attempt)
	}
	return nil
}

// OutcomeStatus is the final status of a session.
type OutcomeStatus string

const (
	// OutcomeCompleted indicates the capture was decoded to its end and persisted.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeCaptureError indicates the capture file could not be read or decoded.
	OutcomeCaptureError OutcomeStatus = "capture_error"
	// OutcomePolicyFailure indicates the delivery policy or its sink failed.
	OutcomePolicyFailure OutcomeStatus = "policy_failure"
	// OutcomeCanceled indicates the session context was canceled.
	OutcomeCanceled OutcomeStatus = "canceled"
)

// ExitCode maps an outcome to the CLI exit code.
func (s OutcomeStatus) ExitCode() int {
	switch s {
	case OutcomeCompleted:
		return 0
	case OutcomeCaptureError:
		return 2
	case OutcomePolicyFailure:
		return 3
	default:
		return 1
	}
}

// SessionOutcome is the final outcome of a session.
type SessionOutcome struct {
	Status  OutcomeStatus
	Message string
}
