package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/justapithecus/ticktape/metrics"
	"github.com/justapithecus/ticktape/types"
)

// SessionReport is the JSON report written by decode --report.
type SessionReport struct {
	SessionID       string              `json:"session_id"`
	Feed            string              `json:"feed"`
	Day             string              `json:"day"`
	Attempt         int                 `json:"attempt"`
	ParentSessionID string              `json:"parent_session_id,omitempty"`
	Outcome         types.OutcomeStatus `json:"outcome"`
	Message         string              `json:"message"`
	ExitCode        int                 `json:"exit_code"`
	DurationMs      int64               `json:"duration_ms"`
	InputBytes      int64               `json:"input_bytes"`
	Events          int64               `json:"events"`
	MessageCount    int64               `json:"message_count"`
	RejectedCount   int64               `json:"rejected_count"`

	Capture *ReportCapture    `json:"capture,omitempty"`
	Policy  *ReportPolicy     `json:"policy"`
	Metrics *metrics.Snapshot `json:"metrics"`
}

// ReportCapture echoes the capture_info header of framed captures.
type ReportCapture struct {
	Feed       string `json:"feed,omitempty"`
	CapturedAt string `json:"captured_at,omitempty"`
	Note       string `json:"note,omitempty"`
}

// ReportPolicy holds policy stats in the report.
type ReportPolicy struct {
	Name              string           `json:"name"`
	MessagesReceived  int64            `json:"messages_received"`
	MessagesPersisted int64            `json:"messages_persisted"`
	MessagesDropped   int64            `json:"messages_dropped"`
	DroppedByType     map[string]int64 `json:"dropped_by_type,omitempty"`
	Flushes           int64            `json:"flushes"`
	FlushTriggers     map[string]int64 `json:"flush_triggers,omitempty"`
}

// BuildSessionReport composes a report from a result and metrics snapshot.
func BuildSessionReport(result *SessionResult, snap metrics.Snapshot, policyName string, exitCode int) *SessionReport {
	ps := result.PolicyStats
	report := &SessionReport{
		SessionID:     result.Meta.SessionID,
		Feed:          result.Meta.Feed,
		Day:           result.Meta.Day,
		Attempt:       result.Meta.Attempt,
		Outcome:       result.Outcome.Status,
		Message:       result.Outcome.Message,
		ExitCode:      exitCode,
		DurationMs:    result.Duration.Milliseconds(),
		InputBytes:    result.InputBytes,
		Events:        result.Events,
		MessageCount:  result.MessageCount,
		RejectedCount: result.RejectedCount,
		Policy: &ReportPolicy{
			Name:              policyName,
			MessagesReceived:  ps.TotalMessages,
			MessagesPersisted: ps.MessagesPersisted,
			MessagesDropped:   ps.MessagesDropped,
			DroppedByType:     ps.DroppedByName(),
			Flushes:           ps.FlushCount,
			FlushTriggers:     result.FlushTriggers,
		},
		Metrics: &snap,
	}
	if p := result.Meta.ParentSessionID; p != nil {
		report.ParentSessionID = *p
	}
	if info := result.CaptureInfo; info != nil {
		report.Capture = &ReportCapture{
			Feed:       info.Feed,
			CapturedAt: info.CapturedAt,
			Note:       info.Note,
		}
	}
	return report
}

// WriteSessionReport writes the report as indented JSON to path.
// A path of "-" writes to stderr.
func WriteSessionReport(report *SessionReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeSessionReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	if err := writeSessionReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeSessionReportTo(report *SessionReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
