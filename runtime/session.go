package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/justapithecus/ticktape/adapter"
	"github.com/justapithecus/ticktape/capture"
	"github.com/justapithecus/ticktape/iox"
	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/lode"
	"github.com/justapithecus/ticktape/log"
	"github.com/justapithecus/ticktape/metrics"
	"github.com/justapithecus/ticktape/policy"
	"github.com/justapithecus/ticktape/types"
)

// flushTimeout bounds the final policy flush, which runs even after the
// session context is canceled.
const flushTimeout = 30 * time.Second

// notifyTimeout bounds the completion notification.
const notifyTimeout = 15 * time.Second

// ReportFilename is the sidecar name used when a FileWriter is configured.
const ReportFilename = "session_report.json"

// SessionConfig configures a single decode session.
type SessionConfig struct {
	// Meta is the session identity and lineage.
	Meta *types.SessionMeta
	// Input is the capture stream.
	Input io.Reader
	// Format selects the capture format. Empty means auto-detect.
	Format capture.Format
	// DecoderOptions configure the decoder (e.g. itch.WithStrictLength).
	DecoderOptions []itch.Option
	// Policy receives every emitted message.
	Policy policy.Policy
	// PolicyName labels the policy in reports.
	PolicyName string
	// Collector records session metrics. Nil disables metrics.
	Collector *metrics.Collector
	// Logger defaults to a session logger on stderr.
	Logger *log.Logger
	// MetricsWriter persists the final metrics snapshot. Optional.
	MetricsWriter lode.MetricsWriter
	// FileWriter stores the session report next to the records. Optional.
	FileWriter lode.FileWriter
	// Adapter receives the session_completed notification. Optional.
	Adapter adapter.Adapter
	// StoragePath is reported in the notification.
	StoragePath string
}

// SessionResult is the result of a session.
type SessionResult struct {
	Meta          *types.SessionMeta
	Outcome       *types.SessionOutcome
	Duration      time.Duration
	PolicyStats   policy.Stats
	FlushTriggers map[string]int64
	CaptureInfo   *capture.Info
	Events        int64
	InputBytes    int64
	MessageCount  int64
	RejectedCount int64
}

// Session orchestrates one pass over a capture.
type Session struct {
	config    *SessionConfig
	logger    *log.Logger
	startTime time.Time
}

// NewSession validates the session metadata and creates a session.
func NewSession(config *SessionConfig) (*Session, error) {
	if config.Meta == nil {
		return nil, fmt.Errorf("invalid session metadata: missing")
	}
	if err := config.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session metadata: %w", err)
	}
	if config.Policy == nil {
		return nil, fmt.Errorf("session requires a policy")
	}
	if config.Input == nil {
		return nil, fmt.Errorf("session requires an input")
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.Meta)
	}
	return &Session{config: config, logger: logger}, nil
}

// Run executes the session end-to-end.
//
// Execution flow:
//  1. Open the capture behind a counting reader
//  2. Run the ingestion engine
//  3. Flush the policy (always, best effort)
//  4. Determine outcome, absorb policy stats
//  5. Persist metrics and report, publish notification (best effort)
//
// The returned error is reserved for misuse; capture, policy and
// cancellation failures are reported through the outcome.
func (s *Session) Run(ctx context.Context) (*SessionResult, error) {
	s.startTime = time.Now()
	s.config.Collector.IncSessionStarted()

	s.logger.Info("starting session", map[string]any{
		"format": string(s.config.Format),
		"policy": s.config.PolicyName,
	})

	counter := iox.NewCountingReader(s.config.Input)
	var engine *IngestionEngine
	var info *capture.Info

	reader, ingErr := capture.Open(counter, s.config.Format)
	if ingErr != nil {
		s.config.Collector.IncCaptureDecodeErrors()
		ingErr = &IngestionError{Kind: IngestionErrorStream, Err: fmt.Errorf("open capture: %w", ingErr)}
	} else {
		engine = NewIngestionEngine(reader, s.config.Policy, s.logger, s.config.Collector, s.config.DecoderOptions...)
		ingErr = engine.Run(ctx)
		if fr, ok := reader.(*capture.FrameReader); ok {
			info = fr.Info()
		}
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	flushErr := s.config.Policy.Flush(flushCtx)
	cancel()
	if flushErr != nil {
		s.logger.Warn("policy flush failed", map[string]any{
			"error": flushErr.Error(),
		})
	}

	outcome := DetermineOutcome(ingErr, flushErr)
	result := s.buildResult(outcome, engine, counter.N())
	result.CaptureInfo = info

	s.logger.Info("session finished", map[string]any{
		"outcome":  string(outcome.Status),
		"messages": result.MessageCount,
		"rejected": result.RejectedCount,
		"events":   result.Events,
		"duration": result.Duration.String(),
	})

	s.persist(ctx, result)
	s.notify(ctx, result)
	return result, nil
}

// buildResult assembles the result and records outcome metrics.
func (s *Session) buildResult(outcome *types.SessionOutcome, engine *IngestionEngine, inputBytes int64) *SessionResult {
	result := &SessionResult{
		Meta:        s.config.Meta,
		Outcome:     outcome,
		Duration:    time.Since(s.startTime),
		PolicyStats: s.config.Policy.Stats(),
		InputBytes:  inputBytes,
	}
	if ft, ok := s.config.Policy.(interface {
		FlushTriggerStats() map[policy.FlushTrigger]int64
	}); ok {
		result.FlushTriggers = make(map[string]int64)
		for k, v := range ft.FlushTriggerStats() {
			result.FlushTriggers[string(k)] = v
		}
	}
	if engine != nil {
		result.Events = engine.Events()
		result.MessageCount = engine.Emitted()
		result.RejectedCount = engine.Rejected()
	}

	c := s.config.Collector
	switch outcome.Status {
	case types.OutcomeCompleted:
		c.IncSessionCompleted()
	case types.OutcomeCanceled:
		c.IncSessionCanceled()
	default:
		c.IncSessionFailed()
	}

	ps := result.PolicyStats
	c.AbsorbPolicyStats(ps.TotalMessages, ps.MessagesPersisted, ps.MessagesDropped, ps.DroppedByName())
	return result
}

// persist writes the metrics record and the report sidecar. Failures are
// logged and do not change the outcome.
func (s *Session) persist(ctx context.Context, result *SessionResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	snap := s.config.Collector.Snapshot()

	if w := s.config.MetricsWriter; w != nil {
		if err := w.WriteMetrics(ctx, snap, time.Now()); err != nil {
			s.logger.Warn("metrics persist failed", map[string]any{"error": err.Error()})
		}
	}

	if w := s.config.FileWriter; w != nil {
		report := BuildSessionReport(result, snap, s.config.PolicyName, result.Outcome.Status.ExitCode())
		data, err := json.MarshalIndent(report, "", "  ")
		if err == nil {
			err = w.PutFile(ctx, ReportFilename, "application/json", data)
		}
		if err != nil {
			s.logger.Warn("report sidecar write failed", map[string]any{"error": err.Error()})
		}
	}
}

// notify publishes the completion event. Failures are logged only.
func (s *Session) notify(ctx context.Context, result *SessionResult) {
	a := s.config.Adapter
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	event := NewSessionCompletedEvent(result, s.config.StoragePath, time.Now())
	if err := a.Publish(ctx, event); err != nil {
		s.logger.Warn("notification failed", map[string]any{
			"error": err.Error(),
		})
		return
	}
	s.logger.Debug("notification published", map[string]any{
		"outcome": event.Outcome,
	})
}

// NewSessionCompletedEvent builds the notification payload for result.
func NewSessionCompletedEvent(result *SessionResult, storagePath string, at time.Time) *adapter.SessionCompletedEvent {
	return &adapter.SessionCompletedEvent{
		EventType:     adapter.EventTypeSessionCompleted,
		SessionID:     result.Meta.SessionID,
		Feed:          result.Meta.Feed,
		Day:           result.Meta.Day,
		Outcome:       string(result.Outcome.Status),
		StoragePath:   storagePath,
		Timestamp:     at.UTC().Format(time.RFC3339),
		Attempt:       result.Meta.Attempt,
		MessageCount:  result.MessageCount,
		RejectedCount: result.RejectedCount,
		Bytes:         result.InputBytes,
		DurationMs:    result.Duration.Milliseconds(),
	}
}
