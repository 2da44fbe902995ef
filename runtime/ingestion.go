package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/justapithecus/ticktape/capture"
	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/log"
	"github.com/justapithecus/ticktape/metrics"
	"github.com/justapithecus/ticktape/policy"
)

// IngestionError classifies ingestion errors for outcome determination.
type IngestionError struct {
	Kind IngestionErrorKind
	Err  error
}

// IngestionErrorKind classifies ingestion errors.
type IngestionErrorKind int

const (
	// IngestionErrorStream indicates the capture could not be read or decoded.
	IngestionErrorStream IngestionErrorKind = iota
	// IngestionErrorPolicy indicates the policy rejected a message or its sink failed.
	IngestionErrorPolicy
	// IngestionErrorCanceled indicates context cancellation.
	IngestionErrorCanceled
)

func (e *IngestionError) Error() string {
	return e.Err.Error()
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

func isKind(err error, kind IngestionErrorKind) bool {
	var ingErr *IngestionError
	return errors.As(err, &ingErr) && ingErr.Kind == kind
}

// IsPolicyError returns true if the error is a policy failure.
func IsPolicyError(err error) bool { return isKind(err, IngestionErrorPolicy) }

// IsCanceledError returns true if the error is due to context cancellation.
func IsCanceledError(err error) bool { return isKind(err, IngestionErrorCanceled) }

// IsStreamError returns true if the error is a capture read/decode error.
func IsStreamError(err error) bool { return isKind(err, IngestionErrorStream) }

// IngestionEngine drives byte events from a capture through the decoder
// and hands each emitted message to the delivery policy.
//
//   - Events are fed to the decoder strictly in capture order
//   - Rejections are counted by reason and logged at debug
//   - A capture read error is fatal; events returned with it are decoded first
//   - A policy error is fatal
//   - At end of stream, a still-open message is rejected as truncated
type IngestionEngine struct {
	reader    capture.Reader
	decoder   *itch.Decoder
	policy    policy.Policy
	logger    *log.Logger
	collector *metrics.Collector

	events   int64
	emitted  int64
	rejected int64
}

// NewIngestionEngine creates a new ingestion engine. opts configure the
// decoder; the engine installs its own reject handler after them.
func NewIngestionEngine(
	reader capture.Reader,
	pol policy.Policy,
	logger *log.Logger,
	collector *metrics.Collector,
	opts ...itch.Option,
) *IngestionEngine {
	if logger == nil {
		logger = log.NewNop()
	}
	e := &IngestionEngine{
		reader:    reader,
		policy:    pol,
		logger:    logger,
		collector: collector,
	}
	opts = append(opts[:len(opts):len(opts)], itch.WithRejectHandler(e.onReject))
	e.decoder = itch.NewDecoder(opts...)
	return e
}

// Run runs the ingestion loop until EOF or a fatal error.
// Returns:
//   - nil: capture decoded to its end
//   - *IngestionError with Kind=IngestionErrorStream: capture read/decode error
//   - *IngestionError with Kind=IngestionErrorPolicy: policy failure
//   - *IngestionError with Kind=IngestionErrorCanceled: context canceled
func (e *IngestionEngine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return &IngestionError{Kind: IngestionErrorCanceled, Err: err}
		}

		events, readErr := e.reader.ReadEvents()

		if err := e.processBatch(ctx, events); err != nil {
			return err
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			e.decoder.Flush()
			return nil
		}

		e.decoder.Flush()
		e.collector.IncCaptureDecodeErrors()
		e.logger.Error("capture read error", map[string]any{
			"error":  readErr.Error(),
			"events": e.events,
		})
		return &IngestionError{
			Kind: IngestionErrorStream,
			Err:  fmt.Errorf("capture error: %w", readErr),
		}
	}
}

// processBatch feeds one batch of events to the decoder.
func (e *IngestionEngine) processBatch(ctx context.Context, events []itch.ByteEvent) error {
	if len(events) == 0 {
		return nil
	}

	var invalid, started int64
	defer func() {
		e.collector.AddBytes(int64(len(events)), invalid)
		e.collector.AddMessagesStarted(started)
	}()

	for _, ev := range events {
		e.events++
		if !ev.Valid {
			invalid++
		} else if ev.Start {
			started++
		}

		msg, ok := e.decoder.Accept(ev)
		if !ok {
			continue
		}

		e.emitted++
		e.collector.IncEmitted(msg.Type.String())

		if err := e.policy.IngestMessage(ctx, &msg); err != nil {
			e.logger.Error("policy ingestion failed", map[string]any{
				"msg_type": msg.Type.String(),
				"emitted":  e.emitted,
				"error":    err.Error(),
			})
			return &IngestionError{
				Kind: IngestionErrorPolicy,
				Err:  fmt.Errorf("policy failure: %w", err),
			}
		}
	}
	return nil
}

// onReject is the decoder's reject handler.
func (e *IngestionEngine) onReject(r itch.Rejection) {
	e.rejected++
	e.collector.IncRejected(string(r.Reason))
	e.logger.Debug("message rejected", map[string]any{
		"msg_type": r.Type.String(),
		"reason":   string(r.Reason),
		"offset":   r.Offset,
		"event":    e.events,
	})
}

// Events returns the number of byte events processed.
func (e *IngestionEngine) Events() int64 { return e.events }

// Emitted returns the number of messages the decoder emitted.
func (e *IngestionEngine) Emitted() int64 { return e.emitted }

// Rejected returns the number of messages the decoder discarded.
func (e *IngestionEngine) Rejected() int64 { return e.rejected }
