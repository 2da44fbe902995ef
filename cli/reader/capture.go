package reader

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/ticktape/capture"
	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/metrics"
	"github.com/justapithecus/ticktape/policy"
	"github.com/justapithecus/ticktape/runtime"
)

// DecodeOptions are the decoder settings shared by the capture views.
type DecodeOptions struct {
	StrictLength bool
	// MaxMessages caps the inspect batch. Zero means unbounded.
	MaxMessages int
}

func (o DecodeOptions) decoderOptions(extra ...itch.Option) []itch.Option {
	var opts []itch.Option
	if o.StrictLength {
		opts = append(opts, itch.WithStrictLength())
	}
	return append(opts, extra...)
}

// LoadedCapture is a capture file read fully into memory.
type LoadedCapture struct {
	Path   string
	Format capture.Format
	Info   *capture.Info
	Events []itch.ByteEvent
}

// InspectCapture decodes events with the Batch convention. When the batch
// limit is hit the whole capture is still decoded and Truncated is set.
func InspectCapture(c *LoadedCapture, opts DecodeOptions) (*InspectCaptureResponse, error) {
	rejections := make(map[string]int64)
	dec := itch.NewDecoder(opts.decoderOptions(itch.WithRejectHandler(func(r itch.Rejection) {
		rejections[string(r.Reason)]++
	}))...)

	batch := itch.NewBatch(opts.MaxMessages)
	err := itch.DecodeInto(dec, c.Events, batch)
	dec.Flush()
	if err != nil && !errors.Is(err, itch.ErrCountExceeded) {
		return nil, err
	}

	resp := &InspectCaptureResponse{
		Path:       c.Path,
		Format:     string(c.Format),
		Events:     len(c.Events),
		Decoded:    batch.Decoded(),
		Limit:      batch.Limit(),
		Truncated:  batch.Overflowed(),
		Rejections: rejections,
		Messages:   make([]MessageRow, 0, batch.Len()),
	}
	if c.Info != nil {
		resp.Feed = c.Info.Feed
	}
	for i, m := range batch.Messages() {
		resp.Messages = append(resp.Messages, NewMessageRow(int64(i), m))
	}
	return resp, nil
}

// StatsForCapture runs the capture through the ingestion engine with a noop
// policy and reports the collector's decoder counters.
func StatsForCapture(ctx context.Context, c *LoadedCapture, opts DecodeOptions) (*CaptureStats, error) {
	collector := metrics.NewCollector("noop", "none", "", "")
	engine := runtime.NewIngestionEngine(
		capture.NewSliceReader(c.Events),
		policy.NewNoopPolicy(),
		nil,
		collector,
		opts.decoderOptions()...,
	)
	if err := engine.Run(ctx); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.Path, err)
	}

	snap := collector.Snapshot()
	return &CaptureStats{
		Path:             c.Path,
		Events:           snap.BytesReceived,
		InvalidBytes:     snap.BytesInvalid,
		Starts:           snap.MessagesStarted,
		Emitted:          snap.MessagesEmitted,
		Rejected:         snap.MessagesRejected,
		EmittedByType:    snap.EmittedByType,
		RejectedByReason: snap.RejectedByReason,
	}, nil
}

// StepTrace feeds events one at a time through the single-step convention
// and records the registers after each step.
func StepTrace(events []itch.ByteEvent, opts DecodeOptions) []StepRow {
	var reject string
	stepper := itch.NewStepper(opts.decoderOptions(itch.WithRejectHandler(func(r itch.Rejection) {
		reject = string(r.Reason)
	}))...)

	rows := make([]StepRow, 0, len(events))
	var seq int64
	for i, ev := range events {
		reject = ""
		ready := stepper.Step(ev)
		st := stepper.State()

		row := StepRow{
			Index:   i,
			Byte:    fmt.Sprintf("%02x", ev.Byte),
			Valid:   ev.Valid,
			Start:   ev.Start,
			End:     ev.End,
			Offset:  st.Offset,
			Invalid: st.Invalid,
			Ready:   ready,
			Reject:  reject,
		}
		if st.Open {
			row.Type = st.Type.String()
		}
		if ready {
			m := NewMessageRow(seq, stepper.Registers())
			row.Emitted = &m
			row.Type = m.Type
			seq++
		}
		rows = append(rows, row)
	}
	return rows
}

// LayoutTable renders the Field Layout Table for types, or for every
// supported type when none are given.
func LayoutTable(types ...itch.MessageType) ([]LayoutRow, error) {
	if len(types) == 0 {
		types = itch.SupportedTypes()
	}
	var rows []LayoutRow
	for _, t := range types {
		layout, ok := itch.LayoutFor(t)
		if !ok {
			return nil, fmt.Errorf("no layout for message type %s", t)
		}
		for _, span := range layout.Fields {
			rows = append(rows, LayoutRow{
				Type:     t.String(),
				Name:     t.Name(),
				Field:    span.Field.String(),
				Start:    span.Start,
				End:      span.End(),
				Width:    span.Width,
				Terminal: layout.Terminal,
			})
		}
	}
	return rows, nil
}
