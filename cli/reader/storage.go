package reader

import (
	"context"
	"fmt"

	lodelibrary "github.com/justapithecus/lode/lode"

	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/lode"
)

// Reader abstracts read-only access to persisted sessions.
type Reader interface {
	// LatestMetrics returns the newest metrics record, optionally filtered.
	LatestMetrics(ctx context.Context, sessionID, feed string) (*MetricsSnapshot, error)
	// ListMessages returns persisted messages in session order.
	ListMessages(ctx context.Context, opts ListMessagesOptions) ([]MessageRow, error)
}

// ListMessagesOptions narrows ListMessages. Zero values match everything.
type ListMessagesOptions struct {
	SessionID string
	Feed      string
	Day       string
	// Type is a type letter or schema name.
	Type  string
	Limit int
}

// LodeReader reads from a Lode dataset.
type LodeReader struct {
	ds lodelibrary.Dataset
}

// NewLodeReader wraps a read dataset.
func NewLodeReader(ds lodelibrary.Dataset) *LodeReader {
	return &LodeReader{ds: ds}
}

// LatestMetrics implements Reader.
func (r *LodeReader) LatestMetrics(ctx context.Context, sessionID, feed string) (*MetricsSnapshot, error) {
	record, err := lode.QueryLatestMetrics(ctx, r.ds, sessionID, feed)
	if err != nil {
		return nil, err
	}
	ts, _ := record["ts"].(string)
	return &MetricsSnapshot{
		Ts:       ts,
		Snapshot: lode.ParseMetricsRecord(record),
	}, nil
}

// ListMessages implements Reader.
func (r *LodeReader) ListMessages(ctx context.Context, opts ListMessagesOptions) ([]MessageRow, error) {
	filter := lode.Filter{
		SessionID: opts.SessionID,
		Feed:      opts.Feed,
		Day:       opts.Day,
		Limit:     opts.Limit,
	}
	if opts.Type != "" {
		t, err := itch.ParseMessageType(opts.Type)
		if err != nil {
			return nil, fmt.Errorf("--type: %w", err)
		}
		filter.Type = t
	}

	records, err := lode.QueryMessages(ctx, r.ds, filter)
	if err != nil {
		return nil, err
	}
	rows := make([]MessageRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, NewMessageRow(rec.Seq, rec.Message))
	}
	return rows, nil
}

var _ Reader = (*LodeReader)(nil)
