package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/ticktape/itch"
)

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// QueryLatestMetrics finds the most recent metrics record, optionally
// filtered by session and feed, and returns the raw record map.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, sessionID, feed string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	// Latest first; snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "record_type", RecordTypeMetrics) ||
			!snapshotMatchesFilter(snap, "session_id", sessionID) ||
			!snapshotMatchesFilter(snap, "feed", feed) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		// Path filtering is coarse; record fields are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindMetrics {
				continue
			}
			if sessionID != "" && toString(record["session_id"]) != sessionID {
				continue
			}
			if feed != "" && toString(record["feed"]) != feed {
				continue
			}
			return record, nil
		}
	}

	return nil, ErrNoMetricsFound
}

// Filter narrows QueryMessages. Zero values match everything.
type Filter struct {
	SessionID string
	Feed      string
	Day       string
	Type      itch.MessageType // 0 matches all types
	Limit     int              // 0 means no limit
}

func (f Filter) matches(r MessageRecord) bool {
	return (f.SessionID == "" || r.SessionID == f.SessionID) &&
		(f.Feed == "" || r.Feed == f.Feed) &&
		(f.Day == "" || r.Day == f.Day) &&
		(f.Type == 0 || r.Message.Type == f.Type)
}

// QueryMessages reads persisted messages in write order.
func QueryMessages(ctx context.Context, ds lode.Dataset, f Filter) ([]MessageRecord, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	typeValue := ""
	if f.Type != 0 {
		typeValue = f.Type.String()
	}

	var out []MessageRecord
	for _, snap := range snapshots {
		if !snapshotMatchesFilter(snap, "session_id", f.SessionID) ||
			!snapshotMatchesFilter(snap, "feed", f.Feed) ||
			!snapshotMatchesFilter(snap, "day", f.Day) ||
			!snapshotMatchesFilter(snap, "record_type", typeValue) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindMessage {
				continue
			}
			r, err := ParseMessageRecord(record)
			if err != nil {
				return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
			}
			if !f.matches(r) {
				continue
			}
			out = append(out, r)
			if f.Limit > 0 && len(out) >= f.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}
