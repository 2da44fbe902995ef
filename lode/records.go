package lode

import (
	"fmt"
	"strconv"
	"time"

	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/metrics"
)

// Record kind discriminator values.
const (
	RecordKindMessage = "message"
	RecordKindMetrics = "metrics"
)

// RecordTypeMetrics is the record_type partition value for metrics records.
// Message records use their type letter.
const RecordTypeMetrics = "metrics"

// wideFieldWidth is the wire width at and above which a field is stored as
// a hex string. JSON numbers lose precision past 2^53.
const wideFieldWidth = 8

// toMessageRecordMap converts a decoded message to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
//
// Only the fields of the message's layout are written.
func toMessageRecordMap(m *itch.DecodedMessage, seq int64, cfg Config) map[string]any {
	rec := map[string]any{
		"record_kind": RecordKindMessage,
		"record_type": m.Type.String(), // partition key
		"msg_type":    m.Type.String(),
		"valid_msg":   m.Valid,
		"seq":         seq,
		"feed":        cfg.Feed,
		"day":         cfg.Day,
		"session_id":  cfg.SessionID,
	}

	layout, ok := itch.LayoutFor(m.Type)
	if !ok {
		return rec
	}
	for _, span := range layout.Fields {
		v := m.Value(span.Field)
		if span.Width >= wideFieldWidth {
			rec[span.Field.String()] = fmt.Sprintf("%016x", v)
		} else {
			rec[span.Field.String()] = v
		}
		if span.Field == itch.FieldStock {
			rec["symbol"] = m.Symbol()
		}
	}
	return rec
}

// MessageRecord is a decoded message read back from storage.
type MessageRecord struct {
	Seq       int64
	Feed      string
	Day       string
	SessionID string
	Message   itch.DecodedMessage
}

// ParseMessageRecord converts a raw JSONL record back into a message.
// Fields absent from the record stay zero.
func ParseMessageRecord(rec map[string]any) (MessageRecord, error) {
	if kind := toString(rec["record_kind"]); kind != RecordKindMessage {
		return MessageRecord{}, fmt.Errorf("record_kind %q is not %q", kind, RecordKindMessage)
	}

	var t itch.MessageType
	if err := t.UnmarshalText([]byte(toString(rec["msg_type"]))); err != nil {
		return MessageRecord{}, fmt.Errorf("msg_type: %w", err)
	}

	out := MessageRecord{
		Seq:       toInt64(rec["seq"]),
		Feed:      toString(rec["feed"]),
		Day:       toString(rec["day"]),
		SessionID: toString(rec["session_id"]),
	}
	msg := &out.Message
	msg.Type = t
	msg.Valid, _ = rec["valid_msg"].(bool)

	layout, ok := itch.LayoutFor(t)
	if !ok {
		return out, nil
	}
	for _, span := range layout.Fields {
		raw, present := rec[span.Field.String()]
		if !present {
			continue
		}
		v, err := parseFieldValue(raw)
		if err != nil {
			return MessageRecord{}, fmt.Errorf("%s: %w", span.Field, err)
		}
		setField(msg, span.Field, v)
	}
	return out, nil
}

// parseFieldValue accepts the hex-string form of wide fields and the numeric
// form of narrow ones.
func parseFieldValue(v any) (uint64, error) {
	switch n := v.(type) {
	case string:
		return strconv.ParseUint(n, 16, 64)
	case float64:
		return uint64(n), nil
	case int64:
		return uint64(n), nil
	case uint64:
		return n, nil
	case int:
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}

func setField(m *itch.DecodedMessage, f itch.Field, v uint64) {
	switch f {
	case itch.FieldStockLocate:
		m.StockLocate = uint16(v)
	case itch.FieldTrackingNo:
		m.TrackingNo = uint16(v)
	case itch.FieldTimestamp:
		m.Timestamp = v
	case itch.FieldOrderRefNo:
		m.OrderRefNo = v
	case itch.FieldBuySell:
		m.BuySell = uint8(v)
	case itch.FieldShares:
		m.Shares = uint32(v)
	case itch.FieldStock:
		m.Stock = v
	case itch.FieldPrice:
		m.Price = uint32(v)
	case itch.FieldMatchNo:
		m.MatchNo = v
	case itch.FieldNewOrderRefNo:
		m.NewOrderRefNo = v
	case itch.FieldAttribution:
		m.Attribution = uint32(v)
	}
}

// toMetricsRecordMap converts a metrics snapshot to a map for storage.
func toMetricsRecordMap(s metrics.Snapshot, completedAt time.Time, cfg Config) map[string]any {
	return map[string]any{
		"record_kind": RecordKindMetrics,
		"record_type": RecordTypeMetrics, // partition key
		"ts":          completedAt.UTC().Format(time.RFC3339Nano),

		"sessions_started_total":   s.SessionsStarted,
		"sessions_completed_total": s.SessionsCompleted,
		"sessions_failed_total":    s.SessionsFailed,
		"sessions_canceled_total":  s.SessionsCanceled,

		"bytes_received_total":        s.BytesReceived,
		"bytes_invalid_total":         s.BytesInvalid,
		"messages_started_total":      s.MessagesStarted,
		"messages_emitted_total":      s.MessagesEmitted,
		"emitted_by_type":             s.EmittedByType,
		"messages_rejected_total":     s.MessagesRejected,
		"rejected_by_reason":          s.RejectedByReason,
		"capture_decode_errors_total": s.CaptureDecodeErrors,

		"messages_received_total":  s.MessagesReceived,
		"messages_persisted_total": s.MessagesPersisted,
		"messages_dropped_total":   s.MessagesDropped,
		"dropped_by_type":          s.DroppedByType,

		"lode_write_success_total": s.LodeWriteSuccess,
		"lode_write_failure_total": s.LodeWriteFailure,

		"policy":          s.Policy,
		"storage_backend": s.StorageBackend,

		"feed":       cfg.Feed,
		"day":        cfg.Day,
		"session_id": cfg.SessionID,
	}
}

// ParseMetricsRecord converts a raw metrics record back into a Snapshot.
func ParseMetricsRecord(rec map[string]any) metrics.Snapshot {
	return metrics.Snapshot{
		SessionsStarted:   toInt64(rec["sessions_started_total"]),
		SessionsCompleted: toInt64(rec["sessions_completed_total"]),
		SessionsFailed:    toInt64(rec["sessions_failed_total"]),
		SessionsCanceled:  toInt64(rec["sessions_canceled_total"]),

		BytesReceived:       toInt64(rec["bytes_received_total"]),
		BytesInvalid:        toInt64(rec["bytes_invalid_total"]),
		MessagesStarted:     toInt64(rec["messages_started_total"]),
		MessagesEmitted:     toInt64(rec["messages_emitted_total"]),
		EmittedByType:       toCounts(rec["emitted_by_type"]),
		MessagesRejected:    toInt64(rec["messages_rejected_total"]),
		RejectedByReason:    toCounts(rec["rejected_by_reason"]),
		CaptureDecodeErrors: toInt64(rec["capture_decode_errors_total"]),

		MessagesReceived:  toInt64(rec["messages_received_total"]),
		MessagesPersisted: toInt64(rec["messages_persisted_total"]),
		MessagesDropped:   toInt64(rec["messages_dropped_total"]),
		DroppedByType:     toCounts(rec["dropped_by_type"]),

		LodeWriteSuccess: toInt64(rec["lode_write_success_total"]),
		LodeWriteFailure: toInt64(rec["lode_write_failure_total"]),

		Policy:         toString(rec["policy"]),
		StorageBackend: toString(rec["storage_backend"]),
		Feed:           toString(rec["feed"]),
		SessionID:      toString(rec["session_id"]),
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// toInt64 accepts the numeric types a record may hold before and after a
// JSON round trip.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toCounts(v any) map[string]int64 {
	out := make(map[string]int64)
	switch m := v.(type) {
	case map[string]int64:
		for k, n := range m {
			out[k] = n
		}
	case map[string]any:
		for k, n := range m {
			out[k] = toInt64(n)
		}
	}
	return out
}
