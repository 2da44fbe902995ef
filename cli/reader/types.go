// Package reader provides the read-side data access layer for the ticktape CLI.
//
// Capture views (inspect, stats capture, debug step, layout) are computed in
// memory from byte events. Storage views (stats metrics, list messages) go
// through a Reader backed by a Lode dataset.
package reader

import (
	"fmt"
	"strings"

	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/metrics"
)

// MessageRow is the display form of one decoded message. Fields the
// message type does not define are omitted from JSON and YAML.
type MessageRow struct {
	Seq           int64  `json:"seq" yaml:"seq"`
	Type          string `json:"msg_type" yaml:"msg_type"`
	Name          string `json:"name" yaml:"name"`
	Valid         bool   `json:"valid_msg" yaml:"valid_msg"`
	StockLocate   uint16 `json:"stock_locate" yaml:"stock_locate"`
	TrackingNo    uint16 `json:"tracking_no" yaml:"tracking_no"`
	Timestamp     uint64 `json:"timestamp" yaml:"timestamp"`
	OrderRefNo    uint64 `json:"order_ref_no" yaml:"order_ref_no"`
	Side          string `json:"side,omitempty" yaml:"side,omitempty"`
	Shares        uint32 `json:"shares,omitempty" yaml:"shares,omitempty"`
	Symbol        string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Price         string `json:"price,omitempty" yaml:"price,omitempty"`
	MatchNo       uint64 `json:"match_no,omitempty" yaml:"match_no,omitempty"`
	NewOrderRefNo uint64 `json:"new_order_ref_no,omitempty" yaml:"new_order_ref_no,omitempty"`
	Attribution   string `json:"attribution,omitempty" yaml:"attribution,omitempty"`
}

// NewMessageRow converts a decoded message for display.
func NewMessageRow(seq int64, m itch.DecodedMessage) MessageRow {
	row := MessageRow{
		Seq:         seq,
		Type:        m.Type.String(),
		Name:        m.Type.Name(),
		Valid:       m.Valid,
		StockLocate: m.StockLocate,
		TrackingNo:  m.TrackingNo,
		Timestamp:   m.Timestamp,
		OrderRefNo:  m.OrderRefNo,
	}
	layout, ok := itch.LayoutFor(m.Type)
	if !ok {
		return row
	}
	for _, span := range layout.Fields {
		switch span.Field {
		case itch.FieldBuySell:
			row.Side = m.Side()
		case itch.FieldShares:
			row.Shares = m.Shares
		case itch.FieldStock:
			row.Symbol = m.Symbol()
		case itch.FieldPrice:
			row.Price = FormatPrice(m.Price)
		case itch.FieldMatchNo:
			row.MatchNo = m.MatchNo
		case itch.FieldNewOrderRefNo:
			row.NewOrderRefNo = m.NewOrderRefNo
		case itch.FieldAttribution:
			row.Attribution = mpid(m.Attribution)
		}
	}
	return row
}

// mpid renders a packed 4-character market participant ID.
func mpid(v uint32) string {
	b := []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	return strings.TrimRight(string(b), " \x00")
}

// FormatPrice renders a Price(4) value, four implied decimal places.
func FormatPrice(p uint32) string {
	return fmt.Sprintf("%d.%04d", p/10_000, p%10_000)
}

// InspectCaptureResponse is the payload of inspect.
type InspectCaptureResponse struct {
	Path       string           `json:"path" yaml:"path"`
	Format     string           `json:"format" yaml:"format"`
	Feed       string           `json:"feed,omitempty" yaml:"feed,omitempty"`
	Events     int              `json:"events" yaml:"events"`
	Decoded    int              `json:"decoded" yaml:"decoded"`
	Limit      int              `json:"limit,omitempty" yaml:"limit,omitempty"`
	Truncated  bool             `json:"truncated" yaml:"truncated"`
	Rejections map[string]int64 `json:"rejections" yaml:"rejections"`
	Messages   []MessageRow     `json:"messages" yaml:"messages"`
}

// CaptureStats summarizes one decode pass over a capture.
type CaptureStats struct {
	Path             string           `json:"path" yaml:"path"`
	Events           int64            `json:"events" yaml:"events"`
	InvalidBytes     int64            `json:"invalid_bytes" yaml:"invalid_bytes"`
	Starts           int64            `json:"starts" yaml:"starts"`
	Emitted          int64            `json:"emitted" yaml:"emitted"`
	Rejected         int64            `json:"rejected" yaml:"rejected"`
	EmittedByType    map[string]int64 `json:"emitted_by_type" yaml:"emitted_by_type"`
	RejectedByReason map[string]int64 `json:"rejected_by_reason" yaml:"rejected_by_reason"`
}

// MetricsSnapshot is a persisted metrics record with its write time.
type MetricsSnapshot struct {
	Ts               string `json:"ts" yaml:"ts"`
	metrics.Snapshot `yaml:",inline"`
}

// LayoutRow is one field of the Field Layout Table.
type LayoutRow struct {
	Type     string `json:"msg_type" yaml:"msg_type"`
	Name     string `json:"name" yaml:"name"`
	Field    string `json:"field" yaml:"field"`
	Start    uint8  `json:"start" yaml:"start"`
	End      uint8  `json:"end" yaml:"end"`
	Width    uint8  `json:"width" yaml:"width"`
	Terminal uint8  `json:"terminal" yaml:"terminal"`
}

// StepRow traces one byte through the single-step convention.
type StepRow struct {
	Index   int         `json:"index" yaml:"index"`
	Byte    string      `json:"byte" yaml:"byte"`
	Valid   bool        `json:"valid" yaml:"valid"`
	Start   bool        `json:"start" yaml:"start"`
	End     bool        `json:"end" yaml:"end"`
	Offset  uint8       `json:"byte_offset" yaml:"byte_offset"`
	Type    string      `json:"msg_type" yaml:"msg_type"`
	Invalid bool        `json:"message_invalid" yaml:"message_invalid"`
	Ready   bool        `json:"ready" yaml:"ready"`
	Reject  string      `json:"reject,omitempty" yaml:"reject,omitempty"`
	Emitted *MessageRow `json:"emitted,omitempty" yaml:"emitted,omitempty"`
}
