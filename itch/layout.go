// Package itch decodes ITCH-style order and trade messages from a stream
// of framed byte events.
//
// The package has three layers:
//   - the Field Layout Table (LayoutFor, FieldsFor), static schema per message type
//   - the Decoder, a byte-at-a-time state machine with resync on malformed input
//   - the sinks (Batch, Stepper), the two calling conventions over one Decoder
//
// Nothing in this package logs, blocks, or returns errors for bad input.
// A rejected message is observable only as the absence of output, or through
// the optional RejectFunc hook.
package itch

import "fmt"

// MessageType is the first byte of a message and selects its field schema.
type MessageType uint8

// Supported message type codes.
const (
	MessageTypeAddOrder            MessageType = 'A'
	MessageTypeOrderDelete         MessageType = 'D'
	MessageTypeOrderExecuted       MessageType = 'E'
	MessageTypeAddOrderAttribution MessageType = 'F'
	MessageTypeOrderReplace        MessageType = 'U'
	MessageTypeOrderCancel         MessageType = 'X'
)

var messageTypeNames = [256]string{
	MessageTypeAddOrder:            "add_order",
	MessageTypeOrderDelete:         "order_delete",
	MessageTypeOrderExecuted:       "order_executed",
	MessageTypeAddOrderAttribution: "add_order_attribution",
	MessageTypeOrderReplace:        "order_replace",
	MessageTypeOrderCancel:         "order_cancel",
}

// Supported reports whether t has a layout.
func (t MessageType) Supported() bool {
	return messageTypeNames[t] != ""
}

// Name returns the snake_case schema name, or "unsupported".
func (t MessageType) Name() string {
	if n := messageTypeNames[t]; n != "" {
		return n
	}
	return "unsupported"
}

// String returns the type letter for supported types and a hex code otherwise.
func (t MessageType) String() string {
	if t.Supported() {
		return string(rune(t))
	}
	return fmt.Sprintf("0x%02x", uint8(t))
}

// ParseMessageType accepts a type letter ("A") or a schema name ("add_order").
func ParseMessageType(s string) (MessageType, error) {
	if len(s) == 1 && MessageType(s[0]).Supported() {
		return MessageType(s[0]), nil
	}
	for i, n := range messageTypeNames {
		if n != "" && n == s {
			return MessageType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown message type %q", s)
}

// Field identifies one field of the union message record.
type Field uint8

// Fields of DecodedMessage, in record order.
const (
	FieldNone Field = iota
	FieldStockLocate
	FieldTrackingNo
	FieldTimestamp
	FieldOrderRefNo
	FieldBuySell
	FieldShares
	FieldStock
	FieldPrice
	FieldMatchNo
	FieldNewOrderRefNo
	FieldAttribution
)

var fieldNames = [...]string{
	FieldNone:          "",
	FieldStockLocate:   "stock_locate",
	FieldTrackingNo:    "tracking_no",
	FieldTimestamp:     "timestamp",
	FieldOrderRefNo:    "order_ref_no",
	FieldBuySell:       "buy_sell",
	FieldShares:        "shares",
	FieldStock:         "stock",
	FieldPrice:         "price",
	FieldMatchNo:       "match_no",
	FieldNewOrderRefNo: "new_order_ref_no",
	FieldAttribution:   "attribution",
}

func (f Field) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// Offset constants. Offsets are 1-indexed from the first byte after the type byte.
const (
	// SentinelOffset marks the decoder as idle or resyncing. No layout
	// reaches it, so no field lookup can match.
	SentinelOffset uint8 = 63
	// MaxMessageOffset is the largest terminal offset of any layout (F).
	MaxMessageOffset uint8 = 39
)

// FieldSpan places a field inside a message.
type FieldSpan struct {
	Field Field `json:"field" yaml:"field"`
	Start uint8 `json:"start" yaml:"start"`
	Width uint8 `json:"width" yaml:"width"`
}

// End returns the offset of the field's last byte.
func (s FieldSpan) End() uint8 { return s.Start + s.Width - 1 }

// Layout is the ordered field list of one message type.
type Layout struct {
	Type     MessageType `json:"type" yaml:"type"`
	Fields   []FieldSpan `json:"fields" yaml:"fields"`
	Terminal uint8       `json:"terminal" yaml:"terminal"`
}

// FieldAssignment tells the decoder what to do with the byte at one offset.
type FieldAssignment struct {
	Field Field
	// Shift is the bit position of this byte in the field value.
	// Big-endian: the first byte of a field lands in the highest byte.
	Shift uint8
	// FieldEnd is set on the field's last byte.
	FieldEnd bool
	// MessageEnd is set on the type's terminal offset.
	MessageEnd bool
}

var commonPrefix = []FieldSpan{
	{FieldStockLocate, 1, 2},
	{FieldTrackingNo, 3, 2},
	{FieldTimestamp, 5, 6},
	{FieldOrderRefNo, 11, 8},
}

var suffixes = map[MessageType][]FieldSpan{
	MessageTypeOrderDelete: nil,
	MessageTypeOrderCancel: {
		{FieldShares, 19, 4},
	},
	MessageTypeOrderExecuted: {
		{FieldShares, 19, 4},
		{FieldMatchNo, 23, 8},
	},
	MessageTypeAddOrder: {
		{FieldBuySell, 19, 1},
		{FieldShares, 20, 4},
		{FieldStock, 24, 8},
		{FieldPrice, 32, 4},
	},
	MessageTypeOrderReplace: {
		{FieldNewOrderRefNo, 19, 8},
		{FieldShares, 27, 4},
		{FieldPrice, 31, 4},
	},
	MessageTypeAddOrderAttribution: {
		{FieldBuySell, 19, 1},
		{FieldShares, 20, 4},
		{FieldStock, 24, 8},
		{FieldPrice, 32, 4},
		{FieldAttribution, 36, 4},
	},
}

// layouts and assignments are indexed by type code. assignments[t][off]
// has Field == FieldNone wherever the layout defines nothing.
var (
	layouts     [256]*Layout
	assignments [256]*[SentinelOffset + 1]FieldAssignment
)

func init() {
	for t, suffix := range suffixes {
		spans := make([]FieldSpan, 0, len(commonPrefix)+len(suffix))
		spans = append(spans, commonPrefix...)
		spans = append(spans, suffix...)
		l := &Layout{Type: t, Fields: spans, Terminal: spans[len(spans)-1].End()}
		layouts[t] = l

		table := new([SentinelOffset + 1]FieldAssignment)
		for _, s := range spans {
			for i := uint8(0); i < s.Width; i++ {
				off := s.Start + i
				table[off] = FieldAssignment{
					Field:      s.Field,
					Shift:      8 * (s.Width - 1 - i),
					FieldEnd:   i == s.Width-1,
					MessageEnd: off == l.Terminal,
				}
			}
		}
		assignments[t] = table
	}
}

// FieldsFor returns the assignment for the byte at offset in a message of
// type t. It returns false for unsupported types and for offsets outside
// the type's defined range (including the sentinel).
func FieldsFor(t MessageType, offset uint8) (FieldAssignment, bool) {
	table := assignments[t]
	if table == nil || offset > SentinelOffset {
		return FieldAssignment{}, false
	}
	a := table[offset]
	return a, a.Field != FieldNone
}

// LayoutFor returns a copy of the layout of t.
func LayoutFor(t MessageType) (Layout, bool) {
	l := layouts[t]
	if l == nil {
		return Layout{}, false
	}
	out := *l
	out.Fields = append([]FieldSpan(nil), l.Fields...)
	return out, true
}

// Layouts returns every supported layout, ordered by type code.
func Layouts() []Layout {
	out := make([]Layout, 0, len(suffixes))
	for t := range layouts {
		if l, ok := LayoutFor(MessageType(t)); ok {
			out = append(out, l)
		}
	}
	return out
}

// SupportedTypes returns the supported type codes in ascending order.
func SupportedTypes() []MessageType {
	out := make([]MessageType, 0, len(suffixes))
	for _, l := range Layouts() {
		out = append(out, l.Type)
	}
	return out
}

// MarshalText renders the type letter.
func (t MessageType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts anything ParseMessageType accepts.
func (t *MessageType) UnmarshalText(b []byte) error {
	parsed, err := ParseMessageType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalText renders the field name.
func (f Field) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}
