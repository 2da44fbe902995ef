package capture

import "github.com/justapithecus/ticktape/itch"

// ReferenceMessages are the well-formed messages inside ReferenceSession,
// in stream order.
var ReferenceMessages = []itch.DecodedMessage{
	{
		Type:        itch.MessageTypeAddOrder,
		StockLocate: 0x0102,
		TrackingNo:  0x0304,
		Timestamp:   0x000102030405,
		OrderRefNo:  0xAABBCCDDEEFF1122,
		BuySell:     'B',
		Shares:      0x1000,
		Stock:       itch.StockFromSymbol("STOCK"),
		Price:       0x00010203,
	},
	{
		Type:        itch.MessageTypeAddOrderAttribution,
		StockLocate: 7,
		TrackingNo:  1,
		Timestamp:   34_200_000_000_000,
		OrderRefNo:  1001,
		BuySell:     'S',
		Shares:      250,
		Stock:       itch.StockFromSymbol("MSFT"),
		Price:       4_123_500,
		Attribution: 0x4E534458, // "NSDX"
	},
	{
		Type:        itch.MessageTypeOrderExecuted,
		StockLocate: 7,
		TrackingNo:  2,
		Timestamp:   34_200_000_500_000,
		OrderRefNo:  1001,
		Shares:      100,
		MatchNo:     90001,
	},
	{
		Type:        itch.MessageTypeOrderCancel,
		StockLocate: 7,
		TrackingNo:  3,
		Timestamp:   34_200_001_000_000,
		OrderRefNo:  1001,
		Shares:      50,
	},
	{
		Type:        itch.MessageTypeOrderDelete,
		StockLocate: 7,
		TrackingNo:  4,
		Timestamp:   34_200_002_000_000,
		OrderRefNo:  1001,
	},
}

// ReferenceSession returns a byte-event stream exercising every decoder
// path:
//  1. a valid A message
//  2. stray bytes outside any message
//  3. an A message with an invalid byte at offset 15
//  4. valid F, E, X and D messages
//  5. a U message whose end arrives at offset 20 (before its terminal)
//  6. an unsupported 0x5A message
//
// The default decoder emits the five ReferenceMessages plus the short U.
// A strict-length decoder emits only the five.
func ReferenceSession() []itch.ByteEvent {
	wire := func(m itch.DecodedMessage) []byte {
		b, _ := m.AppendWire(nil)
		return b
	}

	var events []itch.ByteEvent
	add := wire(ReferenceMessages[0])
	events = append(events, itch.FrameMessage(add)...)

	events = append(events,
		itch.ByteEvent{Byte: 0xDE, Valid: true},
		itch.ByteEvent{Byte: 0xAD, Valid: true},
		itch.ByteEvent{Byte: 0xBE, Valid: false},
		itch.ByteEvent{Byte: 0xEF, Valid: true, End: true},
	)

	corrupt := itch.FrameMessage(add)
	corrupt[15].Valid = false
	events = append(events, corrupt...)

	for _, m := range ReferenceMessages[1:] {
		events = append(events, itch.FrameMessage(wire(m))...)
	}

	short := wire(ShortReplace)
	events = append(events, itch.FrameMessage(short[:21])...)

	events = append(events, itch.FrameMessage([]byte{0x5A, 0, 1, 2, 3, 4, 5, 6, 7, 8})...)
	return events
}

// ShortReplace is the U message ReferenceSession cuts off after offset 20.
var ShortReplace = itch.DecodedMessage{
	Type:          itch.MessageTypeOrderReplace,
	StockLocate:   7,
	TrackingNo:    5,
	Timestamp:     34_200_003_000_000,
	OrderRefNo:    1001,
	NewOrderRefNo: 2002,
	Shares:        10,
	Price:         4_120_000,
}
