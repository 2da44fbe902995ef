package itch

import "strings"

// DecodedMessage is one emitted record: the valid flag plus every field of
// the union layout. Fields the message type does not define stay zero.
type DecodedMessage struct {
	Valid         bool        `json:"valid_msg" msgpack:"valid_msg"`
	Type          MessageType `json:"msg_type" msgpack:"msg_type"`
	StockLocate   uint16      `json:"stock_locate" msgpack:"stock_locate"`
	TrackingNo    uint16      `json:"tracking_no" msgpack:"tracking_no"`
	Timestamp     uint64      `json:"timestamp" msgpack:"timestamp"` // 48 bits
	OrderRefNo    uint64      `json:"order_ref_no" msgpack:"order_ref_no"`
	Shares        uint32      `json:"shares" msgpack:"shares"`
	BuySell       uint8       `json:"buy_sell" msgpack:"buy_sell"`
	Stock         uint64      `json:"stock" msgpack:"stock"`
	Price         uint32      `json:"price" msgpack:"price"`
	MatchNo       uint64      `json:"match_no" msgpack:"match_no"`
	NewOrderRefNo uint64      `json:"new_order_ref_no" msgpack:"new_order_ref_no"`
	Attribution   uint32      `json:"attribution" msgpack:"attribution"`
}

type fieldValue interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// fold replaces the byte at shift in v, leaving the other bytes untouched.
func fold[T fieldValue](v T, b byte, shift uint8) T {
	mask := T(0xFF) << shift
	return v&^mask | T(b)<<shift
}

// set folds one wire byte into field f.
func (m *DecodedMessage) set(f Field, b byte, shift uint8) {
	switch f {
	case FieldStockLocate:
		m.StockLocate = fold(m.StockLocate, b, shift)
	case FieldTrackingNo:
		m.TrackingNo = fold(m.TrackingNo, b, shift)
	case FieldTimestamp:
		m.Timestamp = fold(m.Timestamp, b, shift)
	case FieldOrderRefNo:
		m.OrderRefNo = fold(m.OrderRefNo, b, shift)
	case FieldBuySell:
		m.BuySell = fold(m.BuySell, b, shift)
	case FieldShares:
		m.Shares = fold(m.Shares, b, shift)
	case FieldStock:
		m.Stock = fold(m.Stock, b, shift)
	case FieldPrice:
		m.Price = fold(m.Price, b, shift)
	case FieldMatchNo:
		m.MatchNo = fold(m.MatchNo, b, shift)
	case FieldNewOrderRefNo:
		m.NewOrderRefNo = fold(m.NewOrderRefNo, b, shift)
	case FieldAttribution:
		m.Attribution = fold(m.Attribution, b, shift)
	}
}

// Value returns field f widened to uint64.
func (m DecodedMessage) Value(f Field) uint64 {
	switch f {
	case FieldStockLocate:
		return uint64(m.StockLocate)
	case FieldTrackingNo:
		return uint64(m.TrackingNo)
	case FieldTimestamp:
		return m.Timestamp
	case FieldOrderRefNo:
		return m.OrderRefNo
	case FieldBuySell:
		return uint64(m.BuySell)
	case FieldShares:
		return uint64(m.Shares)
	case FieldStock:
		return m.Stock
	case FieldPrice:
		return uint64(m.Price)
	case FieldMatchNo:
		return m.MatchNo
	case FieldNewOrderRefNo:
		return m.NewOrderRefNo
	case FieldAttribution:
		return uint64(m.Attribution)
	default:
		return 0
	}
}

// Symbol decodes the 8 ASCII stock bytes with the space padding trimmed.
func (m DecodedMessage) Symbol() string {
	var b [8]byte
	for i := range b {
		b[i] = byte(m.Stock >> (56 - 8*i))
	}
	return strings.TrimRight(string(b[:]), " \x00")
}

// Side returns "buy", "sell", or "" from the buy_sell indicator.
func (m DecodedMessage) Side() string {
	switch m.BuySell {
	case 'B':
		return "buy"
	case 'S':
		return "sell"
	default:
		return ""
	}
}

// StockFromSymbol packs a symbol into the 8-byte stock field, space padded.
// Longer symbols are truncated to 8 bytes.
func StockFromSymbol(s string) uint64 {
	var v uint64
	for i := range 8 {
		c := byte(' ')
		if i < len(s) {
			c = s[i]
		}
		v = v<<8 | uint64(c)
	}
	return v
}

// AppendWire appends the wire form of m (type byte first, then every field
// of its layout, big-endian) to dst. It reports false for unsupported types.
func (m DecodedMessage) AppendWire(dst []byte) ([]byte, bool) {
	l := layouts[m.Type]
	if l == nil {
		return dst, false
	}
	dst = append(dst, byte(m.Type))
	for _, s := range l.Fields {
		v := m.Value(s.Field)
		for i := int(s.Width) - 1; i >= 0; i-- {
			dst = append(dst, byte(v>>(8*i)))
		}
	}
	return dst, true
}
