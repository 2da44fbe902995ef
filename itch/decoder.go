package itch

// RejectReason classifies why a message produced no output.
type RejectReason string

// Reject reasons.
const (
	// RejectUnsupportedType: the start byte names no known layout.
	RejectUnsupportedType RejectReason = "unsupported_type"
	// RejectTransportInvalid: a byte of an open message arrived with valid=false.
	RejectTransportInvalid RejectReason = "transport_invalid"
	// RejectTruncated: a new start (or end of stream) arrived before the open message ended.
	RejectTruncated RejectReason = "truncated"
	// RejectShortMessage: end arrived before the terminal offset under WithStrictLength.
	RejectShortMessage RejectReason = "short_message"
)

// Rejection describes one discarded message.
type Rejection struct {
	Type   MessageType  `json:"msg_type"`
	Reason RejectReason `json:"reason"`
	// Offset is the byte offset the message had reached, 0 for the type byte.
	Offset uint8 `json:"offset"`
}

// RejectFunc receives rejections synchronously from Accept.
type RejectFunc func(Rejection)

// Option configures a Decoder.
type Option func(*Decoder)

// WithStrictLength makes an end that arrives before the type's terminal
// offset condemn the message instead of emitting it.
func WithStrictLength() Option {
	return func(d *Decoder) { d.strict = true }
}

// WithRejectHandler installs fn as the rejection hook. A nil fn disables it.
func WithRejectHandler(fn RejectFunc) Option {
	return func(d *Decoder) { d.onReject = fn }
}

// State is a read-only view of the decoder registers.
type State struct {
	Offset   uint8       `json:"byte_offset"`
	Counting bool        `json:"counting"`
	Invalid  bool        `json:"message_invalid"`
	Type     MessageType `json:"msg_type"`
	Open     bool        `json:"open"`
}

// Decoder is the per-stream decode state machine. The zero value is not
// usable; call NewDecoder. A Decoder must not be shared between goroutines.
type Decoder struct {
	offset   uint8
	counting bool
	invalid  bool
	partial  DecodedMessage

	strict   bool
	onReject RejectFunc
}

// NewDecoder returns a decoder in the idle state.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{}
	for _, opt := range opts {
		opt(d)
	}
	d.Reset()
	return d
}

// Reset returns the decoder to the idle state. Options are kept, and an
// open message is discarded without a rejection.
func (d *Decoder) Reset() {
	d.offset = SentinelOffset
	d.counting = false
	d.invalid = false
	d.partial = DecodedMessage{}
}

// State returns a snapshot of the registers.
func (d *Decoder) State() State {
	return State{
		Offset:   d.offset,
		Counting: d.counting,
		Invalid:  d.invalid,
		Type:     d.partial.Type,
		Open:     d.open(),
	}
}

// Pending reports whether a message is open and could still emit.
func (d *Decoder) Pending() bool {
	return d.open() && !d.invalid
}

// Flush reports an open message as truncated and returns to idle. Callers
// use it at end of stream.
func (d *Decoder) Flush() {
	if d.Pending() {
		d.reject(RejectTruncated)
	}
	d.Reset()
}

func (d *Decoder) open() bool { return d.offset != SentinelOffset }

// Accept consumes one event and returns the completed message, if any.
// Malformed input never produces an error: the affected message is
// dropped and the decoder resyncs on the next valid start.
func (d *Decoder) Accept(ev ByteEvent) (DecodedMessage, bool) {
	switch {
	case ev.Start && ev.Valid:
		if d.Pending() {
			d.reject(RejectTruncated)
		}
		// The type byte is offset 0; payload offsets start at 1.
		d.offset = 0
		d.counting = true
		d.partial = DecodedMessage{Type: MessageType(ev.Byte)}
		if !d.partial.Type.Supported() {
			d.condemn(RejectUnsupportedType)
			return DecodedMessage{}, false
		}
		d.invalid = false
	case d.open():
		if d.offset < SentinelOffset-1 {
			d.offset++
		}
	}

	if !ev.Valid {
		if d.Pending() {
			d.reject(RejectTransportInvalid)
		}
		d.invalid = true
		d.offset = SentinelOffset
		d.counting = false
		return DecodedMessage{}, false
	}
	if d.invalid {
		return DecodedMessage{}, false
	}

	if !ev.Start {
		if a, ok := FieldsFor(d.partial.Type, d.offset); ok {
			d.partial.set(a.Field, ev.Byte, a.Shift)
			if a.MessageEnd {
				d.counting = false
			}
		}
	}

	if !ev.End || !d.open() {
		return DecodedMessage{}, false
	}
	if d.strict && d.counting {
		d.condemn(RejectShortMessage)
		return DecodedMessage{}, false
	}
	out := d.partial
	out.Valid = true
	d.offset = SentinelOffset
	d.counting = false
	return out, true
}

// condemn drops the open message and holds the decoder until the next start.
func (d *Decoder) condemn(reason RejectReason) {
	d.reject(reason)
	d.invalid = true
	d.offset = SentinelOffset
	d.counting = false
}

func (d *Decoder) reject(reason RejectReason) {
	if d.onReject == nil {
		return
	}
	d.onReject(Rejection{Type: d.partial.Type, Reason: reason, Offset: d.offset})
}
