package itch

// ByteEvent is one input byte plus its framing flags.
//
// Valid=false signals a transport-level framing error for this byte,
// regardless of position. Start marks the type byte of a new message and
// End marks the last byte of the current one.
type ByteEvent struct {
	Byte  byte
	Valid bool
	Start bool
	End   bool
}

// Packed flag bits, as stored in capture files.
const (
	FlagValid uint8 = 1 << iota
	FlagStart
	FlagEnd

	flagMask = FlagValid | FlagStart | FlagEnd
)

// Flags packs the three framing flags into one byte.
func (e ByteEvent) Flags() uint8 {
	var f uint8
	if e.Valid {
		f |= FlagValid
	}
	if e.Start {
		f |= FlagStart
	}
	if e.End {
		f |= FlagEnd
	}
	return f
}

// EventFromFlags is the inverse of Flags. It reports false when flags has
// bits outside FlagValid|FlagStart|FlagEnd.
func EventFromFlags(b byte, flags uint8) (ByteEvent, bool) {
	if flags&^flagMask != 0 {
		return ByteEvent{}, false
	}
	return ByteEvent{
		Byte:  b,
		Valid: flags&FlagValid != 0,
		Start: flags&FlagStart != 0,
		End:   flags&FlagEnd != 0,
	}, true
}

// FrameMessage frames a raw message (type byte first) as valid events,
// with Start on the first byte and End on the last.
func FrameMessage(msg []byte) []ByteEvent {
	events := make([]ByteEvent, len(msg))
	for i, b := range msg {
		events[i] = ByteEvent{Byte: b, Valid: true, Start: i == 0, End: i == len(msg)-1}
	}
	return events
}

// FrameMessages frames each message in turn and concatenates the events.
func FrameMessages(msgs ...[]byte) []ByteEvent {
	var n int
	for _, m := range msgs {
		n += len(m)
	}
	events := make([]ByteEvent, 0, n)
	for _, m := range msgs {
		events = append(events, FrameMessage(m)...)
	}
	return events
}
