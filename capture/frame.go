package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/ticktape/itch"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
	// MaxEventsPerFrame keeps a byte_events payload well under MaxPayloadSize.
	MaxEventsPerFrame = 1 << 20
)

// Frame type discriminants.
const (
	InfoType   = "capture_info"
	EventsType = "byte_events"
)

// FormatVersion is written into capture_info frames.
const FormatVersion = "1"

// Info is the leading frame of a framed capture.
type Info struct {
	Type       string `msgpack:"type" json:"-"`
	Version    string `msgpack:"version" json:"version"`
	Feed       string `msgpack:"feed" json:"feed"`
	CapturedAt string `msgpack:"captured_at" json:"captured_at"`
	Note       string `msgpack:"note,omitempty" json:"note,omitempty"`
}

// EventsFrame carries a run of packed events, 2 bytes each as in raw records.
type EventsFrame struct {
	Type   string `msgpack:"type"`
	Seq    int64  `msgpack:"seq"`
	Events []byte `msgpack:"events"`
}

// frameTypeProbe is used to peek at the type field without full decode.
type frameTypeProbe struct {
	Type string `msgpack:"type"`
}

// FrameDecoder splits a stream into length-prefixed payloads.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder creates a new frame decoder.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{reader: r}
}

// ReadFrame reads a single frame and returns its msgpack payload.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *Error with Kind=ErrorPartial: incomplete frame (fatal)
//   - *Error with Kind=ErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &Error{Kind: ErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &Error{
			Kind: ErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &Error{Kind: ErrorPartial, Msg: "failed to read payload", Err: err}
	}
	return payload, nil
}

// DecodeFrame decodes a payload into *Info or *EventsFrame.
func DecodeFrame(payload []byte) (any, error) {
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return nil, &Error{Kind: ErrorDecode, Msg: "failed to decode frame type", Err: err}
	}

	switch probe.Type {
	case InfoType:
		var info Info
		if err := msgpack.Unmarshal(payload, &info); err != nil {
			return nil, &Error{Kind: ErrorDecode, Msg: "failed to decode capture info", Err: err}
		}
		return &info, nil
	case EventsType:
		var frame EventsFrame
		if err := msgpack.Unmarshal(payload, &frame); err != nil {
			return nil, &Error{Kind: ErrorDecode, Msg: "failed to decode byte events", Err: err}
		}
		return &frame, nil
	default:
		return nil, &Error{Kind: ErrorDecode, Msg: fmt.Sprintf("unknown frame type %q", probe.Type)}
	}
}

// FrameReader reads a framed capture.
type FrameReader struct {
	decoder *FrameDecoder
	info    *Info
	seq     int64
}

// NewFrameReader creates a reader for framed captures.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{decoder: NewFrameDecoder(r)}
}

// Info returns the capture_info frame, or nil before it has been read.
func (r *FrameReader) Info() *Info { return r.info }

// ReadEvents returns the events of the next byte_events frame.
//
// The first frame must be capture_info, and byte_events seq numbers must
// run 1, 2, 3... Violations are decode errors.
func (r *FrameReader) ReadEvents() ([]itch.ByteEvent, error) {
	for {
		payload, err := r.decoder.ReadFrame()
		if err != nil {
			return nil, err
		}
		decoded, err := DecodeFrame(payload)
		if err != nil {
			return nil, err
		}

		switch frame := decoded.(type) {
		case *Info:
			if r.info != nil {
				return nil, &Error{Kind: ErrorDecode, Msg: "duplicate capture_info frame"}
			}
			r.info = frame
		case *EventsFrame:
			if r.info == nil {
				return nil, &Error{Kind: ErrorDecode, Msg: "byte_events frame before capture_info"}
			}
			if frame.Seq != r.seq+1 {
				return nil, &Error{
					Kind: ErrorDecode,
					Msg:  fmt.Sprintf("sequence violation: got %d, want %d", frame.Seq, r.seq+1),
				}
			}
			r.seq = frame.Seq
			return unpackEvents(frame)
		}
	}
}

func unpackEvents(frame *EventsFrame) ([]itch.ByteEvent, error) {
	if len(frame.Events)%RecordSize != 0 {
		return nil, &Error{
			Kind: ErrorDecode,
			Msg:  fmt.Sprintf("frame %d: odd events length %d", frame.Seq, len(frame.Events)),
		}
	}
	events := make([]itch.ByteEvent, 0, len(frame.Events)/RecordSize)
	for i := 0; i < len(frame.Events); i += RecordSize {
		ev, ok := itch.EventFromFlags(frame.Events[i], frame.Events[i+1])
		if !ok {
			return events, &Error{
				Kind: ErrorDecode,
				Msg:  fmt.Sprintf("frame %d: unknown flag bits %#02x", frame.Seq, frame.Events[i+1]),
			}
		}
		events = append(events, ev)
	}
	return events, nil
}

// FrameWriter encodes events as a framed capture.
type FrameWriter struct {
	w   *bufio.Writer
	seq int64
}

// NewFrameWriter writes the capture_info frame and returns a writer for
// the byte_events frames. A zero CapturedAt is filled with the current time.
func NewFrameWriter(w io.Writer, info Info) (*FrameWriter, error) {
	info.Type = InfoType
	if info.Version == "" {
		info.Version = FormatVersion
	}
	if info.CapturedAt == "" {
		info.CapturedAt = time.Now().UTC().Format(time.RFC3339)
	}
	fw := &FrameWriter{w: bufio.NewWriter(w)}
	if err := fw.writeFrame(&info); err != nil {
		return nil, fmt.Errorf("write capture info: %w", err)
	}
	return fw, nil
}

// WriteEvents writes events as one or more byte_events frames.
func (w *FrameWriter) WriteEvents(events []itch.ByteEvent) error {
	for len(events) > 0 {
		n := min(len(events), MaxEventsPerFrame)
		w.seq++
		frame := &EventsFrame{
			Type:   EventsType,
			Seq:    w.seq,
			Events: AppendRecords(make([]byte, 0, n*RecordSize), events[:n]),
		}
		if err := w.writeFrame(frame); err != nil {
			return err
		}
		events = events[n:]
	}
	return nil
}

// Flush writes buffered frames to the underlying writer.
func (w *FrameWriter) Flush() error {
	return w.w.Flush()
}

func (w *FrameWriter) writeFrame(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	if len(payload) > MaxPayloadSize {
		return errors.New("frame payload exceeds maximum size")
	}
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.w.Write(payload)
	return err
}
