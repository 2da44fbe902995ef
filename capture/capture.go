// Package capture reads and writes byte-event capture files.
//
// Two binary formats exist:
//   - raw: a flat run of 2-byte records, [data][flags]
//   - framed: 4-byte big-endian length prefix + msgpack payload, starting
//     with a capture_info frame followed by byte_events frames
//
// A line-oriented hex format (see ParseHexMessages) is used for fixtures.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/ticktape/itch"
)

// Format names a capture encoding.
type Format string

// Supported formats.
const (
	FormatAuto   Format = "auto"
	FormatRaw    Format = "raw"
	FormatFramed Format = "framed"
	FormatHex    Format = "hex"
)

// ParseFormat validates a format name. Empty means auto.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatRaw, FormatFramed, FormatHex:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown capture format %q (want auto, raw, framed or hex)", s)
	}
}

// ErrorKind classifies capture decoding errors.
type ErrorKind int

const (
	// ErrorPartial indicates a truncated record or frame.
	ErrorPartial ErrorKind = iota
	// ErrorTooLarge indicates a frame exceeding MaxFrameSize.
	ErrorTooLarge
	// ErrorDecode indicates a malformed payload, flag byte, or sequence.
	ErrorDecode
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorPartial:
		return "partial"
	case ErrorTooLarge:
		return "too_large"
	case ErrorDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error represents a capture decoding error.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsFatal returns true for partial and oversized input, after which the
// stream position is unknown.
func (e *Error) IsFatal() bool {
	return e.Kind == ErrorPartial || e.Kind == ErrorTooLarge
}

// IsFatalError returns true if err is a fatal capture error.
func IsFatalError(err error) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.IsFatal()
	}
	return false
}

// Reader yields byte events in capture order.
//
// ReadEvents may return events together with a non-nil error; callers
// must process the events before handling the error. A clean end of
// input is io.EOF.
type Reader interface {
	ReadEvents() ([]itch.ByteEvent, error)
}

// Writer encodes byte events into a capture.
type Writer interface {
	WriteEvents(events []itch.ByteEvent) error
	Flush() error
}

// Open returns a Reader for r in the given format. FormatAuto inspects the
// leading bytes: a decodable capture_info frame selects framed, anything
// else is read as raw.
func Open(r io.Reader, format Format) (Reader, error) {
	switch format {
	case FormatRaw:
		return NewRecordReader(r, DefaultBatchSize), nil
	case FormatFramed:
		return NewFrameReader(r), nil
	case FormatHex:
		events, err := ParseHexMessages(r)
		if err != nil {
			return nil, err
		}
		return NewSliceReader(events), nil
	case FormatAuto, "":
		br := bufio.NewReaderSize(r, sniffLimit+LengthPrefixSize)
		if looksFramed(br) {
			return NewFrameReader(br), nil
		}
		return NewRecordReader(br, DefaultBatchSize), nil
	default:
		return nil, fmt.Errorf("unknown capture format %q", format)
	}
}

// sniffLimit bounds the capture_info payload auto-detection will peek at.
const sniffLimit = 4096

func looksFramed(br *bufio.Reader) bool {
	prefix, err := br.Peek(LengthPrefixSize)
	if err != nil {
		return false
	}
	n := int(prefix[0])<<24 | int(prefix[1])<<16 | int(prefix[2])<<8 | int(prefix[3])
	if n == 0 || n > sniffLimit {
		return false
	}
	frame, err := br.Peek(LengthPrefixSize + n)
	if err != nil {
		return false
	}
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(frame[LengthPrefixSize:], &probe); err != nil {
		return false
	}
	return probe.Type == InfoType
}

// SliceReader serves events from memory in a single batch.
type SliceReader struct {
	events []itch.ByteEvent
	done   bool
}

// NewSliceReader wraps events as a Reader.
func NewSliceReader(events []itch.ByteEvent) *SliceReader {
	return &SliceReader{events: events}
}

// ReadEvents returns all events once, then io.EOF.
func (s *SliceReader) ReadEvents() ([]itch.ByteEvent, error) {
	if s.done || len(s.events) == 0 {
		return nil, io.EOF
	}
	s.done = true
	return s.events, nil
}

// ReadAll drains r. Events read before an error are returned with it.
func ReadAll(r Reader) ([]itch.ByteEvent, error) {
	var all []itch.ByteEvent
	for {
		events, err := r.ReadEvents()
		all = append(all, events...)
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return all, err
		}
	}
}
