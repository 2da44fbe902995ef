package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/justapithecus/ticktape/itch"
)

// RecordSize is the size of one raw capture record: data byte, flags byte.
const RecordSize = 2

// DefaultBatchSize is the number of events a RecordReader returns per call.
const DefaultBatchSize = 4096

// RecordReader decodes raw 2-byte records.
type RecordReader struct {
	reader io.Reader
	buf    []byte
	offset int64 // records consumed so far
}

// NewRecordReader creates a reader returning up to batch events per call.
func NewRecordReader(r io.Reader, batch int) *RecordReader {
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &RecordReader{reader: r, buf: make([]byte, batch*RecordSize)}
}

// ReadEvents reads the next batch of records.
//
// Errors:
//   - io.EOF: input ended on a record boundary
//   - *Error with Kind=ErrorPartial: input ended mid-record (fatal)
//   - *Error with Kind=ErrorDecode: a flags byte has unknown bits
func (r *RecordReader) ReadEvents() ([]itch.ByteEvent, error) {
	n, err := io.ReadFull(r.reader, r.buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	complete := n / RecordSize
	events := make([]itch.ByteEvent, 0, complete)
	for i := range complete {
		b, flags := r.buf[i*RecordSize], r.buf[i*RecordSize+1]
		ev, ok := itch.EventFromFlags(b, flags)
		if !ok {
			return events, &Error{
				Kind: ErrorDecode,
				Msg:  fmt.Sprintf("record %d: unknown flag bits %#02x", r.offset+int64(i), flags),
			}
		}
		events = append(events, ev)
	}
	r.offset += int64(complete)

	if n%RecordSize != 0 {
		return events, &Error{
			Kind: ErrorPartial,
			Msg:  fmt.Sprintf("record %d: trailing half record", r.offset),
			Err:  io.ErrUnexpectedEOF,
		}
	}
	return events, nil
}

// RecordWriter encodes events as raw records.
type RecordWriter struct {
	w *bufio.Writer
}

// NewRecordWriter creates a buffered raw writer. Call Flush when done.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: bufio.NewWriter(w)}
}

// WriteEvents appends one record per event.
func (w *RecordWriter) WriteEvents(events []itch.ByteEvent) error {
	for _, ev := range events {
		if err := w.w.WriteByte(ev.Byte); err != nil {
			return err
		}
		if err := w.w.WriteByte(ev.Flags()); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes buffered records to the underlying writer.
func (w *RecordWriter) Flush() error {
	return w.w.Flush()
}

// AppendRecords appends the raw encoding of events to dst.
func AppendRecords(dst []byte, events []itch.ByteEvent) []byte {
	for _, ev := range events {
		dst = append(dst, ev.Byte, ev.Flags())
	}
	return dst
}
