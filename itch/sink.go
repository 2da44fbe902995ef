package itch

import (
	"errors"
	"fmt"
)

// ErrCountExceeded is matched by *CountExceededError.
var ErrCountExceeded = errors.New("message count exceeded batch limit")

// CountExceededError reports a pass that decoded more messages than the
// batch could hold. The pass itself ran to completion.
type CountExceededError struct {
	Limit   int
	Decoded int
}

func (e *CountExceededError) Error() string {
	return fmt.Sprintf("decoded %d messages, batch limit is %d", e.Decoded, e.Limit)
}

// Is reports whether target is ErrCountExceeded.
func (e *CountExceededError) Is(target error) bool {
	return target == ErrCountExceeded
}

// Batch is an append-only, ordered collection of decoded messages.
type Batch struct {
	limit    int
	messages []DecodedMessage
	decoded  int
}

// NewBatch returns an empty batch. A limit of 0 means unbounded.
func NewBatch(limit int) *Batch {
	if limit < 0 {
		limit = 0
	}
	return &Batch{limit: limit}
}

// Add appends m. It reports false when the batch is full; the message is
// still counted in Decoded.
func (b *Batch) Add(m DecodedMessage) bool {
	b.decoded++
	if b.limit > 0 && len(b.messages) >= b.limit {
		return false
	}
	b.messages = append(b.messages, m)
	return true
}

// Messages returns the stored messages in emission order. The slice is
// owned by the batch.
func (b *Batch) Messages() []DecodedMessage { return b.messages }

// Len is the number of stored messages.
func (b *Batch) Len() int { return len(b.messages) }

// Decoded is the number of messages offered to the batch, stored or not.
func (b *Batch) Decoded() int { return b.decoded }

// Limit returns the configured capacity, 0 for unbounded.
func (b *Batch) Limit() int { return b.limit }

// Overflowed reports whether any message was not stored.
func (b *Batch) Overflowed() bool { return b.decoded > len(b.messages) }

// DecodeInto feeds every event to d and appends each emitted message to b.
// The whole sequence is always consumed. If b overflowed during this call
// the result is a *CountExceededError.
func DecodeInto(d *Decoder, events []ByteEvent, b *Batch) error {
	before := b.decoded - len(b.messages)
	for _, ev := range events {
		if m, ok := d.Accept(ev); ok {
			b.Add(m)
		}
	}
	if b.decoded-len(b.messages) > before {
		return &CountExceededError{Limit: b.limit, Decoded: b.decoded}
	}
	return nil
}

// DecodeAll runs a fresh decoder over events and returns every emitted message.
func DecodeAll(events []ByteEvent, opts ...Option) []DecodedMessage {
	b := NewBatch(0)
	_ = DecodeInto(NewDecoder(opts...), events, b)
	return b.Messages()
}

// Stepper is the single-step convention: one event in, a one-shot ready
// pulse out, and the last emitted record held in place.
type Stepper struct {
	dec   *Decoder
	ready bool
	regs  DecodedMessage
}

// NewStepper wraps a new decoder built with opts.
func NewStepper(opts ...Option) *Stepper {
	return &Stepper{dec: NewDecoder(opts...)}
}

// Step consumes ev and returns the ready pulse.
func (s *Stepper) Step(ev ByteEvent) bool {
	m, ok := s.dec.Accept(ev)
	s.ready = ok
	if ok {
		s.regs = m
	}
	return ok
}

// Ready is true only after the step that emitted.
func (s *Stepper) Ready() bool { return s.ready }

// Registers returns the last emitted record. It keeps its value until the
// next emission.
func (s *Stepper) Registers() DecodedMessage { return s.regs }

// State exposes the underlying decoder registers.
func (s *Stepper) State() State { return s.dec.State() }

// Reset clears the decoder, the pulse and the held record.
func (s *Stepper) Reset() {
	s.dec.Reset()
	s.ready = false
	s.regs = DecodedMessage{}
}
