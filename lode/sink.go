// Package lode persists decoded messages and session metrics to a Lode
// dataset.
//
// Records are JSONL, Hive-partitioned by feed/day/session_id/record_type.
package lode

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/policy"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "ticktape"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"feed", "day", "session_id", "record_type"}

// DeriveDay computes the partition day from session start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds Lode sink configuration.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Feed is the partition key for the capture source.
	Feed string
	// Day is the partition key derived from session start (YYYY-MM-DD UTC).
	Day string
	// SessionID is the partition key for the decode session.
	SessionID string
}

// Client abstracts the Lode storage client.
type Client interface {
	// WriteMessages writes a batch of messages. Must preserve ordering
	// within the batch.
	WriteMessages(ctx context.Context, msgs []*itch.DecodedMessage) error

	// Close releases client resources.
	Close() error
}

// Sink is a Lode-backed implementation of policy.Sink.
type Sink struct {
	client Client
}

// NewSink creates a new Lode sink.
func NewSink(client Client) *Sink {
	return &Sink{client: client}
}

// WriteMessages implements policy.Sink.
func (s *Sink) WriteMessages(ctx context.Context, msgs []*itch.DecodedMessage) error {
	return s.client.WriteMessages(ctx, msgs)
}

// Close implements policy.Sink.
func (s *Sink) Close() error {
	return s.client.Close()
}

var _ policy.Sink = (*Sink)(nil)

// StubClient records writes without persisting them.
type StubClient struct {
	mu      sync.Mutex
	Batches [][]*itch.DecodedMessage
	Closed  bool
	// Err, when set, is returned from every write.
	Err error
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteMessages implements Client.
func (c *StubClient) WriteMessages(_ context.Context, msgs []*itch.DecodedMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Batches = append(c.Batches, msgs)
	return nil
}

// Messages returns every recorded message in write order.
func (c *StubClient) Messages() []*itch.DecodedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*itch.DecodedMessage
	for _, b := range c.Batches {
		out = append(out, b...)
	}
	return out
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	c.Closed = true
	c.mu.Unlock()
	return nil
}

var _ Client = (*StubClient)(nil)
