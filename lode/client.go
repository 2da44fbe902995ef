package lode

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/metrics"
)

// LodeClient is a Lode-backed implementation of Client.
// Uses Lode's HiveLayout with partition keys: feed/day/session_id/record_type.
type LodeClient struct {
	dataset lode.Dataset
	config  Config

	mu  sync.Mutex // guards seq
	seq int64      // next message sequence number within the session

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LodeClient{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
	}, nil
}

// WriteMessages writes a batch of messages as one Lode snapshot.
// Sequence numbers advance only after the write succeeds, so a retried
// batch is written with the same seq values.
func (c *LodeClient) WriteMessages(ctx context.Context, msgs []*itch.DecodedMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	records := make([]any, 0, len(msgs))
	for i, m := range msgs {
		records = append(records, toMessageRecordMap(m, c.seq+int64(i), c.config))
	}

	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}

	c.seq += int64(len(msgs))
	return nil
}

// WriteMetrics persists a session metrics snapshot under record_type=metrics.
func (c *LodeClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	record := toMetricsRecordMap(snap, completedAt, c.config)
	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}
	return nil
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// newDataset builds a dataset with the shared codec and layout.
func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

var (
	_ Client        = (*LodeClient)(nil)
	_ MetricsWriter = (*LodeClient)(nil)
)

// MetricsWriter persists session metrics.
type MetricsWriter interface {
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error
}
