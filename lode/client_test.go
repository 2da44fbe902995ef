package lode

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/metrics"
)

// sharedFactory lets write and read datasets share one in-memory store.
func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func testConfig(session string) Config {
	return Config{
		Dataset:   "ticktape",
		Feed:      "itch-test",
		Day:       "2026-10-19",
		SessionID: session,
	}
}

func addOrder(ref uint64, symbol string) *itch.DecodedMessage {
	return &itch.DecodedMessage{
		Valid:       true,
		Type:        itch.MessageTypeAddOrder,
		StockLocate: 7,
		TrackingNo:  2,
		Timestamp:   0x0000_1234_5678_9abc,
		OrderRefNo:  ref,
		BuySell:     'B',
		Shares:      100,
		Stock:       itch.StockFromSymbol(symbol),
		Price:       1_234_500,
	}
}

func orderDelete(ref uint64) *itch.DecodedMessage {
	return &itch.DecodedMessage{
		Valid:       true,
		Type:        itch.MessageTypeOrderDelete,
		StockLocate: 7,
		Timestamp:   42,
		OrderRefNo:  ref,
	}
}

func TestLodeClient_WriteAndQueryMessages(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)

	client, err := NewLodeClientWithFactory(testConfig("sess-1"), factory)
	if err != nil {
		t.Fatalf("NewLodeClientWithFactory: %v", err)
	}

	// 64-bit values above 2^53 must survive the JSON round trip.
	big := uint64(0xfedc_ba98_7654_3210)
	if err := client.WriteMessages(t.Context(), []*itch.DecodedMessage{addOrder(big, "AAPL"), orderDelete(big)}); err != nil {
		t.Fatalf("WriteMessages: %v", err)
	}
	if err := client.WriteMessages(t.Context(), []*itch.DecodedMessage{addOrder(3, "MSFT")}); err != nil {
		t.Fatalf("WriteMessages: %v", err)
	}

	ds, err := NewReadDataset("ticktape", factory)
	if err != nil {
		t.Fatalf("NewReadDataset: %v", err)
	}

	got, err := QueryMessages(t.Context(), ds, Filter{})
	if err != nil {
		t.Fatalf("QueryMessages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}

	for i, r := range got {
		if r.Seq != int64(i) {
			t.Errorf("record %d seq = %d", i, r.Seq)
		}
		if r.SessionID != "sess-1" || r.Feed != "itch-test" || r.Day != "2026-10-19" {
			t.Errorf("record %d partition = %+v", i, r)
		}
	}

	if want := *addOrder(big, "AAPL"); got[0].Message != want {
		t.Errorf("add order round trip:\n got %+v\nwant %+v", got[0].Message, want)
	}
	if want := *orderDelete(big); got[1].Message != want {
		t.Errorf("order delete round trip:\n got %+v\nwant %+v", got[1].Message, want)
	}
	if sym := got[2].Message.Symbol(); sym != "MSFT" {
		t.Errorf("symbol = %q, want MSFT", sym)
	}
}

func TestQueryMessages_Filters(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)

	for _, sess := range []string{"s-1", "s-10"} {
		c, err := NewLodeClientWithFactory(testConfig(sess), factory)
		if err != nil {
			t.Fatal(err)
		}
		msgs := []*itch.DecodedMessage{addOrder(1, "A"), orderDelete(1), addOrder(2, "B")}
		if err := c.WriteMessages(t.Context(), msgs); err != nil {
			t.Fatal(err)
		}
	}

	ds, err := NewReadDataset("", factory)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 6},
		{"session exact match", Filter{SessionID: "s-1"}, 3},
		{"type", Filter{Type: itch.MessageTypeOrderDelete}, 2},
		{"session and type", Filter{SessionID: "s-10", Type: itch.MessageTypeAddOrder}, 2},
		{"limit", Filter{Limit: 4}, 4},
		{"no match", Filter{Feed: "other"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QueryMessages(t.Context(), ds, tt.filter)
			if err != nil {
				t.Fatalf("QueryMessages: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestLodeClient_SeqNotAdvancedOnFailure(t *testing.T) {
	calls := 0
	failing := func() (lode.Store, error) {
		calls++
		return nil, errors.New("dial tcp: connection refused")
	}
	client, err := NewLodeClientWithFactory(testConfig("s"), failing)
	if err != nil {
		// Some lode versions open the store eagerly.
		if !errors.Is(err, ErrNetwork) {
			t.Fatalf("init error not classified: %v", err)
		}
		return
	}

	err = client.WriteMessages(t.Context(), []*itch.DecodedMessage{addOrder(1, "A")})
	if err == nil {
		t.Fatal("expected write error")
	}
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("write error not classified as network: %v", err)
	}
	if client.seq != 0 {
		t.Errorf("seq advanced to %d after failed write", client.seq)
	}
}

func TestLodeClient_EmptyBatch(t *testing.T) {
	client, err := NewLodeClientWithFactory(testConfig("s"), lode.NewMemoryFactory())
	if err != nil {
		t.Fatal(err)
	}
	if err := client.WriteMessages(t.Context(), nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}

func TestWriteMetrics_QueryLatest(t *testing.T) {
	store := lode.NewMemory()
	factory := sharedFactory(store)

	for i, sess := range []string{"sess-a", "sess-b"} {
		client, err := NewLodeClientWithFactory(testConfig(sess), factory)
		if err != nil {
			t.Fatal(err)
		}
		c := metrics.NewCollector("strict", "memory", "itch-test", sess)
		c.IncSessionStarted()
		c.IncSessionCompleted()
		c.AddBytes(int64(100*(i+1)), 1)
		c.IncEmitted("A")
		c.IncRejected("truncated")
		c.AbsorbPolicyStats(1, 1, 0, map[string]int64{})
		at := time.Date(2026, 10, 19, 12, i, 0, 0, time.UTC)
		if err := client.WriteMetrics(t.Context(), c.Snapshot(), at); err != nil {
			t.Fatalf("WriteMetrics: %v", err)
		}
	}

	ds, err := NewReadDataset("ticktape", factory)
	if err != nil {
		t.Fatal(err)
	}

	record, err := QueryLatestMetrics(t.Context(), ds, "", "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics: %v", err)
	}
	if got := toString(record["session_id"]); got != "sess-b" {
		t.Errorf("latest session = %q, want sess-b", got)
	}

	record, err = QueryLatestMetrics(t.Context(), ds, "sess-a", "")
	if err != nil {
		t.Fatalf("QueryLatestMetrics(sess-a): %v", err)
	}
	snap := ParseMetricsRecord(record)
	if snap.BytesReceived != 100 || snap.BytesInvalid != 1 {
		t.Errorf("bytes = %d/%d, want 100/1", snap.BytesReceived, snap.BytesInvalid)
	}
	if snap.EmittedByType["A"] != 1 || snap.RejectedByReason["truncated"] != 1 {
		t.Errorf("maps = %v %v", snap.EmittedByType, snap.RejectedByReason)
	}
	if snap.Policy != "strict" || snap.StorageBackend != "memory" {
		t.Errorf("dimensions = %q/%q", snap.Policy, snap.StorageBackend)
	}

	// Metrics records are not messages.
	msgs, err := QueryMessages(t.Context(), ds, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("QueryMessages returned %d metrics records", len(msgs))
	}
}

func TestQueryLatestMetrics_NotFound(t *testing.T) {
	ds, err := NewReadDataset("ticktape", lode.NewMemoryFactory())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := QueryLatestMetrics(t.Context(), ds, "", ""); !errors.Is(err, ErrNoMetricsFound) {
		t.Errorf("err = %v, want ErrNoMetricsFound", err)
	}
}

func TestPutFile(t *testing.T) {
	store := lode.NewMemory()
	client, err := NewLodeClientWithFactory(testConfig("sess-1"), sharedFactory(store))
	if err != nil {
		t.Fatal(err)
	}

	if err := client.PutFile(t.Context(), "report.json", "application/json", []byte(`{}`)); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	want := "datasets/ticktape/partitions/feed=itch-test/day=2026-10-19/session_id=sess-1/files/report.json"
	if got := client.filePath("report.json"); got != want {
		t.Errorf("filePath = %q, want %q", got, want)
	}

	for _, bad := range []string{"", "../x", "a/b"} {
		if err := client.PutFile(t.Context(), bad, "", nil); err == nil || !strings.Contains(err.Error(), "invalid") {
			t.Errorf("PutFile(%q) err = %v", bad, err)
		}
	}
}

func TestDeriveDay(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	if got := DeriveDay(time.Date(2026, 10, 19, 22, 0, 0, 0, loc)); got != "2026-10-20" {
		t.Errorf("DeriveDay = %q, want 2026-10-20", got)
	}
}
