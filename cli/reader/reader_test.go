package reader

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"

	"github.com/justapithecus/ticktape/capture"
	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/lode"
	"github.com/justapithecus/ticktape/metrics"
)

func referenceCapture() *LoadedCapture {
	return &LoadedCapture{
		Path:   "reference.bin",
		Format: capture.FormatRaw,
		Events: capture.ReferenceSession(),
	}
}

func TestInspectCapture_Reference(t *testing.T) {
	resp, err := InspectCapture(referenceCapture(), DecodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 6 || resp.Decoded != 6 || resp.Truncated {
		t.Fatalf("messages=%d decoded=%d truncated=%v", len(resp.Messages), resp.Decoded, resp.Truncated)
	}
	wantTypes := "AFEXDU"
	for i, m := range resp.Messages {
		if m.Type != string(wantTypes[i]) || m.Seq != int64(i) {
			t.Errorf("message %d = %s seq %d", i, m.Type, m.Seq)
		}
	}
	if resp.Rejections["transport_invalid"] != 1 || resp.Rejections["unsupported_type"] != 1 {
		t.Errorf("rejections = %v", resp.Rejections)
	}
	if resp.Events != len(capture.ReferenceSession()) {
		t.Errorf("events = %d", resp.Events)
	}
}

func TestInspectCapture_Limit(t *testing.T) {
	resp, err := InspectCapture(referenceCapture(), DecodeOptions{MaxMessages: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Truncated || resp.Limit != 2 {
		t.Errorf("truncated=%v limit=%d", resp.Truncated, resp.Limit)
	}
	if len(resp.Messages) != 2 || resp.Decoded != 6 {
		t.Errorf("stored=%d decoded=%d, want 2/6", len(resp.Messages), resp.Decoded)
	}
}

func TestInspectCapture_StrictLength(t *testing.T) {
	resp, err := InspectCapture(referenceCapture(), DecodeOptions{StrictLength: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 5 || resp.Rejections["short_message"] != 1 {
		t.Errorf("messages=%d rejections=%v", len(resp.Messages), resp.Rejections)
	}
}

func TestNewMessageRow_AddOrderAttribution(t *testing.T) {
	m := capture.ReferenceMessages[1]
	m.Valid = true
	row := NewMessageRow(3, m)

	if row.Name != "add_order_attribution" || row.Side != "sell" || row.Symbol != "MSFT" {
		t.Errorf("row = %+v", row)
	}
	if row.Price != "412.3500" {
		t.Errorf("Price = %q, want 412.3500", row.Price)
	}
	if row.Attribution != "NSDX" {
		t.Errorf("Attribution = %q, want NSDX", row.Attribution)
	}
}

func TestNewMessageRow_DeleteOmitsSuffix(t *testing.T) {
	row := NewMessageRow(0, capture.ReferenceMessages[4])
	if row.Shares != 0 || row.Symbol != "" || row.Price != "" || row.Side != "" {
		t.Errorf("delete row carries suffix fields: %+v", row)
	}
	if row.OrderRefNo != 1001 {
		t.Errorf("OrderRefNo = %d", row.OrderRefNo)
	}
}

func TestFormatPrice(t *testing.T) {
	tests := map[uint32]string{0: "0.0000", 1: "0.0001", 4_123_500: "412.3500", 10_000: "1.0000"}
	for in, want := range tests {
		if got := FormatPrice(in); got != want {
			t.Errorf("FormatPrice(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestStatsForCapture(t *testing.T) {
	stats, err := StatsForCapture(t.Context(), referenceCapture(), DecodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Events != int64(len(capture.ReferenceSession())) {
		t.Errorf("Events = %d", stats.Events)
	}
	if stats.InvalidBytes != 2 || stats.Starts != 8 {
		t.Errorf("invalid=%d starts=%d, want 2/8", stats.InvalidBytes, stats.Starts)
	}
	if stats.Emitted != 6 || stats.Rejected != 2 {
		t.Errorf("emitted=%d rejected=%d, want 6/2", stats.Emitted, stats.Rejected)
	}
	if stats.EmittedByType["U"] != 1 {
		t.Errorf("EmittedByType = %v", stats.EmittedByType)
	}
}

func TestStepTrace(t *testing.T) {
	events := capture.ReferenceSession()
	rows := StepTrace(events, DecodeOptions{})
	if len(rows) != len(events) {
		t.Fatalf("rows = %d, want %d", len(rows), len(events))
	}

	var ready, rejects int
	for _, r := range rows {
		if r.Ready {
			ready++
			if r.Emitted == nil || !r.Emitted.Valid {
				t.Errorf("row %d ready without an emitted record", r.Index)
			}
		} else if r.Emitted != nil {
			t.Errorf("row %d carries a record without a pulse", r.Index)
		}
		if r.Reject != "" {
			rejects++
		}
	}
	if ready != 6 || rejects != 2 {
		t.Errorf("ready=%d rejects=%d, want 6/2", ready, rejects)
	}

	first := rows[0]
	if !first.Start || first.Byte != "41" || first.Type != "A" {
		t.Errorf("first row = %+v", first)
	}
	if rows[1].Offset != 1 {
		t.Errorf("offset after first payload byte = %d, want 1", rows[1].Offset)
	}
}

func TestLayoutTable(t *testing.T) {
	rows, err := LayoutTable(itch.MessageTypeOrderDelete)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("D rows = %d, want 4", len(rows))
	}
	last := rows[3]
	if last.Field != itch.FieldOrderRefNo.String() || last.Start != 11 || last.End != 18 || last.Terminal != 18 {
		t.Errorf("last D row = %+v", last)
	}

	all, err := LayoutTable()
	if err != nil {
		t.Fatal(err)
	}
	if all[0].Type != "A" || all[len(all)-1].Type != "X" {
		t.Errorf("layout order = %s..%s", all[0].Type, all[len(all)-1].Type)
	}

	if _, err := LayoutTable(itch.MessageType('Z')); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestLoadCapture_Formats(t *testing.T) {
	dir := t.TempDir()
	events := capture.ReferenceSession()

	raw := filepath.Join(dir, "session.bin")
	if err := os.WriteFile(raw, capture.AppendRecords(nil, events), 0o644); err != nil {
		t.Fatal(err)
	}

	var framedBuf bytes.Buffer
	fw, err := capture.NewFrameWriter(&framedBuf, capture.Info{Feed: "itch-test"})
	if err != nil {
		t.Fatal(err)
	}
	if err := fw.WriteEvents(events); err != nil {
		t.Fatal(err)
	}
	if err := fw.Flush(); err != nil {
		t.Fatal(err)
	}
	framed := filepath.Join(dir, "session.ttc")
	if err := os.WriteFile(framed, framedBuf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	var hexBuf bytes.Buffer
	if err := capture.FormatHexMessages(&hexBuf, events); err != nil {
		t.Fatal(err)
	}
	hexPath := filepath.Join(dir, "session.hex")
	if err := os.WriteFile(hexPath, hexBuf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path   string
		format capture.Format
		feed   string
	}{
		{raw, capture.FormatRaw, ""},
		{framed, capture.FormatFramed, "itch-test"},
		{hexPath, capture.FormatHex, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			c, err := LoadCapture(tt.path, capture.FormatAuto)
			if err != nil {
				t.Fatalf("LoadCapture: %v", err)
			}
			if c.Format != tt.format {
				t.Errorf("format = %s, want %s", c.Format, tt.format)
			}
			if tt.feed != "" && (c.Info == nil || c.Info.Feed != tt.feed) {
				t.Errorf("info = %+v", c.Info)
			}
			resp, err := InspectCapture(c, DecodeOptions{})
			if err != nil {
				t.Fatal(err)
			}
			if resp.Decoded < 5 {
				t.Errorf("decoded %d messages", resp.Decoded)
			}
		})
	}
}

func TestLoadCapture_Missing(t *testing.T) {
	_, err := LoadCapture(filepath.Join(t.TempDir(), "nope.bin"), "")
	if err == nil || !strings.Contains(err.Error(), "open capture") {
		t.Errorf("err = %v", err)
	}
}

func TestLodeReader(t *testing.T) {
	store := lodelibrary.NewMemory()
	factory := func() (lodelibrary.Store, error) { return store, nil }

	client, err := lode.NewLodeClientWithFactory(lode.Config{
		Feed: "itch-test", Day: "2026-10-19", SessionID: "sess-1",
	}, factory)
	if err != nil {
		t.Fatal(err)
	}
	msgs := itch.DecodeAll(capture.ReferenceSession())
	ptrs := make([]*itch.DecodedMessage, len(msgs))
	for i := range msgs {
		ptrs[i] = &msgs[i]
	}
	if err := client.WriteMessages(t.Context(), ptrs); err != nil {
		t.Fatal(err)
	}
	snap := metrics.Snapshot{MessagesEmitted: 6, Policy: "strict", Feed: "itch-test", SessionID: "sess-1"}
	if err := client.WriteMetrics(t.Context(), snap, time.Date(2026, 10, 19, 16, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}

	ds, err := lode.NewReadDataset(lode.DefaultDataset, factory)
	if err != nil {
		t.Fatal(err)
	}
	r := NewLodeReader(ds)

	rows, err := r.ListMessages(t.Context(), ListMessagesOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want 6", len(rows))
	}
	if rows[1].Symbol != "MSFT" || rows[1].Seq != 1 {
		t.Errorf("row 1 = %+v", rows[1])
	}

	rows, err = r.ListMessages(t.Context(), ListMessagesOptions{Type: "order_executed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].MatchNo != 90001 {
		t.Errorf("executed rows = %+v", rows)
	}

	if _, err := r.ListMessages(t.Context(), ListMessagesOptions{Type: "nope"}); err == nil {
		t.Error("expected error for unknown type filter")
	}

	latest, err := r.LatestMetrics(t.Context(), "sess-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if latest.MessagesEmitted != 6 || latest.Policy != "strict" || latest.Ts == "" {
		t.Errorf("latest = %+v", latest)
	}

	if _, err := r.LatestMetrics(t.Context(), "other", ""); err == nil {
		t.Error("expected error for unknown session")
	}
}
