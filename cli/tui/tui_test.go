package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/ticktape/cli/reader"
)

func TestIsTUISupported(t *testing.T) {
	tests := []struct {
		viewType string
		want     bool
	}{
		{"inspect_capture", true},
		{"stats_capture", true},
		{"stats_metrics", true},

		// Not supported: list, layout and debug
		{"list_messages", false},
		{"layout", false},
		{"debug_step", false},

		{"version", false},
		{"decode", false},
		{"unknown", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.viewType, func(t *testing.T) {
			got := IsTUISupported(tt.viewType)
			if got != tt.want {
				t.Errorf("IsTUISupported(%q) = %v, want %v", tt.viewType, got, tt.want)
			}
		})
	}
}

func TestSupportedTUIViews(t *testing.T) {
	views := SupportedTUIViews()
	if len(views) != 3 {
		t.Errorf("SupportedTUIViews() returned %d views, expected 3", len(views))
	}
	for _, v := range views {
		if !IsTUISupported(v) {
			t.Errorf("SupportedTUIViews() returned %q but IsTUISupported returns false", v)
		}
	}
}

func TestRun_UnsupportedViewType(t *testing.T) {
	if err := Run("list_messages", nil); err == nil {
		t.Error("Expected error for unsupported view type")
	}
}

func sampleInspect() *reader.InspectCaptureResponse {
	return &reader.InspectCaptureResponse{
		Path:       "ref.hex",
		Format:     "hex",
		Events:     120,
		Decoded:    2,
		Limit:      1,
		Truncated:  true,
		Rejections: map[string]int64{"unsupported_type": 1},
		Messages: []reader.MessageRow{
			{Seq: 0, Type: "A", StockLocate: 7, Timestamp: 42, OrderRefNo: 9, Side: "B", Shares: 100, Symbol: "AAPL", Price: "150.2500", Valid: true},
		},
	}
}

func TestRenderInspectStatic(t *testing.T) {
	out := RenderInspectStatic(ViewInspectCapture, sampleInspect())
	for _, want := range []string{"ref.hex", "AAPL", "150.2500", "first 1", "unsupported_type=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderInspectStatic_WrongData(t *testing.T) {
	out := RenderInspectStatic(ViewInspectCapture, &reader.CaptureStats{})
	if !strings.Contains(out, "Invalid data type") {
		t.Errorf("expected invalid data message, got:\n%s", out)
	}
}

func TestInspectModel_Quit(t *testing.T) {
	m := NewInspectModel(ViewInspectCapture, sampleInspect())
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if v := next.View(); v != "" {
		t.Errorf("View() after quit = %q, want empty", v)
	}
}

func TestRenderStatsStatic_Capture(t *testing.T) {
	stats := &reader.CaptureStats{
		Events:           120,
		InvalidBytes:     2,
		Emitted:          6,
		Rejected:         2,
		EmittedByType:    map[string]int64{"A": 1, "F": 1},
		RejectedByReason: map[string]int64{"transport_invalid": 1},
	}
	out := RenderStatsStatic(ViewStatsCapture, stats)
	for _, want := range []string{"Capture Statistics", "120", "A=1 F=1", "transport_invalid=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStatsStatic_Metrics(t *testing.T) {
	snap := &reader.MetricsSnapshot{Ts: "2026-10-19T00:00:00Z"}
	snap.SessionID = "sess-001"
	snap.Feed = "itch-test"
	snap.Policy = "strict"
	snap.MessagesPersisted = 6
	snap.DroppedByType = map[string]int64{"D": 3}

	out := RenderStatsStatic(ViewStatsMetrics, snap)
	for _, want := range []string{"sess-001", "itch-test", "strict", "Persisted", "D=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStateStyle(t *testing.T) {
	if StateStyle("completed").GetForeground() != successColor {
		t.Error("completed should use success color")
	}
	if StateStyle("policy_failure").GetForeground() != errorColor {
		t.Error("policy_failure should use error color")
	}
}
