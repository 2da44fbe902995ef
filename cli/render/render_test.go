package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
		{"csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	if _, err := ParseFormat("xml"); err == nil || !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error should list valid formats, got: %v", err)
	}
}

type row struct {
	Seq    int64  `json:"seq"`
	Type   string `json:"msg_type"`
	Symbol string `json:"symbol,omitempty"`
	hidden string
}

type Counts struct {
	Emitted  int64            `json:"emitted"`
	ByReason map[string]int64 `json:"rejected_by_reason"`
	Internal string           `json:"-"`
}

type wrapped struct {
	Ts string `json:"ts"`
	Counts
}

type messageTable []row

func (m messageTable) TableHeaders() []string { return []string{"SEQ", "TYPE"} }

func (m messageTable) TableRows() [][]string {
	out := make([][]string, 0, len(m))
	for _, r := range m {
		out = append(out, []string{"#" + r.Type, r.Symbol})
	}
	return out
}

func TestRenderer_JSONAndYAML(t *testing.T) {
	data := []row{{Seq: 0, Type: "A", Symbol: "MSFT"}}

	var jbuf bytes.Buffer
	if err := NewRendererWithWriter(FormatJSON, false, &jbuf).Render(data); err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(jbuf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, jbuf.String())
	}
	if decoded[0]["msg_type"] != "A" {
		t.Errorf("decoded = %v", decoded)
	}

	var ybuf bytes.Buffer
	if err := NewRendererWithWriter(FormatYAML, false, &ybuf).Render(map[string]string{"feed": "itch"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ybuf.String(), "feed: itch") {
		t.Errorf("YAML output = %q", ybuf.String())
	}
}

func TestRenderer_TableSlice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	data := []row{
		{Seq: 0, Type: "A", Symbol: "STOCK", hidden: "x"},
		{Seq: 1, Type: "D"},
	}
	if err := r.Render(data); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), buf.String())
	}
	if f := strings.Fields(lines[0]); len(f) != 3 || f[0] != "seq" || f[1] != "msg_type" || f[2] != "symbol" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "STOCK") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if strings.Contains(buf.String(), "hidden") {
		t.Error("unexported field rendered")
	}
}

func TestRenderer_TableEmptySlice(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRendererWithWriter(FormatTable, false, &buf).Render([]row{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("got %q", buf.String())
	}
}

func TestRenderer_TableStruct(t *testing.T) {
	var buf bytes.Buffer
	data := &wrapped{
		Ts:     "2026-10-19T16:00:00Z",
		Counts: Counts{Emitted: 6, ByReason: map[string]int64{"unsupported_type": 1, "transport_invalid": 1}, Internal: "secret"},
	}
	if err := NewRendererWithWriter(FormatTable, true, &buf).Render(data); err != nil {
		t.Fatal(err)
	}
	got := buf.String()

	if !strings.Contains(got, "ts:") || !strings.Contains(got, "emitted:") {
		t.Errorf("missing fields:\n%s", got)
	}
	if !strings.Contains(got, "transport_invalid=1 unsupported_type=1") {
		t.Errorf("map should render sorted inline:\n%s", got)
	}
	if strings.Contains(got, "secret") {
		t.Errorf("json:\"-\" field rendered:\n%s", got)
	}
}

func TestRenderer_TableMapSorted(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]int{"x": 1, "a": 2, "m": 3}
	if err := NewRendererWithWriter(FormatTable, true, &buf).Render(data); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "a:") || !strings.HasPrefix(lines[2], "x:") {
		t.Errorf("map lines not sorted: %q", lines)
	}
}

func TestRenderer_Tabular(t *testing.T) {
	var buf bytes.Buffer
	data := messageTable{{Type: "F", Symbol: "MSFT"}}
	if err := NewRendererWithWriter(FormatTable, true, &buf).Render(data); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	if !strings.Contains(got, "SEQ") || !strings.Contains(got, "#F") {
		t.Errorf("Tabular layout not used:\n%s", got)
	}
}

func TestRenderer_NoColor(t *testing.T) {
	data := []row{{Type: "A"}}

	var plain bytes.Buffer
	if err := NewRendererWithWriter(FormatTable, true, &plain).Render(data); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(plain.String(), "\x1b[") {
		t.Errorf("--no-color output has escape codes: %q", plain.String())
	}

	var a, b bytes.Buffer
	_ = NewRendererWithWriter(FormatJSON, false, &a).Render(data)
	_ = NewRendererWithWriter(FormatJSON, true, &b).Render(data)
	if a.String() != b.String() {
		t.Error("--no-color should not affect JSON output")
	}
}

func TestRenderer_TUIUnsupported(t *testing.T) {
	r := NewRendererWithWriter(FormatTable, false, &bytes.Buffer{})
	if err := r.RenderTUI("list_messages", nil); err == nil {
		t.Error("expected error for unsupported TUI view")
	}
}
