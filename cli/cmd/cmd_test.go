package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	ttconfig "github.com/justapithecus/ticktape/cli/config"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := ReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestTUIReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := TUIReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("TUIReadOnlyFlags should include --tui flag")
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// This test documents the function exists and can be called.
	// Actual TTY behavior depends on runtime environment.
	_ = isStderrTTY()
}

// --- Config precedence ---

// newTestCLIContext builds a minimal *cli.Context with the given flags set.
// flagValues maps flag names to their string values. All listed flags are
// registered and marked as explicitly set (c.IsSet returns true).
// defaultFlags maps flag names to default values (not explicitly set).
func newTestCLIContext(t *testing.T, flagValues map[string]string, defaultFlags map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()

	allFlags := make(map[string]string)
	for k, v := range defaultFlags {
		allFlags[k] = v
	}
	for k, v := range flagValues {
		allFlags[k] = v
	}

	var cliFlags []cli.Flag
	for name, val := range allFlags {
		cliFlags = append(cliFlags, &cli.StringFlag{Name: name, Value: val})
	}
	app.Flags = cliFlags

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name, val := range allFlags {
		fs.String(name, val, "")
	}
	for name, val := range flagValues {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}

	return cli.NewContext(app, fs, nil)
}

func TestResolveString_CLIWins(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"feed": "cli-val"}, nil)
	if got := resolveString(c, "feed", "config-val"); got != "cli-val" {
		t.Errorf("expected CLI to win, got %q", got)
	}
}

func TestResolveString_ConfigFallback(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"feed": ""})
	if got := resolveString(c, "feed", "config-val"); got != "config-val" {
		t.Errorf("expected config fallback, got %q", got)
	}
}

func TestResolveString_FlagDefault(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"policy": "strict"})
	if got := resolveString(c, "policy", ""); got != "strict" {
		t.Errorf("expected flag default, got %q", got)
	}
}

func TestConfigVal(t *testing.T) {
	get := func(c *ttconfig.Config) string { return c.Feed }
	if got := configVal(nil, get); got != "" {
		t.Errorf("expected empty for nil config, got %q", got)
	}
	if got := configVal(&ttconfig.Config{Feed: "itch"}, get); got != "itch" {
		t.Errorf("expected itch, got %q", got)
	}
}

func TestResolveInt_CLIWins(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.IntFlag{Name: "flush-count"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Int("flush-count", 0, "")
	_ = fs.Set("flush-count", "500")
	c := cli.NewContext(app, fs, nil)

	if got := resolveInt(c, "flush-count", 1000); got != 500 {
		t.Errorf("expected CLI to win with 500, got %d", got)
	}
}

func TestResolveInt_ConfigFallback(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.IntFlag{Name: "flush-count"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Int("flush-count", 0, "")
	c := cli.NewContext(app, fs, nil)

	if got := resolveInt(c, "flush-count", 1000); got != 1000 {
		t.Errorf("expected config fallback 1000, got %d", got)
	}
}

func TestResolveBool_ExplicitFalseWins(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.BoolFlag{Name: "strict-length"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("strict-length", false, "")
	_ = fs.Set("strict-length", "false")
	c := cli.NewContext(app, fs, nil)

	if resolveBool(c, "strict-length", true) {
		t.Error("explicit --strict-length=false should override config true")
	}
}

func TestResolveDuration_ConfigFallback(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.DurationFlag{Name: "flush-interval"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Duration("flush-interval", 0, "")
	c := cli.NewContext(app, fs, nil)

	if got := resolveDuration(c, "flush-interval", 5*time.Second); got != 5*time.Second {
		t.Errorf("expected 5s, got %s", got)
	}
}

func TestValidatePolicyConfig(t *testing.T) {
	tests := []struct {
		name    string
		choice  policyChoice
		wantErr bool
	}{
		{"strict", policyChoice{name: "strict"}, false},
		{"noop", policyChoice{name: "noop"}, false},
		{"buffered with count", policyChoice{name: "buffered", bufferMessages: 10}, false},
		{"buffered with bytes", policyChoice{name: "buffered", bufferBytes: 1024}, false},
		{"buffered without limits", policyChoice{name: "buffered"}, true},
		{"streaming with count", policyChoice{name: "streaming", flushCount: 4}, false},
		{"streaming with interval", policyChoice{name: "streaming", flushInterval: time.Second}, false},
		{"streaming without triggers", policyChoice{name: "streaming"}, true},
		{"unknown", policyChoice{name: "lossy"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePolicyConfig(tt.choice)
			if (err != nil) != tt.wantErr {
				t.Errorf("validatePolicyConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildAdapter(t *testing.T) {
	a, err := buildAdapter(adapterChoice{})
	if err != nil || a != nil {
		t.Errorf("no adapter configured: got %v, %v", a, err)
	}

	if _, err := buildAdapter(adapterChoice{kind: "webhook"}); err == nil {
		t.Error("webhook without URL should fail")
	}
	if _, err := buildAdapter(adapterChoice{kind: "carrier-pigeon"}); err == nil {
		t.Error("unknown adapter should fail")
	}

	a, err = buildAdapter(adapterChoice{kind: "redis", url: "redis://localhost:6379/0", retries: 1})
	if err != nil {
		t.Fatalf("redis adapter: %v", err)
	}
	_ = a.Close()
}

func TestStorageChoice_Location(t *testing.T) {
	tests := []struct {
		choice storageChoice
		want   string
	}{
		{storageChoice{backend: "fs", path: "/data/tt"}, "/data/tt"},
		{storageChoice{backend: "s3", path: "bucket/prefix"}, "s3://bucket/prefix"},
		{storageChoice{backend: "memory", dataset: "ticktape"}, "mem://ticktape"},
	}
	for _, tt := range tests {
		if got := tt.choice.location(); got != tt.want {
			t.Errorf("location() = %q, want %q", got, tt.want)
		}
	}
}

func TestWindow(t *testing.T) {
	rows := []int{0, 1, 2, 3, 4}
	tests := []struct {
		from, count int
		want        int
	}{
		{0, 0, 5},
		{2, 0, 3},
		{2, 2, 2},
		{4, 10, 1},
		{9, 1, 0},
		{-1, 1, 1},
	}
	for _, tt := range tests {
		if got := window(rows, tt.from, tt.count); len(got) != tt.want {
			t.Errorf("window(%d, %d) len = %d, want %d", tt.from, tt.count, len(got), tt.want)
		}
	}
}

// --- End to end through the app ---

func newTestApp(out *bytes.Buffer) *cli.App {
	return &cli.App{
		Name:           "ticktape",
		Writer:         out,
		ErrWriter:      out,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			DecodeCommand(),
			InspectCommand(),
			StatsCommand(),
			ListCommand(),
			LayoutCommand(),
			DebugCommand(),
			EncodeCommand(),
			VersionCommand("test"),
		},
	}
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newTestApp(&out).Run(append([]string{"ticktape"}, args...))
	return out.String(), err
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// writeReference encodes the reference session into dir and returns its path.
func writeReference(t *testing.T, dir, to string) string {
	t.Helper()
	path := filepath.Join(dir, "reference."+to)
	if _, err := runApp(t, "encode", "--reference", "--to", to, "--feed", "itch-test", "-o", path); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func TestDecode_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	capPath := writeReference(t, dir, "framed")
	store := filepath.Join(dir, "store")
	report := filepath.Join(dir, "report.json")

	out, err := runApp(t, "decode",
		"--session-id", "sess-001",
		"--feed", "itch-test",
		"--day", "2026-10-19",
		"--storage-path", store,
		"--report", report,
		"--log-level", "error",
		capPath,
	)
	if err != nil {
		t.Fatalf("decode returned %v\n%s", err, out)
	}
	if !strings.Contains(out, "outcome=completed") {
		t.Errorf("summary missing outcome:\n%s", out)
	}

	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var rep map[string]any
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatalf("report JSON: %v", err)
	}
	if rep["outcome"] != "completed" || rep["message_count"] != float64(6) || rep["rejected_count"] != float64(2) {
		t.Errorf("report = %v", rep)
	}

	// Metrics read back from the same store.
	out, err = runApp(t, "stats", "metrics", "--storage-path", store, "--session-id", "sess-001", "--format", "json")
	if err != nil {
		t.Fatalf("stats metrics: %v", err)
	}
	var snap map[string]any
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("metrics JSON: %v\n%s", err, out)
	}
	if snap["messages_emitted"] != float64(6) || snap["messages_persisted"] != float64(6) {
		t.Errorf("metrics = %v", snap)
	}

	// Messages listed by type.
	out, err = runApp(t, "list", "messages", "--storage-path", store, "--type", "A", "--format", "json")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("list JSON: %v\n%s", err, out)
	}
	if len(rows) != 1 || rows[0]["symbol"] != "STOCK" {
		t.Errorf("list rows = %v", rows)
	}
}

func TestDecode_ConfigFileStreamingPolicy(t *testing.T) {
	dir := t.TempDir()
	capPath := writeReference(t, dir, "raw")
	cfgPath := filepath.Join(dir, "ticktape.yaml")
	cfg := "feed: itch-test\npolicy:\n  name: streaming\n  flush_count: 4\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	report := filepath.Join(dir, "report.json")

	_, err := runApp(t, "decode",
		"--config", cfgPath,
		"--session-id", "sess-002",
		"--day", "2026-10-19",
		"--report", report,
		"--log-level", "error",
		"--quiet",
		capPath,
	)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var rep struct {
		Feed   string `json:"feed"`
		Policy struct {
			Name          string           `json:"name"`
			FlushTriggers map[string]int64 `json:"flush_triggers"`
		} `json:"policy"`
	}
	if err := json.Unmarshal(data, &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Feed != "itch-test" || rep.Policy.Name != "streaming" {
		t.Errorf("report feed/policy = %q/%q", rep.Feed, rep.Policy.Name)
	}
	if rep.Policy.FlushTriggers["count"] != 1 || rep.Policy.FlushTriggers["termination"] != 1 {
		t.Errorf("flush triggers = %v", rep.Policy.FlushTriggers)
	}
}

func TestDecode_CaptureErrorExitCode(t *testing.T) {
	dir := t.TempDir()
	capPath := writeReference(t, dir, "raw")
	f, err := os.OpenFile(capPath, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.Write([]byte{0x41})
	_ = f.Close()

	_, err = runApp(t, "decode", "--session-id", "s", "--feed", "f", "--input-format", "raw", "--log-level", "error", "--quiet", capPath)
	if got := exitCode(err); got != 2 {
		t.Errorf("exit code = %d, want 2 (err %v)", got, err)
	}
}

func TestDecode_InvalidPolicyIsUsageError(t *testing.T) {
	dir := t.TempDir()
	capPath := writeReference(t, dir, "raw")
	_, err := runApp(t, "decode", "--session-id", "s", "--feed", "f", "--policy", "buffered", capPath)
	if got := exitCode(err); got != exitConfigError {
		t.Errorf("exit code = %d, want %d", got, exitConfigError)
	}
}

func TestDecode_MissingFeed(t *testing.T) {
	dir := t.TempDir()
	capPath := writeReference(t, dir, "raw")
	_, err := runApp(t, "decode", "--session-id", "s", capPath)
	if err == nil || !strings.Contains(err.Error(), "feed") {
		t.Errorf("expected feed validation error, got %v", err)
	}
}

func TestInspect_MaxMessages(t *testing.T) {
	dir := t.TempDir()
	capPath := writeReference(t, dir, "hex")

	out, err := runApp(t, "inspect", "--format", "json", "--max-messages", "2", capPath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var resp struct {
		Format    string           `json:"format"`
		Decoded   int              `json:"decoded"`
		Truncated bool             `json:"truncated"`
		Messages  []map[string]any `json:"messages"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("inspect JSON: %v\n%s", err, out)
	}
	if resp.Format != "hex" || resp.Decoded != 6 || !resp.Truncated || len(resp.Messages) != 2 {
		t.Errorf("inspect = %+v", resp)
	}
}

func TestStatsCapture_StrictLength(t *testing.T) {
	dir := t.TempDir()
	capPath := writeReference(t, dir, "framed")

	out, err := runApp(t, "stats", "capture", "--format", "json", "--strict-length", capPath)
	if err != nil {
		t.Fatalf("stats capture: %v", err)
	}
	var stats map[string]any
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats JSON: %v\n%s", err, out)
	}
	if stats["emitted"] != float64(5) || stats["rejected"] != float64(3) {
		t.Errorf("stats = %v", stats)
	}
}

func TestLayout_SingleType(t *testing.T) {
	out, err := runApp(t, "layout", "--format", "json", "D")
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("layout JSON: %v", err)
	}
	if len(rows) != 4 || rows[0]["terminal"] != float64(18) {
		t.Errorf("D layout rows = %v", rows)
	}
}

func TestLayout_UnknownType(t *testing.T) {
	_, err := runApp(t, "layout", "Z")
	if exitCode(err) != 1 {
		t.Errorf("expected exit 1 for unknown type, got %v", err)
	}
}

func TestDebugStep_Window(t *testing.T) {
	dir := t.TempDir()
	capPath := writeReference(t, dir, "raw")

	out, err := runApp(t, "debug", "step", "--format", "json", "--count", "3", capPath)
	if err != nil {
		t.Fatalf("debug step: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("step JSON: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0]["start"] != true || rows[0]["msg_type"] != "A" || rows[1]["byte_offset"] != float64(1) {
		t.Errorf("rows = %v", rows)
	}
}

func TestVersion_RejectsTUI(t *testing.T) {
	_, err := runApp(t, "version", "--tui")
	if exitCode(err) != 1 {
		t.Errorf("expected exit 1, got %v", err)
	}
}

func TestVersion_JSON(t *testing.T) {
	out, err := runApp(t, "version", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"commit": "test"`) && !strings.Contains(out, `"commit":"test"`) {
		t.Errorf("version output = %s", out)
	}
}
