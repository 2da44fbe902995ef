package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/ticktape/adapter"
	"github.com/justapithecus/ticktape/adapter/redis"
	"github.com/justapithecus/ticktape/adapter/webhook"
	"github.com/justapithecus/ticktape/capture"
	ttconfig "github.com/justapithecus/ticktape/cli/config"
	"github.com/justapithecus/ticktape/cli/reader"
	"github.com/justapithecus/ticktape/iox"
	"github.com/justapithecus/ticktape/itch"
	"github.com/justapithecus/ticktape/lode"
	"github.com/justapithecus/ticktape/log"
	"github.com/justapithecus/ticktape/metrics"
	"github.com/justapithecus/ticktape/policy"
	"github.com/justapithecus/ticktape/runtime"
	"github.com/justapithecus/ticktape/types"
)

// exitConfigError is returned when flags or the config file are unusable.
// It shares the usage code with cancellation.
const exitConfigError = 1

// DecodeCommand returns the decode command.
// This is the only command that writes to storage.
func DecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a capture through a delivery policy into storage",
		ArgsUsage: "<capture>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to ticktape.yaml",
			},
			// Session identity
			&cli.StringFlag{
				Name:     "session-id",
				Usage:    "Session ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "feed",
				Usage: "Feed name for partitioning (required, flag or config)",
			},
			&cli.StringFlag{
				Name:  "day",
				Usage: "Trading day YYYY-MM-DD (default: today, UTC)",
			},
			&cli.IntFlag{
				Name:  "attempt",
				Usage: "Attempt number (starts at 1)",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "parent-session-id",
				Usage: "Parent session ID (required for replays)",
			},
			// Decoder
			&cli.StringFlag{
				Name:  "input-format",
				Usage: "Capture format: auto, raw, framed, hex (default: by extension)",
			},
			&cli.BoolFlag{
				Name:  "strict-length",
				Usage: "Reject messages that end before their layout's terminal offset",
			},
			// Policy
			&cli.StringFlag{
				Name:  "policy",
				Usage: "Delivery policy: strict, buffered, streaming or noop",
				Value: "strict",
			},
			&cli.IntFlag{
				Name:  "buffer-messages",
				Usage: "Max buffered messages (buffered policy)",
			},
			&cli.Int64Flag{
				Name:  "buffer-bytes",
				Usage: "Max buffer size in bytes (buffered policy)",
			},
			&cli.StringSliceFlag{
				Name:  "droppable",
				Usage: "Message types the buffered policy may drop (e.g. D,X)",
			},
			&cli.IntFlag{
				Name:  "flush-count",
				Usage: "Flush every N messages (streaming policy)",
			},
			&cli.DurationFlag{
				Name:  "flush-interval",
				Usage: "Flush on this interval (streaming policy)",
			},
			// Storage
			&cli.StringFlag{
				Name:  "storage-dataset",
				Usage: "Lode dataset ID",
				Value: lode.DefaultDataset,
			},
			&cli.StringFlag{
				Name:  "storage-backend",
				Usage: "Storage backend: fs, s3 or memory",
				Value: "fs",
			},
			&cli.StringFlag{
				Name:  "storage-path",
				Usage: "Storage path (fs: directory, s3: bucket/prefix). Empty keeps records in memory",
			},
			&cli.StringFlag{
				Name:  "storage-region",
				Usage: "AWS region for S3 backend (optional, uses default chain)",
			},
			&cli.StringFlag{
				Name:  "storage-endpoint",
				Usage: "Custom S3 endpoint (MinIO, R2)",
			},
			&cli.BoolFlag{
				Name:  "storage-s3-path-style",
				Usage: "Force S3 path-style addressing",
			},
			// Notification
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Completion notification adapter: webhook or redis",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Webhook URL or redis:// URL",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis channel (default: " + redis.DefaultChannel + ")",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Per-attempt notification timeout",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Notification retries after the first attempt",
				Value: webhook.DefaultRetries,
			},
			// Output
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a JSON session report to this path",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn, error",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
		},
		Action: decodeAction,
	}
}

// policyChoice holds resolved policy configuration.
type policyChoice struct {
	name           string
	bufferMessages int
	bufferBytes    int64
	droppable      []itch.MessageType
	flushCount     int
	flushInterval  time.Duration
}

// storageChoice holds resolved storage configuration.
type storageChoice struct {
	dataset   string
	backend   string // fs, s3 or memory
	path      string // fs: directory, s3: bucket/prefix
	region    string
	endpoint  string
	pathStyle bool
}

// adapterChoice holds resolved notification configuration.
type adapterChoice struct {
	kind    string
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int
}

func decodeAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("capture path required", exitConfigError)
	}
	path := c.Args().First()

	var cfg *ttconfig.Config
	if p := c.String("config"); p != "" {
		loaded, err := ttconfig.Load(p)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		cfg = loaded
	}

	meta, err := resolveSessionMeta(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid session: %v", err), exitConfigError)
	}

	choice, err := resolvePolicyChoice(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid policy config: %v", err), exitConfigError)
	}
	store := resolveStorageChoice(c, cfg)
	notify := resolveAdapterChoice(c, cfg)

	format, err := capture.ParseFormat(resolveString(c, "input-format", configVal(cfg, func(c *ttconfig.Config) string { return c.Input.Format })))
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	format = reader.ResolveFormat(path, format)

	logger := log.NewLoggerLevel(meta, c.String("log-level"))
	defer iox.DiscardErr(logger.Sync)

	collector := metrics.NewCollector(choice.name, store.backend, meta.Feed, meta.SessionID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := buildLodeClient(ctx, store, meta)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create storage client: %v", err), exitConfigError)
	}

	sink := lode.NewInstrumentedSink(lode.NewSink(client), collector)
	pol, err := buildPolicy(choice, sink, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create policy: %v", err), exitConfigError)
	}
	defer iox.DiscardErr(pol.Close)

	notifier, err := buildAdapter(notify)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create adapter: %v", err), exitConfigError)
	}
	if notifier != nil {
		defer iox.DiscardClose(notifier)
	}

	f, err := os.Open(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("open capture: %v", err), types.OutcomeCaptureError.ExitCode())
	}
	defer iox.DiscardClose(f)

	var decoderOpts []itch.Option
	if resolveBool(c, "strict-length", configVal(cfg, func(c *ttconfig.Config) bool { return c.Decoder.StrictLength })) {
		decoderOpts = append(decoderOpts, itch.WithStrictLength())
	}

	session, err := runtime.NewSession(&runtime.SessionConfig{
		Meta:           meta,
		Input:          f,
		Format:         format,
		DecoderOptions: decoderOpts,
		Policy:         pol,
		PolicyName:     choice.name,
		Collector:      collector,
		Logger:         logger,
		MetricsWriter:  client,
		FileWriter:     client,
		Adapter:        notifier,
		StoragePath:    store.location(),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := session.Run(ctx)
	if err != nil {
		return fmt.Errorf("session failed: %w", err)
	}

	exitCode := result.Outcome.Status.ExitCode()
	if reportPath := c.String("report"); reportPath != "" {
		report := runtime.BuildSessionReport(result, collector.Snapshot(), choice.name, exitCode)
		if err := runtime.WriteSessionReport(report, reportPath); err != nil {
			logger.Warn("report write failed", map[string]any{"error": err.Error()})
		}
	}

	if !c.Bool("quiet") {
		printSessionResult(c.App.Writer, result, choice)
	}

	if exitCode == 0 {
		return nil
	}
	return cli.Exit("", exitCode)
}

// resolveSessionMeta builds and validates the session identity.
func resolveSessionMeta(c *cli.Context, cfg *ttconfig.Config) (*types.SessionMeta, error) {
	meta := &types.SessionMeta{
		SessionID: c.String("session-id"),
		Feed:      resolveString(c, "feed", configVal(cfg, func(c *ttconfig.Config) string { return c.Feed })),
		Day:       c.String("day"),
		Attempt:   c.Int("attempt"),
	}
	if meta.Day == "" {
		meta.Day = lode.DeriveDay(time.Now())
	}
	if parent := c.String("parent-session-id"); parent != "" {
		meta.ParentSessionID = &parent
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return meta, nil
}

func resolvePolicyChoice(c *cli.Context, cfg *ttconfig.Config) (policyChoice, error) {
	choice := policyChoice{
		name:           resolveString(c, "policy", configVal(cfg, func(c *ttconfig.Config) string { return c.Policy.Name })),
		bufferMessages: resolveInt(c, "buffer-messages", configVal(cfg, func(c *ttconfig.Config) int { return c.Policy.BufferMessages })),
		bufferBytes:    resolveInt64(c, "buffer-bytes", configVal(cfg, func(c *ttconfig.Config) int64 { return c.Policy.BufferBytes })),
		flushCount:     resolveInt(c, "flush-count", configVal(cfg, func(c *ttconfig.Config) int { return c.Policy.FlushCount })),
		flushInterval:  resolveDuration(c, "flush-interval", configVal(cfg, func(c *ttconfig.Config) time.Duration { return c.Policy.FlushInterval.Duration })),
	}

	droppable := configVal(cfg, func(c *ttconfig.Config) ttconfig.PolicyConfig { return c.Policy })
	if c.IsSet("droppable") {
		droppable.Droppable = c.StringSlice("droppable")
	}
	dropTypes, err := droppable.DroppableTypes()
	if err != nil {
		return policyChoice{}, err
	}
	choice.droppable = dropTypes

	return choice, validatePolicyConfig(choice)
}

func validatePolicyConfig(choice policyChoice) error {
	switch choice.name {
	case "strict", "noop":
		return nil
	case "buffered":
		if choice.bufferMessages <= 0 && choice.bufferBytes <= 0 {
			return fmt.Errorf("buffered policy requires --buffer-messages > 0 or --buffer-bytes > 0")
		}
		return nil
	case "streaming":
		if choice.flushCount <= 0 && choice.flushInterval <= 0 {
			return fmt.Errorf("streaming policy requires --flush-count > 0 or --flush-interval > 0")
		}
		return nil
	default:
		return fmt.Errorf("invalid policy: %s (must be strict, buffered, streaming or noop)", choice.name)
	}
}

func buildPolicy(choice policyChoice, sink policy.Sink, logger *log.Logger) (policy.Policy, error) {
	switch choice.name {
	case "strict":
		return policy.NewStrictPolicy(sink), nil
	case "buffered":
		return policy.NewBufferedPolicy(sink, policy.BufferedConfig{
			MaxBufferMessages: choice.bufferMessages,
			MaxBufferBytes:    choice.bufferBytes,
			Droppable:         policy.NewDroppableSet(choice.droppable...),
			Logger:            logger,
		})
	case "streaming":
		return policy.NewStreamingPolicy(sink, policy.StreamingConfig{
			FlushCount:    choice.flushCount,
			FlushInterval: choice.flushInterval,
			Logger:        logger,
		})
	case "noop":
		return policy.NewNoopPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown policy: %s", choice.name)
	}
}

func resolveStorageChoice(c *cli.Context, cfg *ttconfig.Config) storageChoice {
	sc := configVal(cfg, func(c *ttconfig.Config) ttconfig.StorageConfig { return c.Storage })
	choice := storageChoice{
		dataset:   resolveString(c, "storage-dataset", sc.Dataset),
		backend:   resolveString(c, "storage-backend", sc.Backend),
		path:      resolveString(c, "storage-path", sc.Path),
		region:    resolveString(c, "storage-region", sc.Region),
		endpoint:  resolveString(c, "storage-endpoint", sc.Endpoint),
		pathStyle: resolveBool(c, "storage-s3-path-style", sc.S3PathStyle),
	}
	if choice.path == "" {
		choice.backend = "memory"
	}
	return choice
}

// location is the storage path reported in notifications.
func (s storageChoice) location() string {
	switch s.backend {
	case "s3":
		return "s3://" + s.path
	case "memory":
		return "mem://" + s.dataset
	default:
		return s.path
	}
}

// buildLodeClient creates the storage client for the session partition.
func buildLodeClient(ctx context.Context, store storageChoice, meta *types.SessionMeta) (*lode.LodeClient, error) {
	cfg := lode.Config{
		Dataset:   store.dataset,
		Feed:      meta.Feed,
		Day:       meta.Day,
		SessionID: meta.SessionID,
	}

	switch store.backend {
	case "fs", "":
		return lode.NewLodeClient(cfg, store.path)
	case "s3":
		return lode.NewLodeS3Client(ctx, cfg, store.s3Config())
	case "memory":
		return lode.NewLodeClientWithFactory(cfg, lodelibrary.NewMemoryFactory())
	default:
		return nil, fmt.Errorf("unknown storage-backend: %s (must be fs, s3 or memory)", store.backend)
	}
}

func (s storageChoice) s3Config() lode.S3Config {
	bucket, prefix := lode.ParseS3Path(s.path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       s.region,
		Endpoint:     s.endpoint,
		UsePathStyle: s.pathStyle,
	}
}

func resolveAdapterChoice(c *cli.Context, cfg *ttconfig.Config) adapterChoice {
	ac := configVal(cfg, func(c *ttconfig.Config) ttconfig.AdapterConfig { return c.Adapter })
	retries := c.Int("adapter-retries")
	if !c.IsSet("adapter-retries") && ac.Retries != nil {
		retries = *ac.Retries
	}
	return adapterChoice{
		kind:    resolveString(c, "adapter", ac.Type),
		url:     resolveString(c, "adapter-url", ac.URL),
		channel: resolveString(c, "adapter-channel", ac.Channel),
		headers: ac.Headers,
		timeout: resolveDuration(c, "adapter-timeout", ac.Timeout.Duration),
		retries: retries,
	}
}

// buildAdapter returns nil when no adapter is configured.
func buildAdapter(choice adapterChoice) (adapter.Adapter, error) {
	switch choice.kind {
	case "":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter: %s (must be webhook or redis)", choice.kind)
	}
}

// --- CLI > config > flag default ---

// configVal reads a value from cfg, or the zero value when cfg is nil.
func configVal[T any](cfg *ttconfig.Config, get func(*ttconfig.Config) T) T {
	var zero T
	if cfg == nil {
		return zero
	}
	return get(cfg)
}

func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

func resolveInt64(c *cli.Context, name string, cfgVal int64) int64 {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int64(name)
	}
	return cfgVal
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

func printSessionResult(w io.Writer, result *runtime.SessionResult, choice policyChoice) {
	ps := result.PolicyStats
	fmt.Fprintf(w, "\nsession_id=%s, attempt=%d, outcome=%s, duration=%s\n",
		result.Meta.SessionID,
		result.Meta.Attempt,
		result.Outcome.Status,
		result.Duration.Round(time.Millisecond),
	)
	switch choice.name {
	case "buffered":
		fmt.Fprintf(w, "policy=%s, drops=%d, buffer_bytes=%d\n", choice.name, ps.MessagesDropped, ps.BufferSize)
	case "streaming":
		fmt.Fprintf(w, "policy=%s, flushes=%d\n", choice.name, ps.FlushCount)
	default:
		fmt.Fprintf(w, "policy=%s\n", choice.name)
	}

	fmt.Fprintf(w, "\n=== Session Result ===\n")
	fmt.Fprintf(w, "Session ID:   %s\n", result.Meta.SessionID)
	fmt.Fprintf(w, "Feed:         %s\n", result.Meta.Feed)
	fmt.Fprintf(w, "Day:          %s\n", result.Meta.Day)
	if result.Meta.ParentSessionID != nil {
		fmt.Fprintf(w, "Parent:       %s\n", *result.Meta.ParentSessionID)
	}
	fmt.Fprintf(w, "Outcome:      %s\n", result.Outcome.Status)
	fmt.Fprintf(w, "Message:      %s\n", result.Outcome.Message)
	fmt.Fprintf(w, "Input Bytes:  %d\n", result.InputBytes)
	fmt.Fprintf(w, "Events:       %d\n", result.Events)
	fmt.Fprintf(w, "Emitted:      %d\n", result.MessageCount)
	fmt.Fprintf(w, "Rejected:     %d\n", result.RejectedCount)
	if info := result.CaptureInfo; info != nil {
		fmt.Fprintf(w, "\n=== Capture ===\n")
		fmt.Fprintf(w, "Feed:         %s\n", info.Feed)
		fmt.Fprintf(w, "Captured At:  %s\n", info.CapturedAt)
		if info.Note != "" {
			fmt.Fprintf(w, "Note:         %s\n", info.Note)
		}
	}

	fmt.Fprintf(w, "\n=== Policy Stats ===\n")
	fmt.Fprintf(w, "Messages Total:     %d\n", ps.TotalMessages)
	fmt.Fprintf(w, "Messages Persisted: %d\n", ps.MessagesPersisted)
	fmt.Fprintf(w, "Messages Dropped:   %d\n", ps.MessagesDropped)
	fmt.Fprintf(w, "Flushes:            %d\n", ps.FlushCount)
	for _, trigger := range slices.Sorted(maps.Keys(result.FlushTriggers)) {
		fmt.Fprintf(w, "  %-16s  %d\n", trigger+":", result.FlushTriggers[trigger])
	}
}
