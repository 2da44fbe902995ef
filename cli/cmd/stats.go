package cmd

import (
	"context"
	"fmt"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/ticktape/cli/reader"
	"github.com/justapithecus/ticktape/cli/render"
	"github.com/justapithecus/ticktape/cli/tui"
	"github.com/justapithecus/ticktape/lode"
)

// readTimeout bounds storage reads.
const readTimeout = 30 * time.Second

// StatsCommand returns the stats command with subcommands.
// Stats returns aggregated, derived facts.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregated statistics (capture, metrics)",
		Subcommands: []*cli.Command{
			statsCaptureCommand(),
			statsMetricsCommand(),
		},
	}
}

func statsCaptureCommand() *cli.Command {
	return &cli.Command{
		Name:      "capture",
		Usage:     "Show decoder statistics for a capture",
		ArgsUsage: "<capture>",
		Flags:     append(TUIReadOnlyFlags(), DecoderFlags()...),
		Action:    statsCaptureAction,
	}
}

func statsCaptureAction(c *cli.Context) error {
	loaded, err := loadCaptureArg(c)
	if err != nil {
		return err
	}

	stats, err := reader.StatsForCapture(c.Context, loaded, decodeOptions(c))
	if err != nil {
		return cli.Exit(err.Error(), exitCaptureError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsCapture, stats)
	}

	return r.Render(stats)
}

func statsMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Show the latest persisted session metrics",
		Flags: append(append(TUIReadOnlyFlags(), StorageReadFlags()...),
			&cli.StringFlag{Name: "session-id", Usage: "Read metrics for a specific session"},
			&cli.StringFlag{Name: "feed", Usage: "Filter by feed partition"},
		),
		Action: statsMetricsAction,
	}
}

func statsMetricsAction(c *cli.Context) error {
	rd, err := storageReader(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	snapshot, err := rd.LatestMetrics(ctx, c.String("session-id"), c.String("feed"))
	if err != nil {
		return fmt.Errorf("failed to read metrics: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStatsMetrics, snapshot)
	}

	return r.Render(snapshot)
}

// storageReader opens the dataset selected by StorageReadFlags.
func storageReader(c *cli.Context) (reader.Reader, error) {
	store := storageChoice{
		dataset:   c.String("storage-dataset"),
		backend:   c.String("storage-backend"),
		path:      c.String("storage-path"),
		region:    c.String("storage-region"),
		endpoint:  c.String("storage-endpoint"),
		pathStyle: c.Bool("storage-s3-path-style"),
	}
	ds, err := buildReadDataset(c.Context, store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage reader: %w", err)
	}
	return reader.NewLodeReader(ds), nil
}

// buildReadDataset creates a Lode Dataset for reading.
func buildReadDataset(ctx context.Context, store storageChoice) (lodelibrary.Dataset, error) {
	switch store.backend {
	case "fs", "":
		return lode.NewReadDatasetFS(store.dataset, store.path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, store.dataset, store.s3Config())
	default:
		return nil, fmt.Errorf("unsupported storage-backend: %s (must be fs or s3)", store.backend)
	}
}
