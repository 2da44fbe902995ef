package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/ticktape/cli/reader"
	"github.com/justapithecus/ticktape/cli/render"
)

// DebugCommand returns the debug command with subcommands.
// Debug commands are opt-in diagnostic tools and never write.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Diagnostic tools (step)",
		Subcommands: []*cli.Command{
			debugStepCommand(),
		},
	}
}

func debugStepCommand() *cli.Command {
	return &cli.Command{
		Name:      "step",
		Usage:     "Trace a capture byte by byte through the decoder registers",
		ArgsUsage: "<capture>",
		Flags: append(append(ReadOnlyFlags(), DecoderFlags()...),
			&cli.IntFlag{
				Name:  "from",
				Usage: "First event index to show",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Number of events to show (0 = all)",
			},
		),
		Action: debugStepAction,
	}
}

func debugStepAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	loaded, err := loadCaptureArg(c)
	if err != nil {
		return err
	}

	rows := reader.StepTrace(loaded.Events, decodeOptions(c))
	return r.Render(window(rows, c.Int("from"), c.Int("count")))
}

// window returns rows[from:from+count], clamped. count <= 0 means the rest.
func window[T any](rows []T, from, count int) []T {
	from = min(max(from, 0), len(rows))
	end := len(rows)
	if count > 0 {
		end = min(from+count, end)
	}
	return rows[from:end]
}
