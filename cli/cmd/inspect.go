package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/ticktape/capture"
	"github.com/justapithecus/ticktape/cli/reader"
	"github.com/justapithecus/ticktape/cli/render"
	"github.com/justapithecus/ticktape/cli/tui"
)

// InspectCommand returns the inspect command.
// Inspect decodes a capture in memory and shows every decoded message.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Decode a capture in memory and show its messages",
		ArgsUsage: "<capture>",
		Flags: append(append(TUIReadOnlyFlags(), DecoderFlags()...),
			&cli.IntFlag{
				Name:  "max-messages",
				Usage: "Keep at most N messages; the rest are counted but not shown (0 = all)",
			},
		),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	loaded, err := loadCaptureArg(c)
	if err != nil {
		return err
	}

	resp, err := reader.InspectCapture(loaded, decodeOptions(c))
	if err != nil {
		return cli.Exit(err.Error(), exitCaptureError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectCapture, resp)
	}

	return r.Render(resp)
}

// exitCaptureError is the exit code for unreadable captures.
const exitCaptureError = 2

// loadCaptureArg reads the capture named by the first argument.
func loadCaptureArg(c *cli.Context) (*reader.LoadedCapture, error) {
	if c.NArg() < 1 {
		return nil, cli.Exit("capture path required", exitConfigError)
	}
	format, err := capture.ParseFormat(c.String("input-format"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfigError)
	}
	loaded, err := reader.LoadCapture(c.Args().First(), format)
	if err != nil {
		return nil, cli.Exit(err.Error(), exitCaptureError)
	}
	return loaded, nil
}

// decodeOptions reads the decoder flags. max-messages is only defined on
// inspect; elsewhere it reads as zero.
func decodeOptions(c *cli.Context) reader.DecodeOptions {
	return reader.DecodeOptions{
		StrictLength: c.Bool("strict-length"),
		MaxMessages:  c.Int("max-messages"),
	}
}
