package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/ticktape/capture"
	"github.com/justapithecus/ticktape/itch"
)

// EncodeCommand returns the encode command.
// Encode converts a capture (usually a hex fixture) to a binary capture file.
func EncodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "encode",
		Usage:     "Convert a capture or the reference session to a raw or framed capture file",
		ArgsUsage: "[capture]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "input-format",
				Usage: "Input format: auto, raw, framed, hex (default: by extension)",
			},
			&cli.BoolFlag{
				Name:  "reference",
				Usage: "Encode the built-in reference session instead of a file",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "Output format: raw, framed or hex",
				Value: string(capture.FormatFramed),
			},
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"o"},
				Usage:    "Output path",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "feed",
				Usage: "Feed recorded in the capture_info frame (framed only)",
			},
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note recorded in the capture_info frame (framed only)",
			},
		},
		Action: encodeAction,
	}
}

func encodeAction(c *cli.Context) error {
	var events []itch.ByteEvent
	info := capture.Info{Feed: c.String("feed"), Note: c.String("note")}

	switch {
	case c.Bool("reference"):
		if c.NArg() > 0 {
			return cli.Exit("--reference takes no capture argument", exitConfigError)
		}
		events = capture.ReferenceSession()
		if info.Note == "" {
			info.Note = "reference session"
		}
	default:
		loaded, err := loadCaptureArg(c)
		if err != nil {
			return err
		}
		events = loaded.Events
		if loaded.Info != nil && info.Feed == "" {
			info.Feed = loaded.Info.Feed
		}
	}

	to, err := capture.ParseFormat(c.String("to"))
	if err != nil || to == capture.FormatAuto {
		return cli.Exit(fmt.Sprintf("invalid --to %q (want raw, framed or hex)", c.String("to")), exitConfigError)
	}

	if err := writeCapture(c.String("out"), to, info, events); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "wrote %d events to %s (%s)\n", len(events), c.String("out"), to)
	return nil
}

// writeCapture writes events to path in the given format.
func writeCapture(path string, format capture.Format, info capture.Info, events []itch.ByteEvent) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	var w capture.Writer
	switch format {
	case capture.FormatHex:
		return capture.FormatHexMessages(f, events)
	case capture.FormatRaw:
		w = capture.NewRecordWriter(f)
	case capture.FormatFramed:
		if w, err = capture.NewFrameWriter(f, info); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}

	if err := w.WriteEvents(events); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return w.Flush()
}
