package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/ticktape/capture"
	"github.com/justapithecus/ticktape/cli/render"
	"github.com/justapithecus/ticktape/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	CaptureFormat string `json:"capture_format"`
}

// VersionCommand returns the version command.
// It never opens a capture or storage.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		return r.Render(VersionResponse{
			Version:       types.Version,
			Commit:        commit,
			CaptureFormat: capture.FormatVersion,
		})
	}
}
