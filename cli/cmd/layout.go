package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/ticktape/cli/reader"
	"github.com/justapithecus/ticktape/cli/render"
	"github.com/justapithecus/ticktape/itch"
)

// LayoutCommand returns the layout command.
func LayoutCommand() *cli.Command {
	return &cli.Command{
		Name:      "layout",
		Usage:     "Show the field layout of each supported message type",
		ArgsUsage: "[type...]",
		Flags:     ReadOnlyFlags(),
		Action:    layoutAction,
	}
}

func layoutAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for layout command", 1)
	}

	var types []itch.MessageType
	for _, arg := range c.Args().Slice() {
		t, err := itch.ParseMessageType(arg)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		types = append(types, t)
	}

	rows, err := reader.LayoutTable(types...)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(rows)
}
