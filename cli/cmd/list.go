package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/ticktape/cli/reader"
	"github.com/justapithecus/ticktape/cli/render"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// ListCommand returns the list command with subcommands.
// List returns thin slices of persisted records.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List persisted records (messages)",
		Subcommands: []*cli.Command{
			listMessagesCommand(),
		},
	}
}

func listMessagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "messages",
		Usage: "List persisted messages in session order",
		Flags: append(append(ReadOnlyFlags(), StorageReadFlags()...),
			&cli.StringFlag{Name: "session-id", Usage: "Filter by session"},
			&cli.StringFlag{Name: "feed", Usage: "Filter by feed"},
			&cli.StringFlag{Name: "day", Usage: "Filter by day (YYYY-MM-DD)"},
			&cli.StringFlag{Name: "type", Usage: "Filter by message type (letter or name)"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of messages (0 = all)"},
		),
		Action: listMessagesAction,
	}
}

func listMessagesAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	rd, err := storageReader(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, readTimeout)
	defer cancel()

	opts := reader.ListMessagesOptions{
		SessionID: c.String("session-id"),
		Feed:      c.String("feed"),
		Day:       c.String("day"),
		Type:      c.String("type"),
		Limit:     c.Int("limit"),
	}
	rows, err := rd.ListMessages(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	if len(rows) > listWarningThreshold && opts.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: %d messages listed, consider --limit\n", len(rows))
	}

	return r.Render(rows)
}
