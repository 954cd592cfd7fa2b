package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/groupcat/cli/render"
	"github.com/pithecene-io/groupcat/lode"
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
// List returns thin slices, not inspect-level detail.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List recorded runs",
		Subcommands: []*cli.Command{
			listRunsCommand(),
		},
	}
}

func listRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List runs with manifest records, most recent first",
		Flags: append(append(ReadOnlyFlags(), ConfigFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to return (0 = no limit)",
				Value: 0,
			},
		), StorageFlags()...),
		Action: listRunsAction,
	}
}

func listRunsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list commands
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	manifest, err := openManifest(c)
	if err != nil {
		return err
	}
	runs, err := manifest.Runs(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	limit := c.Int("limit")
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	results := make([]lode.RunSummary, 0, len(runs))
	for _, id := range runs {
		entries, err := manifest.Entries(c.Context, id)
		if err != nil {
			return fmt.Errorf("failed to read run %s: %w", id, err)
		}
		results = append(results, lode.Summarize(id, entries))
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(results) > listWarningThreshold && limit == 0 && isStderrTTY() {
		fmt.Fprintf(c.App.ErrWriter, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
	}

	return r.Render(results)
}
