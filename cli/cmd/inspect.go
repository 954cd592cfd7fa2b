package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/groupcat/cli/config"
	"github.com/pithecene-io/groupcat/cli/render"
	"github.com/pithecene-io/groupcat/cli/tui"
	"github.com/pithecene-io/groupcat/lode"
	"github.com/pithecene-io/groupcat/runtime"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect returns a deep view of a single run.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a run (manifest outputs or a saved report)",
		Subcommands: []*cli.Command{
			inspectRunCommand(),
			inspectReportCommand(),
		},
	}
}

func inspectRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Show the outputs a run recorded in the manifest",
		ArgsUsage: "<run-id>",
		Flags:     append(append(ReadOnlyFlags(), ConfigFlag()), StorageFlags()...),
		Action:    inspectRunAction,
	}
}

func inspectRunAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("run-id required", 1)
	}
	runID := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	manifest, err := openManifest(c)
	if err != nil {
		return err
	}
	entries, err := manifest.Entries(c.Context, runID)
	if errors.Is(err, lode.ErrNoManifest) {
		return cli.Exit(fmt.Sprintf("no manifest records for run %s", runID), 1)
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectRun, entries)
	}
	return r.Render(entries)
}

func inspectReportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Show a run report written by run --report",
		ArgsUsage: "<report.json>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectReportAction,
	}
}

func inspectReportAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("report path required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	report, err := readRunReport(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewInspectReport, report)
	}
	return r.Render(report)
}

func readRunReport(path string) (*runtime.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read report: %w", err)
	}
	var report runtime.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("invalid report %s: %w", path, err)
	}
	return &report, nil
}

// openManifest loads the config and opens the manifest dataset it names.
func openManifest(c *cli.Context) (*lode.Manifest, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("config error: %v", err), runtime.ExitCodeConfigError)
	}
	return manifestFor(c, cfg.Storage)
}

func manifestFor(c *cli.Context, cfg config.StorageConfig) (*lode.Manifest, error) {
	if cfg.Backend == backendFrames {
		return nil, cli.Exit("the frames backend keeps no manifest", runtime.ExitCodeConfigError)
	}
	factory, err := lode.NewStoreFactory(c.Context, storeConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage reader: %w", err)
	}
	return lode.NewManifest(cfg.Dataset, factory)
}
