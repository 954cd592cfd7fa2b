package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/groupcat/cli/render"
	"github.com/pithecene-io/groupcat/runtime"
)

// PlanGroup is one row of plan output.
type PlanGroup struct {
	Group    string   `json:"group" yaml:"group"`
	Resolved bool     `json:"resolved" yaml:"resolved"`
	Output   string   `json:"output" yaml:"output"`
	Members  []string `json:"members" yaml:"members"`
	Records  []string `json:"records" yaml:"records"`
}

// PlanCommand returns the plan command. Plan classifies and resolves the
// source without writing anything.
func PlanCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Show the groups a run would produce, without writing",
		Flags: append(ReadOnlyFlags(),
			ConfigFlag(),
			&cli.StringFlag{
				Name:  "source",
				Usage: "Source bucket URL, or - for record frames on stdin (overrides config)",
			},
		),
		Action: planAction,
	}
}

func planAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for plan command", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), runtime.ExitCodeConfigError)
	}

	logger := runLogger(nil, c, cfg).Named("plan")
	engineCfg, err := buildEngineConfig(cfg, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), runtime.ExitCodeConfigError)
	}
	src, err := openSource(c.Context, cfg.Source, c.App.Reader, logger, nil)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeSourceFailure)
	}
	defer func() { _ = src.Close() }()

	groups, _, err := runtime.Plan(c.Context, src, engineCfg, logger)
	if err != nil {
		return cli.Exit(err.Error(), exitCodeOf(err))
	}

	rows := make([]PlanGroup, 0, len(groups))
	for _, g := range groups {
		row := PlanGroup{
			Group:    string(g.ID),
			Resolved: g.Resolved,
			Records:  g.Records,
			Members:  []string{},
		}
		if meta, ok := engineCfg.Resolver.Resolve(g.ID, nil); ok && g.Resolved {
			row.Output = filepath.ToSlash(meta.Output.Path())
		}
		for _, m := range g.Members {
			row.Members = append(row.Members, string(m))
		}
		rows = append(rows, row)
	}
	return r.Render(rows)
}
