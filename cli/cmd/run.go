package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/groupcat/cli/config"
	"github.com/pithecene-io/groupcat/log"
	"github.com/pithecene-io/groupcat/metrics"
	"github.com/pithecene-io/groupcat/runtime"
	"github.com/pithecene-io/groupcat/source"
	"github.com/pithecene-io/groupcat/types"
	"github.com/pithecene-io/groupcat/watch"
)

// RunCommand returns the run command.
// This is the only command that writes outputs.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Concatenate grouped records into bundles",
		Flags: append([]cli.Flag{
			ConfigFlag(),
			&cli.StringFlag{
				Name:  "source",
				Usage: "Source bucket URL, or - for record frames on stdin (overrides config)",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (default: generated)",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a JSON run report to this path (- for stderr)",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Rerun whenever files under a file:// source change",
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet period before a watch rerun (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Minimum log level: debug, info, warn or error (overrides config)",
				EnvVars: []string{"GROUPCAT_LOG_LEVEL"},
			},
		}, StorageFlags()...),
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("config error: %v", err), runtime.ExitCodeConfigError)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Bool("watch") {
		return watchLoop(ctx, c, cfg)
	}

	report, err := runOnce(ctx, c, cfg, 1)
	if report == nil {
		return cli.Exit(err.Error(), exitCodeOf(err))
	}
	return cli.Exit("", report.ExitCode)
}

// exitCodeOf maps an assembly failure to its exit code.
func exitCodeOf(err error) int {
	return runtime.ExitCode(runtime.DetermineOutcome(err).Status)
}

// runOnce assembles and executes one run. A nil report means the run could
// not be assembled; the error then carries the failure kind.
func runOnce(ctx context.Context, c *cli.Context, cfg *config.Config, iteration int) (*runtime.RunReport, error) {
	meta := &types.RunMeta{
		RunID:      runID(c.String("run-id"), iteration),
		ConfigPath: c.String("config"),
		Iteration:  iteration,
	}
	logger := runLogger(meta, c, cfg)
	defer func() { _ = logger.Sync() }()
	collector := metrics.NewCollector(cfg.Source.URL, cfg.Storage.Backend, meta.RunID)

	engineCfg, err := buildEngineConfig(cfg, logger)
	if err != nil {
		return nil, &runtime.RunError{Kind: runtime.RunErrorConfig, Err: err}
	}
	notifier, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return nil, &runtime.RunError{Kind: runtime.RunErrorConfig, Err: err}
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}

	src, err := openSource(ctx, cfg.Source, c.App.Reader, logger, collector)
	if err != nil {
		return nil, &runtime.RunError{Kind: runtime.RunErrorSource, Err: err}
	}
	defer func() { _ = src.Close() }()

	st, err := openStorage(ctx, cfg.Storage, c.App.Writer, collector)
	if err != nil {
		return nil, &runtime.RunError{Kind: runtime.RunErrorSink, Err: err}
	}
	defer func() { _ = st.sink.Close() }()

	orchestrator, err := runtime.NewRunOrchestrator(&runtime.RunConfig{
		RunMeta:     meta,
		Source:      src,
		Engine:      engineCfg,
		Sink:        st.sink,
		Manifest:    st.manifest,
		Adapter:     notifier,
		StoragePath: st.path,
		Collector:   collector,
		Logger:      logger,
	})
	if err != nil {
		return nil, &runtime.RunError{Kind: runtime.RunErrorConfig, Err: err}
	}

	result, runErr := orchestrator.Execute(ctx)
	report := runtime.BuildRunReport(result, collector.Snapshot())

	if path := c.String("report"); path != "" {
		if err := runtime.WriteRunReport(report, path); err != nil {
			logger.Warn("run report not written", map[string]any{"error": err.Error()})
		}
	}
	if !c.Bool("quiet") {
		printRunReport(summaryWriter(c, cfg), report)
	}
	return report, runErr
}

// runID returns the run ID for one iteration. Explicit IDs get an
// iteration suffix on watch reruns so manifests stay distinct.
func runID(explicit string, iteration int) string {
	if explicit == "" {
		return runtime.NewRunID()
	}
	if iteration > 1 {
		return fmt.Sprintf("%s-%d", explicit, iteration)
	}
	return explicit
}

// runLogger writes JSON logs to the app's error stream at the configured
// level. The level was checked by config validation.
func runLogger(meta *types.RunMeta, c *cli.Context, cfg *config.Config) *log.Logger {
	level, _ := log.ParseLevel(cfg.LogLevel)
	return log.NewLoggerWithWriter(meta, c.App.ErrWriter).WithLevel(level)
}

// summaryWriter returns where the human summary goes. When outputs are
// streamed to stdout as frames, the summary moves to stderr.
func summaryWriter(c *cli.Context, cfg *config.Config) io.Writer {
	if cfg.Storage.Backend == backendFrames {
		return c.App.ErrWriter
	}
	return c.App.Writer
}

// watchLoop runs once, then reruns after each debounced batch of changes
// under the source directory until interrupted. Run failures are reported
// and watching continues.
func watchLoop(ctx context.Context, c *cli.Context, cfg *config.Config) error {
	dir, ok := source.LocalDir(cfg.Source.URL)
	if !ok {
		return cli.Exit("--watch requires a file:// source", runtime.ExitCodeConfigError)
	}

	debounce := cfg.Watch.Debounce.Duration
	if c.IsSet("debounce") {
		debounce = c.Duration("debounce")
	}
	var ignore []string
	if cfg.Storage.Backend == "fs" {
		ignore = append(ignore, cfg.Storage.Path)
	}
	if report := c.String("report"); report != "" && report != "-" {
		ignore = append(ignore, filepath.Dir(report))
	}

	logger := runLogger(nil, c, cfg).Named("watch")
	w, err := watch.New(watch.Config{
		Root:     dir,
		Debounce: debounce,
		Ignore:   ignore,
		Logger:   logger,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("watch: %v", err), runtime.ExitCodeConfigError)
	}

	iteration := 1
	rerun := func(ctx context.Context) {
		report, err := runOnce(ctx, c, cfg, iteration)
		iteration++
		if report == nil && err != nil {
			logger.Error("run failed", map[string]any{"error": err.Error()})
		}
	}

	rerun(ctx)
	err = w.Run(ctx, func(ctx context.Context, changed []string) error {
		logger.Info("rerunning", map[string]any{"changed": len(changed), "iteration": iteration})
		rerun(ctx)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return cli.Exit(fmt.Sprintf("watch: %v", err), runtime.ExitCodeSourceFailure)
	}
	return nil
}

func printRunReport(w io.Writer, report *runtime.RunReport) {
	fmt.Fprintf(w, "run_id=%s, iteration=%d, outcome=%s, duration=%s\n",
		report.RunID,
		report.Iteration,
		report.Outcome,
		(time.Duration(report.DurationMs) * time.Millisecond).String(),
	)
	if report.Message != "" && report.Outcome != types.OutcomeSuccess {
		fmt.Fprintf(w, "message: %s\n", report.Message)
	}
	for _, o := range report.Outputs {
		fmt.Fprintf(w, "  %-16s %s (%d bytes)\n", o.Group, o.Path, o.Bytes)
	}
	for _, g := range report.Groups {
		if !g.Resolved {
			fmt.Fprintf(w, "  %-16s declined (%d records)\n", g.ID, g.Records)
		}
	}
	if report.RecordErrors > 0 {
		fmt.Fprintf(w, "record errors: %d\n", report.RecordErrors)
	}
}
