// Package runtime orchestrates groupcat runs: a source feeds the engine
// from a single goroutine, the flushed outputs are written to a sink, and
// the run is recorded in the manifest and announced through an adapter.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/groupcat/adapter"
	"github.com/pithecene-io/groupcat/engine"
	"github.com/pithecene-io/groupcat/lode"
	"github.com/pithecene-io/groupcat/log"
	"github.com/pithecene-io/groupcat/metrics"
	"github.com/pithecene-io/groupcat/source"
	"github.com/pithecene-io/groupcat/types"
)

// publishTimeout bounds completion notifications after the run context
// is done.
const publishTimeout = 30 * time.Second

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// RunConfig configures a single run.
type RunConfig struct {
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Source supplies input records (required).
	Source source.Source
	// Engine configures classification and resolution. Its Logger is
	// replaced with the run logger when nil.
	Engine engine.Config
	// Sink persists outputs (required).
	Sink lode.Sink
	// Manifest records written outputs. Optional.
	Manifest *lode.Manifest
	// Adapter announces completed bundles and runs. Optional.
	Adapter adapter.Adapter
	// StoragePath describes where outputs land, for run events.
	StoragePath string
	// Collector is the metrics collector for this run.
	// If nil, no metrics are recorded (all Collector methods are nil-safe).
	Collector *metrics.Collector
	// Logger overrides the run logger (for testing).
	Logger *log.Logger
}

// OutputResult describes one persisted bundle.
type OutputResult struct {
	Group   types.GroupID
	Members []types.GroupID
	Written lode.Written
}

// RunResult represents the result of a run.
type RunResult struct {
	// RunMeta is the run identity.
	RunMeta *types.RunMeta
	// Outcome is the run outcome.
	Outcome *types.RunOutcome
	// Duration is the total run duration.
	Duration time.Duration
	// EngineStats are the final engine counters.
	EngineStats engine.Stats
	// Groups summarizes every discovered group.
	Groups []engine.GroupSummary
	// Outputs lists persisted bundles in flush order.
	Outputs []OutputResult
	// RecordErrors counts skipped per-record failures.
	RecordErrors int64
}

// RunOrchestrator orchestrates a single run.
type RunOrchestrator struct {
	config    *RunConfig
	logger    *log.Logger
	startTime time.Time
}

// NewRunOrchestrator creates a new run orchestrator.
// Returns error if run metadata is invalid or a required part is missing.
func NewRunOrchestrator(config *RunConfig) (*RunOrchestrator, error) {
	if config.RunMeta == nil {
		return nil, errors.New("run metadata is required")
	}
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	if config.Source == nil {
		return nil, errors.New("source is required")
	}
	if config.Sink == nil {
		return nil, errors.New("sink is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunMeta)
	}

	return &RunOrchestrator{
		config: config,
		logger: logger,
	}, nil
}

// Execute executes the run end-to-end.
//
// Execution flow:
//  1. Build the engine
//  2. Drain the source into the engine (single consumer)
//  3. Flush the engine
//  4. Write outputs, announcing each completed bundle
//  5. Append the run manifest
//  6. Determine outcome and announce run completion
//
// The result is always returned and carries the outcome. The error is the
// classified *RunError behind a non-success outcome.
func (r *RunOrchestrator) Execute(ctx context.Context) (*RunResult, error) {
	r.startTime = time.Now()
	r.config.Collector.IncRunStarted()

	r.logger.Info("starting run", map[string]any{
		"source": r.config.Source.Describe(),
	})

	result := &RunResult{RunMeta: r.config.RunMeta}
	err := r.execute(ctx, result)
	return r.finish(ctx, result, err), err
}

func (r *RunOrchestrator) execute(ctx context.Context, result *RunResult) error {
	var flushed []types.GroupID
	cfg := r.config.Engine
	if cfg.Logger == nil {
		cfg.Logger = r.logger.Named("engine")
	}
	cfg.Observers = append(append([]engine.Observer(nil), cfg.Observers...), engine.ObserverFunc(func(n types.Notification) {
		if n.Kind == types.NotificationGroupProcessed {
			flushed = append(flushed, n.GroupID)
		}
	}))

	eng, err := engine.New(cfg)
	if err != nil {
		return &RunError{Kind: RunErrorConfig, Err: err}
	}

	in := &ingestion{src: r.config.Source, eng: eng, logger: r.logger}
	ingErr := in.run(ctx)
	result.RecordErrors = in.recordErrors
	if ingErr != nil {
		r.logger.Error("ingestion failed", map[string]any{
			"error": ingErr.Error(),
		})
		result.EngineStats = eng.Stats()
		result.Groups = eng.Groups()
		return ingErr
	}

	outputs, err := eng.Flush()
	result.EngineStats = eng.Stats()
	result.Groups = eng.Groups()
	if err != nil {
		return &RunError{Kind: RunErrorConfig, Err: fmt.Errorf("flush: %w", err)}
	}

	members := make(map[types.GroupID][]types.GroupID, len(result.Groups))
	for _, g := range result.Groups {
		members[g.ID] = g.Members
	}

	var sinkErrs []error
	for i, out := range outputs {
		id := flushed[i]
		written, err := r.config.Sink.Write(ctx, out)
		if err != nil {
			r.logger.Error("output write failed", map[string]any{
				"group": string(id),
				"path":  out.Relative(),
				"error": err.Error(),
			})
			sinkErrs = append(sinkErrs, fmt.Errorf("group %q: %w", id, err))
			continue
		}

		res := OutputResult{Group: id, Members: members[id], Written: written}
		result.Outputs = append(result.Outputs, res)
		r.logger.Info("bundle written", map[string]any{
			"group": string(id),
			"path":  written.Path,
			"bytes": written.Bytes,
		})
		r.publish(ctx, r.bundleEvent(res))
	}

	if err := r.appendManifest(ctx, result.Outputs); err != nil {
		sinkErrs = append(sinkErrs, err)
	}
	if len(sinkErrs) > 0 {
		return &RunError{Kind: RunErrorSink, Err: errors.Join(sinkErrs...)}
	}
	return nil
}

func (r *RunOrchestrator) appendManifest(ctx context.Context, outputs []OutputResult) error {
	if r.config.Manifest == nil {
		return nil
	}
	now := time.Now().UTC()
	entries := make([]lode.ManifestEntry, 0, len(outputs))
	for _, o := range outputs {
		entries = append(entries, lode.ManifestEntry{
			RunID:     r.config.RunMeta.RunID,
			Day:       lode.DeriveDay(now),
			Group:     string(o.Group),
			Path:      o.Written.Path,
			MapPath:   o.Written.MapPath,
			Bytes:     o.Written.Bytes,
			SHA256:    o.Written.SHA256,
			Members:   groupStrings(o.Members),
			WrittenAt: now,
		})
	}
	if err := r.config.Manifest.Append(ctx, entries); err != nil {
		r.logger.Error("manifest append failed", map[string]any{
			"error": err.Error(),
		})
		return fmt.Errorf("manifest: %w", err)
	}
	return nil
}

// finish determines the outcome, records metrics and announces the run.
func (r *RunOrchestrator) finish(ctx context.Context, result *RunResult, err error) *RunResult {
	result.Outcome = DetermineOutcome(err)
	result.Duration = time.Since(r.startTime)

	if result.Outcome.Status == types.OutcomeSuccess {
		r.config.Collector.IncRunCompleted()
	} else {
		r.config.Collector.IncRunFailed()
	}

	s := result.EngineStats
	r.config.Collector.AbsorbEngineStats(metrics.EngineCounts{
		RecordsReceived:     s.RecordsReceived,
		RecordsBuffered:     s.RecordsBuffered,
		RecordsSkipped:      s.RecordsSkipped,
		RecordsRejected:     s.RecordsRejected,
		RecordsUnclassified: s.RecordsUnclassified,
		GroupsDiscovered:    s.GroupsDiscovered,
		GroupsDeclined:      s.GroupsDeclined,
		OutputsEmitted:      s.OutputsEmitted,
		BytesEmitted:        s.BytesEmitted,
	})

	event := adapter.RunCompleted(r.config.RunMeta.RunID, r.config.Source.Describe(), result.Outcome.Status, time.Now())
	event.StoragePath = r.config.StoragePath
	event.OutputCount = len(result.Outputs)
	event.DurationMs = result.Duration.Milliseconds()
	r.publish(ctx, event)

	r.logger.Info("run completed", map[string]any{
		"outcome":  result.Outcome.Status,
		"outputs":  len(result.Outputs),
		"duration": result.Duration.String(),
	})
	return result
}

func (r *RunOrchestrator) bundleEvent(o OutputResult) *adapter.Event {
	e := adapter.BundleCompleted(r.config.RunMeta.RunID, r.config.Source.Describe(), string(o.Group), o.Written.Path, time.Now())
	e.MapPath = o.Written.MapPath
	e.Bytes = o.Written.Bytes
	e.SHA256 = o.Written.SHA256
	e.Members = groupStrings(o.Members)
	return e
}

// publish delivers an event best effort. Notification failures are logged
// and counted but never change the run outcome.
func (r *RunOrchestrator) publish(ctx context.Context, event *adapter.Event) {
	if r.config.Adapter == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.config.Adapter.Publish(pubCtx, event); err != nil {
		r.config.Collector.IncNotifyFailure()
		r.logger.Warn("notification failed", map[string]any{
			"event_type": event.EventType,
			"error":      err.Error(),
		})
		return
	}
	r.config.Collector.IncNotifySuccess()
}

func groupStrings(ids []types.GroupID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// Plan drains src into an engine built from cfg without writing
// anything, and summarizes the groups a run would produce.
func Plan(ctx context.Context, src source.Source, cfg engine.Config, logger *log.Logger) ([]engine.GroupSummary, engine.Stats, error) {
	if logger == nil {
		logger = log.Nop()
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, engine.Stats{}, &RunError{Kind: RunErrorConfig, Err: err}
	}
	in := &ingestion{src: src, eng: eng, logger: logger}
	if err := in.run(ctx); err != nil {
		return nil, eng.Stats(), err
	}
	return eng.Groups(), eng.Stats(), nil
}
