package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/justapithecus/lode/lode"
	"go.uber.org/goleak"
	"gocloud.dev/blob/memblob"

	"github.com/pithecene-io/groupcat/adapter"
	"github.com/pithecene-io/groupcat/engine"
	glode "github.com/pithecene-io/groupcat/lode"
	"github.com/pithecene-io/groupcat/log"
	"github.com/pithecene-io/groupcat/metrics"
	"github.com/pithecene-io/groupcat/rules"
	"github.com/pithecene-io/groupcat/source"
	"github.com/pithecene-io/groupcat/types"
)

func TestMain(m *testing.M) {
	// source registers the gcsblob driver, which starts the opencensus
	// view worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// recordingAdapter captures published events.
type recordingAdapter struct {
	mu     sync.Mutex
	events []*adapter.Event
	err    error
}

func (a *recordingAdapter) Publish(_ context.Context, e *adapter.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return a.err
}

func (a *recordingAdapter) Close() error { return nil }

func (a *recordingAdapter) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.events {
		out = append(out, e.EventType)
	}
	return out
}

type failingSink struct{}

func (failingSink) Write(context.Context, *types.Record) (glode.Written, error) {
	return glode.Written{}, errors.New("no space left on device")
}

func (failingSink) Close() error { return nil }

func newSource(t *testing.T, objects map[string]string) source.Source {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	for key, data := range objects {
		if err := bucket.WriteAll(t.Context(), key, []byte(data), nil); err != nil {
			t.Fatalf("WriteAll(%s): %v", key, err)
		}
	}
	src, err := source.NewBucketSource(bucket, source.BucketConfig{URL: "mem://"})
	if err != nil {
		t.Fatalf("NewBucketSource: %v", err)
	}
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func bundleConfig(t *testing.T) engine.Config {
	t.Helper()
	classifier, err := rules.NewClassifier([]rules.Rule{{Pattern: `^(vendor|app)/`, Group: "$1"}})
	if err != nil {
		t.Fatal(err)
	}
	table, err := rules.NewTable(map[string]rules.GroupSpec{
		"app": {Output: "dist/app.js", Members: []string{"vendor", "app"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return engine.Config{Classifier: classifier, Resolver: table, Separator: engine.Separator("\n")}
}

func testObjects() map[string]string {
	return map[string]string{
		"app/main.js":   "main()",
		"app/util.js":   "util()",
		"vendor/lib.js": "lib()",
		"readme.md":     "# readme",
	}
}

func TestExecute_WritesBundlesAndManifest(t *testing.T) {
	store := lode.NewMemory()
	factory := glode.SharedFactory(store)
	manifest, err := glode.NewManifest("", factory)
	if err != nil {
		t.Fatal(err)
	}
	collector := metrics.NewCollector("mem://", glode.BackendMemory, "run-1")
	notify := &recordingAdapter{}

	orch, err := NewRunOrchestrator(&RunConfig{
		RunMeta:   &types.RunMeta{RunID: "run-1", Iteration: 1},
		Source:    newSource(t, testObjects()),
		Engine:    bundleConfig(t),
		Sink:      glode.NewInstrumentedSink(glode.NewStoreSink(factory, glode.SinkConfig{}), collector),
		Manifest:  manifest,
		Adapter:   notify,
		Collector: collector,
		Logger:    log.Nop(),
	})
	if err != nil {
		t.Fatalf("NewRunOrchestrator: %v", err)
	}

	result, err := orch.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("outcome = %+v", result.Outcome)
	}

	data, err := glode.ReadOutput(t.Context(), store, "dist/app.js")
	if err != nil {
		t.Fatalf("ReadOutput: %v", err)
	}
	if got, want := string(data), "lib()\nmain()\nutil()"; got != want {
		t.Errorf("bundle = %q, want %q", got, want)
	}

	if len(result.Outputs) != 1 || result.Outputs[0].Group != "app" {
		t.Fatalf("outputs = %+v", result.Outputs)
	}
	if diff := cmp.Diff([]types.GroupID{"vendor", "app"}, result.Outputs[0].Members); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}

	entries, err := manifest.Entries(t.Context(), "run-1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "dist/app.js" || entries[0].Group != "app" {
		t.Errorf("manifest entries = %+v", entries)
	}

	if diff := cmp.Diff([]string{adapter.EventBundleCompleted, adapter.EventRunCompleted}, notify.types()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	snap := collector.Snapshot()
	want := metrics.Snapshot{
		RunsStarted:         1,
		RunsCompleted:       1,
		RecordsReceived:     4,
		RecordsBuffered:     3,
		RecordsUnclassified: 1,
		GroupsDiscovered:    2,
		GroupsDeclined:      1,
		OutputsEmitted:      1,
		BytesEmitted:        int64(len(data)),
		SinkWriteSuccess:    1,
		NotifySuccess:       2,
		Source:              "mem://",
		StorageBackend:      glode.BackendMemory,
		RunID:               "run-1",
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_SinkFailure(t *testing.T) {
	collector := metrics.NewCollector("mem://", "memory", "run-2")
	orch, err := NewRunOrchestrator(&RunConfig{
		RunMeta:   &types.RunMeta{RunID: "run-2", Iteration: 1},
		Source:    newSource(t, testObjects()),
		Engine:    bundleConfig(t),
		Sink:      glode.NewInstrumentedSink(failingSink{}, collector),
		Collector: collector,
		Logger:    log.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := orch.Execute(t.Context())
	if kind, ok := KindOf(err); !ok || kind != RunErrorSink {
		t.Fatalf("expected sink RunError, got %v", err)
	}
	if !errors.Is(err, glode.ErrDiskFull) {
		t.Errorf("expected ErrDiskFull in chain, got %v", err)
	}
	if result.Outcome.Status != types.OutcomeSinkFailure {
		t.Errorf("outcome = %s", result.Outcome.Status)
	}
	if ExitCode(result.Outcome.Status) != ExitCodeSinkFailure {
		t.Errorf("exit code = %d", ExitCode(result.Outcome.Status))
	}
	if s := collector.Snapshot(); s.RunsFailed != 1 || s.SinkWriteFailure != 1 {
		t.Errorf("unexpected metrics %+v", s)
	}
}

func TestExecute_SourceFailure(t *testing.T) {
	objects := testObjects()
	objects["app/broken.js.zst"] = "not zstd"

	orch, err := NewRunOrchestrator(&RunConfig{
		RunMeta: &types.RunMeta{RunID: "run-3", Iteration: 1},
		Source:  newSource(t, objects),
		Engine:  bundleConfig(t),
		Sink:    glode.NewStoreSink(glode.SharedFactory(lode.NewMemory()), glode.SinkConfig{}),
		Logger:  log.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := orch.Execute(t.Context())
	if !errors.Is(err, source.ErrSource) {
		t.Fatalf("expected ErrSource, got %v", err)
	}
	if result.Outcome.Status != types.OutcomeSourceFailure || len(result.Outputs) != 0 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestExecute_ConfigError(t *testing.T) {
	orch, err := NewRunOrchestrator(&RunConfig{
		RunMeta: &types.RunMeta{RunID: "run-4", Iteration: 1},
		Source:  newSource(t, nil),
		Sink:    failingSink{},
		Logger:  log.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := orch.Execute(t.Context())
	if !errors.Is(err, engine.ErrMissingClassifier) {
		t.Fatalf("expected ErrMissingClassifier, got %v", err)
	}
	if result.Outcome.Status != types.OutcomeConfigError {
		t.Errorf("outcome = %s", result.Outcome.Status)
	}
}

func TestExecute_NotificationFailureDoesNotFailRun(t *testing.T) {
	collector := metrics.NewCollector("mem://", "memory", "run-5")
	notify := &recordingAdapter{err: errors.New("webhook down")}

	orch, err := NewRunOrchestrator(&RunConfig{
		RunMeta:   &types.RunMeta{RunID: "run-5", Iteration: 1},
		Source:    newSource(t, testObjects()),
		Engine:    bundleConfig(t),
		Sink:      glode.NewStoreSink(glode.SharedFactory(lode.NewMemory()), glode.SinkConfig{}),
		Adapter:   notify,
		Collector: collector,
		Logger:    log.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := orch.Execute(t.Context())
	if err != nil || result.Outcome.Status != types.OutcomeSuccess {
		t.Fatalf("expected success, got %v / %+v", err, result.Outcome)
	}
	if s := collector.Snapshot(); s.NotifyFailure != 2 {
		t.Errorf("NotifyFailure = %d, want 2", s.NotifyFailure)
	}
}

func TestExecute_FramesInFramesOut(t *testing.T) {
	var in bytes.Buffer
	w := glode.NewFrameSink(&in)
	for _, rec := range []*types.Record{
		{Path: "app/a.js", Contents: []byte("a")},
		{Path: "app/b.js", Contents: []byte("b")},
	} {
		if _, err := w.Write(t.Context(), rec); err != nil {
			t.Fatal(err)
		}
	}

	var out bytes.Buffer
	orch, err := NewRunOrchestrator(&RunConfig{
		RunMeta: &types.RunMeta{RunID: "run-6", Iteration: 1},
		Source:  source.NewFrameSource(&in, "stdin", nil, nil),
		Engine:  bundleConfig(t),
		Sink:    glode.NewFrameSink(&out),
		Logger:  log.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	result, err := orch.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Outputs) != 1 || result.Outputs[0].Written.Bytes != int64(len("a\nb")) {
		t.Errorf("outputs = %+v", result.Outputs)
	}
	if out.Len() == 0 {
		t.Error("expected an output frame")
	}
}

func TestNewRunOrchestrator_Validation(t *testing.T) {
	src := newSource(t, nil)
	sink := failingSink{}
	tests := []struct {
		name string
		cfg  RunConfig
	}{
		{"missing meta", RunConfig{Source: src, Sink: sink}},
		{"empty run id", RunConfig{RunMeta: &types.RunMeta{Iteration: 1}, Source: src, Sink: sink}},
		{"missing source", RunConfig{RunMeta: &types.RunMeta{RunID: "r", Iteration: 1}, Sink: sink}},
		{"missing sink", RunConfig{RunMeta: &types.RunMeta{RunID: "r", Iteration: 1}, Source: src}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRunOrchestrator(&tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPlan(t *testing.T) {
	groups, stats, err := Plan(t.Context(), newSource(t, testObjects()), bundleConfig(t), nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []engine.GroupSummary{
		{ID: "app", Resolved: true, Members: []types.GroupID{"vendor", "app"}, Records: []string{"app/main.js", "app/util.js"}},
		{ID: "vendor", Records: []string{"vendor/lib.js"}},
	}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
	if stats.RecordsUnclassified != 1 {
		t.Errorf("RecordsUnclassified = %d", stats.RecordsUnclassified)
	}
}

func TestBuildRunReport(t *testing.T) {
	result := &RunResult{
		RunMeta: &types.RunMeta{RunID: "run-1", Iteration: 2},
		Outcome: &types.RunOutcome{Status: types.OutcomeSuccess, Message: "ok"},
		Groups: []engine.GroupSummary{
			{ID: "app", Resolved: true, Members: []types.GroupID{"app"}, Records: []string{"a.js", "b.js"}},
		},
		Outputs: []OutputResult{
			{Group: "app", Written: glode.Written{Path: "dist/app.js", Bytes: 7, SHA256: "ff"}},
		},
	}
	report := BuildRunReport(result, metrics.Snapshot{RunID: "run-1"})

	var buf bytes.Buffer
	if err := writeRunReportTo(report, &buf); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if decoded["run_id"] != "run-1" || decoded["outcome"] != "success" || decoded["exit_code"] != float64(0) {
		t.Errorf("unexpected report %v", decoded)
	}
	if report.Groups[0].Records != 2 || report.Outputs[0].Path != "dist/app.js" {
		t.Errorf("unexpected report %+v", report)
	}
	if err := WriteRunReport(report, ""); err == nil {
		t.Error("empty path should be rejected")
	}
}

func TestDetermineOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want types.OutcomeStatus
	}{
		{nil, types.OutcomeSuccess},
		{&RunError{Kind: RunErrorSource, Err: errors.New("x")}, types.OutcomeSourceFailure},
		{&RunError{Kind: RunErrorCanceled, Err: context.Canceled}, types.OutcomeSourceFailure},
		{&RunError{Kind: RunErrorSink, Err: errors.New("x")}, types.OutcomeSinkFailure},
		{&RunError{Kind: RunErrorConfig, Err: errors.New("x")}, types.OutcomeConfigError},
		{errors.New("unclassified"), types.OutcomeConfigError},
	}
	for _, tt := range tests {
		if got := DetermineOutcome(tt.err).Status; got != tt.want {
			t.Errorf("DetermineOutcome(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
