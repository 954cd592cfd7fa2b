package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pithecene-io/groupcat/cli/config"
	"github.com/pithecene-io/groupcat/ipc"
	"github.com/pithecene-io/groupcat/lode"
	"github.com/pithecene-io/groupcat/runtime"
	"github.com/pithecene-io/groupcat/types"
)

func TestRunAction_WritesBundleManifestAndReport(t *testing.T) {
	f := newFixture(t)
	reportPath := filepath.Join(f.dir, "report.json")

	app := newTestApp(nil)
	code, err := app.run(t, "run", "--config", f.config, "--run-id", "run-1", "--report", reportPath)
	if code != runtime.ExitCodeSuccess {
		t.Fatalf("exit code = %d (%v)\nstderr:\n%s", code, err, app.stderr.String())
	}

	data, err := os.ReadFile(filepath.Join(f.out, "dist", "app.js"))
	if err != nil {
		t.Fatalf("bundle not written: %v", err)
	}
	if got, want := string(data), "lib()\nmain()\nutil()"; got != want {
		t.Errorf("bundle = %q, want %q", got, want)
	}
	if !strings.Contains(app.stdout.String(), "run_id=run-1") || !strings.Contains(app.stdout.String(), "dist/app.js") {
		t.Errorf("summary missing run details:\n%s", app.stdout.String())
	}

	report, err := readRunReport(reportPath)
	if err != nil {
		t.Fatalf("readRunReport: %v", err)
	}
	if report.RunID != "run-1" || report.Outcome != types.OutcomeSuccess || len(report.Outputs) != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Metrics == nil || report.Metrics.SourceObjectsRead != 4 || report.Metrics.SinkWriteSuccess != 1 {
		t.Errorf("unexpected report metrics %+v", report.Metrics)
	}

	// The manifest written by the run is readable through inspect.
	inspect := newTestApp(nil)
	if code, err := inspect.run(t, "inspect", "run", "--config", f.config, "--format", "json", "run-1"); code != 0 {
		t.Fatalf("inspect exit code = %d (%v)", code, err)
	}
	var entries []lode.ManifestEntry
	if err := json.Unmarshal(inspect.stdout.Bytes(), &entries); err != nil {
		t.Fatalf("inspect output is not JSON: %v\n%s", err, inspect.stdout.String())
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 manifest entry, got %d", len(entries))
	}
	if diff := cmp.Diff([]string{"vendor", "app"}, entries[0].Members); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
	if entries[0].Path != "dist/app.js" || entries[0].Bytes != int64(len(data)) {
		t.Errorf("unexpected entry %+v", entries[0])
	}

	list := newTestApp(nil)
	if code, err := list.run(t, "list", "runs", "--config", f.config, "--format", "json"); code != 0 {
		t.Fatalf("list exit code = %d (%v)", code, err)
	}
	var runs []lode.RunSummary
	if err := json.Unmarshal(list.stdout.Bytes(), &runs); err != nil {
		t.Fatalf("list output is not JSON: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-1" || runs[0].Outputs != 1 {
		t.Errorf("unexpected runs %+v", runs)
	}

	show := newTestApp(nil)
	if code, err := show.run(t, "inspect", "report", "--format", "json", reportPath); code != 0 {
		t.Fatalf("inspect report exit code = %d (%v)", code, err)
	}
	if !strings.Contains(show.stdout.String(), `"outcome": "success"`) {
		t.Errorf("inspect report output:\n%s", show.stdout.String())
	}
}

func TestRunAction_MemoryBackendVisibleToInspect(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(nil)
	code, err := app.run(t, "run", "--config", f.config, "--storage-backend", "memory", "--run-id", "mem-run", "--quiet")
	if code != runtime.ExitCodeSuccess {
		t.Fatalf("exit code = %d (%v)\nstderr:\n%s", code, err, app.stderr.String())
	}

	inspect := newTestApp(nil)
	code, err = inspect.run(t, "inspect", "run", "--config", f.config, "--storage-backend", "memory", "--format", "json", "mem-run")
	if code != 0 {
		t.Fatalf("inspect exit code = %d (%v)", code, err)
	}
	var entries []lode.ManifestEntry
	if err := json.Unmarshal(inspect.stdout.Bytes(), &entries); err != nil {
		t.Fatalf("inspect output is not JSON: %v\n%s", err, inspect.stdout.String())
	}
	if len(entries) != 1 || entries[0].RunID != "mem-run" || entries[0].Path != "dist/app.js" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestRunAction_FramesInFramesOut(t *testing.T) {
	var in bytes.Buffer
	w := ipc.NewRecordWriter(&in)
	for _, rec := range []*types.Record{
		{Path: "vendor/lib.js", Contents: []byte("lib()")},
		{Path: "app/main.js", Contents: []byte("main()")},
	} {
		if err := w.Write(rec); err != nil {
			t.Fatal(err)
		}
	}

	dir := t.TempDir()
	config := filepath.Join(dir, "groupcat.yaml")
	t.Setenv("GROUPCAT_TEST_SRC", "mem://")
	t.Setenv("GROUPCAT_TEST_OUT", "")
	if err := os.WriteFile(config, []byte(fixtureConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newTestApp(&in)
	code, err := app.run(t, "run", "--config", config, "--source", "-", "--storage-backend", "frames")
	if code != runtime.ExitCodeSuccess {
		t.Fatalf("exit code = %d (%v)\nstderr:\n%s", code, err, app.stderr.String())
	}

	rr := ipc.NewRecordReader(app.stdout)
	var got []*types.Record
	for {
		rec, err := rr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, rec)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 output frame, got %d", len(got))
	}
	if got[0].Relative() != "dist/app.js" || string(got[0].Contents) != "lib()\nmain()" {
		t.Errorf("unexpected output %s = %q", got[0].Relative(), got[0].Contents)
	}
	if !strings.Contains(app.stderr.String(), "outcome=success") {
		t.Errorf("summary should move to stderr:\n%s", app.stderr.String())
	}
}

func TestRunAction_ExitCodes(t *testing.T) {
	t.Run("missing config file", func(t *testing.T) {
		app := newTestApp(nil)
		code, err := app.run(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		if code != runtime.ExitCodeConfigError {
			t.Fatalf("exit code = %d, want %d", code, runtime.ExitCodeConfigError)
		}
		if !strings.Contains(err.Error(), "config file not found") {
			t.Errorf("error should be actionable, got: %v", err)
		}
	})

	t.Run("invalid rule", func(t *testing.T) {
		f := newFixture(t)
		if err := os.WriteFile(f.config, []byte("rules:\n  - pattern: '('\n    group: x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		app := newTestApp(nil)
		if code, _ := app.run(t, "run", "--config", f.config); code != runtime.ExitCodeConfigError {
			t.Errorf("exit code = %d, want %d", code, runtime.ExitCodeConfigError)
		}
	})

	t.Run("missing source directory", func(t *testing.T) {
		f := newFixture(t)
		app := newTestApp(nil)
		code, _ := app.run(t, "run", "--config", f.config, "--source", "file://"+filepath.ToSlash(filepath.Join(f.dir, "nope")))
		if code != runtime.ExitCodeSourceFailure {
			t.Errorf("exit code = %d, want %d", code, runtime.ExitCodeSourceFailure)
		}
	})

	t.Run("storage path is a file", func(t *testing.T) {
		f := newFixture(t)
		blocker := filepath.Join(f.dir, "blocker")
		if err := os.WriteFile(blocker, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		app := newTestApp(nil)
		code, _ := app.run(t, "run", "--config", f.config, "--storage-path", blocker)
		if code != runtime.ExitCodeSinkFailure {
			t.Errorf("exit code = %d, want %d", code, runtime.ExitCodeSinkFailure)
		}
	})

	t.Run("watch needs a local source", func(t *testing.T) {
		f := newFixture(t)
		app := newTestApp(nil)
		code, err := app.run(t, "run", "--config", f.config, "--source", "mem://", "--watch")
		if code != runtime.ExitCodeConfigError || !strings.Contains(err.Error(), "file://") {
			t.Errorf("exit code = %d (%v)", code, err)
		}
	})
}

func TestPlanAction(t *testing.T) {
	f := newFixture(t)
	app := newTestApp(nil)
	if code, err := app.run(t, "plan", "--config", f.config, "--format", "json"); code != 0 {
		t.Fatalf("exit code = %d (%v)\nstderr:\n%s", code, err, app.stderr.String())
	}

	var got []PlanGroup
	if err := json.Unmarshal(app.stdout.Bytes(), &got); err != nil {
		t.Fatalf("plan output is not JSON: %v\n%s", err, app.stdout.String())
	}
	want := []PlanGroup{
		{Group: "app", Resolved: true, Output: "dist/app.js", Members: []string{"vendor", "app"}, Records: []string{"app/main.js", "app/util.js"}},
		{Group: "vendor", Resolved: false, Members: []string{}, Records: []string{"vendor/lib.js"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}

	if _, err := os.Stat(f.out); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("plan must not write outputs, stat err = %v", err)
	}
}

func TestUnsupportedTUI(t *testing.T) {
	f := newFixture(t)
	for _, args := range [][]string{
		{"plan", "--config", f.config, "--tui"},
		{"list", "runs", "--config", f.config, "--tui"},
		{"version", "--tui"},
	} {
		app := newTestApp(nil)
		code, err := app.run(t, args...)
		if code != 1 || err == nil || !strings.Contains(err.Error(), "--tui is not supported") {
			t.Errorf("%v: exit code = %d (%v)", args, code, err)
		}
	}
}

func TestInspectRun_UnknownRun(t *testing.T) {
	f := newFixture(t)
	if code, err := newTestApp(nil).run(t, "run", "--config", f.config, "--run-id", "run-1", "--quiet"); code != 0 {
		t.Fatalf("run exit code = %d (%v)", code, err)
	}
	app := newTestApp(nil)
	code, err := app.run(t, "inspect", "run", "--config", f.config, "run-404")
	if code != 1 || !strings.Contains(err.Error(), "run-404") {
		t.Errorf("exit code = %d (%v)", code, err)
	}
}

func TestVersionAction(t *testing.T) {
	app := newTestApp(nil)
	if code, err := app.run(t, "version", "--format", "json"); code != 0 {
		t.Fatalf("exit code = %d (%v)", code, err)
	}
	var got VersionResponse
	if err := json.Unmarshal(app.stdout.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Version != types.Version || got.Commit != "test" {
		t.Errorf("unexpected version %+v", got)
	}
}

func TestRunID(t *testing.T) {
	if got := runID("build", 1); got != "build" {
		t.Errorf("runID(build, 1) = %q", got)
	}
	if got := runID("build", 3); got != "build-3" {
		t.Errorf("runID(build, 3) = %q", got)
	}
	if got := runID("", 1); !strings.HasPrefix(got, "run-") {
		t.Errorf("generated run ID = %q", got)
	}
}

func TestStoragePath(t *testing.T) {
	tests := []struct {
		backend, path, prefix, want string
	}{
		{"s3", "bucket/builds", "", "s3://bucket/builds"},
		{"s3", "s3://bucket", "web/", "s3://bucket/web"},
		{"memory", "", "", "memory://"},
	}
	for _, tt := range tests {
		cfg := storeSection(tt.backend, tt.path, tt.prefix)
		if got := storagePath(cfg); got != tt.want {
			t.Errorf("storagePath(%s, %s, %s) = %q, want %q", tt.backend, tt.path, tt.prefix, got, tt.want)
		}
	}

	abs := filepath.Join(t.TempDir(), "out")
	if got := storagePath(storeSection("fs", abs, "")); got != abs {
		t.Errorf("fs storagePath = %q, want %q", got, abs)
	}
}

func storeSection(backend, path, prefix string) config.StorageConfig {
	return config.StorageConfig{Backend: backend, Path: path, Prefix: prefix}
}
