package lode

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/justapithecus/lode/lode"
)

func newTestManifest(t *testing.T) *Manifest {
	t.Helper()
	m, err := NewManifest("", SharedFactory(lode.NewMemory()))
	if err != nil {
		t.Fatalf("NewManifest failed: %v", err)
	}
	return m
}

func TestManifest_AppendAndEntries(t *testing.T) {
	m := newTestManifest(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []ManifestEntry{
		{RunID: "run-1", Group: "vendor", Path: "vendor.js", Bytes: 10, SHA256: "aa", Members: []string{"vendor"}, WrittenAt: at},
		{RunID: "run-1", Group: "app", Path: "app.js", MapPath: "app.js.map", Bytes: 20, SHA256: "bb", Members: []string{"vendor", "app"}, WrittenAt: at},
	}
	if err := m.Append(t.Context(), entries); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := m.Entries(t.Context(), "run-1")
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	want := []ManifestEntry{
		{RunID: "run-1", Day: "2026-03-01", Group: "app", Path: "app.js", MapPath: "app.js.map", Bytes: 20, SHA256: "bb", Members: []string{"vendor", "app"}, WrittenAt: at},
		{RunID: "run-1", Day: "2026-03-01", Group: "vendor", Path: "vendor.js", Bytes: 10, SHA256: "aa", Members: []string{"vendor"}, WrittenAt: at},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestManifest_LatestAndRunFilter(t *testing.T) {
	m := newTestManifest(t)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, run := range []string{"run-1", "run-10"} {
		err := m.Append(t.Context(), []ManifestEntry{{RunID: run, Group: "g", Path: run + ".js", WrittenAt: at}})
		if err != nil {
			t.Fatalf("Append(%s) failed: %v", run, err)
		}
	}

	latest, err := m.Entries(t.Context(), "")
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(latest) != 1 || latest[0].RunID != "run-10" {
		t.Errorf("latest = %+v, want run-10", latest)
	}

	// run-1 must not match run-10's partition.
	first, err := m.Entries(t.Context(), "run-1")
	if err != nil {
		t.Fatalf("Entries(run-1) failed: %v", err)
	}
	if len(first) != 1 || first[0].Path != "run-1.js" {
		t.Errorf("run-1 entries = %+v", first)
	}

	runs, err := m.Runs(t.Context())
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if diff := cmp.Diff([]string{"run-10", "run-1"}, runs); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestManifest_Empty(t *testing.T) {
	m := newTestManifest(t)

	if err := m.Append(t.Context(), nil); err != nil {
		t.Fatalf("empty Append should be a no-op, got %v", err)
	}
	if _, err := m.Entries(t.Context(), ""); !errors.Is(err, ErrNoManifest) {
		t.Errorf("expected ErrNoManifest, got %v", err)
	}
	if _, err := m.Entries(t.Context(), "missing"); !errors.Is(err, ErrNoManifest) {
		t.Errorf("expected ErrNoManifest, got %v", err)
	}
}

func TestManifest_RejectsMissingRunID(t *testing.T) {
	m := newTestManifest(t)
	if err := m.Append(t.Context(), []ManifestEntry{{Path: "a.js"}}); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}
}

func TestDeriveDay(t *testing.T) {
	at := time.Date(2026, 3, 1, 23, 30, 0, 0, time.FixedZone("X", -2*3600))
	if got := DeriveDay(at); got != "2026-03-02" {
		t.Errorf("DeriveDay = %q, want 2026-03-02", got)
	}
	if DeriveDay(time.Time{}) == "" {
		t.Error("zero time should derive today")
	}
}

func TestPartitionValue(t *testing.T) {
	p := "datasets/groupcat/partitions/day=2026-03-01/run_id=run-1/data.jsonl"
	if got := partitionValue(p, "run_id"); got != "run-1" {
		t.Errorf("partitionValue = %q", got)
	}
	if got := partitionValue(p, "source"); got != "" {
		t.Errorf("missing key should be empty, got %q", got)
	}
}

func TestSummarize(t *testing.T) {
	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)
	got := Summarize("run-1", []ManifestEntry{
		{RunID: "run-1", Day: "2026-03-01", Path: "a.js", Bytes: 10, WrittenAt: early},
		{RunID: "run-1", Day: "2026-03-02", Path: "b.js", Bytes: 5, WrittenAt: late},
	})
	want := RunSummary{RunID: "run-1", Day: "2026-03-02", Outputs: 2, Bytes: 15, Latest: late}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
	}
	if s := Summarize("run-2", nil); s.Outputs != 0 || s.Day != "" {
		t.Errorf("empty summary = %+v", s)
	}
}
