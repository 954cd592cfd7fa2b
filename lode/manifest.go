package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"
)

// DefaultDataset is the dataset ID manifest records are written under.
const DefaultDataset = "groupcat"

// RecordKindBundle marks manifest records describing one written output.
const RecordKindBundle = "bundle"

var (
	// ErrNoManifest is returned when no manifest records match a query.
	ErrNoManifest = errors.New("no manifest records found")
	// ErrInvalidEntry is returned for manifest entries without a run ID.
	ErrInvalidEntry = errors.New("invalid manifest entry")
)

// ManifestEntry describes one output written by a run.
type ManifestEntry struct {
	RunID     string    `json:"run_id"`
	Day       string    `json:"day"`
	Group     string    `json:"group"`
	Path      string    `json:"path"`
	MapPath   string    `json:"map_path,omitempty"`
	Bytes     int64     `json:"bytes"`
	SHA256    string    `json:"sha256"`
	Members   []string  `json:"members"`
	WrittenAt time.Time `json:"written_at"`
}

// Manifest appends and reads run manifest records in a Lode dataset.
// Records are Hive-partitioned by day and run_id and encoded as JSONL.
type Manifest struct {
	dataset lode.Dataset
}

// NewManifest creates a manifest over a dataset backed by factory.
func NewManifest(dataset string, factory lode.StoreFactory) (*Manifest, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout("day", "run_id"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrap("init", dataset, err)
	}
	return &Manifest{dataset: ds}, nil
}

// Append writes entries as a single snapshot. An empty batch is a no-op.
func (m *Manifest) Append(ctx context.Context, entries []ManifestEntry) error {
	if len(entries) == 0 {
		return nil
	}
	records := make([]any, 0, len(entries))
	for _, e := range entries {
		if e.RunID == "" {
			return fmt.Errorf("%w: %s has no run_id", ErrInvalidEntry, e.Path)
		}
		if e.Day == "" {
			e.Day = DeriveDay(e.WrittenAt)
		}
		records = append(records, toRecordMap(e))
	}
	_, err := m.dataset.Write(ctx, records, lode.Metadata{})
	return wrap("write", string(m.dataset.ID()), err)
}

// Entries returns the manifest entries of runID, or of the most recent
// run when runID is empty. Entries are ordered by output path.
func (m *Manifest) Entries(ctx context.Context, runID string) ([]ManifestEntry, error) {
	snapshots, err := m.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrap("list", string(m.dataset.ID()), err)
	}

	// Latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if runID != "" && !snapshotHasRun(snap, runID) {
			continue
		}

		data, err := m.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", fmt.Sprintf("%s/snapshot/%s", m.dataset.ID(), snap.ID), err)
		}

		var entries []ManifestEntry
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindBundle {
				continue
			}
			e := fromRecordMap(record)
			if runID != "" && e.RunID != runID {
				continue
			}
			entries = append(entries, e)
		}
		if len(entries) == 0 {
			continue
		}
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
		return entries, nil
	}
	return nil, ErrNoManifest
}

// Runs lists the run IDs with manifest records, most recent first.
func (m *Manifest) Runs(ctx context.Context) ([]string, error) {
	snapshots, err := m.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrap("list", string(m.dataset.ID()), err)
	}
	seen := make(map[string]bool)
	var runs []string
	for i := len(snapshots) - 1; i >= 0; i-- {
		for _, f := range snapshots[i].Manifest.Files {
			id := partitionValue(f.Path, "run_id")
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			runs = append(runs, id)
		}
	}
	return runs, nil
}

// RunSummary aggregates the manifest entries of one run.
type RunSummary struct {
	RunID   string    `json:"run_id"`
	Day     string    `json:"day"`
	Outputs int       `json:"outputs"`
	Bytes   int64     `json:"bytes"`
	Latest  time.Time `json:"latest"`
}

// Summarize folds entries into a RunSummary for runID.
func Summarize(runID string, entries []ManifestEntry) RunSummary {
	s := RunSummary{RunID: runID}
	for _, e := range entries {
		s.Outputs++
		s.Bytes += e.Bytes
		if e.WrittenAt.After(s.Latest) {
			s.Latest = e.WrittenAt
			s.Day = e.Day
		}
		if s.Day == "" {
			s.Day = e.Day
		}
	}
	return s
}

// DeriveDay formats t as the manifest day partition (UTC, YYYY-MM-DD).
func DeriveDay(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format("2006-01-02")
}

func toRecordMap(e ManifestEntry) map[string]any {
	members := make([]any, len(e.Members))
	for i, m := range e.Members {
		members[i] = m
	}
	record := map[string]any{
		"record_kind": RecordKindBundle,
		"run_id":      e.RunID,
		"day":         e.Day,
		"group":       e.Group,
		"path":        e.Path,
		"bytes":       e.Bytes,
		"sha256":      e.SHA256,
		"members":     members,
		"written_at":  e.WrittenAt.UTC().Format(time.RFC3339Nano),
	}
	if e.MapPath != "" {
		record["map_path"] = e.MapPath
	}
	return record
}

func fromRecordMap(record map[string]any) ManifestEntry {
	e := ManifestEntry{
		RunID:   toString(record["run_id"]),
		Day:     toString(record["day"]),
		Group:   toString(record["group"]),
		Path:    toString(record["path"]),
		MapPath: toString(record["map_path"]),
		Bytes:   toInt64(record["bytes"]),
		SHA256:  toString(record["sha256"]),
	}
	if raw, ok := record["members"].([]any); ok {
		for _, m := range raw {
			e.Members = append(e.Members, toString(m))
		}
	}
	if ts, err := time.Parse(time.RFC3339Nano, toString(record["written_at"])); err == nil {
		e.WrittenAt = ts
	}
	return e
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func snapshotHasRun(snap *lode.DatasetSnapshot, runID string) bool {
	for _, f := range snap.Manifest.Files {
		if partitionValue(f.Path, "run_id") == runID {
			return true
		}
	}
	return false
}

// partitionValue extracts the value of an exact key=value segment from a
// Hive-partitioned path. Matching whole segments keeps run-1 from
// matching run-10.
func partitionValue(p, key string) string {
	prefix := key + "="
	for _, part := range strings.Split(p, "/") {
		if v, ok := strings.CutPrefix(part, prefix); ok {
			return v
		}
	}
	return ""
}
