// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single run. It is a leaf
// package with no internal dependencies. Engine counters are absorbed once
// at flush rather than recorded live, avoiding double-counting.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64 `json:"runs_started"`
	RunsCompleted int64 `json:"runs_completed"`
	RunsFailed    int64 `json:"runs_failed"`

	// Engine (absorbed at flush)
	RecordsReceived     int64 `json:"records_received"`
	RecordsBuffered     int64 `json:"records_buffered"`
	RecordsSkipped      int64 `json:"records_skipped"`
	RecordsRejected     int64 `json:"records_rejected"`
	RecordsUnclassified int64 `json:"records_unclassified"`
	GroupsDiscovered    int64 `json:"groups_discovered"`
	GroupsDeclined      int64 `json:"groups_declined"`
	OutputsEmitted      int64 `json:"outputs_emitted"`
	BytesEmitted        int64 `json:"bytes_emitted"`

	// Source
	SourceObjectsRead int64 `json:"source_objects_read"`
	SourceReadErrors  int64 `json:"source_read_errors"`
	FrameDecodeErrors int64 `json:"frame_decode_errors"`

	// Sink / storage
	SinkWriteSuccess int64 `json:"sink_write_success"`
	SinkWriteFailure int64 `json:"sink_write_failure"`

	// Adapter
	NotifySuccess int64 `json:"notify_success"`
	NotifyFailure int64 `json:"notify_failure"`

	// Dimensions (informational, set at construction)
	Source         string `json:"source"`
	StorageBackend string `json:"storage_backend"`
	RunID          string `json:"run_id"`
}

// EngineCounts mirrors the engine counters absorbed at flush. Kept here
// so this package stays free of internal dependencies.
type EngineCounts struct {
	RecordsReceived     int64
	RecordsBuffered     int64
	RecordsSkipped      int64
	RecordsRejected     int64
	RecordsUnclassified int64
	GroupsDiscovered    int64
	GroupsDeclined      int64
	OutputsEmitted      int64
	BytesEmitted        int64
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64

	engine EngineCounts

	sourceObjectsRead int64
	sourceReadErrors  int64
	frameDecodeErrors int64

	sinkWriteSuccess int64
	sinkWriteFailure int64

	notifySuccess int64
	notifyFailure int64

	source         string
	storageBackend string
	runID          string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(source, storageBackend, runID string) *Collector {
	return &Collector{
		source:         source,
		storageBackend: storageBackend,
		runID:          runID,
	}
}

// inc must only be called on a non-nil receiver.
func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.inc(&c.runsStarted)
}

// IncRunCompleted records a successful run completion.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.runsCompleted)
}

// IncRunFailed records a run ending in a config, source or sink failure.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.inc(&c.runsFailed)
}

// --- Source ---

// IncSourceObjectsRead records one object or frame delivered by a source.
func (c *Collector) IncSourceObjectsRead() {
	if c == nil {
		return
	}
	c.inc(&c.sourceObjectsRead)
}

// IncSourceReadErrors records a failed object read.
func (c *Collector) IncSourceReadErrors() {
	if c == nil {
		return
	}
	c.inc(&c.sourceReadErrors)
}

// IncFrameDecodeErrors records a record frame decode error.
func (c *Collector) IncFrameDecodeErrors() {
	if c == nil {
		return
	}
	c.inc(&c.frameDecodeErrors)
}

// --- Sink ---
// Sink counters are per output object, not per run.

// IncSinkWriteSuccess records a successful output write.
func (c *Collector) IncSinkWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.sinkWriteSuccess)
}

// IncSinkWriteFailure records a failed output write.
func (c *Collector) IncSinkWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.sinkWriteFailure)
}

// --- Adapter ---

// IncNotifySuccess records a delivered completion event.
func (c *Collector) IncNotifySuccess() {
	if c == nil {
		return
	}
	c.inc(&c.notifySuccess)
}

// IncNotifyFailure records a completion event that could not be delivered.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.inc(&c.notifyFailure)
}

// --- Engine ---

// AbsorbEngineStats copies the engine counters into the collector.
// Called once after flush with the final engine stats.
func (c *Collector) AbsorbEngineStats(counts EngineCounts) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.engine = counts
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,

		RecordsReceived:     c.engine.RecordsReceived,
		RecordsBuffered:     c.engine.RecordsBuffered,
		RecordsSkipped:      c.engine.RecordsSkipped,
		RecordsRejected:     c.engine.RecordsRejected,
		RecordsUnclassified: c.engine.RecordsUnclassified,
		GroupsDiscovered:    c.engine.GroupsDiscovered,
		GroupsDeclined:      c.engine.GroupsDeclined,
		OutputsEmitted:      c.engine.OutputsEmitted,
		BytesEmitted:        c.engine.BytesEmitted,

		SourceObjectsRead: c.sourceObjectsRead,
		SourceReadErrors:  c.sourceReadErrors,
		FrameDecodeErrors: c.frameDecodeErrors,

		SinkWriteSuccess: c.sinkWriteSuccess,
		SinkWriteFailure: c.sinkWriteFailure,

		NotifySuccess: c.notifySuccess,
		NotifyFailure: c.notifyFailure,

		Source:         c.source,
		StorageBackend: c.storageBackend,
		RunID:          c.runID,
	}
}
