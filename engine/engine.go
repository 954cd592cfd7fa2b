// Package engine implements the group-then-concatenate aggregation core.
//
// Records are consumed one at a time, classified into at most one group,
// and buffered per group in arrival order. Group metadata is resolved once,
// when a group is first seen. Flush concatenates every resolved group, in
// discovery order, and returns one output record per group.
//
// The engine is single-use and not safe for concurrent use: callers must
// serialize Consume calls and call Flush exactly once after the last one.
package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/pithecene-io/groupcat/concat"
	"github.com/pithecene-io/groupcat/log"
	"github.com/pithecene-io/groupcat/sourcemap"
	"github.com/pithecene-io/groupcat/types"
)

// ErrInvalidConfig is returned when Config is incomplete.
var ErrInvalidConfig = errors.New("invalid engine config")

// ErrMissingClassifier is returned when Config.Classifier is nil.
var ErrMissingClassifier = fmt.Errorf("%w: missing classifier", ErrInvalidConfig)

// ErrMissingResolver is returned when Config.Resolver is nil.
var ErrMissingResolver = fmt.Errorf("%w: missing group resolver", ErrInvalidConfig)

// ErrStreamingNotSupported is returned for records whose contents are streams.
// The record is dropped; the engine keeps accepting records.
var ErrStreamingNotSupported = errors.New("streaming not supported")

// ErrFlushed is returned by Consume after Flush.
var ErrFlushed = errors.New("engine flushed: no more records accepted")

// ErrAlreadyFlushed is returned by a second Flush.
var ErrAlreadyFlushed = errors.New("engine already flushed")

// ErrInvalidOutput marks resolved metadata without a usable output
// descriptor. Such groups are treated as declined.
var ErrInvalidOutput = errors.New("invalid output descriptor")

// Classifier maps a record to its group. The empty GroupID means the
// record belongs to no group.
type Classifier interface {
	Classify(rec *types.Record) types.GroupID
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(rec *types.Record) types.GroupID

// Classify implements Classifier.
func (f ClassifierFunc) Classify(rec *types.Record) types.GroupID { return f(rec) }

// Resolver produces metadata for a newly seen group. Returning false (or
// nil metadata) declines: the group still buffers members but produces no
// output.
type Resolver interface {
	Resolve(id types.GroupID, trigger *types.Record) (*types.GroupMetadata, bool)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(id types.GroupID, trigger *types.Record) (*types.GroupMetadata, bool)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(id types.GroupID, trigger *types.Record) (*types.GroupMetadata, bool) {
	return f(id, trigger)
}

// Observer receives notifications synchronously. Observers must not
// block or call back into the engine.
type Observer interface {
	Notify(n types.Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(n types.Notification)

// Notify implements Observer.
func (f ObserverFunc) Notify(n types.Notification) { f(n) }

// Config configures an Engine.
type Config struct {
	// Classifier is required.
	Classifier Classifier
	// Resolver is required.
	Resolver Resolver
	// Separator is inserted between concatenated members.
	// Nil means DefaultSeparator(); a pointer to "" means no separator.
	Separator *string
	// Observers receive record and group notifications.
	Observers []Observer
	// Logger is optional. If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultSeparator returns the platform line terminator.
func DefaultSeparator() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// Separator returns a pointer to s, for Config.Separator.
func Separator(s string) *string {
	return &s
}

type state int

const (
	stateIngesting state = iota
	stateFlushed
)

// Stats counts engine activity for one run.
type Stats struct {
	// RecordsReceived counts every Consume call before flush.
	RecordsReceived int64
	// RecordsBuffered counts records appended to a bucket.
	RecordsBuffered int64
	// RecordsSkipped counts null or empty records.
	RecordsSkipped int64
	// RecordsRejected counts streaming records.
	RecordsRejected int64
	// RecordsUnclassified counts records the classifier put in no group.
	RecordsUnclassified int64
	// GroupsDiscovered counts distinct group IDs seen.
	GroupsDiscovered int64
	// GroupsDeclined counts groups the resolver declined.
	GroupsDeclined int64
	// OutputsEmitted counts output records produced by Flush.
	OutputsEmitted int64
	// BytesEmitted sums output content sizes.
	BytesEmitted int64
}

// GroupSummary describes one discovered group.
type GroupSummary struct {
	ID       types.GroupID
	Resolved bool
	Members  []types.GroupID
	Records  []string
}

// Engine buffers, classifies and concatenates records.
type Engine struct {
	classifier Classifier
	resolver   Resolver
	separator  string
	observers  []Observer
	logger     *log.Logger

	state      state
	tracker    LatestTracker
	buckets    map[types.GroupID][]*types.Record
	discovered []types.GroupID
	metadata   map[types.GroupID]*types.GroupMetadata
	order      []types.GroupID
	stats      Stats
}

// New creates an engine. Returns ErrMissingClassifier or
// ErrMissingResolver when the corresponding function is absent.
func New(cfg Config) (*Engine, error) {
	if cfg.Classifier == nil {
		return nil, ErrMissingClassifier
	}
	if cfg.Resolver == nil {
		return nil, ErrMissingResolver
	}

	sep := DefaultSeparator()
	if cfg.Separator != nil {
		sep = *cfg.Separator
	}

	return &Engine{
		classifier: cfg.Classifier,
		resolver:   cfg.Resolver,
		separator:  sep,
		observers:  cfg.Observers,
		logger:     cfg.Logger,
		buckets:    make(map[types.GroupID][]*types.Record),
		metadata:   make(map[types.GroupID]*types.GroupMetadata),
	}, nil
}

// Consume ingests one record.
//
// Null or empty records are ignored. Streaming records are rejected with
// ErrStreamingNotSupported and excluded from every bucket; the engine
// stays usable. Returns ErrFlushed once Flush has run.
func (e *Engine) Consume(rec *types.Record) error {
	if e.state == stateFlushed {
		return ErrFlushed
	}
	e.stats.RecordsReceived++

	if rec == nil {
		e.stats.RecordsSkipped++
		return nil
	}
	if rec.IsStream() {
		e.stats.RecordsRejected++
		e.logReject(rec)
		return fmt.Errorf("%w: %s", ErrStreamingNotSupported, rec.Path)
	}
	if len(rec.Contents) == 0 {
		e.stats.RecordsSkipped++
		return nil
	}

	e.tracker.Observe(rec)

	id := e.classifier.Classify(rec)
	if id == "" {
		e.stats.RecordsUnclassified++
	} else {
		if _, known := e.buckets[id]; !known {
			e.discover(id, rec)
		}
		e.buckets[id] = append(e.buckets[id], rec)
		e.stats.RecordsBuffered++
	}

	e.notify(types.Notification{
		Kind:    types.NotificationRecordProcessed,
		GroupID: id,
		Record:  rec,
	})
	return nil
}

// discover registers a new group and resolves its metadata exactly once.
// The first answer, including a decline, is authoritative for the run.
func (e *Engine) discover(id types.GroupID, trigger *types.Record) {
	e.buckets[id] = nil
	e.discovered = append(e.discovered, id)
	e.stats.GroupsDiscovered++

	meta, ok := e.resolver.Resolve(id, trigger)
	if !ok || meta == nil {
		e.stats.GroupsDeclined++
		e.logDecline(id, "resolver declined")
		return
	}
	if meta.Output.Kind() == types.OutputInvalid {
		e.stats.GroupsDeclined++
		e.logDecline(id, ErrInvalidOutput.Error())
		return
	}

	e.metadata[id] = meta
	e.order = append(e.order, id)
}

// Flush concatenates every resolved group and returns the outputs in
// group discovery order. Missing member buckets are skipped. Flush may
// only be called once.
func (e *Engine) Flush() ([]*types.Record, error) {
	if e.state == stateFlushed {
		return nil, ErrAlreadyFlushed
	}
	e.state = stateFlushed

	latest := e.tracker.Latest()
	if latest == nil {
		return nil, nil
	}

	outputs := make([]*types.Record, 0, len(e.order))
	for _, id := range e.order {
		out, err := e.build(e.metadata[id], latest)
		if err != nil {
			return outputs, fmt.Errorf("group %q: %w", id, err)
		}

		outputs = append(outputs, out)
		e.stats.OutputsEmitted++
		e.stats.BytesEmitted += int64(len(out.Contents))

		e.notify(types.Notification{
			Kind:    types.NotificationGroupProcessed,
			GroupID: id,
			Record:  out,
		})
	}

	return outputs, nil
}

func (e *Engine) build(meta *types.GroupMetadata, latest *types.Record) (*types.Record, error) {
	c := concat.New(meta.UseSourceMaps, meta.Output.Path(), e.separator)
	for _, member := range meta.Members {
		for _, rec := range e.buckets[member] {
			c.Add(rec.Relative(), rec.Contents, rec.SourceMap)
		}
	}

	var out *types.Record
	switch meta.Output.Kind() {
	case types.OutputTemplate:
		out = meta.Output.Template().CloneMeta()
	default:
		out = latest.CloneMeta()
		out.Path = filepath.Join(latest.Base, filepath.FromSlash(meta.Output.Path()))
	}

	out.Contents = c.Content()
	if out.Contents == nil {
		out.Contents = []byte{}
	}
	if out.Stat != nil {
		out.Stat.Size = int64(len(out.Contents))
	}

	if meta.UseSourceMaps {
		sm, err := sourcemap.Parse([]byte(c.SourceMap()))
		if err != nil {
			return nil, err
		}
		out.SourceMap = sm
	}

	return out, nil
}

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Groups summarizes every discovered group in discovery order.
func (e *Engine) Groups() []GroupSummary {
	out := make([]GroupSummary, 0, len(e.discovered))
	for _, id := range e.discovered {
		s := GroupSummary{ID: id}
		if meta, ok := e.metadata[id]; ok {
			s.Resolved = true
			s.Members = append(s.Members, meta.Members...)
		}
		for _, rec := range e.buckets[id] {
			s.Records = append(s.Records, rec.Relative())
		}
		out = append(out, s)
	}
	return out
}

func (e *Engine) notify(n types.Notification) {
	for _, o := range e.observers {
		o.Notify(n)
	}
}

func (e *Engine) logReject(rec *types.Record) {
	if e.logger == nil {
		return
	}
	e.logger.Warn("record rejected", map[string]any{
		"path":   rec.Path,
		"reason": "streaming_not_supported",
	})
}

func (e *Engine) logDecline(id types.GroupID, reason string) {
	if e.logger == nil {
		return
	}
	e.logger.Debug("group has no output", map[string]any{
		"group":  string(id),
		"reason": reason,
	})
}
