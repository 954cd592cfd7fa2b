package engine

import (
	"time"

	"github.com/pithecene-io/groupcat/types"
)

// LatestTracker remembers the most recently modified record seen so far.
// It supplies the template for outputs described by a bare path.
//
// Tie-break: a record replaces the tracked one when nothing is tracked yet,
// or when it has a mod time strictly after the tracked maximum (or the
// tracked record has none). Records without a mod time never replace a
// tracked record.
type LatestTracker struct {
	rec    *types.Record
	mod    time.Time
	hasMod bool
}

// Observe offers rec to the tracker and reports whether it was taken.
func (t *LatestTracker) Observe(rec *types.Record) bool {
	mod, ok := rec.ModTime()
	if t.rec != nil && !(ok && (!t.hasMod || mod.After(t.mod))) {
		return false
	}
	t.rec = rec
	t.mod, t.hasMod = mod, ok
	return true
}

// Latest returns the tracked record, or nil if none was observed.
func (t *LatestTracker) Latest() *types.Record {
	return t.rec
}

// ModTime returns the tracked maximum mod time, if any.
func (t *LatestTracker) ModTime() (time.Time, bool) {
	return t.mod, t.hasMod
}
