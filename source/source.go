// Package source delivers input records to a run.
//
// Two sources exist: a bucket source that lists and reads objects through
// gocloud.dev/blob (local directories, memory, S3, GCS), and a frame source
// that reads msgpack record frames from a stream such as stdin. Both deliver
// records in a deterministic order on a channel and report a terminal
// failure on a separate error channel.
package source

import (
	"context"
	"errors"

	"github.com/pithecene-io/groupcat/types"
)

// ErrSource marks failures that stop a source before all records were
// delivered.
var ErrSource = errors.New("source failure")

// Item is one delivery from a source. Exactly one of Record and Err is set;
// Err marks a single unreadable input and is not fatal to the run.
type Item struct {
	Record *types.Record
	Err    error
}

// Source streams records.
type Source interface {
	// Stream starts delivery. The item channel is closed when the source is
	// exhausted or fails; the error channel receives at most one terminal
	// error (wrapping ErrSource) and is closed afterwards.
	Stream(ctx context.Context) (<-chan Item, <-chan error)
	// Describe returns a short human-readable location.
	Describe() string
	// Close releases resources.
	Close() error
}
