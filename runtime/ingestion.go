package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/groupcat/engine"
	"github.com/pithecene-io/groupcat/log"
	"github.com/pithecene-io/groupcat/source"
)

// RunErrorKind classifies run failures for outcome determination.
type RunErrorKind int

const (
	// RunErrorConfig indicates the run could not be assembled.
	RunErrorConfig RunErrorKind = iota
	// RunErrorSource indicates records could not be read.
	RunErrorSource
	// RunErrorSink indicates outputs could not be persisted.
	RunErrorSink
	// RunErrorCanceled indicates context cancellation.
	RunErrorCanceled
)

func (k RunErrorKind) String() string {
	switch k {
	case RunErrorConfig:
		return "config"
	case RunErrorSource:
		return "source"
	case RunErrorSink:
		return "sink"
	case RunErrorCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// RunError is a classified run failure.
type RunError struct {
	Kind RunErrorKind
	Err  error
}

func (e *RunError) Error() string {
	return e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a RunError in err's chain.
func KindOf(err error) (RunErrorKind, bool) {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Kind, true
	}
	return 0, false
}

// ingestion feeds one source into one engine. It is the only goroutine
// that touches the engine.
type ingestion struct {
	src    source.Source
	eng    *engine.Engine
	logger *log.Logger

	recordErrors int64
}

// run drains the source into the engine until the source closes.
// Returns:
//   - nil: source drained cleanly
//   - *RunError with Kind=RunErrorSource: terminal source error
//   - *RunError with Kind=RunErrorCanceled: context canceled
//
// Per-record errors (undecodable frames, streaming records) are logged,
// counted and skipped.
func (in *ingestion) run(ctx context.Context) error {
	items, errs := in.src.Stream(ctx)

	for item := range items {
		if item.Err != nil {
			in.recordErrors++
			in.logger.Warn("record skipped", map[string]any{
				"source": in.src.Describe(),
				"error":  item.Err.Error(),
			})
			continue
		}
		if err := in.eng.Consume(item.Record); err != nil {
			// The engine logs rejected records itself.
			in.recordErrors++
		}
	}

	if err, ok := <-errs; ok && err != nil {
		if ctx.Err() != nil {
			return &RunError{Kind: RunErrorCanceled, Err: fmt.Errorf("run canceled: %w", err)}
		}
		return &RunError{Kind: RunErrorSource, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &RunError{Kind: RunErrorCanceled, Err: fmt.Errorf("run canceled: %w", err)}
	}
	return nil
}
