package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pithecene-io/groupcat/ipc"
	"github.com/pithecene-io/groupcat/log"
	"github.com/pithecene-io/groupcat/metrics"
)

// FrameSource reads msgpack record frames from a stream in arrival order.
// Undecodable payloads become per-record Items with Err set; truncated
// or oversized frames end the stream with a terminal error.
type FrameSource struct {
	reader  io.Reader
	name    string
	logger  *log.Logger
	metrics *metrics.Collector
}

// NewFrameSource creates a frame source over r. name is used by Describe.
func NewFrameSource(r io.Reader, name string, logger *log.Logger, m *metrics.Collector) *FrameSource {
	return &FrameSource{reader: r, name: name, logger: logger, metrics: m}
}

// Describe implements Source.
func (s *FrameSource) Describe() string {
	return s.name
}

// Close implements Source. The underlying reader is owned by the caller.
func (s *FrameSource) Close() error {
	return nil
}

// Stream implements Source.
func (s *FrameSource) Stream(ctx context.Context) (<-chan Item, <-chan error) {
	itemCh := make(chan Item, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(itemCh)
		defer close(errCh)

		rr := ipc.NewRecordReader(s.reader)
		for {
			if err := ctx.Err(); err != nil {
				errCh <- fmt.Errorf("%w: %w", ErrSource, err)
				return
			}

			rec, err := rr.Read()
			if errors.Is(err, io.EOF) {
				return
			}

			var item Item
			switch {
			case err == nil:
				s.metrics.IncSourceObjectsRead()
				item.Record = rec
			case ipc.IsFatalFrameError(err):
				s.metrics.IncFrameDecodeErrors()
				errCh <- fmt.Errorf("%w: %s: %w", ErrSource, s.name, err)
				return
			default:
				s.metrics.IncFrameDecodeErrors()
				if s.logger != nil {
					s.logger.Warn("record frame skipped", map[string]any{"error": err.Error()})
				}
				item.Err = err
			}

			select {
			case itemCh <- item:
			case <-ctx.Done():
				errCh <- fmt.Errorf("%w: %w", ErrSource, ctx.Err())
				return
			}
		}
	}()

	return itemCh, errCh
}
