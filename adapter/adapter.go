// Package adapter defines the notification boundary for completed bundles
// and runs.
//
// Adapters publish completion events to downstream systems (HTTP
// webhooks, Redis pub/sub). The runtime owns adapter lifecycle; users
// provide configuration only.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pithecene-io/groupcat/types"
)

// Event types.
const (
	EventBundleCompleted = "bundle_completed"
	EventRunCompleted    = "run_completed"
)

// Event is the payload published for a completed bundle or run.
// Bundle fields are empty on run events and run fields on bundle events.
type Event struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"`
	RunID           string `json:"run_id"`
	Source          string `json:"source"`
	Timestamp       string `json:"timestamp"` // RFC 3339

	Group   string   `json:"group,omitempty"`
	Path    string   `json:"path,omitempty"`
	MapPath string   `json:"map_path,omitempty"`
	Bytes   int64    `json:"bytes,omitempty"`
	SHA256  string   `json:"sha256,omitempty"`
	Members []string `json:"members,omitempty"`

	Outcome     string `json:"outcome,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
	OutputCount int    `json:"output_count,omitempty"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
}

// BundleCompleted builds a bundle_completed event.
func BundleCompleted(runID, source, group, path string, at time.Time) *Event {
	return &Event{
		ContractVersion: types.Version,
		EventType:       EventBundleCompleted,
		RunID:           runID,
		Source:          source,
		Timestamp:       at.UTC().Format(time.RFC3339),
		Group:           group,
		Path:            path,
	}
}

// RunCompleted builds a run_completed event.
func RunCompleted(runID, source string, outcome types.OutcomeStatus, at time.Time) *Event {
	return &Event{
		ContractVersion: types.Version,
		EventType:       EventRunCompleted,
		RunID:           runID,
		Source:          source,
		Timestamp:       at.UTC().Format(time.RFC3339),
		Outcome:         string(outcome),
	}
}

// EventFilter selects the event types an adapter publishes. An empty
// filter accepts every event.
type EventFilter []string

// ErrUnknownEvent is returned for filter entries naming no event type.
var ErrUnknownEvent = errors.New("unknown event type")

// Validate rejects entries that name no known event type.
func (f EventFilter) Validate() error {
	for _, name := range f {
		switch name {
		case EventBundleCompleted, EventRunCompleted:
		default:
			return fmt.Errorf("%w %q", ErrUnknownEvent, name)
		}
	}
	return nil
}

// Accepts reports whether events of eventType pass the filter.
func (f EventFilter) Accepts(eventType string) bool {
	return len(f) == 0 || slices.Contains(f, eventType)
}

// Adapter publishes completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends an event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *Event) error

	// Close releases adapter resources.
	Close() error
}

// DefaultBackoff is the delay before the first retry. It doubles on each
// subsequent retry.
const DefaultBackoff = 500 * time.Millisecond

// ErrPermanent marks errors that must not be retried.
var ErrPermanent = errors.New("non-retriable error")

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. It stops early on success, on context cancellation, and on
// errors wrapping ErrPermanent.
func Retry(ctx context.Context, name string, retries int, backoff time.Duration, fn func(context.Context) error) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + retries

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff << uint(i-1)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return fmt.Errorf("%s: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
