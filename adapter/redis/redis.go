// Package redis delivers completion events over Redis pub/sub.
//
// Events are published as JSON, either all on one channel or split per
// event type ("<channel>:<event_type>"). The latest run_completed event
// can also be kept under a key so late subscribers can read the last
// outcome without waiting for the next run.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/groupcat/adapter"
)

const (
	// DefaultChannel is the channel used when none is configured.
	DefaultChannel = "groupcat:events"
	// DefaultTimeout bounds a single publish attempt.
	DefaultTimeout = 5 * time.Second
)

// Config configures the Redis adapter.
type Config struct {
	// URL is the connection URL, redis://[:password@]host:port[/db] (required).
	URL string
	// Channel is the pub/sub channel, or the channel prefix with
	// SplitChannels (default groupcat:events).
	Channel string
	// SplitChannels publishes each event type on its own channel.
	SplitChannels bool
	// LastRunKey, when set, stores the latest run_completed event.
	LastRunKey string
	// LastRunTTL expires LastRunKey; zero keeps it.
	LastRunTTL time.Duration
	// Events limits publishing to these event types.
	Events adapter.EventFilter
	// Timeout bounds each attempt (default 5s).
	Timeout time.Duration
	// Retries is the number of extra attempts after a failure.
	Retries int
	// Backoff is the delay before the first retry (default 500ms).
	Backoff time.Duration
}

// Adapter publishes events with Redis PUBLISH.
type Adapter struct {
	cfg    Config
	client *goredis.Client
}

// New validates cfg and connects lazily to Redis.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if err := cfg.Events.Validate(); err != nil {
		return nil, fmt.Errorf("redis adapter: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{
		cfg:    cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Channel returns the channel events of eventType are published on.
func (a *Adapter) Channel(eventType string) string {
	if a.cfg.SplitChannels {
		return a.cfg.Channel + ":" + eventType
	}
	return a.cfg.Channel
}

// Publish sends event unless the event filter excludes it.
func (a *Adapter) Publish(ctx context.Context, event *adapter.Event) error {
	if !a.cfg.Events.Accepts(event.EventType) {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	keep := a.cfg.LastRunKey != "" && event.EventType == adapter.EventRunCompleted
	channel := a.Channel(event.EventType)

	return adapter.Retry(ctx, "redis", a.cfg.Retries, a.cfg.Backoff, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()

		var err error
		if keep {
			_, err = a.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
				p.Set(ctx, a.cfg.LastRunKey, body, a.cfg.LastRunTTL)
				p.Publish(ctx, channel, body)
				return nil
			})
		} else {
			err = a.client.Publish(ctx, channel, body).Err()
		}
		if errors.Is(err, goredis.ErrClosed) {
			return fmt.Errorf("%w: %w", adapter.ErrPermanent, err)
		}
		return err
	})
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
