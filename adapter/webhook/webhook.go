// Package webhook delivers completion events to an HTTP endpoint.
//
// Each event is POSTed as JSON with its type and run ID in headers, so
// receivers can route without decoding the body. When a secret is
// configured the body is signed with HMAC-SHA256. Network errors and 5xx
// responses are retried with exponential backoff; 4xx responses are not.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pithecene-io/groupcat/adapter"
	"github.com/pithecene-io/groupcat/iox"
)

// Headers set on every delivery.
const (
	HeaderEvent     = "X-Groupcat-Event"
	HeaderRun       = "X-Groupcat-Run"
	HeaderSignature = "X-Groupcat-Signature"
)

const (
	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 10 * time.Second
	// DefaultRetries is used by callers that do not configure retries.
	DefaultRetries = 3
)

// Config configures the webhook adapter.
type Config struct {
	// URL is the endpoint deliveries are POSTed to (required).
	URL string
	// Headers are added to every delivery.
	Headers map[string]string
	// Secret, when set, signs each body into HeaderSignature.
	Secret string
	// Events limits deliveries to these event types.
	Events adapter.EventFilter
	// Timeout bounds each attempt (default 10s).
	Timeout time.Duration
	// Retries is the number of extra attempts after a failure.
	Retries int
	// Backoff is the delay before the first retry (default 500ms).
	Backoff time.Duration
}

// Adapter delivers events over HTTP.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New validates cfg and creates a webhook adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if err := cfg.Events.Validate(); err != nil {
		return nil, fmt.Errorf("webhook adapter: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Publish delivers event unless the event filter excludes it.
func (a *Adapter) Publish(ctx context.Context, event *adapter.Event) error {
	if !a.cfg.Events.Accepts(event.EventType) {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}
	header := a.header(event, body)
	return adapter.Retry(ctx, "webhook", a.cfg.Retries, a.cfg.Backoff, func(ctx context.Context) error {
		return a.deliver(ctx, header, body)
	})
}

// header builds the request headers shared by all attempts of one delivery.
func (a *Adapter) header(event *adapter.Event, body []byte) http.Header {
	h := make(http.Header, len(a.cfg.Headers)+4)
	for k, v := range a.cfg.Headers {
		h.Set(k, v)
	}
	h.Set("Content-Type", "application/json")
	h.Set(HeaderEvent, event.EventType)
	h.Set(HeaderRun, event.RunID)
	if a.cfg.Secret != "" {
		h.Set(HeaderSignature, Sign(a.cfg.Secret, body))
	}
	return h
}

// Sign returns the signature header value for body: "sha256=" followed by
// the hex HMAC-SHA256 of body keyed with secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Is reports 4xx responses as permanent.
func (e *StatusError) Is(target error) bool {
	return target == adapter.ErrPermanent && e.Code >= 400 && e.Code < 500
}

func (a *Adapter) deliver(ctx context.Context, header http.Header, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %w", adapter.ErrPermanent, err)
	}
	req.Header = header.Clone()

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
