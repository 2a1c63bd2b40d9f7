// Package delivery – Sender
//
// This file implements the retrying HTTP sender. One Send call makes at most
// MaxRetries attempts against the route's gateway; transient failures
// (network errors, 429, 5xx) back off exponentially with jitter between
// attempts, while permanent failures (missing route, 4xx) return
// immediately. The delay schedule is min(base*factor^attempt, maxDelay)
// ±10% jitter, so the defaults (base=1s, factor=2) produce ~1s, 2s, 4s.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Message kinds understood by gateway routes.
const (
	KindText    = "text"
	KindOptions = "options"
	KindMedia   = "media"
)

// Result is the gateway's acknowledgement of a delivered message.
type Result struct {
	Sent      bool   `json:"sent"`
	MessageID string `json:"message_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// transientError marks a failure worth retrying.
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// IsTransient reports whether an error from Send was a retryable transport
// failure (as opposed to configuration or client errors).
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Sender delivers payloads through configured routes with bounded retry.
type Sender struct {
	routes *Table

	// Retry policy; zero values take the documented defaults.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Factor     float64

	// httpDo and sleep are test seams.
	httpDo func(req *http.Request, timeout time.Duration) (*http.Response, error)
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewSender constructs a Sender over a route table with the default retry
// policy (3 attempts, 1s base, factor 2, 60s cap).
func NewSender(routes *Table) *Sender {
	return &Sender{
		routes:     routes,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		Factor:     2,
		httpDo: func(req *http.Request, timeout time.Duration) (*http.Response, error) {
			client := &http.Client{Timeout: timeout}
			return client.Do(req)
		},
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// SendText delivers a plain text body to a recipient.
func (s *Sender) SendText(ctx context.Context, route, recipient, body string) (*Result, error) {
	return s.Send(ctx, route, recipient, map[string]any{"body": body}, KindText)
}

// SendOptions delivers a message with an interactive option list.
func (s *Sender) SendOptions(ctx context.Context, route, recipient, body string, options []string) (*Result, error) {
	return s.Send(ctx, route, recipient, map[string]any{
		"body":   body,
		"action": options,
		"type":   "button",
	}, KindOptions)
}

// Send builds the route-specific request and executes it with retry.
// The recipient is stamped into the payload as "to", matching the gateway
// contract. Returns the last transient error after retries are exhausted.
func (s *Sender) Send(ctx context.Context, route, recipient string, payload map[string]any, kind string) (*Result, error) {
	tr := otel.Tracer("delivery/Sender")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("route", route),
			attribute.String("kind", kind),
		),
	)
	defer span.End()

	cfg, err := s.routes.Get(route)
	if err != nil {
		return nil, err // permanent: no retry for a missing route
	}

	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["to"] = recipient
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.Endpoint(kind)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.BaseDelay
	bo.Multiplier = s.Factor
	bo.MaxInterval = s.MaxDelay
	bo.RandomizationFactor = 0.1
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 0; attempt < s.MaxRetries; attempt++ {
		res, err := s.attempt(ctx, cfg, url, raw)
		if err == nil {
			return res, nil
		}
		if !IsTransient(err) {
			return nil, err
		}
		lastErr = err

		delay := bo.NextBackOff()
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("delivery to route %q failed after %d attempts: %w", route, s.MaxRetries, lastErr)
}

// attempt performs one request round trip.
func (s *Sender) attempt(ctx context.Context, cfg Route, url string, raw []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := s.httpDo(req, cfg.Timeout())
	if err != nil {
		return nil, &transientError{err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out Result
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode gateway response: %w", err)
		}
		out.Sent = true
		return &out, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &transientError{fmt.Errorf("gateway returned %d: %s", resp.StatusCode, raw)}
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gateway rejected message (%d): %s", resp.StatusCode, raw)
	}
}
