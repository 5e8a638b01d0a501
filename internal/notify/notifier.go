// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package notify dispatches NEW/UPDATE alerts to the configured
// webhook with at-most-once semantics per cluster emission. The
// NEW-before-UPDATE ordering and strictly increasing member counts are
// enforced here against persisted state, not trusted from upstream.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/icewatch/icewatch/internal/correlate"
	"github.com/icewatch/icewatch/internal/logging"
	"github.com/icewatch/icewatch/internal/metrics"
	"github.com/icewatch/icewatch/internal/models"
)

// Config holds notifier settings.
type Config struct {
	// WebhookURL is the alert endpoint. Required unless DryRun.
	WebhookURL string

	// Timeout bounds each dispatch attempt. Default 10s.
	Timeout time.Duration

	// MaxAttempts bounds transient retries. Default 5.
	MaxAttempts int

	// BackoffBase is the first retry delay. Default 2s.
	BackoffBase time.Duration

	// BackoffCap bounds the exponential backoff. Default 60s.
	BackoffCap time.Duration

	// RatePerMinute limits webhook dispatches. Default 30.
	RatePerMinute float64

	// DryRun routes dispatch to the log and records emissions
	// in-memory only.
	DryRun bool
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 60 * time.Second
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = 30
	}
}

// AlertMarker persists successful and failed dispatches. Implemented
// by the store.
type AlertMarker interface {
	MarkAlert(ctx context.Context, clusterID, token string, rec models.AlertRecord) error
	LogNotificationFailure(ctx context.Context, clusterID, token string, kind models.AlertKind, dispatchErr error) error
}

// Broadcaster fans dispatched alerts to live subscribers. Implemented
// by the WebSocket hub; optional.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// detachedWriteTimeout bounds the store writes that record a dispatch
// outcome. They run detached from the caller's context: once a
// dispatch attempt has resolved, its record must land even when
// shutdown canceled the pipeline mid-flight.
const detachedWriteTimeout = 5 * time.Second

// permanentError marks a non-retryable dispatch failure.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Notifier dispatches emissions.
type Notifier struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[int]
	limiter *rate.Limiter
	marker  AlertMarker
	hub     Broadcaster

	now func() time.Time
}

// Option customizes a Notifier.
type Option func(*Notifier)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// WithBroadcaster attaches a live alert feed.
func WithBroadcaster(hub Broadcaster) Option {
	return func(n *Notifier) { n.hub = hub }
}

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) { n.client = client }
}

// New creates a notifier.
func New(cfg Config, marker AlertMarker, opts ...Option) (*Notifier, error) {
	cfg.applyDefaults()
	if !cfg.DryRun && cfg.WebhookURL == "" {
		return nil, fmt.Errorf("notifier: webhook_url is required")
	}

	n := &Notifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60.0), 5),
		marker:  marker,
		now:     time.Now,
	}

	n.breaker = gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:    "webhook",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1.0
			}
			metrics.WebhookBreakerState.Set(open)
			logging.Warn().Str("state", to.String()).Msg("webhook circuit breaker state changed")
		},
	})

	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify processes one emission candidate. Transient dispatch failure
// after all retries is absorbed (the missing alert is retried by a
// future emission); only store failures propagate.
func (n *Notifier) Notify(ctx context.Context, em *correlate.Emission) error {
	cl := em.Cluster

	// Enforce ordering against recorded state: a second NEW becomes an
	// UPDATE, and an UPDATE with no recorded NEW is upgraded.
	kind := em.Kind
	if kind == models.AlertNew && cl.NewEmitted() {
		kind = models.AlertUpdate
	} else if kind == models.AlertUpdate && !cl.NewEmitted() {
		kind = models.AlertNew
	}

	// Member counts across a cluster's alerts are strictly increasing;
	// an emission that adds nothing is dropped.
	memberCount := len(cl.Members)
	if memberCount <= cl.LastEmitCount() {
		logging.Debug().
			Str("cluster_id", cl.ID).
			Int("members", memberCount).
			Msg("suppressing alert with no membership growth")
		return nil
	}

	seq := len(cl.AlertsEmitted)
	token := fmt.Sprintf("%s/%d", cl.ID, seq)
	now := n.now().UTC()
	payload := buildPayload(cl, kind, em.NewMembers, token, now)
	rec := models.AlertRecord{Kind: kind, EmittedAt: now, MemberCount: memberCount}

	if n.cfg.DryRun {
		logging.Info().
			Str("kind", string(kind)).
			Str("cluster_id", cl.ID).
			Str("location", payload.Location).
			Int("reports", memberCount).
			Int("sources", payload.SourceCount).
			Float64("confidence", cl.Confidence).
			Msg("DRY RUN: would dispatch alert")
		cl.AlertsEmitted = append(cl.AlertsEmitted, rec)
		metrics.AlertsDispatched.WithLabelValues(string(kind), "ok").Inc()
		return nil
	}

	if err := n.dispatch(ctx, payload); err != nil {
		outcome := "transient_error"
		if _, permanent := err.(*permanentError); permanent { //nolint:errorlint
			outcome = "permanent_error"
		}
		metrics.AlertsDispatched.WithLabelValues(string(kind), outcome).Inc()
		logging.Error().Err(err).
			Str("kind", string(kind)).
			Str("cluster_id", cl.ID).
			Msg("alert dispatch failed, leaving emission unrecorded")
		// Best-effort failure log; alerts_emitted stays untouched so a
		// future update retries the missing alert. A shutdown signal
		// that cut the dispatch short must not turn this write into a
		// fatal store failure.
		logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedWriteTimeout)
		defer cancel()
		if logErr := n.marker.LogNotificationFailure(logCtx, cl.ID, token, kind, err); logErr != nil {
			return logErr
		}
		return nil
	}

	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), detachedWriteTimeout)
	defer cancel()
	if err := n.marker.MarkAlert(markCtx, cl.ID, token, rec); err != nil {
		return err
	}
	cl.AlertsEmitted = append(cl.AlertsEmitted, rec)
	metrics.AlertsDispatched.WithLabelValues(string(kind), "ok").Inc()

	if n.hub != nil {
		if raw, err := json.Marshal(payload); err == nil {
			n.hub.Broadcast(raw)
		}
	}

	logging.Info().
		Str("kind", string(kind)).
		Str("cluster_id", cl.ID).
		Str("location", payload.Location).
		Int("reports", memberCount).
		Int("sources", payload.SourceCount).
		Float64("confidence", cl.Confidence).
		Msg("alert dispatched")
	return nil
}

// dispatch posts the payload, retrying transient failures with
// exponential backoff.
func (n *Notifier) dispatch(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &permanentError{fmt.Errorf("marshaling payload: %w", err)}
	}

	var lastErr error
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = n.attempt(ctx, payload.IdempotencyToken, body)
		if lastErr == nil {
			return nil
		}
		if _, permanent := lastErr.(*permanentError); permanent { //nolint:errorlint
			return lastErr
		}
		if attempt == n.cfg.MaxAttempts {
			break
		}

		backoff := n.cfg.BackoffBase << (attempt - 1)
		if backoff > n.cfg.BackoffCap {
			backoff = n.cfg.BackoffCap
		}
		logging.Warn().Err(lastErr).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("webhook dispatch failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("webhook dispatch exhausted %d attempts: %w", n.cfg.MaxAttempts, lastErr)
}

// attempt performs one POST through the circuit breaker. Client errors
// other than rate limiting are permanent; everything else is
// retryable.
func (n *Notifier) attempt(ctx context.Context, token string, body []byte) error {
	_, err := n.breaker.Execute(func() (int, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return 0, &permanentError{fmt.Errorf("building request: %w", err)}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Idempotency-Key", token)

		start := time.Now()
		resp, err := n.client.Do(req)
		metrics.WebhookDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return 0, fmt.Errorf("sending webhook: %w", err)
		}
		defer resp.Body.Close() //nolint:errcheck

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp.StatusCode, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		default:
			return resp.StatusCode, &permanentError{fmt.Errorf("webhook returned status %d", resp.StatusCode)}
		}
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests { //nolint:errorlint
		return fmt.Errorf("webhook circuit breaker: %w", err)
	}
	return err
}
