// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package scheduler

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/icewatch/icewatch/internal/logging"
	"github.com/icewatch/icewatch/internal/metrics"
	"github.com/icewatch/icewatch/internal/source"
)

// jitterFraction spreads poll ticks +/-10% to avoid thundering herds
// against shared upstreams.
const jitterFraction = 0.10

// Poller drives one adapter on its interval. It implements
// suture.Service; a permanent adapter failure removes the service from
// the tree until restart.
type Poller struct {
	adapter  source.Adapter
	queue    *Queue
	deadline time.Duration
}

// NewPoller wraps an adapter. deadline bounds each poll (default 30s).
func NewPoller(adapter source.Adapter, queue *Queue, deadline time.Duration) *Poller {
	if deadline <= 0 {
		deadline = source.DefaultPollDeadline
	}
	return &Poller{adapter: adapter, queue: queue, deadline: deadline}
}

// String names the service in supervisor logs.
func (p *Poller) String() string {
	return "poller-" + p.adapter.Name()
}

// Serve polls until the context is canceled. The first poll runs
// immediately; subsequent polls wait a jittered interval.
func (p *Poller) Serve(ctx context.Context) error {
	log := logging.With().Str("source", p.adapter.Name()).Logger()
	log.Info().
		Dur("interval", p.adapter.Interval()).
		Str("trust", string(p.adapter.Trust())).
		Msg("poller started")

	for {
		if err := p.pollOnce(ctx); err != nil {
			if source.IsPermanent(err) {
				log.Error().Err(err).Msg("permanent poll failure, disabling adapter")
				metrics.PollsTotal.WithLabelValues(p.adapter.Name(), "permanent_error").Inc()
				metrics.AdaptersDisabled.Inc()
				return suture.ErrDoNotRestart
			}
			log.Warn().Err(err).Msg("transient poll failure, will retry next tick")
			metrics.PollsTotal.WithLabelValues(p.adapter.Name(), "transient_error").Inc()
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("poller stopping")
			return ctx.Err()
		case <-time.After(jittered(p.adapter.Interval())):
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	start := time.Now()
	reports, err := p.adapter.Poll(pollCtx)
	metrics.PollDuration.WithLabelValues(p.adapter.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	metrics.PollsTotal.WithLabelValues(p.adapter.Name(), "ok").Inc()
	if len(reports) > 0 {
		metrics.ReportsIngested.WithLabelValues(p.adapter.Name()).Add(float64(len(reports)))
	}
	for _, r := range reports {
		p.queue.Enqueue(r)
	}
	return nil
}

// jittered returns the interval perturbed by +/-jitterFraction.
func jittered(interval time.Duration) time.Duration {
	spread := 1 - jitterFraction + 2*jitterFraction*rand.Float64()
	return time.Duration(float64(interval) * spread)
}
