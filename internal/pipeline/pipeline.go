// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package pipeline owns the single consumer goroutine that drains the
// fan-in queue and runs each report through filter, extraction,
// correlation, persistence, and notification. Sequential processing is
// deliberate: the correlator's cluster state is mutated by exactly one
// goroutine, so no report-level locking exists anywhere downstream of
// the queue.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/icewatch/icewatch/internal/correlate"
	"github.com/icewatch/icewatch/internal/extract"
	"github.com/icewatch/icewatch/internal/filter"
	"github.com/icewatch/icewatch/internal/logging"
	"github.com/icewatch/icewatch/internal/metrics"
	"github.com/icewatch/icewatch/internal/models"
	"github.com/icewatch/icewatch/internal/notify"
	"github.com/icewatch/icewatch/internal/scheduler"
)

// Store is the persistence surface the pipeline writes through.
// Implemented by the DuckDB store.
type Store interface {
	PutReport(ctx context.Context, r *models.Report) error
	UpsertCluster(ctx context.Context, cl *models.Cluster) error
}

const (
	// drainGrace bounds how long shutdown waits for queued reports to
	// finish processing before abandoning them.
	drainGrace = 10 * time.Second

	// expiryTick drives cluster expiry even when no reports arrive.
	expiryTick = time.Minute
)

// Pipeline consumes the queue and advances reports to alert state.
// It implements suture.Service.
type Pipeline struct {
	queue      *scheduler.Queue
	filter     *filter.Filter
	extractor  *extract.Extractor
	correlator *correlate.Correlator
	store      Store
	notifier   *notify.Notifier

	mu       sync.Mutex
	fatalErr error
}

// New wires the pipeline stages together.
func New(queue *scheduler.Queue, f *filter.Filter, ex *extract.Extractor, corr *correlate.Correlator, st Store, nt *notify.Notifier) *Pipeline {
	return &Pipeline{
		queue:      queue,
		filter:     f,
		extractor:  ex,
		correlator: corr,
		store:      st,
		notifier:   nt,
	}
}

// String names the service in supervisor logs.
func (p *Pipeline) String() string { return "pipeline" }

// FatalErr returns the error that terminated the pipeline, if any.
// Checked by main after the supervisor tree exits to pick the process
// exit code.
func (p *Pipeline) FatalErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fatalErr
}

func (p *Pipeline) setFatal(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fatalErr == nil {
		p.fatalErr = err
	}
}

// Serve drains the queue until the context is canceled. Store failures
// and cluster invariant violations are fatal: persisted and in-memory
// state can no longer be trusted to agree, so the whole tree is torn
// down rather than restarted.
func (p *Pipeline) Serve(ctx context.Context) error {
	logging.Info().Msg("pipeline started")

	expire := time.NewTicker(expiryTick)
	defer expire.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.drain(ctx.Err())

		case r := <-p.queue.Out():
			if err := p.handle(ctx, &r); err != nil {
				p.setFatal(err)
				logging.Error().Err(err).Msg("pipeline fatal failure, terminating")
				return errors.Join(err, suture.ErrTerminateSupervisorTree)
			}
			metrics.QueueDepth.Set(float64(p.queue.Len()))

		case now := <-expire.C:
			if err := p.persistExpired(ctx, p.correlator.ExpireStale(now)); err != nil {
				p.setFatal(err)
				logging.Error().Err(err).Msg("pipeline fatal failure during expiry, terminating")
				return errors.Join(err, suture.ErrTerminateSupervisorTree)
			}
			metrics.ActiveClusters.Set(float64(p.correlator.ActiveCount()))
		}
	}
}

// drain gives queued reports a bounded grace period so reports already
// fetched from upstream are not lost on every restart.
func (p *Pipeline) drain(cause error) error {
	pending := p.queue.Len()
	if pending == 0 {
		logging.Info().Msg("pipeline stopped")
		return cause
	}

	logging.Info().Int("pending", pending).Dur("grace", drainGrace).Msg("draining queue before shutdown")
	drainCtx, cancel := context.WithTimeout(context.Background(), drainGrace)
	defer cancel()

	for {
		select {
		case r := <-p.queue.Out():
			if err := p.handle(drainCtx, &r); err != nil {
				p.setFatal(err)
				return errors.Join(err, cause)
			}
		case <-drainCtx.Done():
			logging.Warn().Int("abandoned", p.queue.Len()).Msg("drain grace expired")
			return cause
		default:
			logging.Info().Msg("pipeline stopped")
			return cause
		}
	}
}

// handle runs one report end to end. Rejected reports are persisted
// with their verdict for audit; duplicates are dropped silently.
func (p *Pipeline) handle(ctx context.Context, r *models.Report) error {
	if r.IngestedAt.IsZero() {
		r.IngestedAt = time.Now().UTC()
	}

	verdict, err := p.filter.Check(r)
	if err != nil {
		if errors.Is(err, filter.ErrDuplicate) {
			metrics.FilterVerdicts.WithLabelValues("DUPLICATE").Inc()
			return nil
		}
		return err
	}
	r.Verdict = verdict
	metrics.FilterVerdicts.WithLabelValues(string(verdict)).Inc()

	if verdict != models.VerdictRelevant {
		logging.Debug().
			Str("source", r.Source).
			Str("dedup_key", r.DedupKey).
			Str("verdict", string(verdict)).
			Msg("report rejected")
		return p.store.PutReport(ctx, r)
	}

	p.extractor.Extract(r)

	res, err := p.correlator.Process(r)
	if err != nil {
		return err
	}
	if err := p.persistExpired(ctx, res.Expired); err != nil {
		return err
	}

	created := len(res.Assigned.Members) == 1
	r.ClusterID = res.Assigned.ID
	if err := p.store.PutReport(ctx, r); err != nil {
		return err
	}
	if err := p.store.UpsertCluster(ctx, res.Assigned); err != nil {
		return err
	}

	outcome := "matched"
	if created {
		outcome = "created"
		metrics.ClustersCreated.Inc()
	}
	metrics.ReportsCorrelated.WithLabelValues(outcome).Inc()
	metrics.ActiveClusters.Set(float64(p.correlator.ActiveCount()))

	logging.Debug().
		Str("source", r.Source).
		Str("cluster_id", res.Assigned.ID).
		Str("outcome", outcome).
		Int("members", len(res.Assigned.Members)).
		Msg("report correlated")

	if res.Emission != nil {
		if err := p.notifier.Notify(ctx, res.Emission); err != nil {
			return err
		}
		// Confidence and alert bookkeeping changed during dispatch.
		if err := p.store.UpsertCluster(ctx, res.Assigned); err != nil {
			return err
		}
	}
	return nil
}

// persistExpired writes terminal state for retired clusters.
func (p *Pipeline) persistExpired(ctx context.Context, expired []*models.Cluster) error {
	for _, cl := range expired {
		if err := p.store.UpsertCluster(ctx, cl); err != nil {
			return err
		}
		metrics.ClustersExpired.Inc()
		logging.Info().
			Str("cluster_id", cl.ID).
			Int("members", len(cl.Members)).
			Msg("cluster expired")
	}
	return nil
}
