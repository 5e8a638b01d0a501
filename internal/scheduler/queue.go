// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package scheduler drives the source adapters at their configured
// cadence and fans their output into the single bounded queue consumed
// by the pipeline.
package scheduler

import (
	"sync/atomic"

	"github.com/icewatch/icewatch/internal/logging"
	"github.com/icewatch/icewatch/internal/metrics"
	"github.com/icewatch/icewatch/internal/models"
)

// DefaultQueueCapacity bounds the fan-in queue.
const DefaultQueueCapacity = 1024

// Queue is the bounded fan-in channel between pollers and the
// pipeline. Sends never block: when the queue is full the report is
// dropped and counted, preserving liveness of faster adapters while
// the pipeline is slow.
type Queue struct {
	ch    chan models.Report
	drops atomic.Uint64
}

// NewQueue creates a queue with the given capacity (default 1024).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{ch: make(chan models.Report, capacity)}
}

// Enqueue offers a report without blocking. Returns false when the
// report was dropped.
func (q *Queue) Enqueue(r models.Report) bool {
	select {
	case q.ch <- r:
		metrics.QueueDepth.Set(float64(len(q.ch)))
		return true
	default:
		q.drops.Add(1)
		metrics.QueueDrops.WithLabelValues(r.Source).Inc()
		logging.Warn().
			Str("source", r.Source).
			Str("dedup_key", r.DedupKey).
			Msg("queue full, report dropped")
		return false
	}
}

// Out exposes the consumer side of the queue.
func (q *Queue) Out() <-chan models.Report {
	return q.ch
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Drops returns the total number of dropped reports.
func (q *Queue) Drops() uint64 {
	return q.drops.Load()
}
