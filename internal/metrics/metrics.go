// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package metrics defines the Prometheus instrumentation exported at
// /metrics. All metrics are registered at package load via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the pipeline:
// - Source polling outcomes and latency
// - Queue pressure and drops
// - Filter verdicts
// - Cluster lifecycle and correlation outcomes
// - Alert dispatch and webhook latency

var (
	// Source / scheduler metrics
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icewatch_polls_total",
			Help: "Total adapter polls by outcome",
		},
		[]string{"source", "outcome"}, // "ok", "transient_error", "permanent_error"
	)

	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "icewatch_poll_duration_seconds",
			Help:    "Adapter poll duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	ReportsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icewatch_reports_ingested_total",
			Help: "Reports produced by adapters",
		},
		[]string{"source"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "icewatch_queue_depth",
			Help: "Current number of reports waiting in the fan-in queue",
		},
	)

	QueueDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icewatch_queue_drops_total",
			Help: "Reports dropped because the fan-in queue was full",
		},
		[]string{"source"},
	)

	AdaptersDisabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "icewatch_adapters_disabled",
			Help: "Number of adapters disabled by permanent failures",
		},
	)

	// Filter metrics
	FilterVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icewatch_filter_verdicts_total",
			Help: "Filter stage outcomes by verdict",
		},
		[]string{"verdict"}, // includes "DUPLICATE" for silent drops
	)

	// Correlator metrics
	ActiveClusters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "icewatch_active_clusters",
			Help: "Current number of ACTIVE clusters",
		},
	)

	ClustersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "icewatch_clusters_created_total",
			Help: "Clusters created",
		},
	)

	ClustersExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "icewatch_clusters_expired_total",
			Help: "Clusters retired by the expiry window",
		},
	)

	ReportsCorrelated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icewatch_reports_correlated_total",
			Help: "Correlation outcomes for accepted reports",
		},
		[]string{"outcome"}, // "matched", "created"
	)

	// Notifier metrics
	AlertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icewatch_alerts_dispatched_total",
			Help: "Alerts dispatched by kind and outcome",
		},
		[]string{"kind", "outcome"}, // "ok", "transient_error", "permanent_error", "dropped"
	)

	WebhookDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "icewatch_webhook_duration_seconds",
			Help:    "Webhook dispatch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	WebhookBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "icewatch_webhook_breaker_open",
			Help: "1 when the webhook circuit breaker is open",
		},
	)

	// Store metrics
	PurgedRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "icewatch_store_purged_rows_total",
			Help: "Rows removed by the retention sweeper",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "icewatch_api_requests_total",
			Help: "Total ops API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	WSClientsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "icewatch_ws_clients_connected",
			Help: "Current number of connected WebSocket alert subscribers",
		},
	)
)
