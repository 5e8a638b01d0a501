// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package services holds supervised wrappers for components that do
// not implement suture.Service themselves.
package services

import (
	"context"
	"time"

	"github.com/icewatch/icewatch/internal/logging"
	"github.com/icewatch/icewatch/internal/metrics"
)

// Purger removes rows past the retention window. Implemented by the
// DuckDB store.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// MaintenanceService runs the store retention sweep on an interval.
// It lives in the data layer of the supervisor tree so a sweep failure
// restarts only the sweeper, never the pipeline.
type MaintenanceService struct {
	store    Purger
	interval time.Duration
}

// NewMaintenanceService creates the sweeper. interval defaults to 24h.
func NewMaintenanceService(st Purger, interval time.Duration) *MaintenanceService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &MaintenanceService{store: st, interval: interval}
}

// String names the service in supervisor logs.
func (m *MaintenanceService) String() string { return "store-maintenance" }

// Serve sweeps immediately on start, then on every tick, until the
// context is canceled. Sweep failures are logged and retried on the
// next tick rather than propagated; retention is best-effort.
func (m *MaintenanceService) Serve(ctx context.Context) error {
	m.sweep(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *MaintenanceService) sweep(ctx context.Context) {
	rows, err := m.store.Purge(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("retention sweep failed")
		return
	}
	metrics.PurgedRows.Add(float64(rows))
	if rows > 0 {
		logging.Info().Int64("rows", rows).Msg("retention sweep complete")
	}
}
