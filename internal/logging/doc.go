// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package logging provides centralized zerolog-based structured logging.
//
// The package wraps zerolog behind a small global surface so every
// component logs the same way: JSON output for production, console
// output for development.
//
// # Quick Start
//
//	import "github.com/icewatch/icewatch/internal/logging"
//
//	// Initialize at application startup
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	// Log messages with structured fields
//	logging.Info().Str("source", "metro_alerts").Msg("poller started")
//	logging.Error().Err(err).Str("cluster_id", id).Msg("dispatch failed")
//
// # Structured Logging
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("key", "value").Msg("message")  // Correct
//	logging.Info().Str("key", "value")                 // WRONG - log not emitted
//
// Prefer structured fields over string formatting; they stay
// searchable in aggregated output.
//
// # Component Loggers
//
// Create component-specific loggers with default fields:
//
//	pollLogger := logging.WithComponent("scheduler")
//	pollLogger.Info().Msg("starting pollers")
//
// # Request Context
//
// HTTP handlers propagate a request ID through context:
//
//	logging.Ctx(ctx).Info().Msg("listing clusters")
//
// # slog Adapter
//
// NewSlogLogger bridges to libraries that require *slog.Logger, such
// as the suture supervisor's sutureslog hook.
//
// # Thread Safety
//
// All exported functions are safe for concurrent use. The global
// logger is protected by sync.RWMutex for configuration changes.
package logging
