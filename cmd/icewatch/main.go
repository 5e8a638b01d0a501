// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package main is the entry point for the IceWatch monitor.
//
// IceWatch polls community reporting platforms, SMS tip maps,
// microblog search, photo feeds, and local news RSS for reports of
// immigration enforcement activity in the Minneapolis metro area,
// correlates corroborating reports into incident clusters, and pushes
// NEW/UPDATE alerts to a configured webhook.
//
// Startup order:
//
//  1. Configuration (Koanf v2: defaults, YAML file, ICEWATCH_* env)
//  2. Logging (zerolog, structured JSON by default)
//  3. DuckDB store and BadgerDB cursor store
//  4. Gazetteer, filter, extractor, correlator (warm-started from the
//     store so restarts do not re-alert on known incidents)
//  5. Webhook notifier and WebSocket hub
//  6. Supervisor tree: data, ingest, pipeline, and api layers
//
// Exit codes:
//
//	0   graceful shutdown (SIGTERM)
//	1   configuration or startup failure
//	2   fatal runtime failure (store divergence, cluster invariant)
//	130 interrupted (SIGINT)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/icewatch/icewatch/internal/api"
	"github.com/icewatch/icewatch/internal/config"
	"github.com/icewatch/icewatch/internal/correlate"
	"github.com/icewatch/icewatch/internal/extract"
	"github.com/icewatch/icewatch/internal/filter"
	"github.com/icewatch/icewatch/internal/gazetteer"
	"github.com/icewatch/icewatch/internal/logging"
	"github.com/icewatch/icewatch/internal/models"
	"github.com/icewatch/icewatch/internal/notify"
	"github.com/icewatch/icewatch/internal/pipeline"
	"github.com/icewatch/icewatch/internal/scheduler"
	"github.com/icewatch/icewatch/internal/source"
	"github.com/icewatch/icewatch/internal/store"
	"github.com/icewatch/icewatch/internal/supervisor"
	"github.com/icewatch/icewatch/internal/supervisor/services"
	"github.com/icewatch/icewatch/internal/websocket"
)

// version is set at build time via -ldflags.
var version = "dev"

const (
	exitOK     = 0
	exitConfig = 1
	exitFatal  = 2
	exitSigint = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		cfgPath  string
		dryRun   bool
		logLevel string
	)
	code := exitOK

	root := &cobra.Command{
		Use:           "icewatch",
		Short:         "Community monitor for immigration enforcement activity",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				code = exitConfig
				return err
			}
			if dryRun {
				cfg.DryRun = true
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			code = serve(cfg)
			return nil
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "log alerts instead of dispatching them")
	root.Flags().StringVar(&logLevel, "log-level", "", "override log level (trace|debug|info|warn|error)")
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "icewatch: %v\n", err)
		if code == exitOK {
			code = exitConfig
		}
	}
	return code
}

// serve wires the components and runs the supervisor tree until a
// signal or fatal failure stops it.
func serve(cfg *config.Config) int {
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
	})
	logging.Info().Str("version", version).Bool("dry_run", cfg.DryRun).Msg("icewatch starting")

	gaz, err := gazetteer.Load()
	if err != nil {
		logging.Error().Err(err).Msg("failed to load gazetteer")
		return exitConfig
	}
	logging.Info().Int("entries", gaz.Size()).Msg("gazetteer loaded")

	st, err := store.New(store.Config{
		Path:      cfg.Store.Path,
		Retention: cfg.Store.Retention(),
	})
	if err != nil {
		logging.Error().Err(err).Msg("failed to open store")
		return exitConfig
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Warn().Err(err).Msg("store close failed")
		}
	}()

	cursors, err := source.OpenCursorStore(cfg.Store.CursorPath)
	if err != nil {
		logging.Error().Err(err).Msg("failed to open cursor store")
		return exitConfig
	}
	defer func() {
		if err := cursors.Close(); err != nil {
			logging.Warn().Err(err).Msg("cursor store close failed")
		}
	}()

	newsSources := make(map[string]struct{})
	for name, src := range cfg.Sources {
		if src.Enabled && src.IsNews {
			newsSources[name] = struct{}{}
		}
	}

	flt, err := filter.New(filter.Config{
		FreshMax:      cfg.Filter.FreshMax(),
		MaxDistanceKm: cfg.Filter.MaxDistanceKm,
		NewsSources:   newsSources,
	}, gaz, st)
	if err != nil {
		logging.Error().Err(err).Msg("failed to build filter")
		return exitConfig
	}

	extractor := extract.New(extract.Config{EnableNER: cfg.Extract.EnableNER}, gaz)

	correlator := correlate.New(correlate.Config{
		TemporalWindow:          cfg.Correlate.TemporalWindow(),
		GeoWindowKm:             cfg.Correlate.GeoWindowKm,
		SimThreshold:            cfg.Correlate.SimThreshold,
		ClusterExpiry:           cfg.Correlate.ClusterExpiry(),
		MinCorroborationSources: cfg.Correlate.MinCorroborationSources,
	})

	warmCtx := context.Background()
	active, err := st.ActiveClusters(warmCtx)
	if err != nil {
		logging.Error().Err(err).Msg("failed to restore clusters from store")
		return exitConfig
	}
	correlator.WarmStart(active)

	hub := websocket.NewHub()

	notifier, err := notify.New(notify.Config{
		WebhookURL:    cfg.Notify.WebhookURL,
		Timeout:       cfg.Notify.Timeout,
		MaxAttempts:   cfg.Notify.MaxAttempts,
		BackoffBase:   cfg.Notify.BackoffBase,
		BackoffCap:    cfg.Notify.BackoffCap,
		RatePerMinute: cfg.Notify.RatePerMinute,
		DryRun:        cfg.DryRun,
	}, st, notify.WithBroadcaster(hub))
	if err != nil {
		logging.Error().Err(err).Msg("failed to build notifier")
		return exitConfig
	}

	queue := scheduler.NewQueue(cfg.QueueCapacity)
	pipe := pipeline.New(queue, flt, extractor, correlator, st, notifier)
	server := api.NewServer(api.Config{
		ListenAddr: cfg.Server.ListenAddr,
		RateLimit:  cfg.Server.RateLimit,
	}, st, hub, extractor.Degraded)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Error().Err(err).Msg("failed to build supervisor tree")
		return exitConfig
	}

	tree.AddDataService(services.NewMaintenanceService(st, cfg.Store.PurgeInterval))

	adapters, err := buildAdapters(cfg, cursors)
	if err != nil {
		logging.Error().Err(err).Msg("invalid source configuration")
		return exitConfig
	}
	if len(adapters) == 0 {
		logging.Warn().Msg("no sources enabled; running with API surface only")
	}
	for name, a := range adapters {
		tree.AddIngestService(scheduler.NewPoller(a, queue, cfg.Sources[name].PollTimeout))
	}

	tree.AddPipelineService(pipe)
	tree.AddAPIService(hub)
	tree.AddAPIService(server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var interrupted atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if sig == os.Interrupt {
			interrupted.Store(true)
		}
		logging.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	err = tree.Serve(ctx)

	if fatal := pipe.FatalErr(); fatal != nil {
		logging.Error().Err(fatal).Msg("icewatch terminated by fatal failure")
		return exitFatal
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree failed")
		return exitFatal
	}
	if interrupted.Load() {
		logging.Info().Msg("icewatch stopped (interrupt)")
		return exitSigint
	}
	logging.Info().Msg("icewatch stopped")
	return exitOK
}

// buildAdapters constructs one adapter per enabled source, applying
// any configured trust override.
func buildAdapters(cfg *config.Config, cursors *source.CursorStore) (map[string]source.Adapter, error) {
	adapters := make(map[string]source.Adapter)
	for name, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}

		var a source.Adapter
		switch src.Adapter {
		case "community":
			a = source.NewCommunityAdapter(name, src.URL, src.Interval, cursors)
		case "smsmap":
			a = source.NewSMSMapAdapter(name, src.URL, src.Interval, cursors)
		case "microblog":
			a = source.NewMicroblogAdapter(name, src.URL, src.Queries, src.Interval, cursors)
		case "photofeed":
			a = source.NewPhotoFeedAdapter(name, src.URL, src.Accounts, src.Interval, cursors)
		case "newsrss":
			feeds := src.FeedURLs
			if len(feeds) == 0 && src.URL != "" {
				feeds = []string{src.URL}
			}
			a = source.NewNewsRSSAdapter(name, feeds, src.Interval, cursors)
		default:
			return nil, fmt.Errorf("sources.%s: unknown adapter %q", name, src.Adapter)
		}

		if src.Trust != "" {
			trust, err := models.ParseTrust(src.Trust)
			if err != nil {
				return nil, fmt.Errorf("sources.%s: %w", name, err)
			}
			a = source.WithTrust(a, trust)
		}
		adapters[name] = a
	}
	return adapters, nil
}
