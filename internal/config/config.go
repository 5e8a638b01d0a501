// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package config loads layered configuration: built-in defaults,
// an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration.
type Config struct {
	Notify    NotifyConfig    `koanf:"notify"`
	Filter    FilterConfig    `koanf:"filter"`
	Correlate CorrelateConfig `koanf:"correlate"`
	Extract   ExtractConfig   `koanf:"extract"`
	Store     StoreConfig     `koanf:"store"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`

	// Sources configures the polling adapters by name.
	Sources map[string]SourceConfig `koanf:"sources"`

	// QueueCapacity bounds the fan-in queue between pollers and the
	// pipeline.
	QueueCapacity int `koanf:"queue_capacity" validate:"min=0"`

	// DryRun logs alerts instead of dispatching them.
	DryRun bool `koanf:"dry_run"`
}

// NotifyConfig controls webhook dispatch.
type NotifyConfig struct {
	WebhookURL    string        `koanf:"webhook_url" validate:"omitempty,url"`
	Timeout       time.Duration `koanf:"timeout" validate:"min=0"`
	MaxAttempts   int           `koanf:"max_attempts" validate:"min=0,max=20"`
	BackoffBase   time.Duration `koanf:"backoff_base" validate:"min=0"`
	BackoffCap    time.Duration `koanf:"backoff_cap" validate:"min=0"`
	RatePerMinute float64       `koanf:"rate_per_minute" validate:"min=0"`
}

// FilterConfig controls report admission.
type FilterConfig struct {
	FreshMaxHours float64 `koanf:"fresh_max_hours" validate:"gt=0"`
	MaxDistanceKm float64 `koanf:"max_distance_km" validate:"gt=0"`
}

// CorrelateConfig controls clustering.
type CorrelateConfig struct {
	TemporalWindowHours     float64 `koanf:"temporal_window_hours" validate:"gt=0"`
	GeoWindowKm             float64 `koanf:"geo_window_km" validate:"gt=0"`
	SimThreshold            float64 `koanf:"sim_threshold" validate:"gte=0,lte=1"`
	ClusterExpiryHours      float64 `koanf:"cluster_expiry_hours" validate:"gt=0"`
	MinCorroborationSources int     `koanf:"min_corroboration_sources" validate:"min=1"`
}

// ExtractConfig controls location extraction.
type ExtractConfig struct {
	EnableNER bool `koanf:"enable_ner"`
}

// StoreConfig controls persistence.
type StoreConfig struct {
	Path          string        `koanf:"path" validate:"required"`
	CursorPath    string        `koanf:"cursor_path" validate:"required"`
	RetentionDays int           `koanf:"retention_days" validate:"min=1"`
	PurgeInterval time.Duration `koanf:"purge_interval" validate:"min=0"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	ListenAddr string `koanf:"listen_addr" validate:"required"`
	RateLimit  int    `koanf:"rate_limit" validate:"min=0"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// SourceConfig configures one polling adapter.
type SourceConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Adapter     string        `koanf:"adapter" validate:"omitempty,oneof=community smsmap microblog photofeed newsrss"`
	URL         string        `koanf:"url"`
	Interval    time.Duration `koanf:"interval" validate:"min=0"`
	Trust       string        `koanf:"trust" validate:"omitempty,oneof=high normal"`
	IsNews      bool          `koanf:"is_news"`
	Queries     []string      `koanf:"queries"`
	Accounts    []string      `koanf:"accounts"`
	FeedURLs    []string      `koanf:"feed_urls"`
	PollTimeout time.Duration `koanf:"poll_timeout" validate:"min=0"`
}

// Validate applies struct tags plus cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if !c.DryRun && c.Notify.WebhookURL == "" {
		return fmt.Errorf("invalid configuration: notify.webhook_url is required unless dry_run is set")
	}
	if c.Correlate.GeoWindowKm > c.Filter.MaxDistanceKm {
		return fmt.Errorf("invalid configuration: correlate.geo_window_km (%g) exceeds filter.max_distance_km (%g)",
			c.Correlate.GeoWindowKm, c.Filter.MaxDistanceKm)
	}
	for name, src := range c.Sources {
		if !src.Enabled {
			continue
		}
		if src.Adapter == "" {
			return fmt.Errorf("invalid configuration: sources.%s is enabled but has no adapter", name)
		}
		if src.URL == "" && len(src.FeedURLs) == 0 {
			return fmt.Errorf("invalid configuration: sources.%s is enabled but has no url", name)
		}
	}
	return nil
}

// FreshMax returns the freshness budget as a duration.
func (c *FilterConfig) FreshMax() time.Duration {
	return time.Duration(c.FreshMaxHours * float64(time.Hour))
}

// TemporalWindow returns the correlation time window as a duration.
func (c *CorrelateConfig) TemporalWindow() time.Duration {
	return time.Duration(c.TemporalWindowHours * float64(time.Hour))
}

// ClusterExpiry returns the cluster idle expiry as a duration.
func (c *CorrelateConfig) ClusterExpiry() time.Duration {
	return time.Duration(c.ClusterExpiryHours * float64(time.Hour))
}

// Retention returns the store retention period as a duration.
func (c *StoreConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
