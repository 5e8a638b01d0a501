// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	// Dry run lifts the webhook requirement so pure defaults validate.
	t.Setenv("ICEWATCH_DRY_RUN", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Filter.FreshMax() != 3*time.Hour {
		t.Errorf("FreshMax = %v, want 3h", cfg.Filter.FreshMax())
	}
	if cfg.Filter.MaxDistanceKm != 50 {
		t.Errorf("MaxDistanceKm = %v, want 50", cfg.Filter.MaxDistanceKm)
	}
	if cfg.Correlate.TemporalWindow() != 2*time.Hour {
		t.Errorf("TemporalWindow = %v, want 2h", cfg.Correlate.TemporalWindow())
	}
	if cfg.Correlate.GeoWindowKm != 3 {
		t.Errorf("GeoWindowKm = %v, want 3", cfg.Correlate.GeoWindowKm)
	}
	if cfg.Correlate.SimThreshold != 0.25 {
		t.Errorf("SimThreshold = %v, want 0.25", cfg.Correlate.SimThreshold)
	}
	if cfg.Correlate.ClusterExpiry() != 6*time.Hour {
		t.Errorf("ClusterExpiry = %v, want 6h", cfg.Correlate.ClusterExpiry())
	}
	if cfg.Correlate.MinCorroborationSources != 2 {
		t.Errorf("MinCorroborationSources = %d, want 2", cfg.Correlate.MinCorroborationSources)
	}
	if cfg.Notify.Timeout != 10*time.Second || cfg.Notify.MaxAttempts != 5 {
		t.Errorf("notify defaults = %+v", cfg.Notify)
	}
	if cfg.Server.ListenAddr != ":8421" {
		t.Errorf("ListenAddr = %q, want :8421", cfg.Server.ListenAddr)
	}
	if cfg.Store.Retention() != 7*24*time.Hour {
		t.Errorf("Retention = %v, want 168h", cfg.Store.Retention())
	}
	if cfg.QueueCapacity != 1024 {
		t.Errorf("QueueCapacity = %d, want 1024", cfg.QueueCapacity)
	}
	if !cfg.Extract.EnableNER {
		t.Error("EnableNER default = false, want true")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
notify:
  webhook_url: https://hooks.example/alerts
filter:
  max_distance_km: 40
sources:
  community:
    enabled: true
    adapter: community
    url: https://platform.example/api/reports
    trust: high
  newsrss:
    enabled: true
    adapter: newsrss
    is_news: true
    feed_urls:
      - https://news.example/rss
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Notify.WebhookURL != "https://hooks.example/alerts" {
		t.Errorf("WebhookURL = %q", cfg.Notify.WebhookURL)
	}
	if cfg.Filter.MaxDistanceKm != 40 {
		t.Errorf("MaxDistanceKm = %v, want file override 40", cfg.Filter.MaxDistanceKm)
	}
	// Untouched values keep their defaults.
	if cfg.Correlate.GeoWindowKm != 3 {
		t.Errorf("GeoWindowKm = %v, want default 3", cfg.Correlate.GeoWindowKm)
	}

	src, ok := cfg.Sources["community"]
	if !ok {
		t.Fatal("community source missing")
	}
	if !src.Enabled || src.Adapter != "community" || src.Trust != "high" {
		t.Errorf("community source = %+v", src)
	}
	if got := cfg.Sources["newsrss"]; !got.IsNews || len(got.FeedURLs) != 1 {
		t.Errorf("newsrss source = %+v", got)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
notify:
  webhook_url: https://hooks.example/alerts
filter:
  max_distance_km: 40
`)
	t.Setenv("ICEWATCH_MAX_DISTANCE_KM", "25")
	t.Setenv("ICEWATCH_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Filter.MaxDistanceKm != 25 {
		t.Errorf("MaxDistanceKm = %v, want env override 25", cfg.Filter.MaxDistanceKm)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestUnmappedEnvIgnored(t *testing.T) {
	t.Setenv("ICEWATCH_DRY_RUN", "true")
	t.Setenv("ICEWATCH_TOTALLY_UNKNOWN", "surprise")

	if _, err := Load(""); err != nil {
		t.Fatalf("Load with unmapped env: %v", err)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "webhook required without dry run",
			mutate:  func(c *Config) {},
			wantErr: "webhook_url is required",
		},
		{
			name: "geo window wider than region radius",
			mutate: func(c *Config) {
				c.DryRun = true
				c.Correlate.GeoWindowKm = 60
			},
			wantErr: "geo_window_km",
		},
		{
			name: "enabled source without adapter",
			mutate: func(c *Config) {
				c.DryRun = true
				c.Sources["mystery"] = SourceConfig{Enabled: true, URL: "https://x.example"}
			},
			wantErr: "has no adapter",
		},
		{
			name: "enabled source without url",
			mutate: func(c *Config) {
				c.DryRun = true
				c.Sources["bare"] = SourceConfig{Enabled: true, Adapter: "microblog"}
			},
			wantErr: "has no url",
		},
		{
			name: "bad log level",
			mutate: func(c *Config) {
				c.DryRun = true
				c.Logging.Level = "verbose"
			},
			wantErr: "invalid configuration",
		},
		{
			name: "bad webhook url",
			mutate: func(c *Config) {
				c.Notify.WebhookURL = "not a url"
			},
			wantErr: "invalid configuration",
		},
		{
			name: "zero corroboration sources",
			mutate: func(c *Config) {
				c.DryRun = true
				c.Correlate.MinCorroborationSources = 0
			},
			wantErr: "invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidationAcceptsCompleteConfig(t *testing.T) {
	cfg := Default()
	cfg.Notify.WebhookURL = "https://hooks.example/alerts"
	cfg.Sources["community"] = SourceConfig{
		Enabled: true,
		Adapter: "community",
		URL:     "https://platform.example/api/reports",
		Trust:   "high",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
