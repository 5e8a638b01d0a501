// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a config file is searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/icewatch/config.yaml",
	"/etc/icewatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "ICEWATCH_CONFIG"

// Default returns the built-in defaults. Sources are intentionally
// empty: every adapter is opt-in with its own endpoint.
func Default() *Config {
	return &Config{
		Notify: NotifyConfig{
			Timeout:       10 * time.Second,
			MaxAttempts:   5,
			BackoffBase:   2 * time.Second,
			BackoffCap:    60 * time.Second,
			RatePerMinute: 30,
		},
		Filter: FilterConfig{
			FreshMaxHours: 3,
			MaxDistanceKm: 50,
		},
		Correlate: CorrelateConfig{
			TemporalWindowHours:     2,
			GeoWindowKm:             3,
			SimThreshold:            0.25,
			ClusterExpiryHours:      6,
			MinCorroborationSources: 2,
		},
		Extract: ExtractConfig{
			EnableNER: true,
		},
		Store: StoreConfig{
			Path:          "/data/icewatch.duckdb",
			CursorPath:    "/data/cursors",
			RetentionDays: 7,
			PurgeInterval: 24 * time.Hour,
		},
		Server: ServerConfig{
			ListenAddr: ":8421",
			RateLimit:  120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Sources:       map[string]SourceConfig{},
		QueueCapacity: 1024,
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// and environment variables, then validates it. path overrides the
// file search when non-empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	configPath := path
	if configPath == "" {
		configPath = findConfigFile()
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("ICEWATCH_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform maps ICEWATCH_* variables to config paths:
//
//	ICEWATCH_WEBHOOK_URL        -> notify.webhook_url
//	ICEWATCH_DRY_RUN            -> dry_run
//	ICEWATCH_MAX_DISTANCE_KM    -> filter.max_distance_km
//	ICEWATCH_STORE_PATH         -> store.path
//	ICEWATCH_LOG_LEVEL          -> logging.level
//
// Unmapped variables are dropped so unrelated environment state cannot
// leak into the configuration.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "ICEWATCH_"))

	mappings := map[string]string{
		"webhook_url":     "notify.webhook_url",
		"webhook_timeout": "notify.timeout",
		"max_attempts":    "notify.max_attempts",
		"rate_per_minute": "notify.rate_per_minute",

		"fresh_max_hours": "filter.fresh_max_hours",
		"max_distance_km": "filter.max_distance_km",

		"temporal_window_hours":     "correlate.temporal_window_hours",
		"geo_window_km":             "correlate.geo_window_km",
		"sim_threshold":             "correlate.sim_threshold",
		"cluster_expiry_hours":      "correlate.cluster_expiry_hours",
		"min_corroboration_sources": "correlate.min_corroboration_sources",

		"enable_ner": "extract.enable_ner",

		"store_path":     "store.path",
		"cursor_path":    "store.cursor_path",
		"retention_days": "store.retention_days",

		"listen_addr": "server.listen_addr",
		"rate_limit":  "server.rate_limit",

		"log_level":  "logging.level",
		"log_format": "logging.format",

		"queue_capacity": "queue_capacity",
		"dry_run":        "dry_run",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}
