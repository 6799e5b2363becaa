// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

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

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/vigil/config.yaml",
	"/etc/vigil/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Secrets
// have no defaults; they must come from the file or environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8425,
			Timeout:        30 * time.Second,
			Environment:    "development",
			CORSOrigins:    []string{"*"},
			TrustedProxies: []string{},
		},
		Store: StoreConfig{
			Path:       "/data/vigil",
			InMemory:   false,
			GCInterval: 10 * time.Minute,
		},
		Security: SecurityConfig{
			IdentitySecret:    "",
			JWTSecret:         "",
			AdminToken:        "",
			RateLimitDisabled: false,
		},
		Detection: DetectionConfig{
			Enabled:              true,
			Disabled:             []string{},
			BaselineEnabled:      true,
			BaselineLearningDays: 7,
		},
		Scoring: ScoringConfig{
			FlagThreshold:         60,
			SharedIPFlagThreshold: 80,
		},
		Policy: PolicyConfig{
			HighTrustPerMinute:    100,
			HumanLikePerMinute:    60,
			MediumTrustPerMinute:  30,
			LikelyBotPerMinute:    10,
			ConfirmedBotPerMinute: 5,
			DefaultPerMinute:      10,
			LimiterIdleTTL:        10 * time.Minute,
		},
		Response: ResponseConfig{
			BlockTTL:           24 * time.Hour,
			LockTTL:            30 * time.Minute,
			RateLimitTTL:       time.Hour,
			FailedLoginLock:    5,
			ThrottledPerMinute: 5,
		},
		Audit: AuditConfig{
			Enabled:       true,
			RetentionDays: 90,
			BufferSize:    1000,
			LogToStdout:   false,
		},
		Notifications: NotificationConfig{
			WebhookURL: "",
			DiscordURL: "",
			Timeout:    10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed from comma-separated env strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"server.trusted_proxies",
	"detection.disabled",
}

// processSliceFields converts comma-separated string values to slices
// for known slice fields. Env vars come in as strings, but the config
// expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config
// paths. Unmapped variables are skipped so random environment noise
// never pollutes the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":       "server.host",
		"http_port":       "server.port",
		"http_timeout":    "server.timeout",
		"environment":     "server.environment",
		"cors_origins":    "server.cors_origins",
		"trusted_proxies": "server.trusted_proxies",

		// Store mappings
		"store_path":        "store.path",
		"store_in_memory":   "store.in_memory",
		"store_gc_interval": "store.gc_interval",

		// Security mappings
		"identity_secret":    "security.identity_secret",
		"jwt_secret":         "security.jwt_secret",
		"admin_token":        "security.admin_token",
		"disable_rate_limit": "security.rate_limit_disabled",

		// Detection mappings
		"detection_enabled":      "detection.enabled",
		"detection_disabled":     "detection.disabled",
		"baseline_enabled":       "detection.baseline_enabled",
		"baseline_learning_days": "detection.baseline_learning_days",

		// Scoring mappings
		"flag_threshold":           "scoring.flag_threshold",
		"shared_ip_flag_threshold": "scoring.shared_ip_flag_threshold",

		// Policy mappings
		"limit_high_trust":    "policy.high_trust_per_minute",
		"limit_human_like":    "policy.human_like_per_minute",
		"limit_medium_trust":  "policy.medium_trust_per_minute",
		"limit_likely_bot":    "policy.likely_bot_per_minute",
		"limit_confirmed_bot": "policy.confirmed_bot_per_minute",
		"limit_default":       "policy.default_per_minute",
		"limiter_idle_ttl":    "policy.limiter_idle_ttl",

		// Response mappings
		"block_ttl":            "response.block_ttl",
		"lock_ttl":             "response.lock_ttl",
		"rate_limit_ttl":       "response.rate_limit_ttl",
		"failed_login_lock":    "response.failed_login_lock",
		"throttled_per_minute": "response.throttled_per_minute",

		// Audit mappings
		"audit_enabled":        "audit.enabled",
		"audit_retention_days": "audit.retention_days",
		"audit_buffer_size":    "audit.buffer_size",
		"audit_log_to_stdout":  "audit.log_to_stdout",

		// Notification mappings
		"alert_webhook_url":     "notifications.webhook_url",
		"alert_discord_url":     "notifications.discord_url",
		"alert_lock_notice_url": "notifications.lock_notice_url",
		"alert_timeout":         "notifications.timeout",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// WatchConfigFile sets up a file watcher for hot-reload capability.
// The caller is responsible for mutex protection when swapping the
// configuration during reloads.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
