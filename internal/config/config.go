// Vigil - Request-Time Threat Assessment and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package config provides layered configuration loading: built-in
// defaults, an optional YAML file, then environment variables, with
// validation before anything starts.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full runtime configuration.
type Config struct {
	Server        ServerConfig       `koanf:"server"`
	Store         StoreConfig        `koanf:"store"`
	Security      SecurityConfig     `koanf:"security"`
	Detection     DetectionConfig    `koanf:"detection"`
	Scoring       ScoringConfig      `koanf:"scoring"`
	Policy        PolicyConfig       `koanf:"policy"`
	Response      ResponseConfig     `koanf:"response"`
	Audit         AuditConfig        `koanf:"audit"`
	Notifications NotificationConfig `koanf:"notifications"`
	Logging       LoggingConfig      `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`

	// Environment gates production-only checks (secret strength).
	Environment string `koanf:"environment" validate:"oneof=development production"`

	// CORSOrigins for the admin API.
	CORSOrigins []string `koanf:"cors_origins"`

	// TrustedProxies whose X-Forwarded-For headers are honored.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// StoreConfig configures the shared badger instance.
type StoreConfig struct {
	// Path is the badger directory. Empty selects in-memory mode.
	Path string `koanf:"path"`

	// InMemory forces badger's in-memory mode regardless of Path.
	InMemory bool `koanf:"in_memory"`

	// GCInterval is how often value-log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval" validate:"min=1m"`
}

// SecurityConfig holds the pipeline's secrets.
type SecurityConfig struct {
	// IdentitySecret keys the IP hash so raw IPs never appear in store
	// keys. Required.
	IdentitySecret string `koanf:"identity_secret" validate:"required,min=16"`

	// JWTSecret verifies the host application's bearer tokens.
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=16"`

	// AdminToken authorizes the admin API. Empty disables the admin
	// surface entirely.
	AdminToken string `koanf:"admin_token"`

	// RateLimitDisabled turns the adaptive limiter into a pass-through.
	RateLimitDisabled bool `koanf:"rate_limit_disabled"`
}

// DetectionConfig configures the pattern engine.
type DetectionConfig struct {
	// Enabled toggles the whole detector engine.
	Enabled bool `koanf:"enabled"`

	// Disabled lists detector types that start disabled.
	Disabled []string `koanf:"disabled"`

	// BaselineEnabled toggles behavioral baseline comparison.
	BaselineEnabled bool `koanf:"baseline_enabled"`

	// BaselineLearningDays is the history window baselines compute
	// over.
	BaselineLearningDays int `koanf:"baseline_learning_days" validate:"min=1"`
}

// ScoringConfig configures the composite scoring engine.
type ScoringConfig struct {
	// FlagThreshold is the score at which identities are flagged.
	FlagThreshold int `koanf:"flag_threshold" validate:"min=1,max=100"`

	// SharedIPFlagThreshold is the raised threshold for carrier-shared
	// IPs with a session.
	SharedIPFlagThreshold int `koanf:"shared_ip_flag_threshold" validate:"min=1,max=100"`
}

// PolicyConfig configures the adaptive rate limits.
type PolicyConfig struct {
	HighTrustPerMinute    int `koanf:"high_trust_per_minute" validate:"min=1"`
	HumanLikePerMinute    int `koanf:"human_like_per_minute" validate:"min=1"`
	MediumTrustPerMinute  int `koanf:"medium_trust_per_minute" validate:"min=1"`
	LikelyBotPerMinute    int `koanf:"likely_bot_per_minute" validate:"min=1"`
	ConfirmedBotPerMinute int `koanf:"confirmed_bot_per_minute" validate:"min=1"`
	DefaultPerMinute      int `koanf:"default_per_minute" validate:"min=1"`

	// LimiterIdleTTL bounds the per-identity bucket registry.
	LimiterIdleTTL time.Duration `koanf:"limiter_idle_ttl" validate:"min=1m"`
}

// ResponseConfig configures the orchestrator.
type ResponseConfig struct {
	BlockTTL           time.Duration `koanf:"block_ttl" validate:"min=1m"`
	LockTTL            time.Duration `koanf:"lock_ttl" validate:"min=1m"`
	RateLimitTTL       time.Duration `koanf:"rate_limit_ttl" validate:"min=1m"`
	FailedLoginLock    int           `koanf:"failed_login_lock" validate:"min=1"`
	ThrottledPerMinute int           `koanf:"throttled_per_minute" validate:"min=1"`
}

// AuditConfig configures the audit sink.
type AuditConfig struct {
	Enabled       bool `koanf:"enabled"`
	RetentionDays int  `koanf:"retention_days" validate:"min=1"`
	BufferSize    int  `koanf:"buffer_size" validate:"min=1"`
	LogToStdout   bool `koanf:"log_to_stdout"`
}

// NotificationConfig configures alert channels. Empty URLs disable the
// channel.
type NotificationConfig struct {
	WebhookURL string `koanf:"webhook_url" validate:"omitempty,url"`
	DiscordURL string `koanf:"discord_url" validate:"omitempty,url"`

	// LockNoticeURL receives account-lock notices for delivery to the
	// affected user via the host application's own contact channel.
	LockNoticeURL string `koanf:"lock_notice_url" validate:"omitempty,url"`

	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

var validate = validator.New()

// Validate checks the configuration, with stricter checks in
// production mode.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Scoring.SharedIPFlagThreshold < c.Scoring.FlagThreshold {
		return fmt.Errorf("shared_ip_flag_threshold must be >= flag_threshold")
	}

	if c.Server.Environment == "production" {
		if len(c.Security.IdentitySecret) < 32 {
			return fmt.Errorf("identity_secret must be at least 32 bytes in production")
		}
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("jwt_secret must be at least 32 bytes in production")
		}
		if c.Store.InMemory {
			return fmt.Errorf("in-memory store is not allowed in production")
		}
	}

	return nil
}
