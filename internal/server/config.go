// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the soundmesh service.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings, including the collaborator
// endpoints (Postgres for durable session/presence records, Redis for session
// tokens). Collaborator settings are optional: with an empty DatabaseURL or
// RedisAddr the hub runs standalone with in-memory default state and no
// login/presence surface. Each Server owns its own Config; there is no
// package-level configuration.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig

	SessionName string
	DatabaseURL string
	RedisAddr   string
	TokenTTL    time.Duration
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 64 * 1024,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		SessionName: "default",
		TokenTTL:    24 * time.Hour,
	}
}

// sanitized returns a copy with zero or invalid settings replaced by defaults.
func (c Config) sanitized() Config {
	defaults := defaultConfig()

	if c.Port == "" {
		c.Port = defaults.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if c.SessionName == "" {
		c.SessionName = defaults.SessionName
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = defaults.TokenTTL
	}
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}
	if name := os.Getenv("SESSION_NAME"); name != "" {
		cfg.SessionName = name
	}
	if ttl := os.Getenv("TOKEN_TTL"); ttl != "" {
		cfg.TokenTTL = parseSeconds(ttl, cfg.TokenTTL)
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
