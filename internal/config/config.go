package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"investimento/internal/core"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// CSV memoization
	CSVCacheSize int
	CSVCacheTTL  time.Duration

	// Rate limiting
	RateLimitPerMinute int

	// TrustedProxies lists extra CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string

	// Projection engine
	InterestPolicy  string
	MaxTargetMonths int
	MaxMonths       int
}

func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CSVCacheSize: getEnvInt("CSV_CACHE_SIZE", 128),
		CSVCacheTTL:  getEnvDuration("CSV_CACHE_TTL", 10*time.Minute),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),

		InterestPolicy:  getEnv("INTEREST_POLICY", string(core.AccrualSummed)),
		MaxTargetMonths: getEnvInt("MAX_TARGET_MONTHS", core.DefaultMaxTargetMonths),
		MaxMonths:       getEnvInt("MAX_MONTHS", 1200),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if _, err := c.SlogLevel(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.CSVCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid csv cache size %d: must be at least 1", c.CSVCacheSize))
	} else if c.CSVCacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid csv cache size %d: must be at most 100000", c.CSVCacheSize))
	}
	if c.CSVCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid csv cache ttl %v: must be at least 1 second", c.CSVCacheTTL))
	} else if c.CSVCacheTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid csv cache ttl %v: must be at most 24 hours", c.CSVCacheTTL))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR such as 203.0.113.0/24", cidr))
		}
	}

	if err := core.InterestPolicy(c.InterestPolicy).Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid interest policy '%s': must be one of [%s %s]",
			c.InterestPolicy, core.AccrualSummed, core.ContributionSubtracted))
	}
	if c.MaxTargetMonths < 1 {
		errors = append(errors, fmt.Sprintf("invalid max target months %d: must be at least 1", c.MaxTargetMonths))
	}
	if c.MaxMonths < 0 {
		errors = append(errors, fmt.Sprintf("invalid max months %d: must not be negative", c.MaxMonths))
	} else if c.MaxMonths > core.MaxMonths {
		errors = append(errors, fmt.Sprintf("invalid max months %d: must be at most %d", c.MaxMonths, core.MaxMonths))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// SlogLevel maps LogLevel onto a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel)
	}
}

// EngineConfig returns the projection engine settings.
func (c *Config) EngineConfig() core.EngineConfig {
	return core.EngineConfig{
		Policy:          core.InterestPolicy(c.InterestPolicy),
		MaxTargetMonths: c.MaxTargetMonths,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
