package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid config")

var (
	storageDrivers = []string{"sqlite", "postgres", "memory"}
	cacheDrivers   = []string{"memory", "redis", "none"}
	sessionStores  = []string{"memory", "file", "database"}
	failedOrders   = []string{"most_failed", "most_recent_failure", "oldest_failure", "shuffled"}
	logLevels      = []string{"debug", "info", "warn", "error"}
)

// Load reads ~/.temario/config.yaml, applies environment overrides and
// validates the result
func Load() (*LocalConfig, error) {
	cfg, err := LoadLocalConfig()
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides settings from TEMARIO_* environment variables
func (c *LocalConfig) ApplyEnv() {
	c.Daemon.Port = getEnvInt("TEMARIO_PORT", c.Daemon.Port)
	c.Daemon.Bind = getEnv("TEMARIO_BIND", c.Daemon.Bind)
	c.Daemon.LogLevel = getEnv("TEMARIO_LOG_LEVEL", c.Daemon.LogLevel)
	c.Daemon.RateLimitPerSecond = getEnvInt("TEMARIO_RATE_LIMIT", c.Daemon.RateLimitPerSecond)

	c.Storage.Driver = getEnv("TEMARIO_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.SQLitePath = getEnv("TEMARIO_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.FixturePath = getEnv("TEMARIO_FIXTURE_PATH", c.Storage.FixturePath)
	if url := getEnv("TEMARIO_DATABASE_URL", ""); url != "" {
		c.Storage.PostgresURL = url
		// A database URL alone selects postgres
		if os.Getenv("TEMARIO_STORAGE_DRIVER") == "" {
			c.Storage.Driver = "postgres"
		}
	}

	c.Cache.Driver = getEnv("TEMARIO_CACHE_DRIVER", c.Cache.Driver)
	c.Cache.TTL = getEnvDuration("TEMARIO_CACHE_TTL", c.Cache.TTL)
	c.Cache.Redis.Addr = getEnv("TEMARIO_REDIS_ADDR", c.Cache.Redis.Addr)
	c.Cache.Redis.Password = getEnv("TEMARIO_REDIS_PASSWORD", c.Cache.Redis.Password)

	c.Adaptive.UpperThreshold = getEnvFloat("TEMARIO_ADAPTIVE_UPPER", c.Adaptive.UpperThreshold)
	c.Adaptive.LowerThreshold = getEnvFloat("TEMARIO_ADAPTIVE_LOWER", c.Adaptive.LowerThreshold)

	c.Sessions.TTL = getEnvDuration("TEMARIO_SESSION_TTL", c.Sessions.TTL)

	if url := getEnv("TEMARIO_RABBITMQ_URL", ""); url != "" {
		c.Events.RabbitMQURL = url
		c.Events.Enabled = getEnvBool("TEMARIO_EVENTS_ENABLED", true)
	} else {
		c.Events.Enabled = getEnvBool("TEMARIO_EVENTS_ENABLED", c.Events.Enabled)
	}
}

// Validate rejects settings the daemon cannot run with
func (c *LocalConfig) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		fail("daemon.port %d out of range", c.Daemon.Port)
	}
	if !oneOf(strings.ToLower(c.Daemon.LogLevel), logLevels) {
		fail("daemon.log_level %q must be one of %v", c.Daemon.LogLevel, logLevels)
	}
	if c.Daemon.RateLimitPerSecond < 0 || c.Daemon.RateLimitBurst < 0 {
		fail("daemon rate limits must not be negative")
	}

	if !oneOf(c.Storage.Driver, storageDrivers) {
		fail("storage.driver %q must be one of %v", c.Storage.Driver, storageDrivers)
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresURL == "" {
		fail("storage.postgres_url is required for the postgres driver")
	}
	if c.Storage.Driver == "memory" && c.Storage.FixturePath == "" {
		fail("storage.fixture_path is required for the memory driver")
	}

	if !oneOf(c.Cache.Driver, cacheDrivers) {
		fail("cache.driver %q must be one of %v", c.Cache.Driver, cacheDrivers)
	}
	if c.Cache.TTL < 0 {
		fail("cache.ttl must not be negative")
	}
	if c.Cache.Driver == "redis" && c.Cache.Redis.Addr == "" {
		fail("cache.redis.addr is required for the redis driver")
	}

	if c.Resilience.MaxAttempts < 1 {
		fail("resilience.max_attempts must be at least 1")
	}
	if c.Resilience.MaxConcurrent < 1 {
		fail("resilience.max_concurrent must be at least 1")
	}

	if c.Selection.MaxCount < 0 {
		fail("selection.max_count must not be negative")
	}
	if c.Selection.ActiveWindow <= 0 {
		fail("selection.active_window must be positive")
	}
	if c.Selection.DefaultFailedOrder != "" && !oneOf(c.Selection.DefaultFailedOrder, failedOrders) {
		fail("selection.default_failed_order %q must be one of %v", c.Selection.DefaultFailedOrder, failedOrders)
	}

	if c.Adaptive.WarmupAnswers < 0 {
		fail("adaptive.warmup_answers must not be negative")
	}
	if c.Adaptive.TrailingWindow <= 0 {
		fail("adaptive.trailing_window must be positive")
	}
	if c.Adaptive.LowerThreshold <= 0 || c.Adaptive.UpperThreshold > 1 {
		fail("adaptive thresholds must lie in (0, 1]")
	}
	if c.Adaptive.LowerThreshold >= c.Adaptive.UpperThreshold {
		fail("adaptive.lower_threshold %.2f must be below upper_threshold %.2f",
			c.Adaptive.LowerThreshold, c.Adaptive.UpperThreshold)
	}

	if !oneOf(c.Sessions.Store, sessionStores) {
		fail("sessions.store %q must be one of %v", c.Sessions.Store, sessionStores)
	}
	if c.Sessions.TTL <= 0 {
		fail("sessions.ttl must be positive")
	}
	if c.Sessions.SweepInterval <= 0 {
		fail("sessions.sweep_interval must be positive")
	}

	if c.Events.Enabled && c.Events.RabbitMQURL == "" {
		fail("events.rabbitmq_url is required when events are enabled")
	}

	return errors.Join(errs...)
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
