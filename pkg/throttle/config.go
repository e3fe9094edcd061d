package throttle

import (
	"os"
	"strconv"
	"strings"
)

// FailureStrategy controls what Increment returns when the store cannot be
// reached (spec §4.7). There is no "local" fallback: the module only ever
// runs distributed, so the choice is strictly open or closed.
type FailureStrategy string

const (
	// FailOpen admits the request and synthesizes an unblocked decision
	// when the store is unreachable.
	FailOpen FailureStrategy = "fail-open"

	// FailClosed denies the request and synthesizes a blocked decision
	// when the store is unreachable.
	FailClosed FailureStrategy = "fail-closed"
)

// IsValid reports whether s is a recognized failure strategy.
func (s FailureStrategy) IsValid() bool {
	switch s {
	case FailOpen, FailClosed:
		return true
	default:
		return false
	}
}

// RedisConfig addresses the backing store.
type RedisConfig struct {
	Host     string
	Port     int
	DB       int
	Password string
}

// ThrottlerConfig controls the admission engine's behavior, independent of
// how the store is reached.
type ThrottlerConfig struct {
	// KeyPrefix namespaces every key this instance writes, letting several
	// independent deployments share one Redis database.
	KeyPrefix string

	// FailureStrategy is applied when the store is unreachable.
	FailureStrategy FailureStrategy

	// ClusterSafeKeys wraps the identity/policy portion of each key in a
	// hash tag so multi-key operations land on one Redis Cluster shard.
	ClusterSafeKeys bool

	// MaxWindowSize caps how many members a single window's sorted set may
	// retain, trimming the oldest once the cap is exceeded. Baked into the
	// installed script text at construction time; changing it requires
	// building a new Adapter.
	MaxWindowSize int

	// EnableRedisFunctions opts into the stored-procedure path (FUNCTION
	// LOAD / FCALL) with inline EVAL as the fallback. When false, every
	// call goes straight through inline evaluation.
	EnableRedisFunctions bool

	// EnableDebugLogging turns on verbose per-call logging, including
	// masked key identifiers. Noisy; intended for local troubleshooting.
	EnableDebugLogging bool
}

// Config is the full configuration surface for a throttle.Adapter.
type Config struct {
	Redis     RedisConfig
	Throttler ThrottlerConfig
}

// DefaultThrottlerConfig returns the engine defaults used when FromEnv finds
// no override: fail-open, cluster-safe keys, a 1000-member window cap, the
// stored-procedure path enabled.
func DefaultThrottlerConfig() ThrottlerConfig {
	return ThrottlerConfig{
		KeyPrefix:            "throttle",
		FailureStrategy:      FailOpen,
		ClusterSafeKeys:      true,
		MaxWindowSize:        1000,
		EnableRedisFunctions: true,
		EnableDebugLogging:   false,
	}
}

// Validate checks the configuration's invariants, returning a Configuration
// *Error naming the first offending field.
func (c Config) Validate() error {
	if c.Redis.Host == "" {
		return NewConfigurationError(CodeMissingRequiredConfig, "redis.host", "redis host is required")
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		return NewConfigurationError(CodeInvalidConfiguration, "redis.port", "redis port must be between 1 and 65535")
	}
	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		return NewConfigurationError(CodeInvalidConfiguration, "redis.db", "redis db must be between 0 and 15")
	}
	if c.Throttler.KeyPrefix == "" {
		return NewConfigurationError(CodeMissingRequiredConfig, "throttler.key_prefix", "key prefix is required")
	}
	if !c.Throttler.FailureStrategy.IsValid() {
		return NewConfigurationError(CodeInvalidConfiguration, "throttler.failure_strategy", "must be \"fail-open\" or \"fail-closed\"")
	}
	if c.Throttler.MaxWindowSize < 100 || c.Throttler.MaxWindowSize > 10000 {
		return NewConfigurationError(CodeInvalidConfiguration, "throttler.max_window_size", "must be between 100 and 10000")
	}
	return nil
}

// FromEnv builds a Config from environment variables, falling back to
// DefaultThrottlerConfig for anything unset. Recognized variables:
//
//	REDIS_HOST, REDIS_PORT, REDIS_DB, REDIS_PASSWORD
//	THROTTLER_KEY_PREFIX, THROTTLER_FAILURE_STRATEGY
//	THROTTLER_CLUSTER_SAFE_KEYS, THROTTLER_MAX_WINDOW_SIZE
//	THROTTLER_ENABLE_REDIS_FUNCTIONS, THROTTLER_ENABLE_DEBUG_LOGGING
//
// Booleans accept true/false/1/0/yes/no, case-insensitively; anything else
// is treated as unset and falls back to the default.
func FromEnv() (Config, error) {
	def := DefaultThrottlerConfig()

	cfg := Config{
		Redis: RedisConfig{
			Host:     envOr("REDIS_HOST", "127.0.0.1"),
			Port:     envInt("REDIS_PORT", 6379),
			DB:       envInt("REDIS_DB", 0),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Throttler: ThrottlerConfig{
			KeyPrefix:            envOr("THROTTLER_KEY_PREFIX", def.KeyPrefix),
			FailureStrategy:      FailureStrategy(envOr("THROTTLER_FAILURE_STRATEGY", string(def.FailureStrategy))),
			ClusterSafeKeys:      envBool("THROTTLER_CLUSTER_SAFE_KEYS", def.ClusterSafeKeys),
			MaxWindowSize:        envInt("THROTTLER_MAX_WINDOW_SIZE", def.MaxWindowSize),
			EnableRedisFunctions: envBool("THROTTLER_ENABLE_REDIS_FUNCTIONS", def.EnableRedisFunctions),
			EnableDebugLogging:   envBool("THROTTLER_ENABLE_DEBUG_LOGGING", def.EnableDebugLogging),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AdvisoryWarnings returns non-fatal observations about a config that is
// otherwise valid, intended for a startup log line rather than a hard
// failure.
func AdvisoryWarnings(c Config) []string {
	var warnings []string
	if c.Throttler.FailureStrategy == FailOpen {
		warnings = append(warnings, "failure strategy is fail-open: requests are admitted when redis is unreachable")
	}
	if c.Redis.Password == "" && !isLoopback(c.Redis.Host) {
		warnings = append(warnings, "redis host is non-local and no password is configured")
	}
	if c.Throttler.MaxWindowSize > 5000 {
		warnings = append(warnings, "max window size is large; each admitted call pays its ZCARD/ZADD cost against it")
	}
	if c.Throttler.EnableDebugLogging && strings.EqualFold(os.Getenv("APP_ENV"), "production") {
		warnings = append(warnings, "debug logging is enabled with APP_ENV=production")
	}
	return warnings
}

func isLoopback(host string) bool {
	switch host {
	case "127.0.0.1", "localhost", "::1":
		return true
	default:
		return false
	}
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}
