package throttle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/throttlekit/throttle/pkg/xlog"
)

// Adapter is the public entry point: it derives keys, runs the admission
// algorithm at the store (via the stored procedure when available, inline
// Lua otherwise), and applies the configured failure strategy when the
// store can't be reached.
type Adapter struct {
	client redis.UniversalClient
	config Config

	loader *loader
	inline *redis.Script

	logger  xlog.Logger
	metrics *Metrics
	now     func() time.Time
}

// New builds an Adapter against an already-connected client. It does not
// install the stored procedure; call Install for that, or rely on the
// inline fallback path running from the first call.
func New(client redis.UniversalClient, config Config, opts ...Option) (*Adapter, error) {
	if client == nil {
		return nil, NewConfigurationError(CodeMissingRequiredConfig, "client", "a redis client is required")
	}

	o := defaultOptions()
	o.config = config
	for _, opt := range opts {
		opt(o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	a := &Adapter{
		client:  client,
		config:  o.config,
		inline:  newInlineScript(o.config.Throttler.MaxWindowSize),
		logger:  o.logger,
		metrics: o.metrics,
		now:     o.now,
	}
	if a.logger == nil {
		a.logger = xlog.Nop()
	}
	if o.metrics == nil && o.meterProvider != nil {
		m, err := NewMetrics(o.meterProvider)
		if err != nil {
			return nil, NewOperationError(CodeRedisOperationFailed, "failed to initialize metrics", err)
		}
		a.metrics = m
	}
	if a.config.Throttler.EnableRedisFunctions {
		a.loader = newLoader(client, o.libraryName, o.procedureName, a.config.Throttler.MaxWindowSize)
	}
	return a, nil
}

// Install loads the stored procedure library and probes it. Safe to call
// repeatedly; a no-op when the stored-procedure path is disabled.
func (a *Adapter) Install(ctx context.Context) error {
	if a.loader == nil {
		return nil
	}
	return a.loader.reload(ctx)
}

// Increment evaluates one admission for (identity, policyName) and returns
// the resulting Decision (spec §4.7).
func (a *Adapter) Increment(ctx context.Context, identity string, ttl time.Duration, limit int, blockDuration time.Duration, policyName string) (Decision, error) {
	start := a.now()

	if identity == "" {
		return Decision{}, NewConfigurationError(CodeInvalidConfiguration, "identity", "identity must be non-empty")
	}
	if policyName == "" {
		return Decision{}, NewConfigurationError(CodeInvalidConfiguration, "policyName", "policyName must be non-empty")
	}
	if ttl <= 0 {
		return Decision{}, NewConfigurationError(CodeInvalidConfiguration, "ttl", "ttl must be positive")
	}
	if limit < 0 {
		return Decision{}, NewConfigurationError(CodeInvalidConfiguration, "limit", "limit must be non-negative")
	}
	if blockDuration < 0 {
		return Decision{}, NewConfigurationError(CodeInvalidConfiguration, "blockDuration", "blockDuration must be non-negative")
	}

	ttlMs := ttl.Milliseconds()
	blockDurationMs := blockDuration.Milliseconds()

	// limit == 0 means "disabled": every call is within window, never
	// blocked, with no store round-trip (spec §4.5 edge case).
	if limit == 0 {
		return Decision{TotalHits: 0, TimeToExpire: ttlMs / 1000, IsBlocked: false, TimeToBlockExpire: -1}, nil
	}

	keys, err := deriveKeys(a.config.Throttler.KeyPrefix, identity, policyName, a.config.Throttler.ClusterSafeKeys)
	if err != nil {
		return Decision{}, err
	}

	nowMs := start.UnixMilli()
	member, err := generateMember(nowMs)
	if err != nil {
		return Decision{}, err
	}

	redisKeys := []string{keys.CounterKey, keys.BlockKey}
	args := []interface{}{ttlMs, int64(limit), blockDurationMs, nowMs, member}

	raw, err := a.evaluate(ctx, redisKeys, args)
	if err != nil {
		if isClassifiedConnectionError(err) {
			strategy := a.config.Throttler.FailureStrategy
			logFailure(ctx, a.logger, strategy, err)
			a.metrics.RecordFallback(ctx, strategy, classifyFailureReason(err))
			return synthesizeDecision(strategy, ttlMs, blockDurationMs), nil
		}
		return Decision{}, err
	}

	decision, err := parseDecisionReply(raw)
	if err != nil {
		return Decision{}, err
	}
	decision = clampDecision(decision)

	a.logOutcome(ctx, keys, policyName, decision, a.now().Sub(start))
	a.metrics.RecordAdmission(ctx, policyName, decision.IsBlocked, a.now().Sub(start))

	return decision, nil
}

// evaluate runs the admission algorithm via the stored procedure when it's
// believed loaded, retrying once through reload on a "not found" failure,
// and otherwise falling back to the inline script (spec §4.7 step 2-3).
func (a *Adapter) evaluate(ctx context.Context, keys []string, args []interface{}) ([]interface{}, error) {
	if a.config.Throttler.EnableRedisFunctions && a.loader != nil && a.loader.isLoaded() {
		raw, err := a.loader.call(ctx, keys, args...)
		if err == nil {
			return raw, nil
		}
		if IsOperation(err, CodeRedisFunctionsLoadFail) {
			if reloadErr := a.loader.reload(ctx); reloadErr == nil {
				raw, err = a.loader.call(ctx, keys, args...)
				if err == nil {
					return raw, nil
				}
			}
			// Fall through to inline on a second failure, whatever its shape.
		} else {
			return nil, err
		}
	}

	raw, err := a.inline.Run(ctx, a.client, keys, args...).Result()
	if err != nil {
		if isClassifiedConnectionError(err) {
			return nil, NewRedisConnectionError(err)
		}
		return nil, NewOperationError(CodeRedisOperationFailed, "inline admission script failed", err)
	}
	result, ok := raw.([]interface{})
	if !ok {
		return nil, NewOperationError(CodeRedisOperationFailed, "unexpected script reply shape", nil)
	}
	return result, nil
}

// parseDecisionReply converts the store's 4-tuple reply into a Decision.
func parseDecisionReply(raw []interface{}) (Decision, error) {
	if len(raw) != 4 {
		return Decision{}, NewOperationError(CodeRedisOperationFailed, "admission reply did not have 4 elements", nil)
	}
	totalHits, err := toInt64(raw[0])
	if err != nil {
		return Decision{}, err
	}
	timeToExpire, err := toInt64(raw[1])
	if err != nil {
		return Decision{}, err
	}
	isBlockedFlag, err := toInt64(raw[2])
	if err != nil {
		return Decision{}, err
	}
	timeToBlockExpire, err := toInt64(raw[3])
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		TotalHits:         totalHits,
		TimeToExpire:      timeToExpire,
		IsBlocked:         isBlockedFlag != 0,
		TimeToBlockExpire: timeToBlockExpire,
	}, nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, NewOperationError(CodeRedisOperationFailed, "admission reply element was not numeric", nil)
	}
}

// Reset deletes every key identity owns across all policies (spec §4.7).
// Connection errors are swallowed and logged at debug level; reset is
// advisory, not safety-critical.
func (a *Adapter) Reset(ctx context.Context, identity string) error {
	if identity == "" {
		return NewConfigurationError(CodeInvalidConfiguration, "identity", "identity must be non-empty")
	}

	pattern := resetScanPattern(a.config.Throttler.KeyPrefix, identity, a.config.Throttler.ClusterSafeKeys)

	var keys []string
	iter := a.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		if isClassifiedConnectionError(err) {
			a.logger.Debug(ctx, "throttle: reset scan failed, treating as advisory no-op", slog.String("error", err.Error()))
			return nil
		}
		return NewOperationError(CodeRedisOperationFailed, "reset scan failed", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := a.client.Del(ctx, keys...).Err(); err != nil {
		if isClassifiedConnectionError(err) {
			a.logger.Debug(ctx, "throttle: reset delete failed, treating as advisory no-op", slog.String("error", err.Error()))
			return nil
		}
		return NewOperationError(CodeRedisOperationFailed, "reset delete failed", err)
	}
	return nil
}

func (a *Adapter) logOutcome(ctx context.Context, keys KeyPair, policyName string, decision Decision, elapsed time.Duration) {
	if decision.IsBlocked {
		a.logger.Warn(ctx, "throttle: admission blocked",
			slog.String("policy", policyName),
			slog.String("key", maskKey(keys.CounterKey)),
			slog.Int64("timeToBlockExpire", decision.TimeToBlockExpire),
		)
	}
	if a.config.Throttler.EnableDebugLogging {
		a.logger.Debug(ctx, "throttle: admission evaluated",
			slog.String("policy", policyName),
			slog.String("key", maskKey(keys.CounterKey)),
			slog.Duration("elapsed", elapsed),
			slog.Int64("totalHits", decision.TotalHits),
		)
	}
}

// maskKey redacts a Redis key for logs: first4 + stars + last4 (spec §4.7).
func maskKey(key string) string {
	const head, tail = 4, 4
	if len(key) <= head+tail {
		return strings.Repeat("*", len(key))
	}
	stars := strings.Repeat("*", len(key)-head-tail)
	return key[:head] + stars + key[len(key)-tail:]
}

// classifyFailureReason maps a connection error to a small, low-cardinality
// label suitable as a metric attribute, rather than the raw error string.
func classifyFailureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case isNetworkError(err):
		return "network"
	default:
		return "connection"
	}
}
