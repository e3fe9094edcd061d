// Package throttle implements a distributed sliding-window rate limiter
// backed by Redis.
//
// # Design
//
// Each (identity, policy) pair owns exactly two keys: an ordered set
// tracking admission timestamps and a block marker. Admission is decided
// atomically at the store, either by a Redis Functions stored procedure or,
// when that isn't available, an equivalent inline Lua script. The adapter
// holds no local state beyond the loader's single "is the procedure
// installed" flag.
//
// # Core concepts
//
//   - Adapter: the public entry point, exposing Increment and Reset.
//   - Decision: the 4-field outcome of one admission call.
//   - FailureStrategy: what Increment returns when the store is unreachable.
//
// # Quick start
//
//	cfg, err := throttle.FromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	adapter, err := throttle.New(client, cfg, throttle.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := adapter.Install(ctx); err != nil {
//	    logger.Warn(ctx, "stored procedure install failed, falling back to inline", slog.Any("err", err))
//	}
//
//	decision, err := adapter.Increment(ctx, "alice", time.Minute, 5, 30*time.Second, "api")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if decision.IsBlocked {
//	    log.Printf("blocked for %ds", decision.TimeToBlockExpire)
//	}
//
// # Failure strategy
//
// When the store is unreachable, Increment does not return an error: it
// applies the configured FailureStrategy and returns a synthesized
// Decision (fail-open admits, fail-closed denies).
//
// # Observability
//
// Logging (xlog): a warn log on block, a debug log with elapsed time when
// debug logging is enabled. Key identifiers are masked before logging.
//
// Metrics (OpenTelemetry, optional):
//   - throttle.admissions.total
//   - throttle.blocked.total
//   - throttle.fallback.total
//   - throttle.check.duration
package throttle
