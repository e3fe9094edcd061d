package throttle

import (
	"context"
	"log/slog"

	"github.com/throttlekit/throttle/pkg/xlog"
)

// synthesizedTotalHitsOnFailClosed is the sentinel "far past any real
// limit" total hits reported on a fail-closed synthesized decision, so a
// caller reading TotalHits can tell it apart from a real, small count.
const synthesizedTotalHitsOnFailClosed = 999999

// synthesizeDecision builds the record Increment returns when the store is
// unreachable, per the configured FailureStrategy (spec §4.7, §8 P7).
// Unlike a real script reply, these fields are not converted to seconds:
// TimeToExpire and TimeToBlockExpire echo the caller's own millisecond
// inputs directly, since no store round-trip computed a TTL.
func synthesizeDecision(strategy FailureStrategy, ttlMs, blockDurationMs int64) Decision {
	switch strategy {
	case FailClosed:
		return Decision{
			TotalHits:         synthesizedTotalHitsOnFailClosed,
			TimeToExpire:      ttlMs,
			IsBlocked:         true,
			TimeToBlockExpire: blockDurationMs,
		}
	case FailOpen:
		fallthrough
	default:
		return Decision{
			TotalHits:         1,
			TimeToExpire:      ttlMs,
			IsBlocked:         false,
			TimeToBlockExpire: 0,
		}
	}
}

// logFailure warns once per call that the configured failure strategy was
// applied instead of a real decision.
func logFailure(ctx context.Context, logger xlog.Logger, strategy FailureStrategy, err error) {
	if logger == nil {
		return
	}
	logger.Warn(ctx, "throttle: applying failure strategy after store error",
		slog.String("strategy", string(strategy)),
		slog.String("error", err.Error()),
	)
}
