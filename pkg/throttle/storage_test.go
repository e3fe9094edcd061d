package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stretchr/testify/assert"
)

// newTestAdapter builds an Adapter against an in-process miniredis with the
// stored-procedure path disabled: miniredis implements EVAL but not
// Redis Functions (FUNCTION LOAD/FCALL), so these tests exercise the
// inline-script path exclusively. The loader itself is covered by
// loader_test.go at the unit level.
func newTestAdapter(t *testing.T, mutate func(*ThrottlerConfig)) (*Adapter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	throttler := DefaultThrottlerConfig()
	throttler.EnableRedisFunctions = false
	if mutate != nil {
		mutate(&throttler)
	}

	cfg := Config{Redis: RedisConfig{Host: "127.0.0.1", Port: 6379}, Throttler: throttler}
	adapter, err := New(client, cfg)
	require.NoError(t, err)
	return adapter, mr
}

func TestIncrementSimpleAdmission(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	ctx := context.Background()

	d, err := adapter.Increment(ctx, "alice", 60*time.Second, 5, 30*time.Second, "api")
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.TotalHits)
	assert.Equal(t, int64(60), d.TimeToExpire)
	assert.False(t, d.IsBlocked)
	assert.Equal(t, int64(-1), d.TimeToBlockExpire)
}

func TestIncrementHitsLimitThenBlocks(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	ctx := context.Background()

	var last Decision
	var err error
	for i := 0; i < 6; i++ {
		last, err = adapter.Increment(ctx, "alice", 60*time.Second, 5, 30*time.Second, "api")
		require.NoError(t, err)
	}

	assert.Equal(t, int64(6), last.TotalHits)
	assert.True(t, last.IsBlocked)
	assert.Equal(t, int64(30), last.TimeToBlockExpire)

	// Seventh call: still blocked, totalHits clamped to 0 from the -1 sentinel.
	seventh, err := adapter.Increment(ctx, "alice", 60*time.Second, 5, 30*time.Second, "api")
	require.NoError(t, err)
	assert.True(t, seventh.IsBlocked)
	assert.Equal(t, int64(0), seventh.TotalHits)
}

func TestIncrementNoBlockOverflow(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	ctx := context.Background()

	var last Decision
	var err error
	for i := 0; i < 6; i++ {
		last, err = adapter.Increment(ctx, "dave", 60*time.Second, 5, 0, "api")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(6), last.TotalHits)
	assert.True(t, last.IsBlocked)
	assert.Equal(t, int64(-1), last.TimeToBlockExpire)
}

func TestIncrementLimitOneSecondCallBlocks(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	ctx := context.Background()

	first, err := adapter.Increment(ctx, "erin", 60*time.Second, 1, 30*time.Second, "api")
	require.NoError(t, err)
	assert.False(t, first.IsBlocked)

	second, err := adapter.Increment(ctx, "erin", 60*time.Second, 1, 30*time.Second, "api")
	require.NoError(t, err)
	assert.True(t, second.IsBlocked)
}

func TestIncrementDisabledWhenLimitZero(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		d, err := adapter.Increment(ctx, "frank", 60*time.Second, 0, 30*time.Second, "api")
		require.NoError(t, err)
		assert.Equal(t, int64(0), d.TotalHits)
		assert.False(t, d.IsBlocked)
		assert.Equal(t, int64(-1), d.TimeToBlockExpire)
	}
}

func TestIncrementValidatesArguments(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	ctx := context.Background()

	_, err := adapter.Increment(ctx, "", 60*time.Second, 5, 0, "api")
	assert.True(t, IsConfiguration(err))

	_, err = adapter.Increment(ctx, "alice", 60*time.Second, 5, 0, "")
	assert.True(t, IsConfiguration(err))

	_, err = adapter.Increment(ctx, "alice", 0, 5, 0, "api")
	assert.True(t, IsConfiguration(err))

	_, err = adapter.Increment(ctx, "alice", 60*time.Second, -1, 0, "api")
	assert.True(t, IsConfiguration(err))

	_, err = adapter.Increment(ctx, "alice", 60*time.Second, 5, -1, "api")
	assert.True(t, IsConfiguration(err))
}

func TestIncrementSameMillisecondBurst(t *testing.T) {
	frozen := time.UnixMilli(1700000000000)
	adapter, _ := newTestAdapter(t, nil)
	adapter.now = func() time.Time { return frozen }

	ctx := context.Background()
	admitted := 0
	var last Decision
	for i := 0; i < 8; i++ {
		d, err := adapter.Increment(ctx, "grace", 60*time.Second, 5, 30*time.Second, "burst")
		require.NoError(t, err)
		if !d.IsBlocked {
			admitted++
		}
		last = d
	}
	assert.Equal(t, 5, admitted)
	assert.True(t, last.IsBlocked)
}

func TestResetClearsStateAndIsIdempotent(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := adapter.Increment(ctx, "bob", 60*time.Second, 5, 30*time.Second, "api")
		require.NoError(t, err)
	}

	require.NoError(t, adapter.Reset(ctx, "bob"))
	require.NoError(t, adapter.Reset(ctx, "bob"))

	fresh, err := adapter.Increment(ctx, "bob", 60*time.Second, 5, 30*time.Second, "api")
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.TotalHits)
	assert.False(t, fresh.IsBlocked)
}

func TestResetNoKeysIsNoOp(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	assert.NoError(t, adapter.Reset(context.Background(), "nobody"))
}

func TestResetValidatesIdentity(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	err := adapter.Reset(context.Background(), "")
	assert.True(t, IsConfiguration(err))
}

func TestKeyIsolationAcrossIdentitiesAndPolicies(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := adapter.Increment(ctx, "henry", 60*time.Second, 5, 30*time.Second, "api")
		require.NoError(t, err)
	}

	d, err := adapter.Increment(ctx, "iris", 60*time.Second, 5, 30*time.Second, "api")
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.TotalHits)
	assert.False(t, d.IsBlocked)

	d, err = adapter.Increment(ctx, "henry", 60*time.Second, 5, 30*time.Second, "other-policy")
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.TotalHits)
	assert.False(t, d.IsBlocked)
}

func TestIncrementFailOpenOnConnectionLoss(t *testing.T) {
	adapter, mr := newTestAdapter(t, func(c *ThrottlerConfig) { c.FailureStrategy = FailOpen })
	mr.Close()

	d, err := adapter.Increment(context.Background(), "carol", 60*time.Second, 5, 30*time.Second, "api")
	require.NoError(t, err)
	assert.False(t, d.IsBlocked)
	assert.Equal(t, int64(1), d.TotalHits)
}

func TestIncrementFailClosedOnConnectionLoss(t *testing.T) {
	adapter, mr := newTestAdapter(t, func(c *ThrottlerConfig) { c.FailureStrategy = FailClosed })
	mr.Close()

	d, err := adapter.Increment(context.Background(), "carol", 60*time.Second, 5, 30*time.Second, "api")
	require.NoError(t, err)
	assert.True(t, d.IsBlocked)
	assert.Equal(t, int64(synthesizedTotalHitsOnFailClosed), d.TotalHits)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "thro****:123", maskKey("throttle:123"))
	assert.Equal(t, "****", maskKey("abcd"))
	assert.Equal(t, "**", maskKey("ab"))
}
