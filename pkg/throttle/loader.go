package throttle

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// loader manages the Redis Functions library backing the stored-procedure
// admission path (spec §4.6). It mirrors the install-probe-reload shape the
// rest of the module uses for server-side Lua: install with a replace
// semantic, probe with a throwaway call, and flip a single atomic flag that
// the adapter consults before every admission.
type loader struct {
	client        redis.UniversalClient
	libraryName   string
	procedureName string
	maxWindowSize int
	loaded        atomic.Bool
}

func newLoader(client redis.UniversalClient, libraryName, procedureName string, maxWindowSize int) *loader {
	return &loader{
		client:        client,
		libraryName:   libraryName,
		procedureName: procedureName,
		maxWindowSize: maxWindowSize,
	}
}

// isLoaded reports the loader's current belief about library presence.
// Eventually consistent: worst case is an unnecessary reload (spec §5).
func (l *loader) isLoaded() bool {
	return l.loaded.Load()
}

// install loads (or replaces) the library and marks it loaded on success.
func (l *loader) install(ctx context.Context) error {
	source := renderLibrarySource(l.libraryName, l.procedureName, l.maxWindowSize)
	if err := l.client.FunctionLoadReplace(ctx, source).Err(); err != nil {
		if isClassifiedConnectionError(err) {
			return NewRedisConnectionError(err)
		}
		return NewOperationError(CodeRedisFunctionsLoadFail, "failed to install throttle function library", err)
	}
	l.loaded.Store(true)
	return nil
}

// probeKeys and probeArgs are never real admission data; a dummy call only
// needs to distinguish "function not found" from anything else.
var (
	probeKeys = []string{"throttle:__probe__:z", "throttle:__probe__:block"}
	probeArgs = []interface{}{int64(1000), int64(1), int64(0), int64(1), "probe:000000"}
)

// probe invokes the procedure once with dummy arguments. A success or a
// validation-error reply both indicate presence; only "not found" indicates
// absence (spec §4.6).
func (l *loader) probe(ctx context.Context) error {
	_, err := l.client.FCall(ctx, l.procedureName, probeKeys, probeArgs...).Result()
	if err != nil && !isFunctionNotFoundError(err) {
		// A validation-error reply (or any other non-"not found" reply)
		// still proves the function exists.
		l.loaded.Store(true)
		return nil
	}
	if err != nil {
		l.loaded.Store(false)
		return NewOperationError(CodeRedisFunctionsLoadFail, "throttle function library not found", err)
	}
	l.loaded.Store(true)
	return nil
}

// reload re-installs the library and confirms it with a probe. Idempotent:
// safe to call concurrently from multiple adapters sharing the same
// library name.
func (l *loader) reload(ctx context.Context) error {
	if err := l.install(ctx); err != nil {
		return err
	}
	return l.probe(ctx)
}

// call invokes the admission procedure, marking the loader unloaded when
// the server reports the function is missing so the adapter can retry.
func (l *loader) call(ctx context.Context, keys []string, args ...interface{}) ([]interface{}, error) {
	raw, err := l.client.FCall(ctx, l.procedureName, keys, args...).Result()
	if err != nil {
		if isFunctionNotFoundError(err) {
			l.loaded.Store(false)
			return nil, NewOperationError(CodeRedisFunctionsLoadFail, "throttle function library not found", err)
		}
		if isClassifiedConnectionError(err) {
			return nil, NewRedisConnectionError(err)
		}
		return nil, NewOperationError(CodeRedisOperationFailed, "throttle function call failed", err)
	}
	result, ok := raw.([]interface{})
	if !ok {
		return nil, NewOperationError(CodeRedisOperationFailed, "unexpected function reply shape", nil)
	}
	return result, nil
}
