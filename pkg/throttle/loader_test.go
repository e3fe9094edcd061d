package throttle

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderNotLoadedInitially(t *testing.T) {
	l := newLoader(nil, DefaultLibraryName, DefaultProcedureName, 1000)
	assert.False(t, l.isLoaded())
}

func TestLoaderProbeNotFoundMarksUnloaded(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	// miniredis does not implement Redis Functions (FUNCTION/FCALL), so a
	// probe against it always observes "unknown command" — the same
	// signal a real server gives when the library was never installed.
	l := newLoader(client, DefaultLibraryName, DefaultProcedureName, 1000)
	err = l.probe(context.Background())
	require.Error(t, err)
	assert.True(t, IsOperation(err, CodeRedisFunctionsLoadFail))
	assert.False(t, l.isLoaded())
}

func TestLoaderInstallFailureIsOperationError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := newLoader(client, DefaultLibraryName, DefaultProcedureName, 1000)
	err = l.install(context.Background())
	require.Error(t, err)
	assert.False(t, IsRedisConnection(err))
}

func TestLoaderInstallConnectionErrorIsRedisConnection(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	l := newLoader(client, DefaultLibraryName, DefaultProcedureName, 1000)
	err = l.install(context.Background())
	require.Error(t, err)
	assert.True(t, IsRedisConnection(err))
}

func TestRenderLibrarySourceContainsNameAndBody(t *testing.T) {
	src := renderLibrarySource("mylib", "myproc", 250)
	assert.Contains(t, src, "#!lua name=mylib")
	assert.Contains(t, src, "redis.register_function('myproc'")
	assert.Contains(t, src, "local maxWindowSize = 250")
}
