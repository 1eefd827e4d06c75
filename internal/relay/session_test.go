package relay

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/localgen/internal/config"
)

func exerciseStore(t *testing.T, s SessionStore) {
	t.Helper()
	ctx := context.Background()

	ok, err := s.IsCurrent(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Active(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Begin(ctx, "a"))
	ok, _ = s.IsCurrent(ctx, "a")
	assert.True(t, ok)
	ok, _ = s.Active(ctx)
	assert.True(t, ok)

	// A newer session supersedes the older one.
	require.NoError(t, s.Begin(ctx, "b"))
	ok, _ = s.IsCurrent(ctx, "a")
	assert.False(t, ok)

	// Ending a superseded session leaves the current one alone.
	require.NoError(t, s.End(ctx, "a"))
	ok, _ = s.IsCurrent(ctx, "b")
	assert.True(t, ok)

	require.NoError(t, s.Stop(ctx))
	ok, _ = s.IsCurrent(ctx, "b")
	assert.False(t, ok)
	ok, _ = s.Active(ctx)
	assert.False(t, ok)

	require.NoError(t, s.Begin(ctx, "c"))
	require.NoError(t, s.End(ctx, "c"))
	ok, _ = s.IsCurrent(ctx, "c")
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.NoError(t, s.Close())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("LOCALGEN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LOCALGEN_TEST_REDIS_ADDR not set")
	}

	s, err := NewRedisStore(context.Background(), config.RedisConfig{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Stop(context.Background()))
	exerciseStore(t, s)
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := NewRedisStore(ctx, config.RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
