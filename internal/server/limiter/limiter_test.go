package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestResetLimiter_FixedWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewResetLimiter(client, 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "a@b.com")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i+1)
	}

	ok, err := l.Allow(ctx, "a@b.com")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "other@b.com")
	require.NoError(t, err)
	assert.True(t, ok, "identifiers are counted separately")

	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"a@b.com"))

	mr.FastForward(time.Hour)
	ok, err = l.Allow(ctx, "a@b.com")
	require.NoError(t, err)
	assert.True(t, ok, "window expired")
}

func TestResetLimiter_RedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewResetLimiter(client, 3, time.Hour)
	mr.Close()

	ok, err := l.Allow(context.Background(), "a@b.com")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}

func TestNewRedisClient(t *testing.T) {
	mr, _ := newTestRedis(t)

	client, err := NewRedisClient(context.Background(), mr.Addr())
	require.NoError(t, err)
	_ = client.Close()

	_, err = NewRedisClient(context.Background(), "127.0.0.1:1")
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}
