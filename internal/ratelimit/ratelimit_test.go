package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/iaaps/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNilLimiterAllows(t *testing.T) {
	l, err := NewLimiter(config.Config{}, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.False(t, l.Enabled())

	res, err := l.Allow(context.Background(), "assistant", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNilLockerAndBucket(t *testing.T) {
	assert.Nil(t, NewLocker(nil))
	assert.Nil(t, NewTokenBucket(nil))

	var l *Locker
	_, ok, err := l.TryLock(context.Background(), "k", time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
	_, err = l.Holder(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotConfigured)

	var b *TokenBucket
	_, err = b.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestHolderOf(t *testing.T) {
	assert.Equal(t, "api-7f9c", HolderOf("api-7f9c/0b4e6a3c-1f7e-4c55-9a55-08f1d4b2c001"))
	assert.Empty(t, HolderOf("legacy-token"))
	assert.Empty(t, HolderOf(""))
}

func TestBucketResult(t *testing.T) {
	allowed := bucketResult([]interface{}{int64(1), "4.5", int64(1_700_000_000_000)}, 2, 10)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, 4, allowed.Remaining)
	assert.Equal(t, 10, allowed.Limit)
	assert.Zero(t, allowed.RetryAfter)

	denied := bucketResult([]interface{}{int64(0), "0.5", int64(1_700_000_000_000)}, 2, 10)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 250*time.Millisecond, denied.RetryAfter)
	assert.Equal(t, time.UnixMilli(1_700_000_000_250), denied.ResetTime)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, 20*time.Second, defaultBucketTTL(1, 10))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
	assert.Equal(t, time.Second, defaultBucketTTL(0, 1))
}
