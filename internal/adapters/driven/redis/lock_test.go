package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestLock_TryAcquireStoresToken(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client)

	lease, err := lock.TryAcquire(context.Background(), "resync", 10*time.Second)

	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, "resync", lease.Name)
	assert.Equal(t, int64(1), lease.Token)
	assert.False(t, lease.ExpiresAt.IsZero())

	stored, err := mr.Get("catalog:lock:resync")
	require.NoError(t, err)
	assert.Equal(t, "1", stored)
	fence, err := mr.Get("catalog:lock:resync:fence")
	require.NoError(t, err)
	assert.Equal(t, "1", fence)
}

func TestLock_TryAcquire_AlreadyHeld(t *testing.T) {
	client, _ := setupTestRedis(t)
	lock1 := NewLock(client)
	lock2 := NewLock(client)
	ctx := context.Background()

	lease, err := lock1.TryAcquire(ctx, "resync", 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)

	other, err := lock2.TryAcquire(ctx, "resync", 10*time.Second)
	require.NoError(t, err)
	assert.Nil(t, other)

	// Not reentrant either
	again, err := lock1.TryAcquire(ctx, "resync", 10*time.Second)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestLock_TokensGrowAcrossHolders(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock1 := NewLock(client)
	lock2 := NewLock(client)
	ctx := context.Background()

	first, err := lock1.TryAcquire(ctx, "resync", time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)

	mr.FastForward(2 * time.Second)

	second, err := lock2.TryAcquire(ctx, "resync", time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Greater(t, second.Token, first.Token)

	require.NoError(t, lock2.Release(ctx, second))
	third, err := lock1.TryAcquire(ctx, "resync", time.Second)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Greater(t, third.Token, second.Token)
}

func TestLock_Renew(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client)
	ctx := context.Background()

	lease, err := lock.TryAcquire(ctx, "resync", time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)
	before := lease.ExpiresAt

	require.NoError(t, lock.Renew(ctx, lease, 10*time.Second))
	assert.Greater(t, mr.TTL("catalog:lock:resync"), 5*time.Second)
	assert.True(t, lease.ExpiresAt.After(before))
}

func TestLock_RenewAfterExpiryIsLost(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client)
	ctx := context.Background()

	lease, err := lock.TryAcquire(ctx, "resync", time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)

	mr.FastForward(2 * time.Second)

	assert.ErrorIs(t, lock.Renew(ctx, lease, time.Second), domain.ErrLockLost)
}

func TestLock_StaleLeaseCannotTouchNewHolder(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock1 := NewLock(client)
	lock2 := NewLock(client)
	ctx := context.Background()

	stale, err := lock1.TryAcquire(ctx, "resync", time.Second)
	require.NoError(t, err)
	require.NotNil(t, stale)

	mr.FastForward(2 * time.Second)
	current, err := lock2.TryAcquire(ctx, "resync", 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, current)

	assert.ErrorIs(t, lock1.Renew(ctx, stale, 10*time.Second), domain.ErrLockLost)
	require.NoError(t, lock1.Release(ctx, stale))

	stored, err := mr.Get("catalog:lock:resync")
	require.NoError(t, err)
	assert.Equal(t, "2", stored, "new holder keeps the lock")
	assert.NoError(t, lock2.Renew(ctx, current, 10*time.Second))
}

func TestLock_Release(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client)
	ctx := context.Background()

	lease, err := lock.TryAcquire(ctx, "resync", 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)

	require.NoError(t, lock.Release(ctx, lease))
	assert.False(t, mr.Exists("catalog:lock:resync"))
	// Releasing twice is a no-op
	require.NoError(t, lock.Release(ctx, lease))

	next, err := lock.TryAcquire(ctx, "resync", 10*time.Second)
	require.NoError(t, err)
	assert.NotNil(t, next)
}

func TestLock_BackendDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	lock := NewLock(client)
	mr.Close()

	_, err := lock.TryAcquire(context.Background(), "resync", time.Second)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)

	lease := &domain.Lease{Name: "resync", Token: 1}
	err = lock.Renew(context.Background(), lease, time.Second)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.NotErrorIs(t, err, domain.ErrLockLost)
}

func TestLock_Ping(t *testing.T) {
	client, _ := setupTestRedis(t)
	lock := NewLock(client)

	assert.NoError(t, lock.Ping(context.Background()))
}
