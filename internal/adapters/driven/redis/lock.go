package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

// A lock lives under catalog:lock:<name> and holds the fencing token of its
// current lease. catalog:lock:<name>:fence keeps the last token handed out
// and never expires, so tokens keep growing across holders.
const lockPrefix = "catalog:lock:"

func lockKey(name string) string  { return lockPrefix + name }
func fenceKey(name string) string { return lockPrefix + name + ":fence" }

// acquireScript takes a free lock and returns the new token, or 0 when held.
var acquireScript = redis.NewScript(`
	if redis.call("exists", KEYS[1]) == 1 then
		return 0
	end
	local token = redis.call("incr", KEYS[2])
	redis.call("set", KEYS[1], tostring(token), "PX", ARGV[1])
	return token
`)

// renewScript extends the lock only while it still carries the caller's token.
var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

// releaseScript deletes the lock only while it still carries the caller's token.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// Lock implements DistributedLock with fenced, expiring leases in Redis.
type Lock struct {
	client *redis.Client
	now    func() time.Time
}

// NewLock creates a new Redis-backed distributed lock.
func NewLock(client *redis.Client) *Lock {
	return &Lock{client: client, now: time.Now}
}

// TryAcquire returns a lease with a fresh fencing token, or nil when the lock is held.
func (l *Lock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (*domain.Lease, error) {
	expiresAt := l.now().Add(ttl)
	token, err := acquireScript.Run(ctx, l.client, []string{lockKey(name), fenceKey(name)}, ttl.Milliseconds()).Int64()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w: %v", name, domain.ErrServiceUnavailable, err)
	}
	if token == 0 {
		return nil, nil
	}
	return &domain.Lease{Name: name, Token: token, ExpiresAt: expiresAt}, nil
}

// Renew extends the lease. A lease whose key expired or now carries another
// token is lost for good.
func (l *Lock) Renew(ctx context.Context, lease *domain.Lease, ttl time.Duration) error {
	expiresAt := l.now().Add(ttl)
	ok, err := renewScript.Run(ctx, l.client, []string{lockKey(lease.Name)}, lease.Token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("renew lock %s: %w: %v", lease.Name, domain.ErrServiceUnavailable, err)
	}
	if ok == 0 {
		return fmt.Errorf("renew lock %s token %d: %w", lease.Name, lease.Token, domain.ErrLockLost)
	}
	lease.ExpiresAt = expiresAt
	return nil
}

// Release deletes the lock if the lease still owns it.
func (l *Lock) Release(ctx context.Context, lease *domain.Lease) error {
	_, err := releaseScript.Run(ctx, l.client, []string{lockKey(lease.Name)}, lease.Token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", lease.Name, err)
	}
	return nil
}

// Ping checks if the Redis backend is healthy.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
