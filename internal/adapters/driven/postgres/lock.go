package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*AdvisoryLock)(nil)

// AdvisoryLock implements DistributedLock with session advisory locks, the
// fallback when Redis is not configured.
//
// A held lock pins one pooled connection until Release, and lives exactly as
// long as that session: there is no TTL, and a lease is lost when the session
// dies. Fencing tokens come from the lock_fences table.
type AdvisoryLock struct {
	db *DB

	mu   sync.Mutex
	held map[string]*advisoryLease
}

type advisoryLease struct {
	conn  *sql.Conn
	token int64
}

// NewAdvisoryLock creates a new PostgreSQL advisory lock adapter.
func NewAdvisoryLock(db *DB) *AdvisoryLock {
	return &AdvisoryLock{db: db, held: make(map[string]*advisoryLease)}
}

// advisoryKey maps a lock name to the 64-bit key pg_try_advisory_lock takes
func advisoryKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte("catalog:lock:" + name))
	return int64(h.Sum64())
}

const nextFenceSQL = `
	INSERT INTO lock_fences (name, token) VALUES ($1, 1)
	ON CONFLICT (name) DO UPDATE SET token = lock_fences.token + 1
	RETURNING token
`

// TryAcquire takes the advisory lock on a dedicated connection, then bumps the
// fencing token. A lock this instance already holds reports nil, like one held elsewhere.
func (l *AdvisoryLock) TryAcquire(ctx context.Context, name string, _ time.Duration) (*domain.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[name]; ok {
		return nil, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, storeError("acquire lock "+name, err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", advisoryKey(name)).Scan(&acquired); err != nil {
		conn.Close()
		return nil, storeError("acquire lock "+name, err)
	}
	if !acquired {
		conn.Close()
		return nil, nil
	}

	var token int64
	if err := conn.QueryRowContext(ctx, nextFenceSQL, name).Scan(&token); err != nil {
		l.unlock(ctx, conn, name)
		return nil, storeError("fence lock "+name, err)
	}

	l.held[name] = &advisoryLease{conn: conn, token: token}
	return &domain.Lease{Name: name, Token: token}, nil
}

// Renew confirms the session behind the lease is alive. A dead session has
// already dropped the advisory lock, so the lease is lost.
func (l *AdvisoryLock) Renew(ctx context.Context, lease *domain.Lease, _ time.Duration) error {
	l.mu.Lock()
	held, ok := l.held[lease.Name]
	if ok && held.token != lease.Token {
		ok = false
	}
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("renew lock %s token %d: %w", lease.Name, lease.Token, domain.ErrLockLost)
	}
	if err := held.conn.PingContext(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.forget(lease)
		held.conn.Close()
		return fmt.Errorf("renew lock %s: %w: %v", lease.Name, domain.ErrLockLost, err)
	}
	return nil
}

// Release unlocks on the pinned connection and returns it to the pool.
// Releasing a lost lease is a no-op.
func (l *AdvisoryLock) Release(ctx context.Context, lease *domain.Lease) error {
	held := l.forget(lease)
	if held == nil {
		return nil
	}
	if err := l.unlock(ctx, held.conn, lease.Name); err != nil {
		return fmt.Errorf("release lock %s: %w", lease.Name, err)
	}
	return nil
}

// Ping checks if the PostgreSQL backend is healthy.
func (l *AdvisoryLock) Ping(ctx context.Context) error {
	return l.db.Ping(ctx)
}

// forget drops the lease from the held set if it is still the current one
func (l *AdvisoryLock) forget(lease *domain.Lease) *advisoryLease {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.held[lease.Name]
	if !ok || held.token != lease.Token {
		return nil
	}
	delete(l.held, lease.Name)
	return held
}

// unlock releases the advisory lock and closes conn
func (l *AdvisoryLock) unlock(ctx context.Context, conn *sql.Conn, name string) error {
	defer conn.Close()
	var released bool
	return conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", advisoryKey(name)).Scan(&released)
}
