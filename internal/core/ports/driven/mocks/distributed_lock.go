package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

type mockLease struct {
	token  int64
	expiry time.Time
}

// MockDistributedLock is an in-memory DistributedLock with expiring,
// fenced leases.
type MockDistributedLock struct {
	mu     sync.Mutex
	locks  map[string]mockLease
	fences map[string]int64

	// Custom behavior hooks (optional)
	AcquireFn func(name string, ttl time.Duration) (*domain.Lease, error)
	RenewFn   func(lease *domain.Lease) error
	PingFn    func() error

	renewCalls int
}

// NewMockDistributedLock creates a new mock distributed lock.
func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{
		locks:  make(map[string]mockLease),
		fences: make(map[string]int64),
	}
}

func (m *MockDistributedLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (*domain.Lease, error) {
	if m.AcquireFn != nil {
		return m.AcquireFn(name, ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.locks[name]; ok && time.Now().Before(held.expiry) {
		return nil, nil
	}
	token := m.take(name, ttl)
	return &domain.Lease{Name: name, Token: token, ExpiresAt: m.locks[name].expiry}, nil
}

func (m *MockDistributedLock) Renew(ctx context.Context, lease *domain.Lease, ttl time.Duration) error {
	m.mu.Lock()
	m.renewCalls++
	fn := m.RenewFn
	m.mu.Unlock()

	if fn != nil {
		return fn(lease)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.locks[lease.Name]
	if !ok || held.token != lease.Token || time.Now().After(held.expiry) {
		return fmt.Errorf("renew %s token %d: %w", lease.Name, lease.Token, domain.ErrLockLost)
	}
	held.expiry = time.Now().Add(ttl)
	m.locks[lease.Name] = held
	lease.ExpiresAt = held.expiry
	return nil
}

func (m *MockDistributedLock) Release(ctx context.Context, lease *domain.Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.locks[lease.Name]; ok && held.token == lease.Token {
		delete(m.locks, lease.Name)
	}
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

// take records a new holder of name; callers hold mu
func (m *MockDistributedLock) take(name string, ttl time.Duration) int64 {
	m.fences[name]++
	token := m.fences[name]
	m.locks[name] = mockLease{token: token, expiry: time.Now().Add(ttl)}
	return token
}

// IsHeld checks if a lock is currently held (for test assertions).
func (m *MockDistributedLock) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.locks[name]
	return ok && time.Now().Before(held.expiry)
}

// SetLockHeld makes another instance the holder of a lock, replacing any
// current holder (for test setup).
func (m *MockDistributedLock) SetLockHeld(name string, ttl time.Duration) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.take(name, ttl)
}

// Renewals returns how many times Renew was called.
func (m *MockDistributedLock) Renewals() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.renewCalls
}
