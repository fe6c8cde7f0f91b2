package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// DistributedLock hands out leases on named locks so that work such as a full
// resync of the search index runs on one instance at a time.
type DistributedLock interface {
	// TryAcquire takes a named lock for ttl without blocking.
	// It returns a nil lease when another holder has the lock.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (*domain.Lease, error)

	// Renew pushes the lease out by ttl. It fails with domain.ErrLockLost
	// once the lease has expired or the lock has passed to another holder.
	Renew(ctx context.Context, lease *domain.Lease, ttl time.Duration) error

	// Release gives up a lease. Releasing a lost lease is a no-op.
	Release(ctx context.Context, lease *domain.Lease) error

	// Ping checks if the lock backend is healthy
	Ping(ctx context.Context) error
}
