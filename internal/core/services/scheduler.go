package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driving"
)

// Ensure Scheduler implements driving.Scheduler
var _ driving.Scheduler = (*Scheduler)(nil)

// ResyncLockName is the distributed lock guarding full resyncs.
// The Redis lock stores it under catalog:lock:resync.
const ResyncLockName = "resync"

// Resyncer rebuilds the index from the relational store
type Resyncer interface {
	ResyncAll(ctx context.Context) (*domain.ResyncReport, error)
}

// Scheduler runs a full resync on an interval.
// For multi-instance deployments, configure a DistributedLock so only one
// instance resyncs per cycle.
type Scheduler struct {
	resyncer Resyncer
	lock     driven.DistributedLock
	logger   *slog.Logger

	// Internal state
	mu         sync.RWMutex
	running    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
	interval   time.Duration
	lastReport *domain.ResyncReport

	lockTTL time.Duration
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Resyncer Resyncer
	Lock     driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger   *slog.Logger
	Interval time.Duration // How often to resync (default: 15m)
	LockTTL  time.Duration // TTL for the distributed lock, extended while a resync runs (default: 2m)
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = 15 * time.Minute
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 2 * time.Minute
	}

	return &Scheduler{
		resyncer: cfg.Resyncer,
		lock:     cfg.Lock,
		logger:   logger,
		interval: interval,
		lockTTL:  lockTTL,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("resync scheduler starting", "interval", s.interval)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("resync scheduler stopped")
}

// TriggerNow runs one resync cycle immediately.
// Returns domain.ErrSyncInProgress when another instance holds the lock.
func (s *Scheduler) TriggerNow(ctx context.Context) (*domain.ResyncReport, error) {
	return s.cycle(ctx)
}

// LastReport returns the report of the most recent completed cycle, if any
func (s *Scheduler) LastReport() *domain.ResyncReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("resync scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.cycle(ctx); err != nil && !errors.Is(err, domain.ErrSyncInProgress) {
				s.logger.Error("scheduled resync failed", "error", err)
			}
		}
	}
}

// cycle takes a resync lease, renews it while the resync runs, and releases it.
// Losing the lease cancels the resync.
func (s *Scheduler) cycle(ctx context.Context) (*domain.ResyncReport, error) {
	if s.lock == nil {
		return s.resync(ctx, 0)
	}

	lease, err := s.lock.TryAcquire(ctx, ResyncLockName, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire resync lock: %w", err)
	}
	if lease == nil {
		s.logger.Debug("resync lock held by another instance, skipping cycle")
		return nil, domain.ErrSyncInProgress
	}
	logger := s.logger.With("lock_token", lease.Token)

	resyncCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	heartbeatCtx, stopHeartbeat := context.WithCancel(resyncCtx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.heartbeat(heartbeatCtx, lease, abort, logger)
	}()

	report, err := s.resync(resyncCtx, lease.Token)
	stopHeartbeat()
	wg.Wait()

	if cause := context.Cause(resyncCtx); errors.Is(cause, domain.ErrLockLost) {
		logger.Error("resync aborted after losing its lock", "error", cause)
		err = fmt.Errorf("resync aborted: %w", cause)
	}

	if relErr := s.lock.Release(context.WithoutCancel(ctx), lease); relErr != nil {
		logger.Warn("failed to release resync lock", "error", relErr)
	}
	return report, err
}

func (s *Scheduler) resync(ctx context.Context, lockToken int64) (*domain.ResyncReport, error) {
	report, err := s.resyncer.ResyncAll(ctx)
	if report != nil {
		report.LockToken = lockToken
		s.mu.Lock()
		s.lastReport = report
		s.mu.Unlock()
	}
	return report, err
}

// heartbeat renews the lease at half its TTL. It aborts the resync when the
// lease is lost, or when renewals keep failing until the lease runs out.
func (s *Scheduler) heartbeat(ctx context.Context, lease *domain.Lease, abort context.CancelCauseFunc, logger *slog.Logger) {
	ticker := time.NewTicker(s.lockTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := s.lock.Renew(ctx, lease, s.lockTTL)
		switch {
		case err == nil:
			continue
		case errors.Is(err, domain.ErrLockLost):
			abort(err)
			return
		case ctx.Err() != nil:
			return
		}

		logger.Warn("failed to renew resync lock", "error", err)
		if lease.Expired(time.Now()) {
			abort(fmt.Errorf("lease expired after failed renewals: %w", domain.ErrLockLost))
			return
		}
	}
}
