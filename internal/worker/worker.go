package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driving"
)

// Worker consumes booking events from the shared subscription and applies
// them to seat availability. It also hosts the resync scheduler.
type Worker struct {
	subscriber   driven.EventSubscriber
	availability driving.AvailabilityService
	scheduler    driving.Scheduler
	logger       *slog.Logger

	// Configuration
	concurrency    int
	receiveTimeout int // seconds
	errorBackoff   time.Duration

	processed atomic.Int64
	failed    atomic.Int64

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	Subscriber     driven.EventSubscriber
	Availability   driving.AvailabilityService
	Scheduler      driving.Scheduler // Optional: periodic resync
	Logger         *slog.Logger
	Concurrency    int           // Number of concurrent consumers in the group
	ReceiveTimeout int           // Seconds to wait for a record before checking again
	ErrorBackoff   time.Duration // Pause after a failed receive (default: 1s)
}

// NewWorker creates a new booking-event worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	receiveTimeout := cfg.ReceiveTimeout
	if receiveTimeout <= 0 {
		receiveTimeout = 5
	}

	errorBackoff := cfg.ErrorBackoff
	if errorBackoff <= 0 {
		errorBackoff = time.Second
	}

	return &Worker{
		subscriber:     cfg.Subscriber,
		availability:   cfg.Availability,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		concurrency:    concurrency,
		receiveTimeout: receiveTimeout,
		errorBackoff:   errorBackoff,
	}
}

// Start launches the consumer goroutines and the scheduler.
// It returns immediately; the consumers run until Stop is called or ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"receive_timeout", w.receiveTimeout,
	)

	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(consumerID int) {
			defer wg.Done()
			w.consumeLoop(ctx, consumerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop signals the consumers, stops the scheduler, and waits for in-flight records.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)
}

// Wait blocks until every consumer has exited.
func (w *Worker) Wait() {
	w.mu.RLock()
	done := w.doneCh
	w.mu.RUnlock()
	if done != nil {
		<-done
	}
}

// consumeLoop pulls records until stopped.
func (w *Worker) consumeLoop(ctx context.Context, consumerID int) {
	logger := w.logger.With("consumer_id", consumerID)
	logger.Debug("consumer started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("consumer context cancelled")
			return
		case <-w.stopCh:
			logger.Debug("consumer stop signal received")
			return
		default:
		}

		msg, err := w.subscriber.Receive(ctx, w.receiveTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to receive booking event", "error", err)
			w.pause(ctx)
			continue
		}

		if msg == nil {
			continue
		}

		w.handle(ctx, msg, logger)
	}
}

// handle applies one record, acking on success and nacking on a transient failure.
// The reconciler drops malformed and unknown events itself, so they are acked here.
func (w *Worker) handle(ctx context.Context, msg *domain.Message, logger *slog.Logger) {
	logger = logger.With("message_id", msg.ID, "key", msg.Key, "attempts", msg.Attempts)

	start := time.Now()
	err := w.availability.HandleMessage(ctx, msg.Payload)
	duration := time.Since(start)

	if err != nil {
		w.failed.Add(1)
		logger.Warn("booking event failed, returning for redelivery",
			"duration", duration,
			"error", err,
		)
		if nackErr := w.subscriber.Nack(ctx, msg, err.Error()); nackErr != nil {
			logger.Error("failed to nack booking event", "nack_error", nackErr)
		}
		return
	}

	w.processed.Add(1)
	logger.Debug("booking event handled", "duration", duration)

	if ackErr := w.subscriber.Ack(ctx, msg); ackErr != nil {
		logger.Error("failed to ack booking event", "ack_error", ackErr)
	}
}

func (w *Worker) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-time.After(w.errorBackoff):
	}
}

// Health reports worker status.
type Health struct {
	Running   bool   `json:"running"`
	BusHealth bool   `json:"bus_health"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running:   running,
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
	}

	if err := w.subscriber.Ping(ctx); err != nil {
		health.BusHealth = false
		health.Error = err.Error()
	} else {
		health.BusHealth = true
	}

	return health
}
