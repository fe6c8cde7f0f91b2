package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driving"
)

// Ensure AvailabilityService implements driving.AvailabilityService
var _ driving.AvailabilityService = (*AvailabilityService)(nil)

// AvailabilityService applies booking events to seat documents in the search index.
// It never writes the relational store; the next full resync overwrites
// whatever it set with the stored value.
type AvailabilityService struct {
	index driven.SearchIndex
	seats *keyedMutex

	eventsApplied atomic.Int64
	eventsDropped atomic.Int64
	seatsUpdated  atomic.Int64
	seatsSkipped  atomic.Int64
	seatsFailed   atomic.Int64

	logger *slog.Logger
}

// AvailabilityServiceConfig holds dependencies for AvailabilityService.
type AvailabilityServiceConfig struct {
	SearchIndex driven.SearchIndex
	Logger      *slog.Logger
}

// NewAvailabilityService creates a new AvailabilityService
func NewAvailabilityService(cfg AvailabilityServiceConfig) *AvailabilityService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityService{
		index:  cfg.SearchIndex,
		seats:  newKeyedMutex(),
		logger: logger,
	}
}

// Apply sets every seat named by the event to the event's target availability.
// Each seat is an independent update: a seat missing from the index is skipped,
// and one seat's failure does not stop the others. When any update failed the
// returned error wraps domain.ErrServiceUnavailable; reapplying is safe because
// the target is absolute.
func (s *AvailabilityService) Apply(ctx context.Context, event domain.BookingEvent) (*domain.ReconcileResult, error) {
	available, ok := domain.AvailabilityTarget(event)
	if !ok {
		s.eventsDropped.Add(1)
		s.logger.Warn("dropping booking event with unknown type",
			"event_type", event.EventType(), "seats", len(event.SeatIDs()))
		return &domain.ReconcileResult{EventType: event.EventType(), Updated: []string{}}, nil
	}

	result := &domain.ReconcileResult{
		EventType: event.EventType(),
		Available: available,
		Updated:   []string{},
	}

	for _, seatID := range uniqueSeatIDs(event.SeatIDs()) {
		found, err := s.setSeat(ctx, seatID, available)
		switch {
		case err != nil:
			s.seatsFailed.Add(1)
			s.logger.Error("failed to update seat availability",
				"seat_id", seatID, "available", available, "error", err)
			result.Failed = append(result.Failed, domain.BatchFailure{
				ID:    seatID,
				Stage: domain.BatchStageIndex,
				Error: err.Error(),
			})
		case !found:
			s.seatsSkipped.Add(1)
			s.logger.Debug("seat not in index, skipping", "seat_id", seatID)
			result.Skipped = append(result.Skipped, seatID)
		default:
			s.seatsUpdated.Add(1)
			result.Updated = append(result.Updated, seatID)
		}
	}

	s.eventsApplied.Add(1)
	s.logger.Info("booking event applied",
		"event_type", result.EventType,
		"available", available,
		"updated", len(result.Updated),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
	)

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("%d of %d seat updates failed: %w",
			len(result.Failed), len(result.Updated)+len(result.Skipped)+len(result.Failed),
			domain.ErrServiceUnavailable)
	}
	return result, nil
}

// HandleMessage decodes a booking-events payload and applies it.
// Malformed events are logged and dropped rather than returned, so a bad
// record never blocks the consumer.
func (s *AvailabilityService) HandleMessage(ctx context.Context, payload []byte) error {
	event, err := domain.ParseBookingEvent(payload)
	if err != nil {
		s.eventsDropped.Add(1)
		s.logger.Warn("dropping malformed booking event", "error", err, "size", len(payload))
		return nil
	}

	_, err = s.Apply(ctx, event)
	return err
}

// Stats returns running counters
func (s *AvailabilityService) Stats() domain.ReconcileStats {
	return domain.ReconcileStats{
		EventsApplied: s.eventsApplied.Load(),
		EventsDropped: s.eventsDropped.Load(),
		SeatsUpdated:  s.seatsUpdated.Load(),
		SeatsSkipped:  s.seatsSkipped.Load(),
		SeatsFailed:   s.seatsFailed.Load(),
	}
}

// setSeat serializes updates to one seat within this process
func (s *AvailabilityService) setSeat(ctx context.Context, seatID string, available bool) (bool, error) {
	unlock := s.seats.Lock(seatID)
	defer unlock()

	found, err := s.index.SetSeatAvailability(ctx, seatID, available)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return found, err
}

func uniqueSeatIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is held and returns its unlock func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
