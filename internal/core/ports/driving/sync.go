package driving

import (
	"context"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// SyncService propagates relational writes into the search index and
// announces flight changes on the event bus
type SyncService interface {
	// SyncFlight indexes one flight, then publishes a flight-updated event
	SyncFlight(ctx context.Context, flight *domain.Flight) error

	// SyncFlights indexes many flights and publishes events for those written.
	// Returns domain.ErrPartialBatch alongside the result when any item failed.
	SyncFlights(ctx context.Context, flights []*domain.Flight) (*domain.BatchResult, error)

	// SyncStop indexes one stop
	SyncStop(ctx context.Context, stop *domain.Stop) error

	// SyncStops indexes many stops
	SyncStops(ctx context.Context, stops []*domain.Stop) (*domain.BatchResult, error)

	// SyncSeat indexes one seat
	SyncSeat(ctx context.Context, seat *domain.Seat) error

	// SyncSeats indexes many seats
	SyncSeats(ctx context.Context, seats []*domain.Seat) (*domain.BatchResult, error)

	// RemoveFlight deletes a flight with its stop and seat documents
	RemoveFlight(ctx context.Context, flightID string) error

	// ResyncAll rebuilds the index from the relational store
	ResyncAll(ctx context.Context) (*domain.ResyncReport, error)
}

// Scheduler runs periodic full resyncs
type Scheduler interface {
	// Start begins the resync loop
	Start(ctx context.Context) error

	// Stop stops the resync loop and waits for a running cycle to finish
	Stop()

	// TriggerNow runs one lock-guarded resync cycle immediately
	TriggerNow(ctx context.Context) (*domain.ResyncReport, error)

	// LastReport returns the most recent completed cycle's report, or nil
	LastReport() *domain.ResyncReport
}
