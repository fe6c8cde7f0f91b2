package driving

import (
	"context"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// SeatService reads seat documents from the search index
type SeatService interface {
	// GetSeat returns one seat document. Returns domain.ErrNotFound if absent.
	GetSeat(ctx context.Context, seatID string) (*domain.SeatDocument, error)

	// SeatsForFlight returns every seat of the flight and a seat map per stop.
	// Returns domain.ErrNotFound if the flight is not indexed.
	SeatsForFlight(ctx context.Context, flightID string) (*domain.SeatResponse, error)

	// AvailableSeatsByClass returns the flight's available seats of one cabin class
	AvailableSeatsByClass(ctx context.Context, flightID string, class domain.SeatType) ([]*domain.SeatDocument, error)
}
