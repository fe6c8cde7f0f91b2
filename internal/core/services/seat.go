package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driving"
)

// Ensure SeatService implements driving.SeatService
var _ driving.SeatService = (*SeatService)(nil)

// SeatService serves seat reads from the search index, so availability
// reflects booking events applied since the last resync.
type SeatService struct {
	index  driven.SearchIndex
	logger *slog.Logger
}

// SeatServiceConfig holds dependencies for SeatService.
type SeatServiceConfig struct {
	SearchIndex driven.SearchIndex
	Logger      *slog.Logger
}

// NewSeatService creates a new SeatService
func NewSeatService(cfg SeatServiceConfig) *SeatService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SeatService{index: cfg.SearchIndex, logger: logger}
}

func (s *SeatService) GetSeat(ctx context.Context, seatID string) (*domain.SeatDocument, error) {
	if seatID == "" {
		return nil, fmt.Errorf("%w: seat id is required", domain.ErrInvalidInput)
	}
	var seat domain.SeatDocument
	if err := s.index.Get(ctx, domain.IndexKindSeat, seatID, &seat); err != nil {
		return nil, fmt.Errorf("get seat %s: %w", seatID, err)
	}
	return &seat, nil
}

func (s *SeatService) SeatsForFlight(ctx context.Context, flightID string) (*domain.SeatResponse, error) {
	if err := s.requireFlight(ctx, flightID); err != nil {
		return nil, err
	}

	seats, err := s.index.SearchSeats(ctx, domain.SeatQuery{FlightID: flightID})
	if err != nil {
		return nil, fmt.Errorf("seats for flight %s: %w", flightID, err)
	}
	if len(seats) == domain.MaxSeatHits {
		s.logger.Warn("seat listing truncated", "flight_id", flightID, "limit", domain.MaxSeatHits)
	}

	domain.SortSeats(seats)
	return &domain.SeatResponse{
		FlightID: flightID,
		Seats:    seats,
		SeatMaps: domain.BuildSeatMaps(seats),
	}, nil
}

func (s *SeatService) AvailableSeatsByClass(ctx context.Context, flightID string, class domain.SeatType) ([]*domain.SeatDocument, error) {
	if !class.IsValid() {
		return nil, fmt.Errorf("%w: unknown cabin class %q", domain.ErrInvalidInput, class)
	}
	if err := s.requireFlight(ctx, flightID); err != nil {
		return nil, err
	}

	available := true
	seats, err := s.index.SearchSeats(ctx, domain.SeatQuery{
		FlightID:  flightID,
		Type:      class,
		Available: &available,
	})
	if err != nil {
		return nil, fmt.Errorf("available %s seats for flight %s: %w", class, flightID, err)
	}
	domain.SortSeats(seats)
	return seats, nil
}

func (s *SeatService) requireFlight(ctx context.Context, flightID string) error {
	if flightID == "" {
		return fmt.Errorf("%w: flight id is required", domain.ErrInvalidInput)
	}
	ok, err := s.index.Exists(ctx, domain.IndexKindFlight, flightID)
	if err != nil {
		return fmt.Errorf("check flight %s: %w", flightID, err)
	}
	if !ok {
		return fmt.Errorf("flight %s: %w", flightID, domain.ErrNotFound)
	}
	return nil
}
