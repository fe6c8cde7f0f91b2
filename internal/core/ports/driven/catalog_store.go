package driven

import (
	"context"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// CatalogStore is the relational system of record (PostgreSQL)
type CatalogStore interface {
	// GetAirline retrieves an airline by code
	GetAirline(ctx context.Context, code string) (*domain.Airline, error)

	// SaveAirline creates or updates an airline
	SaveAirline(ctx context.Context, airline *domain.Airline) error

	// GetAirport retrieves an airport by code
	GetAirport(ctx context.Context, code string) (*domain.Airport, error)

	// SaveAirport creates or updates an airport
	SaveAirport(ctx context.Context, airport *domain.Airport) error

	// GetFlight retrieves a flight with its stops and seats
	GetFlight(ctx context.Context, flightID string) (*domain.Flight, error)

	// SaveFlight creates or updates a flight with its stops and seats in one transaction
	SaveFlight(ctx context.Context, flight *domain.Flight) error

	// DeleteFlight deletes a flight; stops and seats cascade
	DeleteFlight(ctx context.Context, flightID string) error

	// ListFlights returns flights with stops and seats, ordered by id
	ListFlights(ctx context.Context, limit, offset int) ([]*domain.Flight, error)

	// CountFlights returns the number of flights
	CountFlights(ctx context.Context) (int, error)
}
