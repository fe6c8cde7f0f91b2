package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// MockCatalogStore is a mock implementation of CatalogStore for testing
type MockCatalogStore struct {
	mu       sync.RWMutex
	airlines map[string]*domain.Airline
	airports map[string]*domain.Airport
	flights  map[string]*domain.Flight

	// ListErr, when set, is returned by ListFlights
	ListErr error
}

// NewMockCatalogStore creates a new MockCatalogStore
func NewMockCatalogStore() *MockCatalogStore {
	return &MockCatalogStore{
		airlines: make(map[string]*domain.Airline),
		airports: make(map[string]*domain.Airport),
		flights:  make(map[string]*domain.Flight),
	}
}

func (m *MockCatalogStore) GetAirline(ctx context.Context, code string) (*domain.Airline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.airlines[code]; ok {
		return a, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockCatalogStore) SaveAirline(ctx context.Context, airline *domain.Airline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.airlines[airline.AirlineCode] = airline
	return nil
}

func (m *MockCatalogStore) GetAirport(ctx context.Context, code string) (*domain.Airport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.airports[code]; ok {
		return a, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockCatalogStore) SaveAirport(ctx context.Context, airport *domain.Airport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.airports[airport.Code] = airport
	return nil
}

func (m *MockCatalogStore) GetFlight(ctx context.Context, flightID string) (*domain.Flight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if f, ok := m.flights[flightID]; ok {
		return f, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockCatalogStore) SaveFlight(ctx context.Context, flight *domain.Flight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flights[flight.FlightID] = flight
	return nil
}

func (m *MockCatalogStore) DeleteFlight(ctx context.Context, flightID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flights[flightID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.flights, flightID)
	return nil
}

func (m *MockCatalogStore) ListFlights(ctx context.Context, limit, offset int) ([]*domain.Flight, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.flights))
	for id := range m.flights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset >= len(ids) {
		return []*domain.Flight{}, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	out := make([]*domain.Flight, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, m.flights[id])
	}
	return out, nil
}

func (m *MockCatalogStore) CountFlights(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.flights), nil
}
