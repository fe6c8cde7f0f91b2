package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// MockSearchCache is an in-memory SearchCache keyed by the query's JSON form
type MockSearchCache struct {
	mu    sync.Mutex
	pages map[string]*domain.FlightPage
	Hits  int
}

// NewMockSearchCache creates a new MockSearchCache
func NewMockSearchCache() *MockSearchCache {
	return &MockSearchCache{pages: make(map[string]*domain.FlightPage)}
}

func (m *MockSearchCache) Get(ctx context.Context, query *domain.Query) (*domain.FlightPage, bool) {
	key, _ := json.Marshal(query)
	m.mu.Lock()
	defer m.mu.Unlock()
	page, ok := m.pages[string(key)]
	if ok {
		m.Hits++
	}
	return page, ok
}

func (m *MockSearchCache) Set(ctx context.Context, query *domain.Query, page *domain.FlightPage) error {
	key, _ := json.Marshal(query)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[string(key)] = page
	return nil
}
