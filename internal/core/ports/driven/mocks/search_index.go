package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// MockSearchIndex is an in-memory implementation of SearchIndex for testing.
// Documents are held as JSON so reads see the same shape the real index returns.
type MockSearchIndex struct {
	mu   sync.RWMutex
	docs map[domain.IndexKind]map[string][]byte

	// Custom behavior hooks (optional)
	UpsertFn       func(doc domain.Document) error
	SearchFn       func(ctx context.Context, query *domain.Query) (*domain.FlightPage, error)
	SearchErrFn    func(query *domain.Query) error
	SetSeatFn      func(seatID string, available bool) (bool, error)
	SeatSearchErr  error
	HealthCheckFn  func() error
	FailIDs        map[string]error
	SearchCalls    int
	SetSeatCalls   int
	UpsertedCounts map[string]int
}

// NewMockSearchIndex creates a new MockSearchIndex
func NewMockSearchIndex() *MockSearchIndex {
	return &MockSearchIndex{
		docs:           make(map[domain.IndexKind]map[string][]byte),
		FailIDs:        make(map[string]error),
		UpsertedCounts: make(map[string]int),
	}
}

func (m *MockSearchIndex) Upsert(ctx context.Context, doc domain.Document) error {
	if m.UpsertFn != nil {
		if err := m.UpsertFn(doc); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(doc)
}

func (m *MockSearchIndex) BulkUpsert(ctx context.Context, docs []domain.Document) map[string]error {
	m.mu.Lock()
	defer m.mu.Unlock()

	errs := make(map[string]error)
	for _, doc := range docs {
		if err, ok := m.FailIDs[doc.DocumentID()]; ok {
			errs[doc.DocumentID()] = err
			continue
		}
		if err := m.put(doc); err != nil {
			errs[doc.DocumentID()] = err
		}
	}
	return errs
}

func (m *MockSearchIndex) put(doc domain.Document) error {
	if _, err := domain.ResolveIndex(doc.Kind()); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if m.docs[doc.Kind()] == nil {
		m.docs[doc.Kind()] = make(map[string][]byte)
	}
	m.docs[doc.Kind()][doc.DocumentID()] = data
	m.UpsertedCounts[doc.DocumentID()]++
	return nil
}

func (m *MockSearchIndex) Get(ctx context.Context, kind domain.IndexKind, id string, dst any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.docs[kind][id]
	if !ok {
		return domain.ErrNotFound
	}
	return json.Unmarshal(data, dst)
}

func (m *MockSearchIndex) Exists(ctx context.Context, kind domain.IndexKind, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.docs[kind][id]
	return ok, nil
}

func (m *MockSearchIndex) Delete(ctx context.Context, kind domain.IndexKind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[kind], id)
	return nil
}

func (m *MockSearchIndex) SearchFlights(ctx context.Context, query *domain.Query) (*domain.FlightPage, error) {
	m.mu.Lock()
	m.SearchCalls++
	m.mu.Unlock()

	if m.SearchFn != nil {
		return m.SearchFn(ctx, query)
	}
	if m.SearchErrFn != nil {
		if err := m.SearchErrFn(query); err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []*domain.FlightDocument
	for _, data := range m.docs[domain.IndexKindFlight] {
		var doc domain.FlightDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if matchesAll(&doc, query.Predicates) {
			matches = append(matches, &doc)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		for _, s := range query.Sort {
			c := compare(matches[i].Field(s.Field), matches[j].Field(s.Field))
			if c == 0 {
				continue
			}
			if s.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})

	page := domain.EmptyFlightPage(query.Page)
	page.TotalCount = len(matches)
	start := query.Page.Offset()
	if start >= len(matches) {
		return page, nil
	}
	end := start + query.Page.Size
	if end > len(matches) {
		end = len(matches)
	}
	page.Flights = matches[start:end]
	return page, nil
}

func (m *MockSearchIndex) SearchSeats(ctx context.Context, query domain.SeatQuery) ([]*domain.SeatDocument, error) {
	if m.SeatSearchErr != nil {
		return nil, m.SeatSearchErr
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.docs[domain.IndexKindSeat]))
	for id := range m.docs[domain.IndexKindSeat] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	seats := []*domain.SeatDocument{}
	for _, id := range ids {
		var doc domain.SeatDocument
		if err := json.Unmarshal(m.docs[domain.IndexKindSeat][id], &doc); err != nil {
			return nil, err
		}
		switch {
		case query.FlightID != "" && doc.FlightID != query.FlightID,
			query.StopID != "" && doc.StopID != query.StopID,
			query.Type != "" && doc.Type != query.Type,
			query.Available != nil && doc.Available != *query.Available:
			continue
		}
		seats = append(seats, &doc)
		if len(seats) == domain.MaxSeatHits {
			break
		}
	}
	return seats, nil
}

func (m *MockSearchIndex) SetSeatAvailability(ctx context.Context, seatID string, available bool) (bool, error) {
	m.mu.Lock()
	m.SetSeatCalls++
	m.mu.Unlock()

	if m.SetSeatFn != nil {
		return m.SetSeatFn(seatID, available)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.docs[domain.IndexKindSeat][seatID]
	if !ok {
		return false, nil
	}
	var doc domain.SeatDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, err
	}
	doc.Available = available
	data, err := json.Marshal(&doc)
	if err != nil {
		return false, err
	}
	m.docs[domain.IndexKindSeat][seatID] = data
	return true, nil
}

func (m *MockSearchIndex) HealthCheck(ctx context.Context) error {
	if m.HealthCheckFn != nil {
		return m.HealthCheckFn()
	}
	return nil
}

// Count returns the number of documents of a kind (for test assertions)
func (m *MockSearchIndex) Count(kind domain.IndexKind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs[kind])
}

// Seat returns a stored seat document (for test assertions)
func (m *MockSearchIndex) Seat(seatID string) (*domain.SeatDocument, error) {
	var doc domain.SeatDocument
	if err := m.Get(context.Background(), domain.IndexKindSeat, seatID, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Raw returns the stored JSON of a document (for test assertions)
func (m *MockSearchIndex) Raw(kind domain.IndexKind, id string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[kind][id]
	return data, ok
}

func matchesAll(doc *domain.FlightDocument, predicates []domain.Predicate) bool {
	for _, p := range predicates {
		value := doc.Field(p.Field)
		switch p.Op {
		case domain.OpEquals:
			if compare(value, p.Value) != 0 {
				return false
			}
		case domain.OpLessOrEqual:
			if compare(value, p.Value) > 0 {
				return false
			}
		case domain.OpIn:
			found := false
			for _, v := range p.Values {
				if compare(value, v) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compare orders two field values of the same kind
func compare(a, b any) int {
	switch av := a.(type) {
	case string:
		bv := fmt.Sprint(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case int:
		bv, ok := b.(int)
		if !ok {
			return -1
		}
		return av - bv
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return -1
		}
		return av.Compare(bv)
	}
	return -1
}

// ErrMockUnavailable simulates a transient index failure
var ErrMockUnavailable = fmt.Errorf("mock index: %w", domain.ErrServiceUnavailable)
