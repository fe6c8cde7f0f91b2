package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driving"
)

// Ensure SearchService implements driving.SearchService
var _ driving.SearchService = (*SearchService)(nil)

// Flexible-date search defaults
const (
	DefaultFlexibleConcurrency = 3
	DefaultFlexibleTimeout     = 2 * time.Second
	DefaultIndexRateLimit      = 50.0
)

// SearchService executes flight searches against the search index
type SearchService struct {
	index               driven.SearchIndex
	cache               driven.SearchCache
	limiter             *rate.Limiter
	flexibleDays        int
	flexiblePageSize    int
	flexibleConcurrency int
	flexibleTimeout     time.Duration
	logger              *slog.Logger
}

// SearchServiceConfig holds dependencies for SearchService.
type SearchServiceConfig struct {
	SearchIndex driven.SearchIndex
	Cache       driven.SearchCache // Optional

	// IndexRateLimit caps flexible-date queries per second against the index
	IndexRateLimit      float64
	FlexiblePageSize    int
	FlexibleConcurrency int
	FlexibleTimeout     time.Duration
	Logger              *slog.Logger
}

// NewSearchService creates a new SearchService
func NewSearchService(cfg SearchServiceConfig) *SearchService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pageSize := cfg.FlexiblePageSize
	if pageSize <= 0 {
		pageSize = domain.DefaultFlexiblePageSize
	}
	concurrency := cfg.FlexibleConcurrency
	if concurrency <= 0 {
		concurrency = DefaultFlexibleConcurrency
	}
	timeout := cfg.FlexibleTimeout
	if timeout <= 0 {
		timeout = DefaultFlexibleTimeout
	}
	rps := cfg.IndexRateLimit
	if rps <= 0 {
		rps = DefaultIndexRateLimit
	}

	return &SearchService{
		index:               cfg.SearchIndex,
		cache:               cfg.Cache,
		limiter:             rate.NewLimiter(rate.Limit(rps), 2*domain.DefaultFlexibleDays+1),
		flexibleDays:        domain.DefaultFlexibleDays,
		flexiblePageSize:    pageSize,
		flexibleConcurrency: concurrency,
		flexibleTimeout:     timeout,
		logger:              logger,
	}
}

// Search returns the outbound page, plus the return page for round trips.
// The return leg is an independent query with origin and destination swapped.
func (s *SearchService) Search(ctx context.Context, criteria domain.FlightSearchCriteria) (*domain.SearchResponse, error) {
	start := time.Now()

	outbound, err := s.searchOne(ctx, criteria)
	if err != nil {
		return nil, err
	}
	resp := &domain.SearchResponse{Outbound: outbound}

	if ret, ok := ReturnCriteria(criteria); ok {
		page, err := s.searchOne(ctx, ret)
		if err != nil {
			return nil, fmt.Errorf("return search: %w", err)
		}
		resp.Return = page
	}

	resp.Took = time.Since(start)
	return resp, nil
}

// SearchFlexibleDates runs the same search for each day from D-3 to D+3.
// Days are queried concurrently with bounded parallelism, each under its own
// timeout. A day that fails or times out maps to an empty page.
func (s *SearchService) SearchFlexibleDates(ctx context.Context, criteria domain.FlightSearchCriteria) (map[string]*domain.FlightPage, error) {
	// Reject bad criteria once rather than seven times
	if _, err := BuildFlightQuery(criteria); err != nil {
		return nil, err
	}
	center, err := domain.ParseDate(criteria.DepartureDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	emptyPage := domain.PageRequest{Number: 0, Size: s.flexiblePageSize}
	results := make(map[string]*domain.FlightPage, 2*s.flexibleDays+1)
	var mu sync.Mutex

	// Every day has a placeholder before any goroutine writes to results
	days := make([]string, 0, 2*s.flexibleDays+1)
	for offset := -s.flexibleDays; offset <= s.flexibleDays; offset++ {
		day := domain.FormatDate(center.AddDate(0, 0, offset))
		days = append(days, day)
		results[day] = domain.EmptyFlightPage(emptyPage)
	}

	var g errgroup.Group
	g.SetLimit(s.flexibleConcurrency)

	for _, day := range days {
		dayCriteria := criteria
		dayCriteria.DepartureDate = day
		dayCriteria.ReturnDate = nil
		dayCriteria.Page = 0
		dayCriteria.Size = s.flexiblePageSize

		g.Go(func() error {
			page, err := s.searchDay(ctx, dayCriteria)
			if err != nil {
				s.logger.Warn("flexible date search degraded",
					"date", day, "origin", criteria.Origin, "destination", criteria.Destination, "error", err)
				return nil
			}
			mu.Lock()
			results[day] = page
			mu.Unlock()
			return nil
		})
	}

	// Goroutines never return errors; failures degrade to empty days
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *SearchService) searchDay(ctx context.Context, criteria domain.FlightSearchCriteria) (*domain.FlightPage, error) {
	dayCtx, cancel := context.WithTimeout(ctx, s.flexibleTimeout)
	defer cancel()

	if err := s.limiter.Wait(dayCtx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return s.searchOne(dayCtx, criteria)
}

func (s *SearchService) searchOne(ctx context.Context, criteria domain.FlightSearchCriteria) (*domain.FlightPage, error) {
	query, err := BuildFlightQuery(criteria)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if page, ok := s.cache.Get(ctx, query); ok {
			return page, nil
		}
	}

	page, err := s.index.SearchFlights(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search flights %s-%s on %s: %w",
			criteria.Origin, criteria.Destination, criteria.DepartureDate, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, query, page); err != nil {
			s.logger.Warn("failed to cache search results", "error", err)
		}
	}
	return page, nil
}
