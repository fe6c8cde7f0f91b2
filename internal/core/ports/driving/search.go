package driving

import (
	"context"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// SearchService answers structured flight searches
type SearchService interface {
	// Search returns the outbound page and, when a return date is set, the return page
	Search(ctx context.Context, criteria domain.FlightSearchCriteria) (*domain.SearchResponse, error)

	// SearchFlexibleDates searches the departure date and the three days either side.
	// The result always has seven entries keyed by date; a day that failed or
	// timed out maps to an empty page.
	SearchFlexibleDates(ctx context.Context, criteria domain.FlightSearchCriteria) (map[string]*domain.FlightPage, error)
}
