package driven

import (
	"context"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// SearchCache caches flight pages by query
type SearchCache interface {
	Get(ctx context.Context, query *domain.Query) (*domain.FlightPage, bool)
	Set(ctx context.Context, query *domain.Query, page *domain.FlightPage) error
}
