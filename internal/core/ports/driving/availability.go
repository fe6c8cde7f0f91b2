package driving

import (
	"context"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// AvailabilityService applies booking events to seat availability in the search index
type AvailabilityService interface {
	// Apply drives every seat named by the event to the event's target availability
	Apply(ctx context.Context, event domain.BookingEvent) (*domain.ReconcileResult, error)

	// HandleMessage decodes and applies one booking-events payload.
	// Malformed and unknown events are dropped and return nil.
	HandleMessage(ctx context.Context, payload []byte) error

	// Stats returns running counters
	Stats() domain.ReconcileStats
}
