package driven

import (
	"context"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// SearchIndex is the denormalized document store (Vespa) holding flight,
// stop, and seat documents.
type SearchIndex interface {
	// Upsert creates or replaces a document by its id
	Upsert(ctx context.Context, doc domain.Document) error

	// BulkUpsert writes many documents without atomicity.
	// The returned map holds an error per document id that failed; a nil or
	// empty map means every document was written.
	BulkUpsert(ctx context.Context, docs []domain.Document) map[string]error

	// Get decodes the document of kind with id into dst.
	// Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, kind domain.IndexKind, id string, dst any) error

	// Exists reports whether a document is present
	Exists(ctx context.Context, kind domain.IndexKind, id string) (bool, error)

	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, kind domain.IndexKind, id string) error

	// SearchFlights evaluates a query against flight documents
	SearchFlights(ctx context.Context, query *domain.Query) (*domain.FlightPage, error)

	// SearchSeats returns the seat documents matching every set field of query,
	// at most domain.MaxSeatHits of them
	SearchSeats(ctx context.Context, query domain.SeatQuery) ([]*domain.SeatDocument, error)

	// SetSeatAvailability atomically assigns the available flag of one seat document.
	// found is false when no seat document has that id; nothing is written then.
	SetSeatAvailability(ctx context.Context, seatID string, available bool) (found bool, err error)

	// HealthCheck verifies the index is reachable
	HealthCheck(ctx context.Context) error
}

// IndexInitializer prepares the index for every registered document kind
type IndexInitializer interface {
	// Initialize deploys the schemas for the given mappings
	Initialize(ctx context.Context, mappings []domain.IndexMapping) error
}
