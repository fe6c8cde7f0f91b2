package domain

import (
	"fmt"
	"sort"
)

// IndexKind tags each document type held in the search index
type IndexKind string

const (
	IndexKindFlight IndexKind = "flight"
	IndexKindStop   IndexKind = "stop"
	IndexKindSeat   IndexKind = "seat"
)

// IndexMapping describes how one document kind is laid out in the search index
type IndexMapping struct {
	Kind IndexKind

	// DocumentType is the schema/document type name in the index
	DocumentType string

	// IDField is the document field holding the entity id
	IDField string

	// SchemaFile is the embedded schema definition for this kind
	SchemaFile string
}

// indexRegistry is the static registration table for every index kind.
// Adding a document type means adding an entry here.
var indexRegistry = map[IndexKind]IndexMapping{
	IndexKindFlight: {
		Kind:         IndexKindFlight,
		DocumentType: "flight",
		IDField:      "flight_id",
		SchemaFile:   "schemas/flight.sd",
	},
	IndexKindStop: {
		Kind:         IndexKindStop,
		DocumentType: "stop",
		IDField:      "stop_id",
		SchemaFile:   "schemas/stop.sd",
	},
	IndexKindSeat: {
		Kind:         IndexKindSeat,
		DocumentType: "seat",
		IDField:      "seat_id",
		SchemaFile:   "schemas/seat.sd",
	},
}

// ResolveIndex returns the mapping registered for kind.
// Unregistered kinds fail with ErrUnknownIndexKind.
func ResolveIndex(kind IndexKind) (IndexMapping, error) {
	m, ok := indexRegistry[kind]
	if !ok {
		return IndexMapping{}, fmt.Errorf("%w: %q", ErrUnknownIndexKind, kind)
	}
	return m, nil
}

// ResolveIndexes resolves every kind up front, failing on the first unregistered one.
// Used at startup so a missing mapping stops the process instead of failing a later write.
func ResolveIndexes(kinds ...IndexKind) ([]IndexMapping, error) {
	mappings := make([]IndexMapping, 0, len(kinds))
	for _, kind := range kinds {
		m, err := ResolveIndex(kind)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// IndexKinds returns all registered kinds in a stable order
func IndexKinds() []IndexKind {
	kinds := make([]IndexKind, 0, len(indexRegistry))
	for kind := range indexRegistry {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
