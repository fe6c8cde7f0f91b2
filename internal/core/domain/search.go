package domain

import "time"

// Paging defaults for flight searches
const (
	DefaultPageSize         = 20
	MaxPageSize             = 100
	DefaultFlexibleDays     = 3
	DefaultFlexiblePageSize = 5
)

// FlightSearchCriteria is a structured flight search request
type FlightSearchCriteria struct {
	Origin            string                `json:"origin"`
	Destination       string                `json:"destination"`
	DepartureDate     string                `json:"departure_date"` // DateLayout
	ReturnDate        *string               `json:"return_date,omitempty"`
	Passengers        map[PassengerType]int `json:"passengers,omitempty"`
	PreferredAirlines []string              `json:"preferred_airlines,omitempty"`
	MaxStops          *int                  `json:"max_stops,omitempty"`
	CabinClass        *SeatType             `json:"cabin_class,omitempty"`
	FlexibleDates     bool                  `json:"flexible_dates"`
	DirectFlightsOnly bool                  `json:"direct_flights_only"`
	Page              int                   `json:"page"`
	Size              int                   `json:"size"`
}

// PredicateOp is the comparison a predicate applies
type PredicateOp string

const (
	OpEquals      PredicateOp = "eq"
	OpIn          PredicateOp = "in"
	OpLessOrEqual PredicateOp = "lte"
)

// Predicate is one index-level condition. All predicates of a query are ANDed;
// OpIn matches when the field equals any of Values.
type Predicate struct {
	Field  string      `json:"field"`
	Op     PredicateOp `json:"op"`
	Value  any         `json:"value,omitempty"`
	Values []string    `json:"values,omitempty"`
}

// SortField is one sort key
type SortField struct {
	Field     string `json:"field"`
	Ascending bool   `json:"ascending"`
}

// PageRequest is a zero-based page request
type PageRequest struct {
	Number int `json:"number"`
	Size   int `json:"size"`
}

// Offset returns the index of the first hit on this page
func (p PageRequest) Offset() int {
	return p.Number * p.Size
}

// Query is a predicate set with sort and paging, ready for the search index
type Query struct {
	Predicates []Predicate `json:"predicates"`
	Sort       []SortField `json:"sort"`
	Page       PageRequest `json:"page"`
}

// FlightPage is one page of flight documents
type FlightPage struct {
	Flights    []*FlightDocument `json:"flights"`
	TotalCount int               `json:"total_count"`
	PageNumber int               `json:"page_number"`
	PageSize   int               `json:"page_size"`
}

// EmptyFlightPage returns a page with no hits for the given request
func EmptyFlightPage(page PageRequest) *FlightPage {
	return &FlightPage{
		Flights:    []*FlightDocument{},
		PageNumber: page.Number,
		PageSize:   page.Size,
	}
}

// SearchResponse holds the outbound page and, for round trips, the return page
type SearchResponse struct {
	Outbound *FlightPage   `json:"outbound"`
	Return   *FlightPage   `json:"return,omitempty"`
	Took     time.Duration `json:"took"`
}
