package domain

import "time"

// Document is anything stored in the search index
type Document interface {
	DocumentID() string
	Kind() IndexKind
}

// Searchable field names of a flight document.
// These are the only fields query predicates and sort keys may reference.
const (
	FieldFlightID        = "flight_id"
	FieldOrigin          = "origin"
	FieldDestination     = "destination"
	FieldDate            = "date"
	FieldAirlineCode     = "airline_code"
	FieldStopCount       = "stop_count"
	FieldFlightStartTime = "flight_start_time"
	FieldStatus          = "status"
)

// FlightDocument is the denormalized, index-side projection of a Flight.
// It embeds stops and their seats and carries a precomputed stop count
// so stop filters run as index predicates.
type FlightDocument struct {
	Flight
	StopCount int       `json:"stop_count"`
	IndexedAt time.Time `json:"indexed_at"`
}

// NewFlightDocument projects a flight into its search document.
// Stops are copied and ordered by sequence; the input is not modified.
func NewFlightDocument(f *Flight, indexedAt time.Time) *FlightDocument {
	projected := *f
	projected.Stops = make([]Stop, len(f.Stops))
	copy(projected.Stops, f.Stops)
	projected.SortStops()

	return &FlightDocument{
		Flight:    projected,
		StopCount: len(projected.Stops),
		IndexedAt: indexedAt,
	}
}

func (d *FlightDocument) DocumentID() string { return d.FlightID }
func (d *FlightDocument) Kind() IndexKind { return IndexKindFlight }

// Field returns the value of a searchable field, or nil if the field is unknown
func (d *FlightDocument) Field(name string) any {
	switch name {
	case FieldFlightID:
		return d.FlightID
	case FieldOrigin:
		return d.Origin
	case FieldDestination:
		return d.Destination
	case FieldDate:
		return d.Date
	case FieldAirlineCode:
		return d.AirlineCode
	case FieldStopCount:
		return d.StopCount
	case FieldFlightStartTime:
		return d.FlightStartTime
	case FieldStatus:
		return string(d.Status)
	}
	return nil
}

// StopDocument is the index-side projection of a Stop
type StopDocument struct {
	Stop
	IndexedAt time.Time `json:"indexed_at"`
}

// NewStopDocument projects a stop into its search document
func NewStopDocument(s *Stop, indexedAt time.Time) *StopDocument {
	return &StopDocument{Stop: *s, IndexedAt: indexedAt}
}

func (d *StopDocument) DocumentID() string { return d.StopID }
func (d *StopDocument) Kind() IndexKind { return IndexKindStop }

// SeatDocument is the index-side projection of a Seat.
// Its Available flag is the field booking events mutate in place.
type SeatDocument struct {
	Seat
	FlightID  string    `json:"flight_id,omitempty"`
	IndexedAt time.Time `json:"indexed_at"`
}

// NewSeatDocument projects a seat into its search document
func NewSeatDocument(s *Seat, flightID string, indexedAt time.Time) *SeatDocument {
	return &SeatDocument{Seat: *s, FlightID: flightID, IndexedAt: indexedAt}
}

func (d *SeatDocument) DocumentID() string { return d.SeatID }
func (d *SeatDocument) Kind() IndexKind { return IndexKindSeat }
