package domain

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the calendar-day format used for Flight.Date and date-keyed results
const DateLayout = "2006-01-02"

// FlightStatus represents the operational status of a flight
type FlightStatus string

const (
	FlightStatusScheduled FlightStatus = "SCHEDULED"
	FlightStatusBoarding  FlightStatus = "BOARDING"
	FlightStatusDeparted  FlightStatus = "DEPARTED"
	FlightStatusInAir     FlightStatus = "IN_AIR"
	FlightStatusLanded    FlightStatus = "LANDED"
	FlightStatusDelayed   FlightStatus = "DELAYED"
	FlightStatusCancelled FlightStatus = "CANCELLED"
)

// IsValid checks if the status is a known value
func (s FlightStatus) IsValid() bool {
	switch s {
	case FlightStatusScheduled, FlightStatusBoarding, FlightStatusDeparted, FlightStatusInAir,
		FlightStatusLanded, FlightStatusDelayed, FlightStatusCancelled:
		return true
	}
	return false
}

// PassengerType is the pricing category of a passenger
type PassengerType string

const (
	PassengerTypeAdult    PassengerType = "ADULT"
	PassengerTypeChild    PassengerType = "CHILD"
	PassengerTypeInfant   PassengerType = "INFANT"
	PassengerTypeSenior   PassengerType = "SENIOR"
	PassengerTypeStudent  PassengerType = "STUDENT"
	PassengerTypeMilitary PassengerType = "MILITARY"
)

// SeatType is the cabin class of a seat
type SeatType string

const (
	SeatTypeEconomy        SeatType = "ECONOMY"
	SeatTypePremiumEconomy SeatType = "PREMIUM_ECONOMY"
	SeatTypeBusiness       SeatType = "BUSINESS"
	SeatTypeFirst          SeatType = "FIRST"
)

// IsValid checks if the seat type is a known value
func (t SeatType) IsValid() bool {
	switch t {
	case SeatTypeEconomy, SeatTypePremiumEconomy, SeatTypeBusiness, SeatTypeFirst:
		return true
	}
	return false
}

// SeatFeature is a physical attribute of a seat
type SeatFeature string

const (
	SeatFeatureExtraLegroom SeatFeature = "EXTRA_LEGROOM"
	SeatFeatureWindow       SeatFeature = "WINDOW"
	SeatFeatureAisle        SeatFeature = "AISLE"
	SeatFeatureMiddle       SeatFeature = "MIDDLE"
	SeatFeatureExitRow      SeatFeature = "EXIT_ROW"
	SeatFeatureBulkhead     SeatFeature = "BULKHEAD"
	SeatFeatureBassinet     SeatFeature = "BASSINET"
	SeatFeaturePowerOutlet  SeatFeature = "POWER_OUTLET"
	SeatFeatureUSBPort      SeatFeature = "USB_PORT"
	SeatFeatureReclinable   SeatFeature = "RECLINABLE"
)

// Airline is reference data, looked up by code
type Airline struct {
	AirlineCode  string    `json:"airline_code"`
	Name         string    `json:"name"`
	LogoURL      *string   `json:"logo_url,omitempty"`
	Country      string    `json:"country"`
	Active       bool      `json:"active"`
	AllianceCode *string   `json:"alliance_code,omitempty"`
	AllianceName *string   `json:"alliance_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Airport is reference data, looked up by IATA code.
// Stops embed copies of airports rather than referencing them.
type Airport struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	City     string `json:"city"`
	Country  string `json:"country"`
	Timezone string `json:"timezone"`
}

// Seat is a bookable seat on one stop (leg) of a flight
type Seat struct {
	SeatID     string        `json:"seat_id"`
	StopID     string        `json:"stop_id"`
	SeatNumber string        `json:"seat_number"`
	Type       SeatType      `json:"type"`
	Price      float64       `json:"price"`
	Available  bool          `json:"available"`
	Features   []SeatFeature `json:"features,omitempty"`
	Row        int           `json:"row"`
	Column     string        `json:"column"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Stop is one leg of a flight
type Stop struct {
	StopID           string    `json:"stop_id"`
	FlightID         string    `json:"flight_id"`
	ArrivalTime      time.Time `json:"arrival_time"`
	DepartureTime    time.Time `json:"departure_time"`
	ArrivalAirport   Airport   `json:"arrival_airport"`
	DepartureAirport Airport   `json:"departure_airport"`
	Seats            []Seat    `json:"seats,omitempty"`
	AircraftID       string    `json:"aircraft_id"`
	AircraftType     string    `json:"aircraft_type"`
	StopSequence     int       `json:"stop_sequence"`
	Terminal         *string   `json:"terminal,omitempty"`
	Gate             *string   `json:"gate,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Flight is the relational aggregate: a flight with its ordered stops and their seats
type Flight struct {
	FlightID        string                    `json:"flight_id"`
	FlightNumber    string                    `json:"flight_number"`
	AirlineCode     string                    `json:"airline_code"`
	AirlineName     string                    `json:"airline_name"`
	Date            string                    `json:"date"` // DateLayout
	FlightStartTime time.Time                 `json:"flight_start_time"`
	FlightEndTime   time.Time                 `json:"flight_end_time"`
	Origin          string                    `json:"origin"`
	Destination     string                    `json:"destination"`
	Stops           []Stop                    `json:"stops"`
	PriceMap        map[PassengerType]float64 `json:"price_map,omitempty"`
	Status          FlightStatus              `json:"status"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// Validate checks the flight's structural invariants.
// Stops must be ordered by sequence, contiguous from 1, and no leg may
// arrive after the next leg departs.
func (f *Flight) Validate() error {
	if f.FlightID == "" {
		return fmt.Errorf("%w: flight_id is required", ErrInvalidInput)
	}
	if f.Origin == "" || f.Destination == "" {
		return fmt.Errorf("%w: flight %s: origin and destination are required", ErrInvalidInput, f.FlightID)
	}
	if _, err := ParseDate(f.Date); err != nil {
		return fmt.Errorf("%w: flight %s: %v", ErrInvalidInput, f.FlightID, err)
	}
	if !f.FlightStartTime.Before(f.FlightEndTime) {
		return fmt.Errorf("%w: flight %s: start time must be before end time", ErrInvalidInput, f.FlightID)
	}
	if f.Status != "" && !f.Status.IsValid() {
		return fmt.Errorf("%w: flight %s: unknown status %q", ErrInvalidInput, f.FlightID, f.Status)
	}

	for i, stop := range f.Stops {
		if stop.StopSequence != i+1 {
			return fmt.Errorf("%w: flight %s: stop %s has sequence %d, want %d",
				ErrInvalidInput, f.FlightID, stop.StopID, stop.StopSequence, i+1)
		}
		if i+1 < len(f.Stops) && stop.ArrivalTime.After(f.Stops[i+1].DepartureTime) {
			return fmt.Errorf("%w: flight %s: stop %s arrives after stop %s departs",
				ErrInvalidInput, f.FlightID, stop.StopID, f.Stops[i+1].StopID)
		}
	}
	return nil
}

// SortStops orders stops by sequence in place
func (f *Flight) SortStops() {
	sort.SliceStable(f.Stops, func(i, j int) bool {
		return f.Stops[i].StopSequence < f.Stops[j].StopSequence
	})
}

// ParseDate parses a calendar day in DateLayout
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// FormatDate formats a time as a calendar day in DateLayout
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Validate checks a stop's required fields
func (s *Stop) Validate() error {
	if s.StopID == "" {
		return fmt.Errorf("%w: stop_id is required", ErrInvalidInput)
	}
	if s.StopSequence < 1 {
		return fmt.Errorf("%w: stop %s: stop_sequence must be at least 1", ErrInvalidInput, s.StopID)
	}
	if !s.ArrivalTime.IsZero() && !s.DepartureTime.IsZero() && s.ArrivalTime.Before(s.DepartureTime) {
		return fmt.Errorf("%w: stop %s: arrives before it departs", ErrInvalidInput, s.StopID)
	}
	return nil
}

// Validate checks a seat's required fields
func (s *Seat) Validate() error {
	if s.SeatID == "" {
		return fmt.Errorf("%w: seat_id is required", ErrInvalidInput)
	}
	if s.Type != "" && !s.Type.IsValid() {
		return fmt.Errorf("%w: seat %s: unknown seat type %q", ErrInvalidInput, s.SeatID, s.Type)
	}
	if s.Price < 0 {
		return fmt.Errorf("%w: seat %s: price must not be negative", ErrInvalidInput, s.SeatID)
	}
	return nil
}
