package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event bus topics
const (
	TopicFlightEvents  = "flight-events"
	TopicBookingEvents = "booking-events"
)

// FlightEventType identifies a change notification on the flight-events topic
type FlightEventType string

const (
	FlightEventUpdated FlightEventType = "flight-updated"
	FlightEventDeleted FlightEventType = "flight-deleted"
)

// FlightEvent is published after a flight document has been written to (or removed from) the index.
// Consumers should treat it as a hint and re-read the index for authoritative state.
type FlightEvent struct {
	EventID    string          `json:"event_id"`
	Type       FlightEventType `json:"type"`
	FlightID   string          `json:"flight_id"`
	Flight     *FlightDocument `json:"flight,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Message is one record published to or received from the event bus
type Message struct {
	// ID is the bus-assigned delivery id, used for Ack/Nack
	ID string `json:"id"`

	Topic   string `json:"topic"`
	Key     string `json:"key"`
	Payload []byte `json:"payload"`

	// Attempts counts deliveries of this record, including the current one
	Attempts int `json:"attempts"`
}

// Booking event type names as they appear on the wire
const (
	BookingEventSeatReserved     = "SEAT_RESERVED"
	BookingEventBookingConfirmed = "BOOKING_CONFIRMED"
	BookingEventBookingCancelled = "BOOKING_CANCELLED"
)

// BookingEvent is a booking-lifecycle event from the booking-events topic.
// It is a closed union: SeatReserved, BookingConfirmed, BookingCancelled,
// and UnknownBookingEvent for any type name not in that set.
type BookingEvent interface {
	EventType() string
	SeatIDs() []string
	bookingEvent()
}

// AvailabilityTarget returns the absolute seat availability an event drives its seats to.
// ok is false for events that carry no availability transition.
func AvailabilityTarget(e BookingEvent) (available bool, ok bool) {
	switch e.(type) {
	case SeatReserved, BookingConfirmed:
		return false, true
	case BookingCancelled:
		return true, true
	}
	return false, false
}

// SeatReserved moves seats to HELD
type SeatReserved struct{ Seats []string }

// BookingConfirmed moves seats to HELD
type BookingConfirmed struct{ Seats []string }

// BookingCancelled returns seats to AVAILABLE
type BookingCancelled struct{ Seats []string }

// UnknownBookingEvent carries an event type outside the known set
type UnknownBookingEvent struct {
	Type  string
	Seats []string
}

func (e SeatReserved) EventType() string { return BookingEventSeatReserved }
func (e SeatReserved) SeatIDs() []string { return e.Seats }
func (SeatReserved) bookingEvent() {}
func (e BookingConfirmed) EventType() string { return BookingEventBookingConfirmed }
func (e BookingConfirmed) SeatIDs() []string { return e.Seats }
func (BookingConfirmed) bookingEvent() {}
func (e BookingCancelled) EventType() string { return BookingEventBookingCancelled }
func (e BookingCancelled) SeatIDs() []string { return e.Seats }
func (BookingCancelled) bookingEvent() {}
func (e UnknownBookingEvent) EventType() string { return e.Type }
func (e UnknownBookingEvent) SeatIDs() []string { return e.Seats }
func (UnknownBookingEvent) bookingEvent() {}

// bookingEventWire is the JSON shape on the booking-events topic
type bookingEventWire struct {
	EventType string   `json:"eventType"`
	SeatIDs   []string `json:"seatIds"`
}

// ParseBookingEvent decodes a booking-events payload.
// Undecodable payloads, a missing event type, and missing or empty seat ids
// fail with ErrMalformedEvent. Unrecognised event types decode to UnknownBookingEvent.
func ParseBookingEvent(payload []byte) (BookingEvent, error) {
	var wire bookingEventWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if wire.EventType == "" {
		return nil, fmt.Errorf("%w: eventType is required", ErrMalformedEvent)
	}
	if len(wire.SeatIDs) == 0 {
		return nil, fmt.Errorf("%w: seatIds is required", ErrMalformedEvent)
	}
	for _, id := range wire.SeatIDs {
		if id == "" {
			return nil, fmt.Errorf("%w: empty seat id", ErrMalformedEvent)
		}
	}

	switch wire.EventType {
	case BookingEventSeatReserved:
		return SeatReserved{Seats: wire.SeatIDs}, nil
	case BookingEventBookingConfirmed:
		return BookingConfirmed{Seats: wire.SeatIDs}, nil
	case BookingEventBookingCancelled:
		return BookingCancelled{Seats: wire.SeatIDs}, nil
	default:
		return UnknownBookingEvent{Type: wire.EventType, Seats: wire.SeatIDs}, nil
	}
}

// EncodeBookingEvent renders an event in its wire shape
func EncodeBookingEvent(e BookingEvent) ([]byte, error) {
	return json.Marshal(bookingEventWire{EventType: e.EventType(), SeatIDs: e.SeatIDs()})
}
