package services

import (
	"fmt"
	"time"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// newTestFlight builds a valid flight departing at hour on date with the given
// number of stops. Every stop carries two seats, both available.
func newTestFlight(id, origin, destination, date string, hour, stops int) *domain.Flight {
	day, err := domain.ParseDate(date)
	if err != nil {
		panic(err)
	}
	start := day.Add(time.Duration(hour) * time.Hour)

	flight := &domain.Flight{
		FlightID:        id,
		FlightNumber:    "FN" + id,
		AirlineCode:     "AA",
		AirlineName:     "Test Air",
		Date:            date,
		FlightStartTime: start,
		FlightEndTime:   start.Add(time.Duration(stops+1) * 2 * time.Hour),
		Origin:          origin,
		Destination:     destination,
		Status:          domain.FlightStatusScheduled,
		PriceMap:        map[domain.PassengerType]float64{domain.PassengerTypeAdult: 199.99},
	}

	legStart := start
	for i := 1; i <= stops; i++ {
		stopID := fmt.Sprintf("%s-stop-%d", id, i)
		flight.Stops = append(flight.Stops, domain.Stop{
			StopID:           stopID,
			FlightID:         id,
			DepartureTime:    legStart,
			ArrivalTime:      legStart.Add(90 * time.Minute),
			DepartureAirport: domain.Airport{Code: origin},
			ArrivalAirport:   domain.Airport{Code: destination},
			AircraftID:       "AC1",
			AircraftType:     "A320",
			StopSequence:     i,
			Seats: []domain.Seat{
				{SeatID: stopID + "-1A", StopID: stopID, SeatNumber: "1A", Type: domain.SeatTypeEconomy, Price: 99, Available: true, Row: 1, Column: "A"},
				{SeatID: stopID + "-1B", StopID: stopID, SeatNumber: "1B", Type: domain.SeatTypeEconomy, Price: 99, Available: true, Row: 1, Column: "B"},
			},
		})
		legStart = legStart.Add(2 * time.Hour)
	}
	return flight
}
