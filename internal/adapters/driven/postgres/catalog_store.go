package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CatalogStore = (*CatalogStore)(nil)

// CatalogStore implements driven.CatalogStore using PostgreSQL
type CatalogStore struct {
	db  *DB
	now func() time.Time
}

// NewCatalogStore creates a new CatalogStore
func NewCatalogStore(db *DB) *CatalogStore {
	return &CatalogStore{db: db, now: time.Now}
}

// GetAirline retrieves an airline by code
func (s *CatalogStore) GetAirline(ctx context.Context, code string) (*domain.Airline, error) {
	query := `
		SELECT airline_code, name, logo_url, country, active, alliance_code, alliance_name,
			   created_at, updated_at
		FROM airlines
		WHERE airline_code = $1
	`

	var a domain.Airline
	var logoURL, allianceCode, allianceName sql.NullString

	err := s.db.QueryRowContext(ctx, query, code).Scan(
		&a.AirlineCode,
		&a.Name,
		&logoURL,
		&a.Country,
		&a.Active,
		&allianceCode,
		&allianceName,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeError("get airline", err)
	}

	a.LogoURL = stringPtr(logoURL)
	a.AllianceCode = stringPtr(allianceCode)
	a.AllianceName = stringPtr(allianceName)
	return &a, nil
}

// SaveAirline creates or updates an airline
func (s *CatalogStore) SaveAirline(ctx context.Context, airline *domain.Airline) error {
	if airline == nil || airline.AirlineCode == "" {
		return fmt.Errorf("%w: airline_code is required", domain.ErrInvalidInput)
	}

	now := s.now()
	if airline.CreatedAt.IsZero() {
		airline.CreatedAt = now
	}
	airline.UpdatedAt = now

	query := `
		INSERT INTO airlines (airline_code, name, logo_url, country, active, alliance_code,
							  alliance_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (airline_code) DO UPDATE SET
			name = EXCLUDED.name,
			logo_url = EXCLUDED.logo_url,
			country = EXCLUDED.country,
			active = EXCLUDED.active,
			alliance_code = EXCLUDED.alliance_code,
			alliance_name = EXCLUDED.alliance_name,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		airline.AirlineCode,
		airline.Name,
		nullString(airline.LogoURL),
		airline.Country,
		airline.Active,
		nullString(airline.AllianceCode),
		nullString(airline.AllianceName),
		airline.CreatedAt,
		airline.UpdatedAt,
	)
	if err != nil {
		return storeError("save airline", err)
	}
	return nil
}

// GetAirport retrieves an airport by IATA code
func (s *CatalogStore) GetAirport(ctx context.Context, code string) (*domain.Airport, error) {
	query := `SELECT code, name, city, country, timezone FROM airports WHERE code = $1`

	var a domain.Airport
	err := s.db.QueryRowContext(ctx, query, code).Scan(&a.Code, &a.Name, &a.City, &a.Country, &a.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeError("get airport", err)
	}
	return &a, nil
}

// SaveAirport creates or updates an airport
func (s *CatalogStore) SaveAirport(ctx context.Context, airport *domain.Airport) error {
	if airport == nil || airport.Code == "" {
		return fmt.Errorf("%w: airport code is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO airports (code, name, city, country, timezone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			city = EXCLUDED.city,
			country = EXCLUDED.country,
			timezone = EXCLUDED.timezone
	`

	_, err := s.db.ExecContext(ctx, query, airport.Code, airport.Name, airport.City, airport.Country, airport.Timezone)
	if err != nil {
		return storeError("save airport", err)
	}
	return nil
}

const flightColumns = `flight_id, flight_number, airline_code, airline_name, flight_date,
	flight_start_time, flight_end_time, origin, destination, price_map, status,
	created_at, updated_at`

// GetFlight retrieves a flight with its stops and seats
func (s *CatalogStore) GetFlight(ctx context.Context, flightID string) (*domain.Flight, error) {
	query := `SELECT ` + flightColumns + ` FROM flights WHERE flight_id = $1`

	flight, err := scanFlight(s.db.QueryRowContext(ctx, query, flightID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storeError("get flight", err)
	}

	if err := s.loadStops(ctx, []*domain.Flight{flight}); err != nil {
		return nil, err
	}
	return flight, nil
}

// SaveFlight creates or updates a flight and replaces its stops and seats in one transaction
func (s *CatalogStore) SaveFlight(ctx context.Context, flight *domain.Flight) error {
	if flight == nil {
		return fmt.Errorf("%w: flight is required", domain.ErrInvalidInput)
	}
	flight.SortStops()
	if err := flight.Validate(); err != nil {
		return err
	}

	now := s.now()
	if flight.CreatedAt.IsZero() {
		flight.CreatedAt = now
	}
	flight.UpdatedAt = now

	priceMap, err := json.Marshal(flight.PriceMap)
	if err != nil {
		return fmt.Errorf("marshal price map: %w", err)
	}
	status := flight.Status
	if status == "" {
		status = domain.FlightStatusScheduled
	}

	err = s.db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO flights (`+flightColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (flight_id) DO UPDATE SET
				flight_number = EXCLUDED.flight_number,
				airline_code = EXCLUDED.airline_code,
				airline_name = EXCLUDED.airline_name,
				flight_date = EXCLUDED.flight_date,
				flight_start_time = EXCLUDED.flight_start_time,
				flight_end_time = EXCLUDED.flight_end_time,
				origin = EXCLUDED.origin,
				destination = EXCLUDED.destination,
				price_map = EXCLUDED.price_map,
				status = EXCLUDED.status,
				updated_at = EXCLUDED.updated_at
		`,
			flight.FlightID,
			flight.FlightNumber,
			flight.AirlineCode,
			flight.AirlineName,
			flight.Date,
			flight.FlightStartTime,
			flight.FlightEndTime,
			flight.Origin,
			flight.Destination,
			priceMap,
			string(status),
			flight.CreatedAt,
			flight.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert flight: %w", err)
		}

		// Seats cascade with their stops
		if _, err := tx.ExecContext(ctx, `DELETE FROM stops WHERE flight_id = $1`, flight.FlightID); err != nil {
			return fmt.Errorf("delete stops: %w", err)
		}

		for i := range flight.Stops {
			stop := &flight.Stops[i]
			stop.FlightID = flight.FlightID
			if err := insertStop(ctx, tx, stop, now); err != nil {
				return err
			}
			for j := range stop.Seats {
				seat := &stop.Seats[j]
				seat.StopID = stop.StopID
				if err := insertSeat(ctx, tx, seat, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return storeError("save flight "+flight.FlightID, err)
	}
	return nil
}

func insertStop(ctx context.Context, q querier, stop *domain.Stop, now time.Time) error {
	if stop.CreatedAt.IsZero() {
		stop.CreatedAt = now
	}
	stop.UpdatedAt = now

	arrival, err := json.Marshal(stop.ArrivalAirport)
	if err != nil {
		return fmt.Errorf("marshal arrival airport: %w", err)
	}
	departure, err := json.Marshal(stop.DepartureAirport)
	if err != nil {
		return fmt.Errorf("marshal departure airport: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO stops (stop_id, flight_id, arrival_time, departure_time, arrival_airport,
						   departure_airport, aircraft_id, aircraft_type, stop_sequence,
						   terminal, gate, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		stop.StopID,
		stop.FlightID,
		stop.ArrivalTime,
		stop.DepartureTime,
		arrival,
		departure,
		stop.AircraftID,
		stop.AircraftType,
		stop.StopSequence,
		nullString(stop.Terminal),
		nullString(stop.Gate),
		stop.CreatedAt,
		stop.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert stop %s: %w", stop.StopID, err)
	}
	return nil
}

func insertSeat(ctx context.Context, q querier, seat *domain.Seat, now time.Time) error {
	if seat.CreatedAt.IsZero() {
		seat.CreatedAt = now
	}
	seat.UpdatedAt = now

	features := seat.Features
	if features == nil {
		features = []domain.SeatFeature{}
	}
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("marshal seat features: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO seats (seat_id, stop_id, seat_number, seat_type, price, available, features,
						   seat_row, seat_column, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		seat.SeatID,
		seat.StopID,
		seat.SeatNumber,
		string(seat.Type),
		seat.Price,
		seat.Available,
		featuresJSON,
		seat.Row,
		seat.Column,
		seat.CreatedAt,
		seat.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert seat %s: %w", seat.SeatID, err)
	}
	return nil
}

// DeleteFlight deletes a flight; stops and seats cascade
func (s *CatalogStore) DeleteFlight(ctx context.Context, flightID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM flights WHERE flight_id = $1`, flightID)
	if err != nil {
		return storeError("delete flight", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storeError("delete flight", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListFlights returns flights with stops and seats, ordered by id
func (s *CatalogStore) ListFlights(ctx context.Context, limit, offset int) ([]*domain.Flight, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + flightColumns + ` FROM flights ORDER BY flight_id LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, storeError("list flights", err)
	}
	defer rows.Close()

	var flights []*domain.Flight
	for rows.Next() {
		flight, err := scanFlight(rows)
		if err != nil {
			return nil, storeError("scan flight", err)
		}
		flights = append(flights, flight)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list flights", err)
	}

	if err := s.loadStops(ctx, flights); err != nil {
		return nil, err
	}
	return flights, nil
}

// CountFlights returns the number of flights
func (s *CatalogStore) CountFlights(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flights`).Scan(&count); err != nil {
		return 0, storeError("count flights", err)
	}
	return count, nil
}

// loadStops attaches ordered stops and their seats to flights with two queries
func (s *CatalogStore) loadStops(ctx context.Context, flights []*domain.Flight) error {
	if len(flights) == 0 {
		return nil
	}

	byFlight := make(map[string]*domain.Flight, len(flights))
	flightIDs := make([]string, 0, len(flights))
	for _, f := range flights {
		byFlight[f.FlightID] = f
		flightIDs = append(flightIDs, f.FlightID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT stop_id, flight_id, arrival_time, departure_time, arrival_airport, departure_airport,
			   aircraft_id, aircraft_type, stop_sequence, terminal, gate, created_at, updated_at
		FROM stops
		WHERE flight_id = ANY($1)
		ORDER BY flight_id, stop_sequence
	`, pq.Array(flightIDs))
	if err != nil {
		return storeError("load stops", err)
	}

	var stops []*domain.Stop
	for rows.Next() {
		stop, err := scanStop(rows)
		if err != nil {
			rows.Close()
			return storeError("scan stop", err)
		}
		stops = append(stops, stop)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return storeError("load stops", err)
	}
	if len(stops) == 0 {
		return nil
	}

	stopIDs := make([]string, 0, len(stops))
	for _, stop := range stops {
		stopIDs = append(stopIDs, stop.StopID)
	}

	seats, err := s.loadSeats(ctx, stopIDs)
	if err != nil {
		return err
	}

	for _, stop := range stops {
		stop.Seats = seats[stop.StopID]
		if f, ok := byFlight[stop.FlightID]; ok {
			f.Stops = append(f.Stops, *stop)
		}
	}
	return nil
}

func (s *CatalogStore) loadSeats(ctx context.Context, stopIDs []string) (map[string][]domain.Seat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seat_id, stop_id, seat_number, seat_type, price, available, features,
			   seat_row, seat_column, created_at, updated_at
		FROM seats
		WHERE stop_id = ANY($1)
		ORDER BY stop_id, seat_row, seat_column, seat_id
	`, pq.Array(stopIDs))
	if err != nil {
		return nil, storeError("load seats", err)
	}
	defer rows.Close()

	seats := make(map[string][]domain.Seat)
	for rows.Next() {
		var seat domain.Seat
		var seatType string
		var features []byte

		if err := rows.Scan(
			&seat.SeatID,
			&seat.StopID,
			&seat.SeatNumber,
			&seatType,
			&seat.Price,
			&seat.Available,
			&features,
			&seat.Row,
			&seat.Column,
			&seat.CreatedAt,
			&seat.UpdatedAt,
		); err != nil {
			return nil, storeError("scan seat", err)
		}

		seat.Type = domain.SeatType(seatType)
		if len(features) > 0 {
			if err := json.Unmarshal(features, &seat.Features); err != nil {
				return nil, fmt.Errorf("unmarshal features of seat %s: %w", seat.SeatID, err)
			}
		}
		seats[seat.StopID] = append(seats[seat.StopID], seat)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("load seats", err)
	}
	return seats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlight(row rowScanner) (*domain.Flight, error) {
	var f domain.Flight
	var date time.Time
	var priceMap []byte
	var status string

	if err := row.Scan(
		&f.FlightID,
		&f.FlightNumber,
		&f.AirlineCode,
		&f.AirlineName,
		&date,
		&f.FlightStartTime,
		&f.FlightEndTime,
		&f.Origin,
		&f.Destination,
		&priceMap,
		&status,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		return nil, err
	}

	f.Date = date.Format(domain.DateLayout)
	f.Status = domain.FlightStatus(status)
	f.Stops = []domain.Stop{}
	if len(priceMap) > 0 {
		if err := json.Unmarshal(priceMap, &f.PriceMap); err != nil {
			return nil, fmt.Errorf("unmarshal price map of flight %s: %w", f.FlightID, err)
		}
	}
	return &f, nil
}

func scanStop(row rowScanner) (*domain.Stop, error) {
	var stop domain.Stop
	var arrival, departure []byte
	var terminal, gate sql.NullString

	if err := row.Scan(
		&stop.StopID,
		&stop.FlightID,
		&stop.ArrivalTime,
		&stop.DepartureTime,
		&arrival,
		&departure,
		&stop.AircraftID,
		&stop.AircraftType,
		&stop.StopSequence,
		&terminal,
		&gate,
		&stop.CreatedAt,
		&stop.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(arrival, &stop.ArrivalAirport); err != nil {
		return nil, fmt.Errorf("unmarshal arrival airport of stop %s: %w", stop.StopID, err)
	}
	if err := json.Unmarshal(departure, &stop.DepartureAirport); err != nil {
		return nil, fmt.Errorf("unmarshal departure airport of stop %s: %w", stop.StopID, err)
	}
	stop.Terminal = stringPtr(terminal)
	stop.Gate = stringPtr(gate)
	return &stop, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
