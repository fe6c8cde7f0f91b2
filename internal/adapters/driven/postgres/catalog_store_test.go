package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &DB{DB: db}, mock
}

func newTestStore(t *testing.T) (*CatalogStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	store := NewCatalogStore(db)
	store.now = func() time.Time { return testNow }
	return store, mock
}

var (
	flightCols = []string{"flight_id", "flight_number", "airline_code", "airline_name", "flight_date",
		"flight_start_time", "flight_end_time", "origin", "destination", "price_map", "status",
		"created_at", "updated_at"}
	stopCols = []string{"stop_id", "flight_id", "arrival_time", "departure_time", "arrival_airport",
		"departure_airport", "aircraft_id", "aircraft_type", "stop_sequence", "terminal", "gate",
		"created_at", "updated_at"}
	seatCols = []string{"seat_id", "stop_id", "seat_number", "seat_type", "price", "available", "features",
		"seat_row", "seat_column", "created_at", "updated_at"}
)

func testFlight() *domain.Flight {
	start := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	return &domain.Flight{
		FlightID:        "FL-1",
		FlightNumber:    "XX100",
		AirlineCode:     "XX",
		AirlineName:     "Example Air",
		Date:            "2025-04-01",
		FlightStartTime: start,
		FlightEndTime:   start.Add(3 * time.Hour),
		Origin:          "JFK",
		Destination:     "LAX",
		PriceMap:        map[domain.PassengerType]float64{domain.PassengerTypeAdult: 199},
		Stops: []domain.Stop{{
			StopID:           "FL-1-S1",
			DepartureTime:    start,
			ArrivalTime:      start.Add(3 * time.Hour),
			DepartureAirport: domain.Airport{Code: "JFK"},
			ArrivalAirport:   domain.Airport{Code: "LAX"},
			StopSequence:     1,
			Seats: []domain.Seat{
				{SeatID: "FL-1-S1-1A", SeatNumber: "1A", Type: domain.SeatTypeEconomy, Price: 99, Available: true},
				{SeatID: "FL-1-S1-1B", SeatNumber: "1B", Type: domain.SeatTypeEconomy, Price: 99},
			},
		}},
	}
}

func TestCatalogStore_GetAirline(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM airlines").
		WithArgs("XX").
		WillReturnRows(sqlmock.NewRows([]string{"airline_code", "name", "logo_url", "country", "active",
			"alliance_code", "alliance_name", "created_at", "updated_at"}).
			AddRow("XX", "Example Air", nil, "US", true, "OW", nil, testNow, testNow))

	airline, err := store.GetAirline(context.Background(), "XX")
	require.NoError(t, err)
	assert.Equal(t, "Example Air", airline.Name)
	assert.Nil(t, airline.LogoURL)
	require.NotNil(t, airline.AllianceCode)
	assert.Equal(t, "OW", *airline.AllianceCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_GetAirline_NotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM airlines").
		WithArgs("ZZ").
		WillReturnRows(sqlmock.NewRows([]string{"airline_code"}))

	_, err := store.GetAirline(context.Background(), "ZZ")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalogStore_SaveAirline_SetsTimestamps(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO airlines").
		WithArgs("XX", "Example Air", nil, "US", true, nil, nil, testNow, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	airline := &domain.Airline{AirlineCode: "XX", Name: "Example Air", Country: "US", Active: true}
	require.NoError(t, store.SaveAirline(context.Background(), airline))
	assert.Equal(t, testNow, airline.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_SaveAirline_RequiresCode(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.SaveAirline(context.Background(), &domain.Airline{Name: "No Code"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCatalogStore_Airport(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("INSERT INTO airports").
		WithArgs("JFK", "John F. Kennedy", "New York", "US", "America/New_York").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM airports").
		WithArgs("JFK").
		WillReturnRows(sqlmock.NewRows([]string{"code", "name", "city", "country", "timezone"}).
			AddRow("JFK", "John F. Kennedy", "New York", "US", "America/New_York"))

	ctx := context.Background()
	in := &domain.Airport{Code: "JFK", Name: "John F. Kennedy", City: "New York", Country: "US", Timezone: "America/New_York"}
	require.NoError(t, store.SaveAirport(ctx, in))

	out, err := store.GetAirport(ctx, "JFK")
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_SaveFlight_ReplacesChildrenInOneTransaction(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO flights").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM stops").WithArgs("FL-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO stops").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO seats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO seats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	flight := testFlight()
	require.NoError(t, store.SaveFlight(context.Background(), flight))

	assert.Equal(t, "FL-1", flight.Stops[0].FlightID)
	assert.Equal(t, "FL-1-S1", flight.Stops[0].Seats[1].StopID)
	assert.Equal(t, testNow, flight.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_SaveFlight_RollsBackOnSeatFailure(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO flights").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM stops").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO stops").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO seats").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.SaveFlight(context.Background(), testFlight())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_SaveFlight_RerunsAfterDeadlock(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO flights").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM stops").WillReturnError(&pq.Error{Code: "40P01", Message: "deadlock detected"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO flights").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM stops").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO stops").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO seats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO seats").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveFlight(context.Background(), testFlight()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_SaveFlight_DuplicateStopIsConflict(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO flights").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM stops").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO stops").WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint \"stops_pkey\""})
	mock.ExpectRollback()

	err := store.SaveFlight(context.Background(), testFlight())
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.NotErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_SaveFlight_Invalid(t *testing.T) {
	store, mock := newTestStore(t)

	flight := testFlight()
	flight.FlightEndTime = flight.FlightStartTime

	err := store.SaveFlight(context.Background(), flight)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_GetFlight_LoadsStopsAndSeats(t *testing.T) {
	store, mock := newTestStore(t)
	start := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM flights WHERE flight_id").
		WithArgs("FL-1").
		WillReturnRows(sqlmock.NewRows(flightCols).AddRow(
			"FL-1", "XX100", "XX", "Example Air", time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			start, start.Add(3*time.Hour), "JFK", "LAX", []byte(`{"ADULT":199}`), "SCHEDULED",
			testNow, testNow))
	mock.ExpectQuery("SELECT (.+) FROM stops").
		WillReturnRows(sqlmock.NewRows(stopCols).AddRow(
			"FL-1-S1", "FL-1", start.Add(3*time.Hour), start,
			[]byte(`{"code":"LAX"}`), []byte(`{"code":"JFK"}`),
			"N100", "A320", 1, "T4", nil, testNow, testNow))
	mock.ExpectQuery("SELECT (.+) FROM seats").
		WillReturnRows(sqlmock.NewRows(seatCols).
			AddRow("FL-1-S1-1A", "FL-1-S1", "1A", "ECONOMY", 99.0, true, []byte(`["WINDOW"]`), 1, "A", testNow, testNow).
			AddRow("FL-1-S1-1B", "FL-1-S1", "1B", "ECONOMY", 99.0, false, []byte(`[]`), 1, "B", testNow, testNow))

	flight, err := store.GetFlight(context.Background(), "FL-1")
	require.NoError(t, err)

	assert.Equal(t, "2025-04-01", flight.Date)
	assert.Equal(t, 199.0, flight.PriceMap[domain.PassengerTypeAdult])
	require.Len(t, flight.Stops, 1)
	stop := flight.Stops[0]
	assert.Equal(t, "LAX", stop.ArrivalAirport.Code)
	require.NotNil(t, stop.Terminal)
	assert.Equal(t, "T4", *stop.Terminal)
	assert.Nil(t, stop.Gate)
	require.Len(t, stop.Seats, 2)
	assert.Equal(t, []domain.SeatFeature{domain.SeatFeatureWindow}, stop.Seats[0].Features)
	assert.False(t, stop.Seats[1].Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_GetFlight_NotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM flights").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(flightCols))

	_, err := store.GetFlight(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalogStore_ListFlights_PagesByID(t *testing.T) {
	store, mock := newTestStore(t)
	start := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	day := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM flights ORDER BY flight_id LIMIT").
		WithArgs(2, 4).
		WillReturnRows(sqlmock.NewRows(flightCols).
			AddRow("FL-5", "XX5", "XX", "", day, start, start.Add(time.Hour), "JFK", "LAX", []byte(`{}`), "SCHEDULED", testNow, testNow).
			AddRow("FL-6", "XX6", "XX", "", day, start, start.Add(time.Hour), "JFK", "SFO", []byte(`{}`), "DELAYED", testNow, testNow))
	mock.ExpectQuery("SELECT (.+) FROM stops").
		WillReturnRows(sqlmock.NewRows(stopCols))

	flights, err := store.ListFlights(context.Background(), 2, 4)
	require.NoError(t, err)
	require.Len(t, flights, 2)
	assert.Equal(t, "FL-5", flights[0].FlightID)
	assert.Equal(t, domain.FlightStatusDelayed, flights[1].Status)
	assert.Empty(t, flights[1].Stops)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_ListFlights_Unavailable(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM flights").WillReturnError(errors.New("dial tcp: refused"))

	_, err := store.ListFlights(context.Background(), 10, 0)
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestCatalogStore_DeleteFlight(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec("DELETE FROM flights").WithArgs("FL-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM flights").WithArgs("FL-1").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, store.DeleteFlight(ctx, "FL-1"))
	assert.ErrorIs(t, store.DeleteFlight(ctx, "FL-1"), domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalogStore_CountFlights(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := store.CountFlights(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, count)
}
