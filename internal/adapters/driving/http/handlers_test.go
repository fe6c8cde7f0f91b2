package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/flight-catalog/internal/core/services"
)

type testEnv struct {
	server    *Server
	index     *mocks.MockSearchIndex
	store     *mocks.MockCatalogStore
	bus       *mocks.MockEventBus
	lock      *mocks.MockDistributedLock
	scheduler *services.Scheduler
}

func newTestEnv(t *testing.T, checks map[string]Pinger) *testEnv {
	t.Helper()

	index := mocks.NewMockSearchIndex()
	store := mocks.NewMockCatalogStore()
	bus := mocks.NewMockEventBus(domain.TopicBookingEvents)
	lock := mocks.NewMockDistributedLock()

	syncSvc := services.NewSyncService(services.SyncServiceConfig{
		SearchIndex:  index,
		Publisher:    bus,
		CatalogStore: store,
	})
	scheduler := services.NewScheduler(services.SchedulerConfig{Resyncer: syncSvc, Lock: lock})

	server := NewServer(Config{Version: "1.2.3"}, Dependencies{
		Availability: services.NewAvailabilityService(services.AvailabilityServiceConfig{SearchIndex: index}),
		Scheduler:    scheduler,
		Search:       services.NewSearchService(services.SearchServiceConfig{SearchIndex: index}),
		Seats:        services.NewSeatService(services.SeatServiceConfig{SearchIndex: index}),
		Bus:          bus,
		Checks:       checks,
	})

	return &testEnv{server: server, index: index, store: store, bus: bus, lock: lock, scheduler: scheduler}
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func testFlight(id string) *domain.Flight {
	start := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	return &domain.Flight{
		FlightID:        id,
		AirlineCode:     "XX",
		Date:            "2025-04-01",
		FlightStartTime: start,
		FlightEndTime:   start.Add(3 * time.Hour),
		Origin:          "JFK",
		Destination:     "LAX",
		Stops: []domain.Stop{{
			StopID:       id + "-1",
			FlightID:     id,
			StopSequence: 1,
			Seats: []domain.Seat{
				{SeatID: id + "-1A", StopID: id + "-1", Type: domain.SeatTypeEconomy, Available: true},
			},
		}},
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[StatusResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHandleVersion(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/version")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.2.3", decode[VersionResponse](t, rec).Version)
}

func TestHandleReady(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
		wantBody   StatusResponse
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   StatusResponse{Status: "ready"},
		},
		{
			name: "all healthy",
			checks: map[string]Pinger{
				"postgres": PingFunc(func(ctx context.Context) error { return nil }),
				"vespa":    PingFunc(func(ctx context.Context) error { return nil }),
			},
			wantStatus: http.StatusOK,
			wantBody:   StatusResponse{Status: "ready", Checks: map[string]string{"postgres": "ok", "vespa": "ok"}},
		},
		{
			name: "one dependency down",
			checks: map[string]Pinger{
				"postgres": PingFunc(func(ctx context.Context) error { return nil }),
				"redis":    PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   StatusResponse{Status: "not_ready", Checks: map[string]string{"postgres": "ok", "redis": "connection refused"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.checks)

			rec := env.do(t, http.MethodGet, "/ready")

			assert.Equal(t, tt.wantStatus, rec.Code)
			got := decode[StatusResponse](t, rec)
			assert.Equal(t, tt.wantBody.Status, got.Status)
			assert.Equal(t, len(tt.wantBody.Checks), len(got.Checks))
			for name, want := range tt.wantBody.Checks {
				assert.Equal(t, want, got.Checks[name], name)
			}
		})
	}
}

func TestHandleReady_CheckTimesOut(t *testing.T) {
	slow := PingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	server := NewServer(Config{CheckTimeout: 20 * time.Millisecond}, Dependencies{
		Checks: map[string]Pinger{"vespa": slow},
	})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, context.DeadlineExceeded.Error(), decode[StatusResponse](t, rec).Checks["vespa"])
}

func TestHandleStats(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.store.SaveFlight(ctx, testFlight("FL-1")))
	_, err := env.scheduler.TriggerNow(ctx)
	require.NoError(t, err)

	require.NoError(t, env.bus.Publish(ctx, domain.TopicBookingEvents, "FL-1-1A",
		[]byte(`{"eventType":"SEAT_RESERVED","seatIds":["FL-1-1A","ghost"]}`)))
	msg, err := env.bus.Receive(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NoError(t, env.server.availability.HandleMessage(ctx, msg.Payload))

	rec := env.do(t, http.MethodGet, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[StatsResponse](t, rec)
	require.NotNil(t, got.Reconciler)
	assert.Equal(t, int64(1), got.Reconciler.EventsApplied)
	assert.Equal(t, int64(1), got.Reconciler.SeatsUpdated)
	assert.Equal(t, int64(1), got.Reconciler.SeatsSkipped)

	require.NotNil(t, got.Bus)
	assert.Equal(t, domain.TopicBookingEvents, got.Bus.Topic)
	assert.Equal(t, int64(1), got.Bus.PendingCount)

	require.NotNil(t, got.LastResync)
	assert.Equal(t, 1, got.LastResync.FlightsSynced)
	assert.Equal(t, 1, got.LastResync.SeatsSynced)
}

func TestHandleStats_NoDependencies(t *testing.T) {
	server := NewServer(DefaultConfig(), Dependencies{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())
}

func TestHandleResync(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.store.SaveFlight(context.Background(), testFlight("FL-1")))
	require.NoError(t, env.store.SaveFlight(context.Background(), testFlight("FL-2")))

	rec := env.do(t, http.MethodPost, "/admin/resync")

	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[domain.ResyncReport](t, rec)
	assert.Equal(t, 2, report.FlightsSynced)
	assert.Equal(t, 2, report.StopsSynced)
	assert.Equal(t, 2, report.SeatsSynced)
	assert.Equal(t, 2, env.index.Count(domain.IndexKindFlight))
	assert.False(t, env.lock.IsHeld(services.ResyncLockName))
	assert.Equal(t, int64(1), report.LockToken)
}

func TestHandleResync_LockHeldElsewhere(t *testing.T) {
	env := newTestEnv(t, nil)
	env.lock.SetLockHeld(services.ResyncLockName, time.Minute)

	rec := env.do(t, http.MethodPost, "/admin/resync")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "resync already in progress", decode[ErrorResponse](t, rec).Error)
}

func TestHandleResync_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.ListErr = domain.ErrServiceUnavailable

	rec := env.do(t, http.MethodPost, "/admin/resync")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleResync_PartialFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.store.SaveFlight(context.Background(), testFlight("FL-1")))
	require.NoError(t, env.store.SaveFlight(context.Background(), testFlight("FL-2")))
	env.index.FailIDs["FL-2"] = domain.ErrServiceUnavailable

	rec := env.do(t, http.MethodPost, "/admin/resync")

	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	report := decode[domain.ResyncReport](t, rec)
	assert.Equal(t, 1, report.FlightsSynced)
	require.NotEmpty(t, report.Failures)
	assert.Equal(t, "FL-2", report.Failures[0].ID)
}

// lostLockScheduler fails every resync as if another instance took the lock over
type lostLockScheduler struct{}

func (lostLockScheduler) Start(context.Context) error { return nil }
func (lostLockScheduler) Stop()                        {}
func (lostLockScheduler) TriggerNow(context.Context) (*domain.ResyncReport, error) {
	return &domain.ResyncReport{LockToken: 4}, fmt.Errorf("resync aborted: %w", domain.ErrLockLost)
}
func (lostLockScheduler) LastReport() *domain.ResyncReport { return nil }

func TestHandleResync_LockLostMidRun(t *testing.T) {
	server := NewServer(DefaultConfig(), Dependencies{Scheduler: lostLockScheduler{}})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/resync", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "lock taken over")
}

func TestHandleResync_NoScheduler(t *testing.T) {
	server := NewServer(DefaultConfig(), Dependencies{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/resync", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func (e *testEnv) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleSearch(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.store.SaveFlight(context.Background(), testFlight("FL-1")))
	_, err := env.scheduler.TriggerNow(context.Background())
	require.NoError(t, err)

	rec := env.postJSON(t, "/admin/search", `{"origin":"JFK","destination":"LAX","departure_date":"2025-04-01"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[domain.SearchResponse](t, rec)
	require.NotNil(t, resp.Outbound)
	require.Len(t, resp.Outbound.Flights, 1)
	assert.Equal(t, "FL-1", resp.Outbound.Flights[0].FlightID)
	assert.Nil(t, resp.Return)
}

func TestHandleSearch_FlexibleDates(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.store.SaveFlight(context.Background(), testFlight("FL-1")))
	_, err := env.scheduler.TriggerNow(context.Background())
	require.NoError(t, err)

	rec := env.postJSON(t, "/admin/search",
		`{"origin":"JFK","destination":"LAX","departure_date":"2025-04-03","flexible_dates":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	days := decode[map[string]*domain.FlightPage](t, rec)
	assert.Len(t, days, 7)
	require.Contains(t, days, "2025-04-01")
	assert.Len(t, days["2025-04-01"].Flights, 1)
	assert.Empty(t, days["2025-04-03"].Flights)
}

func TestHandleSearch_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.postJSON(t, "/admin/search", `{"origin":"JFK"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.postJSON(t, "/admin/search", `{"origin":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.index.SearchErrFn = func(query *domain.Query) error { return domain.ErrServiceUnavailable }
	rec = env.postJSON(t, "/admin/search", `{"origin":"JFK","destination":"LAX","departure_date":"2025-04-01"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/flights")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	server := NewServer(cfg, Dependencies{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestHandleFlightSeats(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.store.SaveFlight(ctx, testFlight("FL-1")))
	_, err := env.scheduler.TriggerNow(ctx)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/admin/flights/FL-1/seats")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[domain.SeatResponse](t, rec)
	require.Len(t, resp.Seats, 1)
	assert.Equal(t, "FL-1-1A", resp.Seats[0].SeatID)
	require.Len(t, resp.SeatMaps, 1)
	assert.Equal(t, 1, resp.SeatMaps[0].Available)

	rec = env.do(t, http.MethodGet, "/admin/flights/FL-1/seats?class=economy")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.SeatDocument](t, rec), 1)

	require.NoError(t, env.server.availability.HandleMessage(ctx,
		[]byte(`{"eventType":"SEAT_RESERVED","seatIds":["FL-1-1A"]}`)))

	rec = env.do(t, http.MethodGet, "/admin/flights/FL-1/seats?class=economy")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]domain.SeatDocument](t, rec))

	rec = env.do(t, http.MethodGet, "/admin/seats/FL-1-1A")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[domain.SeatDocument](t, rec).Available)
}

func TestHandleFlightSeats_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/admin/flights/missing/seats")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/seats/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, env.store.SaveFlight(context.Background(), testFlight("FL-1")))
	_, err := env.scheduler.TriggerNow(context.Background())
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/admin/flights/FL-1/seats?class=coach")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
