package http

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
)

// StatusResponse is returned by the liveness and readiness probes
type StatusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// VersionResponse is returned by /version
type VersionResponse struct {
	Version string `json:"version"`
}

// StatsResponse is returned by /stats
type StatsResponse struct {
	Reconciler *domain.ReconcileStats `json:"reconciler,omitempty"`
	Bus        *driven.BusStats       `json:"bus,omitempty"`
	BusError   string                 `json:"bus_error,omitempty"`
	LastResync *domain.ResyncReport   `json:"last_resync,omitempty"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady pings every registered dependency; any failure makes the instance not ready.
func (s *Server) handleReady(c echo.Context) error {
	ctx := c.Request().Context()

	names := append([]string(nil), s.checkOrder...)
	sort.Strings(names)

	resp := StatusResponse{Status: "ready", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx, s.checkTimeout)
		err := s.checks[name].Ping(checkCtx)
		cancel()

		if err != nil {
			s.logger.Warn("readiness check failed", "check", name, "error", err)
			resp.Checks[name] = err.Error()
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	return c.JSON(status, resp)
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, VersionResponse{Version: s.version})
}

func (s *Server) handleStats(c echo.Context) error {
	var resp StatsResponse

	if s.availability != nil {
		stats := s.availability.Stats()
		resp.Reconciler = &stats
	}
	if s.bus != nil {
		stats, err := s.bus.Stats(c.Request().Context())
		if err != nil {
			resp.BusError = err.Error()
		} else {
			resp.Bus = stats
		}
	}
	if s.scheduler != nil {
		resp.LastResync = s.scheduler.LastReport()
	}

	return c.JSON(http.StatusOK, resp)
}

// handleResync runs one lock-guarded full resync and returns its report.
func (s *Server) handleResync(c echo.Context) error {
	if s.scheduler == nil {
		return writeError(c, http.StatusServiceUnavailable, "resync scheduler not configured")
	}

	report, err := s.scheduler.TriggerNow(c.Request().Context())
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		return writeError(c, http.StatusConflict, "resync already in progress")
	case errors.Is(err, domain.ErrLockLost):
		return writeError(c, http.StatusConflict, "resync aborted: lock taken over by another instance")
	case errors.Is(err, domain.ErrPartialBatch) && report != nil:
		// Succeeded documents stay indexed; report lists the failed ones
		return c.JSON(http.StatusMultiStatus, report)
	case errors.Is(err, domain.ErrServiceUnavailable):
		return writeError(c, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.logger.Error("manual resync failed", "error", err)
		return writeError(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, report)
}

func writeError(c echo.Context, status int, message string) error {
	return c.JSON(status, ErrorResponse{Error: message})
}

// handleSearch runs a search exactly as the product service would, for
// checking what the index returns. flexible_dates switches to the seven-day fan-out.
func (s *Server) handleSearch(c echo.Context) error {
	if s.search == nil {
		return writeError(c, http.StatusServiceUnavailable, "search not configured")
	}

	var criteria domain.FlightSearchCriteria
	if err := c.Bind(&criteria); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}

	ctx := c.Request().Context()
	if criteria.FlexibleDates {
		days, err := s.search.SearchFlexibleDates(ctx, criteria)
		if err != nil {
			return s.searchError(c, err)
		}
		return c.JSON(http.StatusOK, days)
	}

	resp, err := s.search.Search(ctx, criteria)
	if err != nil {
		return s.searchError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleFlightSeats lists a flight's seats with seat maps, or with
// ?class= only the available seats of that cabin class.
func (s *Server) handleFlightSeats(c echo.Context) error {
	if s.seats == nil {
		return writeError(c, http.StatusServiceUnavailable, "seats not configured")
	}

	ctx := c.Request().Context()
	flightID := c.Param("flightID")
	if class := c.QueryParam("class"); class != "" {
		seats, err := s.seats.AvailableSeatsByClass(ctx, flightID, domain.SeatType(strings.ToUpper(class)))
		if err != nil {
			return s.searchError(c, err)
		}
		return c.JSON(http.StatusOK, seats)
	}

	resp, err := s.seats.SeatsForFlight(ctx, flightID)
	if err != nil {
		return s.searchError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSeat(c echo.Context) error {
	if s.seats == nil {
		return writeError(c, http.StatusServiceUnavailable, "seats not configured")
	}

	seat, err := s.seats.GetSeat(c.Request().Context(), c.Param("seatID"))
	if err != nil {
		return s.searchError(c, err)
	}
	return c.JSON(http.StatusOK, seat)
}

func (s *Server) searchError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrServiceUnavailable):
		return writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("search failed", "error", err)
		return writeError(c, http.StatusInternalServerError, err.Error())
	}
}
