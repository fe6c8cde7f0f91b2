package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.SyncService = (*SyncService)(nil)

// DefaultResyncPageSize is how many flights a resync reads from the store per page
const DefaultResyncPageSize = 100

// SyncService propagates writes from the relational store into the search index.
// Each flight write follows the same flow:
//  1. Validate and project the flight into its search document
//  2. Upsert the document into the index
//  3. Publish a flight event, only after the index write returned
//
// A crash between steps 2 and 3 loses the event; the index is still correct.
type SyncService struct {
	index          driven.SearchIndex
	publisher      driven.EventPublisher
	store          driven.CatalogStore
	resyncPageSize int
	now            func() time.Time
	resyncing      atomic.Bool
	logger         *slog.Logger
}

// SyncServiceConfig holds dependencies for SyncService.
type SyncServiceConfig struct {
	SearchIndex    driven.SearchIndex
	Publisher      driven.EventPublisher
	CatalogStore   driven.CatalogStore // Only needed by ResyncAll
	ResyncPageSize int
	Clock          func() time.Time
	Logger         *slog.Logger
}

// NewSyncService creates a new sync service.
func NewSyncService(cfg SyncServiceConfig) *SyncService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := cfg.ResyncPageSize
	if pageSize <= 0 {
		pageSize = DefaultResyncPageSize
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &SyncService{
		index:          cfg.SearchIndex,
		publisher:      cfg.Publisher,
		store:          cfg.CatalogStore,
		resyncPageSize: pageSize,
		now:            clock,
		logger:         logger,
	}
}

// SyncFlight indexes one flight and then announces it on flight-events.
func (s *SyncService) SyncFlight(ctx context.Context, flight *domain.Flight) error {
	doc, err := s.projectFlight(flight)
	if err != nil {
		return err
	}

	if err := s.index.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("index flight %s: %w", doc.FlightID, err)
	}

	msg, err := s.flightEvent(domain.FlightEventUpdated, doc.FlightID, doc)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, domain.TopicFlightEvents, msg.Key, msg.Payload); err != nil {
		return fmt.Errorf("publish flight event %s: %w", doc.FlightID, err)
	}

	s.logger.Debug("flight synced", "flight_id", doc.FlightID, "stop_count", doc.StopCount)
	return nil
}

// SyncFlights indexes flights in bulk. Events are published, in one batch,
// only for flights whose index write succeeded. Nothing is rolled back.
func (s *SyncService) SyncFlights(ctx context.Context, flights []*domain.Flight) (*domain.BatchResult, error) {
	result := domain.NewBatchResult(domain.IndexKindFlight)

	docs := make([]domain.Document, 0, len(flights))
	for i, flight := range flights {
		doc, err := s.projectFlight(flight)
		if err != nil {
			result.Fail(itemID(flight, i), domain.BatchStageValidate, err)
			continue
		}
		docs = append(docs, doc)
	}

	written := s.bulkIndex(ctx, docs, result)
	if len(written) == 0 {
		return s.finish(result)
	}

	// A flight only counts as synced once its event is out
	result.Succeeded = []string{}
	msgs := make([]*domain.Message, 0, len(written))
	for _, doc := range written {
		msg, err := s.flightEvent(domain.FlightEventUpdated, doc.DocumentID(), doc.(*domain.FlightDocument))
		if err != nil {
			result.Fail(doc.DocumentID(), domain.BatchStagePublish, err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return s.finish(result)
	}

	if err := s.publisher.PublishBatch(ctx, domain.TopicFlightEvents, msgs); err != nil {
		s.logger.Error("failed to publish flight events", "count", len(msgs), "error", err)
		for _, msg := range msgs {
			result.Fail(msg.Key, domain.BatchStagePublish, err)
		}
		return s.finish(result)
	}
	for _, msg := range msgs {
		result.Succeeded = append(result.Succeeded, msg.Key)
	}

	return s.finish(result)
}

// SyncStop indexes one stop.
func (s *SyncService) SyncStop(ctx context.Context, stop *domain.Stop) error {
	if stop == nil {
		return fmt.Errorf("%w: stop is required", domain.ErrInvalidInput)
	}
	if err := stop.Validate(); err != nil {
		return err
	}
	if err := s.index.Upsert(ctx, domain.NewStopDocument(stop, s.now())); err != nil {
		return fmt.Errorf("index stop %s: %w", stop.StopID, err)
	}
	return nil
}

// SyncStops indexes stops in bulk.
func (s *SyncService) SyncStops(ctx context.Context, stops []*domain.Stop) (*domain.BatchResult, error) {
	result := domain.NewBatchResult(domain.IndexKindStop)
	now := s.now()

	docs := make([]domain.Document, 0, len(stops))
	for i, stop := range stops {
		if stop == nil {
			result.Fail(fmt.Sprintf("#%d", i), domain.BatchStageValidate, domain.ErrInvalidInput)
			continue
		}
		if err := stop.Validate(); err != nil {
			result.Fail(stop.StopID, domain.BatchStageValidate, err)
			continue
		}
		docs = append(docs, domain.NewStopDocument(stop, now))
	}

	s.bulkIndex(ctx, docs, result)
	return s.finish(result)
}

// SyncSeat indexes one seat.
func (s *SyncService) SyncSeat(ctx context.Context, seat *domain.Seat) error {
	if seat == nil {
		return fmt.Errorf("%w: seat is required", domain.ErrInvalidInput)
	}
	if err := seat.Validate(); err != nil {
		return err
	}

	owners := s.resolveFlightIDs(ctx, []*domain.Seat{seat})
	if err := s.index.Upsert(ctx, domain.NewSeatDocument(seat, owners[seat.StopID], s.now())); err != nil {
		return fmt.Errorf("index seat %s: %w", seat.SeatID, err)
	}
	return nil
}

// SyncSeats indexes seats in bulk. The owning flight of each seat is taken
// from its stop's document when that stop is already indexed.
func (s *SyncService) SyncSeats(ctx context.Context, seats []*domain.Seat) (*domain.BatchResult, error) {
	result := domain.NewBatchResult(domain.IndexKindSeat)
	now := s.now()

	valid := make([]*domain.Seat, 0, len(seats))
	for i, seat := range seats {
		if seat == nil {
			result.Fail(fmt.Sprintf("#%d", i), domain.BatchStageValidate, domain.ErrInvalidInput)
			continue
		}
		if err := seat.Validate(); err != nil {
			result.Fail(seat.SeatID, domain.BatchStageValidate, err)
			continue
		}
		valid = append(valid, seat)
	}

	owners := s.resolveFlightIDs(ctx, valid)
	docs := make([]domain.Document, 0, len(valid))
	for _, seat := range valid {
		docs = append(docs, domain.NewSeatDocument(seat, owners[seat.StopID], now))
	}

	s.bulkIndex(ctx, docs, result)
	return s.finish(result)
}

// RemoveFlight deletes a flight's seat and stop documents, then the flight
// document, and publishes a flight-deleted event.
func (s *SyncService) RemoveFlight(ctx context.Context, flightID string) error {
	var doc domain.FlightDocument
	if err := s.index.Get(ctx, domain.IndexKindFlight, flightID, &doc); err != nil {
		return fmt.Errorf("get flight %s: %w", flightID, err)
	}

	for _, stop := range doc.Stops {
		for _, seat := range stop.Seats {
			if err := s.index.Delete(ctx, domain.IndexKindSeat, seat.SeatID); err != nil {
				return fmt.Errorf("delete seat %s: %w", seat.SeatID, err)
			}
		}
		if err := s.index.Delete(ctx, domain.IndexKindStop, stop.StopID); err != nil {
			return fmt.Errorf("delete stop %s: %w", stop.StopID, err)
		}
	}
	if err := s.index.Delete(ctx, domain.IndexKindFlight, flightID); err != nil {
		return fmt.Errorf("delete flight %s: %w", flightID, err)
	}

	msg, err := s.flightEvent(domain.FlightEventDeleted, flightID, nil)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, domain.TopicFlightEvents, msg.Key, msg.Payload); err != nil {
		return fmt.Errorf("publish flight event %s: %w", flightID, err)
	}

	s.logger.Info("flight removed from index", "flight_id", flightID, "stops", len(doc.Stops))
	return nil
}

// ResyncAll rebuilds flight, stop, and seat documents from the relational store.
// Seat availability in the index is overwritten with the stored value.
func (s *SyncService) ResyncAll(ctx context.Context) (*domain.ResyncReport, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: resync requires a catalog store", domain.ErrInvalidInput)
	}
	if !s.resyncing.CompareAndSwap(false, true) {
		return nil, domain.ErrSyncInProgress
	}
	defer s.resyncing.Store(false)

	report := &domain.ResyncReport{StartedAt: s.now()}
	s.logger.Info("starting full resync")

	for offset := 0; ; offset += s.resyncPageSize {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(report.StartedAt)
			return report, err
		}

		flights, err := s.store.ListFlights(ctx, s.resyncPageSize, offset)
		if err != nil {
			report.Duration = time.Since(report.StartedAt)
			return report, fmt.Errorf("list flights at offset %d: %w", offset, err)
		}
		if len(flights) == 0 {
			break
		}

		s.resyncPage(ctx, flights, report)

		if len(flights) < s.resyncPageSize {
			break
		}
	}

	report.Duration = time.Since(report.StartedAt)
	s.logger.Info("full resync completed",
		"flights", report.FlightsSynced,
		"stops", report.StopsSynced,
		"seats", report.SeatsSynced,
		"failures", len(report.Failures),
		"duration", report.Duration,
	)

	if len(report.Failures) > 0 {
		return report, fmt.Errorf("resync: %d items failed: %w", len(report.Failures), domain.ErrPartialBatch)
	}
	return report, nil
}

func (s *SyncService) resyncPage(ctx context.Context, flights []*domain.Flight, report *domain.ResyncReport) {
	flightResult, _ := s.SyncFlights(ctx, flights)
	report.FlightsSynced += len(flightResult.Succeeded)
	report.Failures = append(report.Failures, flightResult.Failed...)

	now := s.now()
	stopResult := domain.NewBatchResult(domain.IndexKindStop)
	seatResult := domain.NewBatchResult(domain.IndexKindSeat)
	var stopDocs, seatDocs []domain.Document

	invalid := make(map[string]bool)
	for _, f := range flightResult.Failed {
		if f.Stage == domain.BatchStageValidate {
			invalid[f.ID] = true
		}
	}

	for _, flight := range flights {
		if flight == nil || invalid[flight.FlightID] {
			continue
		}
		for i := range flight.Stops {
			stop := &flight.Stops[i]
			if err := stop.Validate(); err != nil {
				stopResult.Fail(stop.StopID, domain.BatchStageValidate, err)
				continue
			}
			stopDocs = append(stopDocs, domain.NewStopDocument(stop, now))

			for j := range stop.Seats {
				seat := &stop.Seats[j]
				if err := seat.Validate(); err != nil {
					seatResult.Fail(seat.SeatID, domain.BatchStageValidate, err)
					continue
				}
				seatDocs = append(seatDocs, domain.NewSeatDocument(seat, flight.FlightID, now))
			}
		}
	}

	s.bulkIndex(ctx, stopDocs, stopResult)
	s.bulkIndex(ctx, seatDocs, seatResult)

	report.StopsSynced += len(stopResult.Succeeded)
	report.SeatsSynced += len(seatResult.Succeeded)
	report.Failures = append(report.Failures, stopResult.Failed...)
	report.Failures = append(report.Failures, seatResult.Failed...)
}

// projectFlight validates a flight and builds its search document
func (s *SyncService) projectFlight(flight *domain.Flight) (*domain.FlightDocument, error) {
	if flight == nil {
		return nil, fmt.Errorf("%w: flight is required", domain.ErrInvalidInput)
	}
	doc := domain.NewFlightDocument(flight, s.now())
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// bulkIndex writes docs and records each outcome in result.
// It returns the documents that were written.
func (s *SyncService) bulkIndex(ctx context.Context, docs []domain.Document, result *domain.BatchResult) []domain.Document {
	if len(docs) == 0 {
		return nil
	}

	errs := s.index.BulkUpsert(ctx, docs)
	written := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		if err, failed := errs[doc.DocumentID()]; failed && err != nil {
			s.logger.Warn("failed to index document",
				"kind", doc.Kind(), "id", doc.DocumentID(), "error", err)
			result.Fail(doc.DocumentID(), domain.BatchStageIndex, err)
			continue
		}
		result.Succeeded = append(result.Succeeded, doc.DocumentID())
		written = append(written, doc)
	}
	return written
}

// resolveFlightIDs maps stop ids to their owning flight ids via indexed stop documents
func (s *SyncService) resolveFlightIDs(ctx context.Context, seats []*domain.Seat) map[string]string {
	owners := make(map[string]string)
	for _, seat := range seats {
		if seat.StopID == "" {
			continue
		}
		if _, seen := owners[seat.StopID]; seen {
			continue
		}
		var stop domain.StopDocument
		err := s.index.Get(ctx, domain.IndexKindStop, seat.StopID, &stop)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to resolve seat owner", "stop_id", seat.StopID, "error", err)
		}
		owners[seat.StopID] = stop.FlightID
	}
	return owners
}

func (s *SyncService) flightEvent(eventType domain.FlightEventType, flightID string, doc *domain.FlightDocument) (*domain.Message, error) {
	event := domain.FlightEvent{
		EventID:    uuid.New().String(),
		Type:       eventType,
		FlightID:   flightID,
		Flight:     doc,
		OccurredAt: s.now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode flight event %s: %w", flightID, err)
	}
	return &domain.Message{Topic: domain.TopicFlightEvents, Key: flightID, Payload: payload}, nil
}

func (s *SyncService) finish(result *domain.BatchResult) (*domain.BatchResult, error) {
	if result.HasFailures() {
		return result, fmt.Errorf("%d of %d %s items failed: %w",
			len(result.Failed), len(result.Failed)+len(result.Succeeded), result.Kind, domain.ErrPartialBatch)
	}
	return result, nil
}

func itemID(flight *domain.Flight, i int) string {
	if flight == nil || flight.FlightID == "" {
		return fmt.Sprintf("#%d", i)
	}
	return flight.FlightID
}
