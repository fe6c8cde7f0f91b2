package vespa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
	"github.com/custodia-labs/flight-catalog/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SearchIndex = (*SearchIndex)(nil)

// SearchIndex implements driven.SearchIndex using Vespa's document/v1 and search APIs.
//
// Each document is stored as a handful of flat attribute fields used for
// filtering and sorting, plus a payload field holding the full JSON
// projection. Seat availability lives in its own attribute so a booking
// event can assign it without rewriting the payload.
type SearchIndex struct {
	baseURL    string
	namespace  string
	httpClient *http.Client
	feedLimit  int
	mappings   map[domain.IndexKind]domain.IndexMapping
}

// Config holds Vespa connection configuration
type Config struct {
	// BaseURL is the Vespa container endpoint (e.g., http://localhost:8080)
	BaseURL string

	// Namespace is the document/v1 namespace
	Namespace string

	// Timeout for HTTP requests
	Timeout time.Duration

	// FeedConcurrency bounds parallel writes in BulkUpsert
	FeedConcurrency int
}

// DefaultConfig returns sensible defaults
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		Namespace:       "catalog",
		Timeout:         10 * time.Second,
		FeedConcurrency: 8,
	}
}

// NewSearchIndex creates a Vespa-backed SearchIndex.
// Every registered index kind is resolved here so an unmapped kind fails at startup.
func NewSearchIndex(cfg Config) (*SearchIndex, error) {
	mappings, err := domain.ResolveIndexes(domain.IndexKinds()...)
	if err != nil {
		return nil, err
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "catalog"
	}
	if cfg.FeedConcurrency <= 0 {
		cfg.FeedConcurrency = 8
	}

	byKind := make(map[domain.IndexKind]domain.IndexMapping, len(mappings))
	for _, m := range mappings {
		byKind[m.Kind] = m
	}

	return &SearchIndex{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		namespace: cfg.Namespace,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		feedLimit: cfg.FeedConcurrency,
		mappings:  byKind,
	}, nil
}

// vespaDocument represents a document in Vespa format
type vespaDocument struct {
	Fields map[string]any `json:"fields"`
}

// vespaGetResponse is the document/v1 GET body
type vespaGetResponse struct {
	Fields struct {
		Payload   string `json:"payload"`
		Available *bool  `json:"available"`
	} `json:"fields"`
}

// vespaSearchResponse represents Vespa's search response format
type vespaSearchResponse struct {
	Root struct {
		Fields struct {
			TotalCount int64 `json:"totalCount"`
		} `json:"fields"`
		Children []struct {
			Fields struct {
				Payload   string `json:"payload"`
				Available *bool  `json:"available"`
			} `json:"fields"`
		} `json:"children"`
	} `json:"root"`
}

func (s *SearchIndex) docURL(kind domain.IndexKind, id string) (string, error) {
	m, ok := s.mappings[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownIndexKind, kind)
	}
	// Vespa document API: /document/v1/{namespace}/{doctype}/docid/{docid}
	return fmt.Sprintf("%s/document/v1/%s/%s/docid/%s",
		s.baseURL, s.namespace, m.DocumentType, url.PathEscape(id)), nil
}

// Upsert creates or replaces a document by its id
func (s *SearchIndex) Upsert(ctx context.Context, doc domain.Document) error {
	fields, err := documentFields(doc)
	if err != nil {
		return err
	}

	body, err := json.Marshal(vespaDocument{Fields: fields})
	if err != nil {
		return err
	}

	target, err := s.docURL(doc.Kind(), doc.DocumentID())
	if err != nil {
		return err
	}

	resp, err := s.do(ctx, http.MethodPost, target, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "index "+doc.DocumentID()); err != nil {
		return err
	}
	return nil
}

// BulkUpsert writes documents in parallel; one failure does not stop the rest
func (s *SearchIndex) BulkUpsert(ctx context.Context, docs []domain.Document) map[string]error {
	var mu sync.Mutex
	failed := make(map[string]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.feedLimit)

	for _, doc := range docs {
		g.Go(func() error {
			if err := s.Upsert(gctx, doc); err != nil {
				mu.Lock()
				failed[doc.DocumentID()] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return failed
}

// Get decodes the document of kind with id into dst
func (s *SearchIndex) Get(ctx context.Context, kind domain.IndexKind, id string, dst any) error {
	target, err := s.docURL(kind, id)
	if err != nil {
		return err
	}

	resp, err := s.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "get "+id); err != nil {
		return err
	}

	var got vespaGetResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		return fmt.Errorf("decode document %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(got.Fields.Payload), dst); err != nil {
		return fmt.Errorf("decode payload of %s: %w", id, err)
	}

	// The attribute is authoritative; booking events update it in place
	if seat, ok := dst.(*domain.SeatDocument); ok && got.Fields.Available != nil {
		seat.Available = *got.Fields.Available
	}
	return nil
}

// Exists reports whether a document is present
func (s *SearchIndex) Exists(ctx context.Context, kind domain.IndexKind, id string) (bool, error) {
	target, err := s.docURL(kind, id)
	if err != nil {
		return false, err
	}

	resp, err := s.do(ctx, http.MethodGet, target+"?fieldSet=[id]", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := checkStatus(resp, "exists "+id); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a document
func (s *SearchIndex) Delete(ctx context.Context, kind domain.IndexKind, id string) error {
	target, err := s.docURL(kind, id)
	if err != nil {
		return err
	}

	resp, err := s.do(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 404 is OK - document already deleted
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkStatus(resp, "delete "+id)
}

// SearchFlights evaluates a query against flight documents
func (s *SearchIndex) SearchFlights(ctx context.Context, query *domain.Query) (*domain.FlightPage, error) {
	yql, err := s.buildYQL(query)
	if err != nil {
		return nil, err
	}

	searchReq := map[string]any{
		"yql":    yql,
		"hits":   query.Page.Size,
		"offset": query.Page.Offset(),
	}

	body, err := json.Marshal(searchReq)
	if err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, http.MethodPost, s.baseURL+"/search/", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "search"); err != nil {
		return nil, err
	}

	var searchResp vespaSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	page := domain.EmptyFlightPage(query.Page)
	page.TotalCount = int(searchResp.Root.Fields.TotalCount)
	for _, hit := range searchResp.Root.Children {
		var doc domain.FlightDocument
		if err := json.Unmarshal([]byte(hit.Fields.Payload), &doc); err != nil {
			return nil, fmt.Errorf("decode flight hit: %w", err)
		}
		page.Flights = append(page.Flights, &doc)
	}
	return page, nil
}

// SearchSeats filters seat documents on their attributes. The available
// attribute overrides the payload copy, which partial updates leave stale.
func (s *SearchIndex) SearchSeats(ctx context.Context, query domain.SeatQuery) ([]*domain.SeatDocument, error) {
	m := s.mappings[domain.IndexKindSeat]

	conditions := []string{"true"}
	if query.FlightID != "" {
		conditions = append(conditions, "flight_id contains "+quote(query.FlightID))
	}
	if query.StopID != "" {
		conditions = append(conditions, "stop_id contains "+quote(query.StopID))
	}
	if query.Type != "" {
		conditions = append(conditions, "seat_type contains "+quote(string(query.Type)))
	}
	if query.Available != nil {
		conditions = append(conditions, fmt.Sprintf("available = %t", *query.Available))
	}
	yql := fmt.Sprintf("select * from %s where %s order by seat_id asc",
		m.DocumentType, strings.Join(conditions, " and "))

	body, err := json.Marshal(map[string]any{"yql": yql, "hits": domain.MaxSeatHits})
	if err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, http.MethodPost, s.baseURL+"/search/", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "search seats"); err != nil {
		return nil, err
	}

	var searchResp vespaSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode seat search response: %w", err)
	}

	seats := make([]*domain.SeatDocument, 0, len(searchResp.Root.Children))
	for _, hit := range searchResp.Root.Children {
		var doc domain.SeatDocument
		if err := json.Unmarshal([]byte(hit.Fields.Payload), &doc); err != nil {
			return nil, fmt.Errorf("decode seat hit: %w", err)
		}
		if hit.Fields.Available != nil {
			doc.Available = *hit.Fields.Available
		}
		seats = append(seats, &doc)
	}
	return seats, nil
}

// SetSeatAvailability assigns the available attribute with a partial update.
// create=false keeps Vespa from materializing a seat that was never indexed.
func (s *SearchIndex) SetSeatAvailability(ctx context.Context, seatID string, available bool) (bool, error) {
	target, err := s.docURL(domain.IndexKindSeat, seatID)
	if err != nil {
		return false, err
	}

	update := map[string]any{
		"fields": map[string]any{
			"available": map[string]any{"assign": available},
		},
	}
	body, err := json.Marshal(update)
	if err != nil {
		return false, err
	}

	resp, err := s.do(ctx, http.MethodPut, target+"?create=false", body)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err := checkStatus(resp, "update seat "+seatID); err != nil {
		return false, err
	}
	return true, nil
}

// HealthCheck verifies the search engine is available
func (s *SearchIndex) HealthCheck(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, s.baseURL+"/state/v1/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vespa unhealthy: %s: %w", resp.Status, domain.ErrServiceUnavailable)
	}
	return nil
}

func (s *SearchIndex) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vespa %s: %w: %v", method, domain.ErrServiceUnavailable, err)
	}
	return resp, nil
}

// checkStatus maps Vespa status codes onto domain errors
func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode < 400 {
		return nil
	}

	respBody, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("vespa %s: %w", op, domain.ErrNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("vespa %s failed: %s - %s: %w", op, resp.Status, string(respBody), domain.ErrServiceUnavailable)
	default:
		return fmt.Errorf("vespa %s failed: %s - %s", op, resp.Status, string(respBody))
	}
}

// documentFields flattens a document into its Vespa attribute fields plus payload
func documentFields(doc domain.Document) (map[string]any, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{"payload": string(payload)}

	switch d := doc.(type) {
	case *domain.FlightDocument:
		fields[domain.FieldFlightID] = d.FlightID
		fields[domain.FieldOrigin] = d.Origin
		fields[domain.FieldDestination] = d.Destination
		fields[domain.FieldDate] = d.Date
		fields[domain.FieldAirlineCode] = d.AirlineCode
		fields[domain.FieldStopCount] = d.StopCount
		fields[domain.FieldFlightStartTime] = d.FlightStartTime.UnixMilli()
		fields[domain.FieldStatus] = string(d.Status)
	case *domain.StopDocument:
		fields["stop_id"] = d.StopID
		fields["flight_id"] = d.FlightID
		fields["stop_sequence"] = d.StopSequence
	case *domain.SeatDocument:
		fields["seat_id"] = d.SeatID
		fields["stop_id"] = d.StopID
		fields["flight_id"] = d.FlightID
		fields["seat_type"] = string(d.Type)
		fields["available"] = d.Available
	default:
		return nil, fmt.Errorf("%w: no field mapping for %T", domain.ErrUnknownIndexKind, doc)
	}
	return fields, nil
}

// buildYQL renders predicates, sort, and the flight document type as YQL
func (s *SearchIndex) buildYQL(query *domain.Query) (string, error) {
	m := s.mappings[domain.IndexKindFlight]

	conditions := make([]string, 0, len(query.Predicates))
	for _, p := range query.Predicates {
		cond, err := predicateYQL(p)
		if err != nil {
			return "", err
		}
		conditions = append(conditions, cond)
	}

	whereClause := "true"
	if len(conditions) > 0 {
		whereClause = strings.Join(conditions, " and ")
	}

	yql := fmt.Sprintf("select * from %s where %s", m.DocumentType, whereClause)

	if len(query.Sort) > 0 {
		keys := make([]string, len(query.Sort))
		for i, f := range query.Sort {
			dir := "desc"
			if f.Ascending {
				dir = "asc"
			}
			keys[i] = f.Field + " " + dir
		}
		yql += " order by " + strings.Join(keys, ", ")
	}
	return yql, nil
}

func predicateYQL(p domain.Predicate) (string, error) {
	switch p.Op {
	case domain.OpEquals:
		return comparison(p.Field, "=", p.Value)
	case domain.OpLessOrEqual:
		return comparison(p.Field, "<=", p.Value)
	case domain.OpIn:
		if len(p.Values) == 0 {
			return "false", nil
		}
		parts := make([]string, len(p.Values))
		for i, v := range p.Values {
			parts[i] = fmt.Sprintf("%s contains %s", p.Field, quote(v))
		}
		return "(" + strings.Join(parts, " or ") + ")", nil
	}
	return "", fmt.Errorf("%w: unsupported predicate op %q", domain.ErrInvalidInput, p.Op)
}

func comparison(field, op string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		if op != "=" {
			return "", fmt.Errorf("%w: %s %s on a string field", domain.ErrInvalidInput, field, op)
		}
		return fmt.Sprintf("%s contains %s", field, quote(v)), nil
	case int:
		return fmt.Sprintf("%s %s %d", field, op, v), nil
	case int64:
		return fmt.Sprintf("%s %s %d", field, op, v), nil
	case time.Time:
		return fmt.Sprintf("%s %s %d", field, op, v.UnixMilli()), nil
	}
	return "", fmt.Errorf("%w: unsupported value %T for %s", domain.ErrInvalidInput, value, field)
}

// quote renders a YQL string literal
func quote(s string) string {
	return strconv.Quote(s)
}
