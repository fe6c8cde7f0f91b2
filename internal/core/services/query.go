package services

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/flight-catalog/internal/core/domain"
)

// flightSort orders results by departure time; flight id breaks ties so
// paging over an unchanged index is stable.
var flightSort = []domain.SortField{
	{Field: domain.FieldFlightStartTime, Ascending: true},
	{Field: domain.FieldFlightID, Ascending: true},
}

// BuildFlightQuery translates search criteria into index predicates.
// Every predicate is applied by the index; nothing is filtered after the query returns.
// Passenger counts and cabin class do not narrow the result set.
func BuildFlightQuery(criteria domain.FlightSearchCriteria) (*domain.Query, error) {
	origin := strings.TrimSpace(criteria.Origin)
	destination := strings.TrimSpace(criteria.Destination)
	if origin == "" || destination == "" {
		return nil, fmt.Errorf("%w: origin and destination are required", domain.ErrInvalidInput)
	}
	if _, err := domain.ParseDate(criteria.DepartureDate); err != nil {
		return nil, fmt.Errorf("%w: departure date: %v", domain.ErrInvalidInput, err)
	}
	if criteria.Page < 0 {
		return nil, fmt.Errorf("%w: page must not be negative", domain.ErrInvalidInput)
	}
	if criteria.MaxStops != nil && *criteria.MaxStops < 0 {
		return nil, fmt.Errorf("%w: max stops must not be negative", domain.ErrInvalidInput)
	}

	size := criteria.Size
	if size <= 0 {
		size = domain.DefaultPageSize
	}
	if size > domain.MaxPageSize {
		size = domain.MaxPageSize
	}

	predicates := []domain.Predicate{
		{Field: domain.FieldOrigin, Op: domain.OpEquals, Value: origin},
		{Field: domain.FieldDestination, Op: domain.OpEquals, Value: destination},
		{Field: domain.FieldDate, Op: domain.OpEquals, Value: criteria.DepartureDate},
	}

	if airlines := nonEmpty(criteria.PreferredAirlines); len(airlines) > 0 {
		predicates = append(predicates, domain.Predicate{
			Field:  domain.FieldAirlineCode,
			Op:     domain.OpIn,
			Values: airlines,
		})
	}
	if criteria.DirectFlightsOnly {
		predicates = append(predicates, domain.Predicate{
			Field: domain.FieldStopCount,
			Op:    domain.OpEquals,
			Value: 0,
		})
	}
	if criteria.MaxStops != nil {
		predicates = append(predicates, domain.Predicate{
			Field: domain.FieldStopCount,
			Op:    domain.OpLessOrEqual,
			Value: *criteria.MaxStops,
		})
	}

	sortFields := make([]domain.SortField, len(flightSort))
	copy(sortFields, flightSort)

	return &domain.Query{
		Predicates: predicates,
		Sort:       sortFields,
		Page:       domain.PageRequest{Number: criteria.Page, Size: size},
	}, nil
}

// ReturnCriteria derives the return-leg search: origin and destination swap
// and the return date replaces the departure date.
func ReturnCriteria(criteria domain.FlightSearchCriteria) (domain.FlightSearchCriteria, bool) {
	if criteria.ReturnDate == nil || *criteria.ReturnDate == "" {
		return domain.FlightSearchCriteria{}, false
	}
	ret := criteria
	ret.Origin, ret.Destination = criteria.Destination, criteria.Origin
	ret.DepartureDate = *criteria.ReturnDate
	ret.ReturnDate = nil
	return ret, true
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
