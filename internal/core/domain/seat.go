package domain

import "sort"

// MaxSeatHits bounds one seat query; a wide-body flight with several legs stays well under it
const MaxSeatHits = 1000

// SeatQuery selects seat documents. Zero fields do not filter.
type SeatQuery struct {
	FlightID  string
	StopID    string
	Type      SeatType
	Available *bool
}

// SeatMap lays out one stop's seats by row and column.
// Layout[i][j] is the seat number at Rows[i], Columns[j], or "" where the cabin has no seat.
type SeatMap struct {
	StopID    string     `json:"stop_id"`
	Rows      []int      `json:"rows"`
	Columns   []string   `json:"columns"`
	Layout    [][]string `json:"layout"`
	Available int        `json:"available"`
}

// SeatResponse is every seat of a flight plus a seat map per stop
type SeatResponse struct {
	FlightID string          `json:"flight_id"`
	Seats    []*SeatDocument `json:"seats"`
	SeatMaps []SeatMap       `json:"seat_maps"`
}

// SortSeats orders seats by stop, row, then column
func SortSeats(seats []*SeatDocument) {
	sort.SliceStable(seats, func(i, j int) bool {
		a, b := seats[i], seats[j]
		if a.StopID != b.StopID {
			return a.StopID < b.StopID
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Column < b.Column
	})
}

// BuildSeatMaps groups sorted seats by stop into seat maps
func BuildSeatMaps(seats []*SeatDocument) []SeatMap {
	var maps []SeatMap
	for start := 0; start < len(seats); {
		end := start
		for end < len(seats) && seats[end].StopID == seats[start].StopID {
			end++
		}
		maps = append(maps, buildSeatMap(seats[start].StopID, seats[start:end]))
		start = end
	}
	return maps
}

func buildSeatMap(stopID string, seats []*SeatDocument) SeatMap {
	rowIdx := make(map[int]int)
	colIdx := make(map[string]int)
	m := SeatMap{StopID: stopID}

	for _, s := range seats {
		if _, ok := rowIdx[s.Row]; !ok {
			rowIdx[s.Row] = 0
			m.Rows = append(m.Rows, s.Row)
		}
		if _, ok := colIdx[s.Column]; !ok {
			colIdx[s.Column] = 0
			m.Columns = append(m.Columns, s.Column)
		}
		if s.Available {
			m.Available++
		}
	}
	sort.Ints(m.Rows)
	sort.Strings(m.Columns)
	for i, r := range m.Rows {
		rowIdx[r] = i
	}
	for j, c := range m.Columns {
		colIdx[c] = j
	}

	m.Layout = make([][]string, len(m.Rows))
	for i := range m.Layout {
		m.Layout[i] = make([]string, len(m.Columns))
	}
	for _, s := range seats {
		m.Layout[rowIdx[s.Row]][colIdx[s.Column]] = s.SeatNumber
	}
	return m
}
