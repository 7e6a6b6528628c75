// Package entities contains the core domain objects for the water-dashboard application
package entities

import (
	"time"
)

// Column names of the source data set
const (
	ColumnDate            = "Date"
	ColumnStation         = "Monitoring_Station"
	ColumnProvince        = "Province"
	ColumnLatitude        = "latitude"
	ColumnLongitude       = "longitude"
	ColumnTemperature     = "Water_Temperature_C"
	ColumnDissolvedOxygen = "Dissolved_Oxygen_mg_L"
	ColumnTurbidity       = "Turbidity_NTU"
	ColumnNitrate         = "Nitrate_mg_L"
	ColumnPH              = "pH"
)

// SourceRenames maps source headers to their canonical names after loading
var SourceRenames = map[string]string{
	"Latitude":  ColumnLatitude,
	"Longitude": ColumnLongitude,
}

// Cell is a single table value. Valid is false for a missing value.
type Cell struct {
	Value string
	Valid bool
}

// Row is one Measurement Record. Cells are aligned with Table.Columns.
type Row struct {
	Cells []Cell
	Date  time.Time // Parsed value of the Date column
}

// Table is an ordered sequence of measurement rows sharing one header
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable creates an empty table with the given header
func NewTable(columns []string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}
}

// ColumnIndex returns the position of a column, or -1 if the table does not have it
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table has the named column
func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Value returns the cell of row i in the named column
func (t *Table) Value(i int, column string) (Cell, bool) {
	idx := t.ColumnIndex(column)
	if idx < 0 || i < 0 || i >= len(t.Rows) {
		return Cell{}, false
	}
	return t.Rows[i].Cells[idx], true
}

// Station returns the monitoring station identifier of row i
func (t *Table) Station(i int) string {
	c, _ := t.Value(i, ColumnStation)
	return c.Value
}

// Subset returns a table with the same header holding the rows at the given positions
func (t *Table) Subset(indices []int) *Table {
	out := NewTable(t.Columns)
	out.Rows = make([]Row, 0, len(indices))
	for _, i := range indices {
		out.Rows = append(out.Rows, t.Rows[i])
	}
	return out
}

// DateSpan returns the earliest and latest row dates. ok is false for an empty table.
func (t *Table) DateSpan() (min, max time.Time, ok bool) {
	for i, r := range t.Rows {
		if i == 0 || r.Date.Before(min) {
			min = r.Date
		}
		if i == 0 || r.Date.After(max) {
			max = r.Date
		}
	}
	return min, max, len(t.Rows) > 0
}

// Stations returns the distinct station identifiers in encounter order
func (t *Table) Stations() []string {
	idx := t.ColumnIndex(ColumnStation)
	if idx < 0 {
		return nil
	}
	seen := make(map[string]bool)
	var stations []string
	for _, r := range t.Rows {
		c := r.Cells[idx]
		if !c.Valid || seen[c.Value] {
			continue
		}
		seen[c.Value] = true
		stations = append(stations, c.Value)
	}
	return stations
}

// MissingCount is the number of missing cells in one column
type MissingCount struct {
	Column string
	Count  int
}

// MissingCounts returns the columns that still hold missing values, in header order
func (t *Table) MissingCounts() []MissingCount {
	counts := make([]int, len(t.Columns))
	for _, r := range t.Rows {
		for j, c := range r.Cells {
			if !c.Valid {
				counts[j]++
			}
		}
	}
	var result []MissingCount
	for j, n := range counts {
		if n > 0 {
			result = append(result, MissingCount{Column: t.Columns[j], Count: n})
		}
	}
	return result
}

// WallClock keeps the clock reading of t and drops its zone, returning it as UTC.
// Row dates are always wall-clock UTC so calendar days match what the source wrote.
func WallClock(t time.Time) time.Time {
	y, m, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, m, d, h, mi, s, t.Nanosecond(), time.UTC)
}

// CalendarDate truncates a timestamp to UTC midnight of its wall-clock day
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a row date the way exports write it
func FormatDate(t time.Time) string {
	h, m, s := t.Clock()
	if h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}
