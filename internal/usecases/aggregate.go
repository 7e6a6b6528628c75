package usecases

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/abelzeko/water-dashboard/internal/entities"
	"github.com/montanaflynn/stats"
	"github.com/spf13/cast"
)

// DefaultMaxStations is the station selection cap
const DefaultMaxStations = 6

// TopStationCount is the length of the top stations ranking
const TopStationCount = 5

// ProvinceColumns are the parameters summarized per province
var ProvinceColumns = []string{
	entities.ColumnTemperature,
	entities.ColumnPH,
	entities.ColumnDissolvedOxygen,
}

// CompositionColumns are the parameters of the proportional breakdown
var CompositionColumns = []string{
	entities.ColumnTemperature,
	entities.ColumnDissolvedOxygen,
	entities.ColumnTurbidity,
	entities.ColumnNitrate,
}

// Selection is the user's filter: an inclusive calendar date range and a station set
type Selection struct {
	From     time.Time
	To       time.Time
	Stations []string
}

// NormalizeStations drops repeated selections and keeps the first max entries.
// truncated reports whether entries were cut.
func NormalizeStations(selected []string, max int) (stations []string, truncated bool) {
	if max <= 0 {
		max = DefaultMaxStations
	}
	seen := make(map[string]bool, len(selected))
	for _, s := range selected {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		stations = append(stations, s)
	}
	if len(stations) > max {
		return stations[:max], true
	}
	return stations, false
}

// DefaultSelection spans the whole data set and picks the first max stations encountered
func DefaultSelection(t *entities.Table, max int) Selection {
	if max <= 0 {
		max = DefaultMaxStations
	}
	from, to, _ := t.DateSpan()
	stations := t.Stations()
	if len(stations) > max {
		stations = stations[:max]
	}
	return Selection{
		From:     entities.CalendarDate(from),
		To:       entities.CalendarDate(to),
		Stations: stations,
	}
}

// Filter returns the rows whose calendar date lies in [From, To] and whose
// station is selected, in their original order.
func Filter(t *entities.Table, sel Selection) (*entities.Table, error) {
	stationIdx := t.ColumnIndex(entities.ColumnStation)
	if stationIdx < 0 {
		return nil, &entities.ColumnMissingError{Column: entities.ColumnStation}
	}
	wanted := make(map[string]bool, len(sel.Stations))
	for _, s := range sel.Stations {
		wanted[s] = true
	}
	from := entities.CalendarDate(sel.From)
	to := entities.CalendarDate(sel.To)

	var keep []int
	for i, r := range t.Rows {
		day := entities.CalendarDate(r.Date)
		if day.Before(from) || day.After(to) {
			continue
		}
		station := r.Cells[stationIdx]
		if !station.Valid || !wanted[station.Value] {
			continue
		}
		keep = append(keep, i)
	}
	return t.Subset(keep), nil
}

// mean returns the arithmetic mean, or NaN for no values
func mean(values []float64) float64 {
	m, err := stats.Mean(values)
	if err != nil {
		return math.NaN()
	}
	return m
}

// round2 rounds to two decimals, passing NaN through
func round2(v float64) float64 {
	r, err := stats.Round(v, 2)
	if err != nil {
		return v
	}
	return r
}

// parseNumber reads a numeric cell
func parseNumber(c entities.Cell) (float64, bool) {
	if !c.Valid {
		return 0, false
	}
	v, err := cast.ToFloat64E(strings.TrimSpace(c.Value))
	if err != nil {
		return 0, false
	}
	return v, true
}

// columnNumbers returns the valid numeric values of a column
func columnNumbers(t *entities.Table, column string) []float64 {
	idx := t.ColumnIndex(column)
	if idx < 0 {
		return nil
	}
	var values []float64
	for _, r := range t.Rows {
		if v, ok := parseNumber(r.Cells[idx]); ok {
			values = append(values, v)
		}
	}
	return values
}

// NumericColumns returns the columns whose present values are all numbers.
// The date and station keys are never numeric.
func NumericColumns(t *entities.Table) []string {
	var cols []string
	for j, name := range t.Columns {
		if name == entities.ColumnDate || name == entities.ColumnStation {
			continue
		}
		numeric := true
		for _, r := range t.Rows {
			if !r.Cells[j].Valid {
				continue
			}
			if _, ok := parseNumber(r.Cells[j]); !ok {
				numeric = false
				break
			}
		}
		if numeric {
			cols = append(cols, name)
		}
	}
	return cols
}

// Summary holds the headline metrics of a filtered table
type Summary struct {
	Rows            int
	Stations        int
	MeanTemperature float64 // NaN when no temperatures are present
	HasTemperature  bool    // false when the temperature column is absent
}

// Summarize computes row count, distinct station count and mean temperature
func Summarize(t *entities.Table) Summary {
	s := Summary{
		Rows:            t.Len(),
		Stations:        len(t.Stations()),
		MeanTemperature: math.NaN(),
		HasTemperature:  t.HasColumn(entities.ColumnTemperature),
	}
	if s.HasTemperature {
		s.MeanTemperature = mean(columnNumbers(t, entities.ColumnTemperature))
	}
	return s
}

// GroupMean is one (date, station) group of the grouped-mean table
type GroupMean struct {
	Date    time.Time
	Station string
	Values  []float64 // aligned with GroupedMeans.Columns; NaN when the group has no value
}

// GroupedMeans is the per (date, station) mean of every numeric column
type GroupedMeans struct {
	Columns []string
	Groups  []GroupMean
}

// GroupByDateStation computes grouped means keyed by (date, station), sorted
// by date and then station.
func GroupByDateStation(t *entities.Table) (*GroupedMeans, error) {
	stationIdx := t.ColumnIndex(entities.ColumnStation)
	if stationIdx < 0 {
		return nil, &entities.ColumnMissingError{Column: entities.ColumnStation}
	}
	columns := NumericColumns(t)
	colIdx := make([]int, len(columns))
	for k, c := range columns {
		colIdx[k] = t.ColumnIndex(c)
	}

	type groupKey struct {
		unix    int64
		station string
	}
	type bucket struct {
		date    time.Time
		station string
		values  [][]float64
	}
	buckets := make(map[groupKey]*bucket)
	var order []groupKey

	for _, r := range t.Rows {
		station := r.Cells[stationIdx]
		if !station.Valid {
			continue
		}
		key := groupKey{unix: r.Date.UnixNano(), station: station.Value}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{date: r.Date, station: station.Value, values: make([][]float64, len(columns))}
			buckets[key] = b
			order = append(order, key)
		}
		for k, idx := range colIdx {
			if v, ok := parseNumber(r.Cells[idx]); ok {
				b.values[k] = append(b.values[k], v)
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].unix != order[j].unix {
			return order[i].unix < order[j].unix
		}
		return order[i].station < order[j].station
	})

	result := &GroupedMeans{Columns: columns, Groups: make([]GroupMean, 0, len(order))}
	for _, key := range order {
		b := buckets[key]
		g := GroupMean{Date: b.date, Station: b.station, Values: make([]float64, len(columns))}
		for k := range columns {
			g.Values[k] = mean(b.values[k])
		}
		result.Groups = append(result.Groups, g)
	}
	return result, nil
}

// StationSeries is the time series of one station for one column
type StationSeries struct {
	Station string
	Dates   []time.Time
	Values  []float64
}

// Series splits a grouped column into one series per station, sorted by
// station name. Groups without a value are left out.
func (g *GroupedMeans) Series(column string) ([]StationSeries, error) {
	k := -1
	for i, c := range g.Columns {
		if c == column {
			k = i
			break
		}
	}
	if k < 0 {
		return nil, &entities.ColumnMissingError{Column: column}
	}

	byStation := make(map[string]*StationSeries)
	var names []string
	for _, grp := range g.Groups {
		v := grp.Values[k]
		if math.IsNaN(v) {
			continue
		}
		s, ok := byStation[grp.Station]
		if !ok {
			s = &StationSeries{Station: grp.Station}
			byStation[grp.Station] = s
			names = append(names, grp.Station)
		}
		s.Dates = append(s.Dates, grp.Date)
		s.Values = append(s.Values, v)
	}
	sort.Strings(names)

	series := make([]StationSeries, 0, len(names))
	for _, n := range names {
		series = append(series, *byStation[n])
	}
	return series, nil
}

// ProvinceStat is the rounded per-province mean of the province parameters
type ProvinceStat struct {
	Province        string
	Temperature     float64
	PH              float64
	DissolvedOxygen float64
}

// ProvinceMeans computes the per-province means of temperature, pH and
// dissolved oxygen rounded to 2 decimals, sorted by province.
func ProvinceMeans(t *entities.Table) ([]ProvinceStat, error) {
	if err := t.RequireColumns(append([]string{entities.ColumnProvince}, ProvinceColumns...)...); err != nil {
		return nil, err
	}
	provIdx := t.ColumnIndex(entities.ColumnProvince)
	colIdx := make([]int, len(ProvinceColumns))
	for k, c := range ProvinceColumns {
		colIdx[k] = t.ColumnIndex(c)
	}

	values := make(map[string][][]float64)
	for _, r := range t.Rows {
		p := r.Cells[provIdx]
		if !p.Valid {
			continue
		}
		if _, ok := values[p.Value]; !ok {
			values[p.Value] = make([][]float64, len(ProvinceColumns))
		}
		for k, idx := range colIdx {
			if v, ok := parseNumber(r.Cells[idx]); ok {
				values[p.Value][k] = append(values[p.Value][k], v)
			}
		}
	}

	provinces := make([]string, 0, len(values))
	for p := range values {
		provinces = append(provinces, p)
	}
	sort.Strings(provinces)

	result := make([]ProvinceStat, 0, len(provinces))
	for _, p := range provinces {
		v := values[p]
		result = append(result, ProvinceStat{
			Province:        p,
			Temperature:     round2(mean(v[0])),
			PH:              round2(mean(v[1])),
			DissolvedOxygen: round2(mean(v[2])),
		})
	}
	return result, nil
}

// StationMean is a station's mean value of one parameter
type StationMean struct {
	Station string
	Mean    float64
}

// TopStations ranks stations by mean temperature, highest first, and returns
// at most n. Equal means keep the order in which stations first appear;
// stations without a temperature sort last.
func TopStations(t *entities.Table, n int) ([]StationMean, error) {
	if err := t.RequireColumns(entities.ColumnStation, entities.ColumnTemperature); err != nil {
		return nil, err
	}
	stationIdx := t.ColumnIndex(entities.ColumnStation)
	tempIdx := t.ColumnIndex(entities.ColumnTemperature)

	values := make(map[string][]float64)
	var order []string
	for _, r := range t.Rows {
		s := r.Cells[stationIdx]
		if !s.Valid {
			continue
		}
		if _, ok := values[s.Value]; !ok {
			values[s.Value] = nil
			order = append(order, s.Value)
		}
		if v, ok := parseNumber(r.Cells[tempIdx]); ok {
			values[s.Value] = append(values[s.Value], v)
		}
	}

	ranked := make([]StationMean, 0, len(order))
	for _, s := range order {
		ranked = append(ranked, StationMean{Station: s, Mean: mean(values[s])})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Mean, ranked[j].Mean
		if math.IsNaN(a) {
			return false
		}
		if math.IsNaN(b) {
			return true
		}
		return a > b
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// ParameterMean is the overall mean of one parameter
type ParameterMean struct {
	Parameter string
	Mean      float64
}

// Composition returns the overall means of the composition parameters.
// An absent column contributes 0.
func Composition(t *entities.Table) []ParameterMean {
	result := make([]ParameterMean, 0, len(CompositionColumns))
	for _, c := range CompositionColumns {
		m := 0.0
		if t.HasColumn(c) {
			m = mean(columnNumbers(t, c))
		}
		result = append(result, ParameterMean{Parameter: c, Mean: m})
	}
	return result
}

// GeoPoint is the location of one measurement
type GeoPoint struct {
	Station   string
	Latitude  float64
	Longitude float64
}

// MapPoints returns the coordinates of every row that has both of them
func MapPoints(t *entities.Table) ([]GeoPoint, error) {
	if err := t.RequireColumns(entities.ColumnLatitude, entities.ColumnLongitude); err != nil {
		return nil, err
	}
	latIdx := t.ColumnIndex(entities.ColumnLatitude)
	lonIdx := t.ColumnIndex(entities.ColumnLongitude)
	stationIdx := t.ColumnIndex(entities.ColumnStation)

	var points []GeoPoint
	for _, r := range t.Rows {
		lat, ok1 := parseNumber(r.Cells[latIdx])
		lon, ok2 := parseNumber(r.Cells[lonIdx])
		if !ok1 || !ok2 {
			continue
		}
		p := GeoPoint{Latitude: lat, Longitude: lon}
		if stationIdx >= 0 {
			p.Station = r.Cells[stationIdx].Value
		}
		points = append(points, p)
	}
	return points, nil
}

// FormatValue renders an aggregate for display, using "n/a" for NaN
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}
