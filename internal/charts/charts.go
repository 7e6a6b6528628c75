// Package charts renders the report charts as PNG images
package charts

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/abelzeko/water-dashboard/internal/usecases"
	"github.com/wcharczuk/go-chart/v2"
)

// ErrNoData is returned when there is nothing to draw
var ErrNoData = errors.New("no data to chart")

// ContentType of every rendered chart
const ContentType = "image/png"

// Renderer draws charts at a fixed size
type Renderer struct {
	Width  int
	Height int
}

// NewRenderer creates a new chart renderer
func NewRenderer(width, height int) *Renderer {
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 480
	}
	return &Renderer{Width: width, Height: height}
}

// lineStyle returns the style of one station's series
func lineStyle(index int) chart.Style {
	col := chart.GetDefaultColor(index)
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: 2,
		DotColor:    col,
		DotWidth:    3,
	}
}

// pointStyle returns a style that renders points only (no connecting line)
func pointStyle(index int) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    5,
		DotColor:    chart.GetDefaultColor(index),
	}
}

// paddedRange returns a range around [min, max] that is never empty
func paddedRange(min, max float64) *chart.ContinuousRange {
	if min == max {
		return &chart.ContinuousRange{Min: min - 1, Max: max + 1}
	}
	pad := (max - min) * 0.05
	return &chart.ContinuousRange{Min: min - pad, Max: max + pad}
}

// Series draws one line per station for a grouped-mean column
func (r *Renderer) Series(w io.Writer, grouped *usecases.GroupedMeans, spec usecases.SeriesChart) error {
	if grouped == nil {
		return ErrNoData
	}
	stations, err := grouped.Series(spec.Column)
	if err != nil {
		return err
	}

	minY, maxY := math.Inf(1), math.Inf(-1)
	series := make([]chart.Series, 0, len(stations))
	for i, s := range stations {
		xs, ys := s.Dates, s.Values
		// a single point has no x range; repeat it a second later
		if len(xs) == 1 {
			xs = []time.Time{xs[0], xs[0].Add(time.Second)}
			ys = []float64{ys[0], ys[0]}
		}
		for _, v := range ys {
			minY = math.Min(minY, v)
			maxY = math.Max(maxY, v)
		}
		series = append(series, chart.TimeSeries{
			Name:    s.Station,
			XValues: xs,
			YValues: ys,
			Style:   lineStyle(i),
		})
	}
	if len(series) == 0 {
		return ErrNoData
	}

	graph := chart.Chart{
		Title:      spec.Title,
		Width:      r.Width,
		Height:     r.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "Date",
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
		},
		YAxis: chart.YAxis{
			Name:  spec.Column,
			Range: paddedRange(minY, maxY),
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render %s chart: %w", spec.Column, err)
	}
	return nil
}

// TopStations draws the station ranking as a bar chart
func (r *Renderer) TopStations(w io.Writer, stations []usecases.StationMean) error {
	var bars []chart.Value
	minY, maxY := 0.0, 0.0
	for _, s := range stations {
		if math.IsNaN(s.Mean) {
			continue
		}
		bars = append(bars, chart.Value{Value: s.Mean, Label: s.Station})
		minY = math.Min(minY, s.Mean)
		maxY = math.Max(maxY, s.Mean)
	}
	if len(bars) == 0 {
		return ErrNoData
	}
	if maxY == minY {
		maxY = minY + 1
	}

	graph := chart.BarChart{
		Title:      fmt.Sprintf("Top %d Stations by Mean Water Temperature (°C)", usecases.TopStationCount),
		Width:      r.Width,
		Height:     r.Height,
		BarWidth:   60,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: minY, Max: maxY * 1.1},
		},
		Bars: bars,
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render top stations chart: %w", err)
	}
	return nil
}

// Composition draws the parameter means as a pie chart. Zero and NaN means are left out.
func (r *Renderer) Composition(w io.Writer, params []usecases.ParameterMean) error {
	total := 0.0
	for _, p := range params {
		if !math.IsNaN(p.Mean) && p.Mean > 0 {
			total += p.Mean
		}
	}
	var values []chart.Value
	for _, p := range params {
		if math.IsNaN(p.Mean) || p.Mean <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Value: p.Mean,
			Label: fmt.Sprintf("%s (%.1f%%)", p.Parameter, p.Mean/total*100),
		})
	}
	if len(values) == 0 {
		return ErrNoData
	}

	graph := chart.PieChart{
		Title:  "Mean Water Parameter Composition",
		Width:  r.Width,
		Height: r.Height,
		Values: values,
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render composition chart: %w", err)
	}
	return nil
}

// StationMap plots station locations as longitude/latitude points, one colour per station
func (r *Renderer) StationMap(w io.Writer, points []usecases.GeoPoint) error {
	if len(points) == 0 {
		return ErrNoData
	}

	type coords struct{ lons, lats []float64 }
	byStation := make(map[string]*coords)
	var order []string
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		c, ok := byStation[p.Station]
		if !ok {
			c = &coords{}
			byStation[p.Station] = c
			order = append(order, p.Station)
		}
		c.lons = append(c.lons, p.Longitude)
		c.lats = append(c.lats, p.Latitude)
		minX, maxX = math.Min(minX, p.Longitude), math.Max(maxX, p.Longitude)
		minY, maxY = math.Min(minY, p.Latitude), math.Max(maxY, p.Latitude)
	}

	series := make([]chart.Series, 0, len(order))
	for i, name := range order {
		c := byStation[name]
		series = append(series, chart.ContinuousSeries{
			Name:    name,
			XValues: c.lons,
			YValues: c.lats,
			Style:   pointStyle(i),
		})
	}

	graph := chart.Chart{
		Title:      "Monitoring Station Locations",
		Width:      r.Width,
		Height:     r.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "Longitude", Range: paddedRange(minX, maxX)},
		YAxis:      chart.YAxis{Name: "Latitude", Range: paddedRange(minY, maxY)},
		Series:     series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render station map: %w", err)
	}
	return nil
}
