// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abelzeko/water-dashboard/internal/entities"
	"go.uber.org/zap"
)

// Section names used when a report part is skipped
const (
	SectionTemperature = "temperature"
	SectionSeries      = "series"
	SectionProvinces   = "provinces"
	SectionTopStations = "top_stations"
	SectionMap         = "map"
)

// SeriesChart describes one time-series chart of the report
type SeriesChart struct {
	Column string
	Title  string
}

// SeriesCharts lists the time-series charts in display order
var SeriesCharts = []SeriesChart{
	{Column: entities.ColumnTemperature, Title: "Water Temperature (°C) Over Time"},
	{Column: entities.ColumnDissolvedOxygen, Title: "Dissolved Oxygen (mg/L)"},
	{Column: entities.ColumnTurbidity, Title: "Turbidity (NTU)"},
	{Column: entities.ColumnNitrate, Title: "Nitrate Level Over Time"},
}

// MeasurementSource provides the cleaned measurement table
type MeasurementSource interface {
	Load(ctx context.Context) (*entities.Table, error)
}

// Request is a user's report request. Zero dates and an empty station list
// fall back to the defaults.
type Request struct {
	From     time.Time
	To       time.Time
	Stations []string
}

// SkippedSection records a report part left out because a column is absent
type SkippedSection struct {
	Section string
	Column  string
}

// Report holds everything the front ends present for one interaction
type Report struct {
	GeneratedAt time.Time

	// Whole cleaned table
	TotalRows      int
	TotalColumns   int
	Missing        []entities.MissingCount
	StationOptions []string
	DataFrom       time.Time
	DataTo         time.Time
	Provinces      []ProvinceStat

	// Filtered view
	Selection   Selection
	Truncated   bool
	Warnings    []string
	Filtered    *entities.Table
	Summary     Summary
	Grouped     *GroupedMeans
	TopStations []StationMean
	Composition []ParameterMean
	MapPoints   []GeoPoint

	Skipped []SkippedSection
}

// IsSkipped reports whether a section was skipped
func (r *Report) IsSkipped(section string) bool {
	for _, s := range r.Skipped {
		if s.Section == section {
			return true
		}
	}
	return false
}

// AvailableSeries returns the series charts whose column exists in the grouped data
func (r *Report) AvailableSeries() []SeriesChart {
	if r.Grouped == nil {
		return nil
	}
	var charts []SeriesChart
	for _, c := range SeriesCharts {
		for _, col := range r.Grouped.Columns {
			if col == c.Column {
				charts = append(charts, c)
				break
			}
		}
	}
	return charts
}

// ReportUseCase builds reports from the measurement source
type ReportUseCase struct {
	source      MeasurementSource
	logger      *zap.Logger
	maxStations int
	now         func() time.Time
}

// NewReportUseCase creates a new report use case
func NewReportUseCase(source MeasurementSource, maxStations int, logger *zap.Logger) *ReportUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxStations <= 0 {
		maxStations = DefaultMaxStations
	}
	return &ReportUseCase{
		source:      source,
		logger:      logger,
		maxStations: maxStations,
		now:         time.Now,
	}
}

// MaxStations returns the station selection cap
func (uc *ReportUseCase) MaxStations() int {
	return uc.maxStations
}

// Stations returns every station identifier in the data, in encounter order
func (uc *ReportUseCase) Stations(ctx context.Context) ([]string, error) {
	table, err := uc.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	return table.Stations(), nil
}

// Build loads the data, applies the request and computes every report section.
// Absent optional columns skip their section; any other error aborts.
func (uc *ReportUseCase) Build(ctx context.Context, req Request) (*Report, error) {
	table, err := uc.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load measurements: %w", err)
	}

	report := &Report{
		GeneratedAt:    uc.now(),
		TotalRows:      table.Len(),
		TotalColumns:   len(table.Columns),
		Missing:        table.MissingCounts(),
		StationOptions: table.Stations(),
	}
	report.DataFrom, report.DataTo, _ = table.DateSpan()
	report.Selection = uc.resolveSelection(table, req, report)

	report.Filtered, err = Filter(table, report.Selection)
	if err != nil {
		return nil, fmt.Errorf("filter measurements: %w", err)
	}
	report.Summary = Summarize(report.Filtered)
	if !report.Summary.HasTemperature {
		report.skip(SectionTemperature, entities.ColumnTemperature)
	}

	if report.Grouped, err = GroupByDateStation(report.Filtered); err != nil {
		if err := report.skipOn(SectionSeries, err); err != nil {
			return nil, err
		}
	}
	if report.Provinces, err = ProvinceMeans(table); err != nil {
		if err := report.skipOn(SectionProvinces, err); err != nil {
			return nil, err
		}
	}
	if report.TopStations, err = TopStations(report.Filtered, TopStationCount); err != nil {
		if err := report.skipOn(SectionTopStations, err); err != nil {
			return nil, err
		}
	}
	report.Composition = Composition(report.Filtered)
	if report.MapPoints, err = MapPoints(report.Filtered); err != nil {
		if err := report.skipOn(SectionMap, err); err != nil {
			return nil, err
		}
	}

	uc.logger.Info("Built report",
		zap.Time("from", report.Selection.From),
		zap.Time("to", report.Selection.To),
		zap.Strings("stations", report.Selection.Stations),
		zap.Int("rows", report.Summary.Rows),
		zap.Int("skipped_sections", len(report.Skipped)))
	return report, nil
}

// resolveSelection fills request defaults and applies the station cap
func (uc *ReportUseCase) resolveSelection(table *entities.Table, req Request, report *Report) Selection {
	sel := DefaultSelection(table, uc.maxStations)
	if !req.From.IsZero() {
		sel.From = entities.CalendarDate(req.From)
	}
	if !req.To.IsZero() {
		sel.To = entities.CalendarDate(req.To)
	}
	if sel.From.After(sel.To) {
		sel.From, sel.To = sel.To, sel.From
		report.Warnings = append(report.Warnings, "The start date was after the end date; the range was swapped.")
	}
	if len(req.Stations) > 0 {
		sel.Stations, report.Truncated = NormalizeStations(req.Stations, uc.maxStations)
		if report.Truncated {
			uc.logger.Warn("Station selection truncated",
				zap.Int("requested", len(req.Stations)),
				zap.Int("max", uc.maxStations))
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("At most %d stations can be shown; the selection was truncated.", uc.maxStations))
		}
	}
	return sel
}

func (r *Report) skip(section, column string) {
	r.Skipped = append(r.Skipped, SkippedSection{Section: section, Column: column})
}

// skipOn records a skipped section for a missing column and returns any other error
func (r *Report) skipOn(section string, err error) error {
	var missing *entities.ColumnMissingError
	if errors.As(err, &missing) {
		r.skip(section, missing.Column)
		return nil
	}
	return fmt.Errorf("%s: %w", section, err)
}
