package charts

import (
	"errors"
	"fmt"
	"io"

	"github.com/abelzeko/water-dashboard/internal/entities"
	"github.com/abelzeko/water-dashboard/internal/usecases"
)

// ErrUnknownKind is returned for a chart name that does not exist
var ErrUnknownKind = errors.New("unknown chart")

// Chart names accepted by Render besides the series aliases
const (
	KindTopStations = "top-stations"
	KindComposition = "composition"
	KindMap         = "map"
)

// SeriesAliases maps short chart names to the grouped column they plot
var SeriesAliases = map[string]string{
	"temperature": entities.ColumnTemperature,
	"oxygen":      entities.ColumnDissolvedOxygen,
	"turbidity":   entities.ColumnTurbidity,
	"nitrate":     entities.ColumnNitrate,
}

// Kinds lists every chart name in display order
func Kinds() []string {
	kinds := make([]string, 0, len(SeriesAliases)+3)
	for _, sc := range usecases.SeriesCharts {
		kinds = append(kinds, aliasOf(sc.Column))
	}
	return append(kinds, KindTopStations, KindComposition, KindMap)
}

// Available lists the chart names a report can draw, in display order
func Available(report *usecases.Report) []string {
	var kinds []string
	for _, sc := range report.AvailableSeries() {
		kinds = append(kinds, aliasOf(sc.Column))
	}
	if !report.IsSkipped(usecases.SectionTopStations) {
		kinds = append(kinds, KindTopStations)
	}
	kinds = append(kinds, KindComposition)
	if !report.IsSkipped(usecases.SectionMap) {
		kinds = append(kinds, KindMap)
	}
	return kinds
}

func aliasOf(column string) string {
	for alias, c := range SeriesAliases {
		if c == column {
			return alias
		}
	}
	return column
}

// Render draws the named chart of a report
func (r *Renderer) Render(w io.Writer, report *usecases.Report, kind string) error {
	if column, ok := SeriesAliases[kind]; ok {
		for _, sc := range usecases.SeriesCharts {
			if sc.Column == column {
				if err := skippedError(report, usecases.SectionSeries); err != nil {
					return err
				}
				return r.Series(w, report.Grouped, sc)
			}
		}
	}

	switch kind {
	case KindTopStations:
		if err := skippedError(report, usecases.SectionTopStations); err != nil {
			return err
		}
		return r.TopStations(w, report.TopStations)
	case KindComposition:
		return r.Composition(w, report.Composition)
	case KindMap:
		if err := skippedError(report, usecases.SectionMap); err != nil {
			return err
		}
		return r.StationMap(w, report.MapPoints)
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func skippedError(report *usecases.Report, section string) error {
	for _, s := range report.Skipped {
		if s.Section == section {
			return &entities.ColumnMissingError{Column: s.Column}
		}
	}
	return nil
}
