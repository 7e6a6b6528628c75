package usecases

import (
	"fmt"
	"math"
	"strings"
)

const dayLayout = "2006-01-02"

// Shares returns each composition mean as a percentage of their total.
// NaN means count as zero.
func (r *Report) Shares() []float64 {
	total := 0.0
	for _, p := range r.Composition {
		if !math.IsNaN(p.Mean) && p.Mean > 0 {
			total += p.Mean
		}
	}
	shares := make([]float64, len(r.Composition))
	if total == 0 {
		return shares
	}
	for i, p := range r.Composition {
		if !math.IsNaN(p.Mean) && p.Mean > 0 {
			shares[i] = p.Mean / total * 100
		}
	}
	return shares
}

// Markdown renders the report as a Markdown document
func (r *Report) Markdown() string {
	var b strings.Builder

	b.WriteString("# Water Quality Report\n\n")
	b.WriteString(fmt.Sprintf("_Generated %s_\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05")))

	b.WriteString("## Data overview\n\n")
	b.WriteString(fmt.Sprintf("- Rows: %d\n", r.TotalRows))
	b.WriteString(fmt.Sprintf("- Columns: %d\n", r.TotalColumns))
	if r.TotalRows > 0 {
		b.WriteString(fmt.Sprintf("- Data span: %s to %s\n", r.DataFrom.Format(dayLayout), r.DataTo.Format(dayLayout)))
	}
	if len(r.Missing) == 0 {
		b.WriteString("- Missing values: none\n\n")
	} else {
		b.WriteString("\n| Column | Missing |\n|---|---:|\n")
		for _, m := range r.Missing {
			b.WriteString(fmt.Sprintf("| `%s` | %d |\n", m.Column, m.Count))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Filter\n\n")
	b.WriteString(fmt.Sprintf("- Date range: %s\n", r.selectionRange(" to ")))
	b.WriteString(fmt.Sprintf("- Stations: %s\n\n", strings.Join(r.Selection.Stations, ", ")))
	for _, w := range r.Warnings {
		b.WriteString(fmt.Sprintf("> ⚠ %s\n\n", w))
	}

	b.WriteString("## Statistics\n\n")
	b.WriteString("| Metric | Value |\n|---|---:|\n")
	b.WriteString(fmt.Sprintf("| Rows | %d |\n", r.Summary.Rows))
	b.WriteString(fmt.Sprintf("| Active stations | %d |\n", r.Summary.Stations))
	if r.Summary.HasTemperature {
		b.WriteString(fmt.Sprintf("| Mean temperature | %s °C |\n", FormatValue(r.Summary.MeanTemperature)))
	}
	b.WriteString("\n")

	if !r.IsSkipped(SectionProvinces) {
		b.WriteString("## Province statistics\n\n")
		b.WriteString("| Province | `Water_Temperature_C` | `pH` | `Dissolved_Oxygen_mg_L` |\n|---|---:|---:|---:|\n")
		for _, p := range r.Provinces {
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				p.Province, FormatValue(p.Temperature), FormatValue(p.PH), FormatValue(p.DissolvedOxygen)))
		}
		b.WriteString("\n")
	}

	if !r.IsSkipped(SectionTopStations) {
		b.WriteString(fmt.Sprintf("## Top %d stations by mean temperature\n\n", TopStationCount))
		b.WriteString("| # | Station | Mean °C |\n|---:|---|---:|\n")
		for i, s := range r.TopStations {
			b.WriteString(fmt.Sprintf("| %d | %s | %s |\n", i+1, s.Station, FormatValue(s.Mean)))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Parameter composition\n\n")
	b.WriteString("| Parameter | Mean | Share |\n|---|---:|---:|\n")
	shares := r.Shares()
	for i, p := range r.Composition {
		b.WriteString(fmt.Sprintf("| `%s` | %s | %.1f%% |\n", p.Parameter, FormatValue(p.Mean), shares[i]))
	}
	b.WriteString("\n")

	if len(r.Skipped) > 0 {
		b.WriteString("## Skipped sections\n\n")
		for _, s := range r.Skipped {
			b.WriteString(fmt.Sprintf("- %s: column `%s` missing\n", s.Section, s.Column))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// FormatSummary renders a short plain-text summary for chat messages
func (r *Report) FormatSummary() string {
	var result strings.Builder

	result.WriteString(fmt.Sprintf("📅 %s\n", r.selectionRange(" – ")))
	result.WriteString(fmt.Sprintf("📍 Stations: %s\n\n", strings.Join(r.Selection.Stations, ", ")))
	for _, w := range r.Warnings {
		result.WriteString(fmt.Sprintf("⚠️ %s\n", w))
	}
	result.WriteString(fmt.Sprintf("📊 Rows: %d\n", r.Summary.Rows))
	result.WriteString(fmt.Sprintf("🏭 Active stations: %d\n", r.Summary.Stations))
	if r.Summary.HasTemperature {
		result.WriteString(fmt.Sprintf("🌡️ Mean temperature: %s °C\n", FormatValue(r.Summary.MeanTemperature)))
	}

	if len(r.TopStations) > 0 {
		result.WriteString("\n🔥 Warmest stations:\n")
		for i, s := range r.TopStations {
			result.WriteString(fmt.Sprintf("%d. %s: %s °C\n", i+1, s.Station, FormatValue(s.Mean)))
		}
	}

	result.WriteString("\n💧 Mean parameters:\n")
	for _, p := range r.Composition {
		result.WriteString(fmt.Sprintf("• %s: %s\n", p.Parameter, FormatValue(p.Mean)))
	}

	result.WriteString(fmt.Sprintf("\n🕒 Generated: %s", r.GeneratedAt.Format("2006-01-02 15:04:05")))
	return result.String()
}

// selectionRange joins the selected bounds, or reports that no dated rows exist
func (r *Report) selectionRange(sep string) string {
	if r.Selection.From.IsZero() && r.Selection.To.IsZero() {
		return "no dated rows"
	}
	return r.Selection.From.Format(dayLayout) + sep + r.Selection.To.Format(dayLayout)
}
