// Package export writes filtered measurement tables to downloadable files
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/abelzeko/water-dashboard/internal/entities"
)

// Download names and content types of the supported formats
const (
	CSVFileName     = "filtered_water_pollution.csv"
	CSVContentType  = "text/csv"
	XLSXFileName    = "filtered_water_pollution.xlsx"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// WriteCSV writes the table as UTF-8 CSV with its header. Missing cells are empty.
func WriteCSV(w io.Writer, t *entities.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(t.Columns))
	for i, r := range t.Rows {
		for j, c := range r.Cells {
			if c.Valid {
				record[j] = c.Value
			} else {
				record[j] = ""
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
