package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/abelzeko/water-dashboard/internal/entities"
	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the exported rows
const SheetName = "measurements"

// WriteXLSX writes the table as a single-sheet workbook. Numeric cells are
// stored as numbers, missing cells are left blank.
func WriteXLSX(w io.Writer, t *entities.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(t.Columns))
	for j, c := range t.Columns {
		header[j] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	dateIdx := t.ColumnIndex(entities.ColumnDate)
	stationIdx := t.ColumnIndex(entities.ColumnStation)
	for i, r := range t.Rows {
		row := make([]interface{}, len(r.Cells))
		for j, c := range r.Cells {
			switch {
			case !c.Valid:
				row[j] = nil
			case j == dateIdx || j == stationIdx:
				row[j] = c.Value
			default:
				if v, err := cast.ToFloat64E(strings.TrimSpace(c.Value)); err == nil {
					row[j] = v
				} else {
					row[j] = c.Value
				}
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
