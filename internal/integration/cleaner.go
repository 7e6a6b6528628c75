package integration

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelzeko/water-dashboard/internal/entities"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// dateLayouts are tried after cast's own list of layouts
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"2006/1/2",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02 15:04",
	"2006-1-2",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04",
	"01/02/2006 15:04:05",
	"02.01.2006",
	"2.1.2006",
	"02.01.2006.",
	"02.01.2006 15:04",
	"20060102",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDate parses a date cell with a tolerant set of formats. The result is
// the wall clock the cell was written in, as UTC; zone offsets are dropped.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := cast.ToTimeInDefaultLocationE(s, time.UTC); err == nil {
		return entities.WallClock(t), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return entities.WallClock(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// CleanStats counts the rows removed by each cleaning stage
type CleanStats struct {
	Read           int
	Duplicates     int
	FilledCells    int
	BadDates       int
	LateDuplicates int
	Remaining      int
}

// Cleaner applies the cleaning policy to a raw table
type Cleaner struct {
	logger *zap.Logger
}

// NewCleaner creates a new Cleaner
func NewCleaner(logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{logger: logger}
}

// Clean drops duplicate rows, forward-fills missing cells, parses the Date
// column (dropping rows that do not parse) and renames the geographic columns.
// The input table is modified in place and returned.
func (c *Cleaner) Clean(t *entities.Table) (*entities.Table, error) {
	dateIdx := t.ColumnIndex(entities.ColumnDate)
	if dateIdx < 0 {
		return nil, &entities.ColumnMissingError{Column: entities.ColumnDate}
	}

	stats := CleanStats{Read: t.Len()}
	stats.Duplicates = DropDuplicates(t)
	stats.FilledCells = ForwardFill(t)
	stats.BadDates = ParseDates(t, dateIdx)
	RenameColumns(t, entities.SourceRenames)
	// Fill and date normalization can make formerly distinct rows equal
	stats.LateDuplicates = DropDuplicates(t)
	stats.Remaining = t.Len()

	c.logger.Info("Cleaned measurement data",
		zap.Int("read", stats.Read),
		zap.Int("duplicates", stats.Duplicates+stats.LateDuplicates),
		zap.Int("filled_cells", stats.FilledCells),
		zap.Int("remaining", stats.Remaining))
	if stats.BadDates > 0 {
		c.logger.Debug("Dropped rows with unparseable dates", zap.Int("rows", stats.BadDates))
	}
	return t, nil
}

// rowKey encodes every cell of a row, keeping missing distinct from empty text
func rowKey(r entities.Row) string {
	var b strings.Builder
	for _, c := range r.Cells {
		if c.Valid {
			b.WriteByte('v')
			b.WriteString(c.Value)
		} else {
			b.WriteByte('-')
		}
		b.WriteByte(0x1f)
	}
	return b.String()
}

// DropDuplicates removes rows equal in every cell to an earlier row and
// returns how many were removed. Missing cells compare equal to each other.
func DropDuplicates(t *entities.Table) int {
	seen := make(map[string]bool, len(t.Rows))
	kept := t.Rows[:0]
	for _, r := range t.Rows {
		key := rowKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, r)
	}
	removed := len(t.Rows) - len(kept)
	t.Rows = kept
	return removed
}

// ForwardFill replaces each missing cell with the nearest preceding valid
// value of its column. Leading missing cells stay missing. It returns the
// number of filled cells.
func ForwardFill(t *entities.Table) int {
	filled := 0
	for j := range t.Columns {
		var last entities.Cell
		for i := range t.Rows {
			cell := t.Rows[i].Cells[j]
			if cell.Valid {
				last = cell
				continue
			}
			if last.Valid {
				t.Rows[i].Cells[j] = last
				filled++
			}
		}
	}
	return filled
}

// ParseDates parses the date column of every row, dropping rows whose date
// is missing or unparseable. Parsed cells are rewritten in canonical form.
// It returns the number of dropped rows.
func ParseDates(t *entities.Table, dateIdx int) int {
	kept := t.Rows[:0]
	for _, r := range t.Rows {
		cell := r.Cells[dateIdx]
		if !cell.Valid {
			continue
		}
		d, err := ParseDate(cell.Value)
		if err != nil {
			continue
		}
		r.Date = d
		r.Cells[dateIdx] = entities.Cell{Value: entities.FormatDate(d), Valid: true}
		kept = append(kept, r)
	}
	dropped := len(t.Rows) - len(kept)
	t.Rows = kept
	return dropped
}

// RenameColumns applies a header rename map
func RenameColumns(t *entities.Table, renames map[string]string) {
	for i, c := range t.Columns {
		if to, ok := renames[c]; ok {
			t.Columns[i] = to
		}
	}
}
