package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrDataUnavailable is returned when the source data file does not exist
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrColumnMissing is matched by every ColumnMissingError
	ErrColumnMissing = errors.New("column missing")
)

// ColumnMissingError reports an expected column that the table does not have
type ColumnMissingError struct {
	Column string
}

func (e *ColumnMissingError) Error() string {
	return fmt.Sprintf("column %q missing", e.Column)
}

// Is lets errors.Is(err, ErrColumnMissing) match any missing column
func (e *ColumnMissingError) Is(target error) bool {
	return target == ErrColumnMissing
}

// RequireColumns returns a ColumnMissingError for the first absent column
func (t *Table) RequireColumns(columns ...string) error {
	for _, c := range columns {
		if !t.HasColumn(c) {
			return &ColumnMissingError{Column: c}
		}
	}
	return nil
}
