package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/abelzeko/water-dashboard/internal/entities"
)

// Format is a supported export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a user-supplied name to a Format. An empty name means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX, "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// FileName is the download name of the format
func (f Format) FileName() string {
	if f == FormatXLSX {
		return XLSXFileName
	}
	return CSVFileName
}

// ContentType is the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return XLSXContentType
	}
	return CSVContentType
}

// Write writes the table in the given format
func Write(w io.Writer, f Format, t *entities.Table) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatXLSX:
		return WriteXLSX(w, t)
	}
	return fmt.Errorf("unsupported export format %q", f)
}
