// Package integration handles the measurement data source
package integration

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/abelzeko/water-dashboard/internal/entities"
	"go.uber.org/zap"
)

// nullTokens are the cell spellings read as missing values
var nullTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"-nan": true,
	"-NaN": true,
	"null": true,
	"NULL": true,
	"None": true,
	"#N/A": true,
	"#NA":  true,
	"<NA>": true,
}

// IsNullToken reports whether a raw CSV cell denotes a missing value
func IsNullToken(s string) bool {
	return nullTokens[strings.TrimSpace(s)]
}

// CSVSource loads and cleans the measurement CSV from a fixed path
type CSVSource struct {
	path   string
	logger *zap.Logger
}

// NewCSVSource creates a new measurement source for the file at path
func NewCSVSource(path string, logger *zap.Logger) *CSVSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSource{path: path, logger: logger}
}

// Path returns the file the source reads
func (s *CSVSource) Path() string {
	return s.path
}

// Load reads the CSV file and returns the cleaned table.
// A missing file yields an error matching entities.ErrDataUnavailable.
func (s *CSVSource) Load(ctx context.Context) (*entities.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("Data file not found", zap.String("path", s.path))
			return nil, fmt.Errorf("%w: file %s not found", entities.ErrDataUnavailable, s.path)
		}
		return nil, fmt.Errorf("stat data file: %w", err)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	raw, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	s.logger.Debug("Parsed measurement CSV",
		zap.String("path", s.path),
		zap.Int("columns", len(raw.Columns)),
		zap.Int("rows", raw.Len()))

	return NewCleaner(s.logger).Clean(raw)
}

// ReadCSV parses CSV content into a table without any cleaning.
// Short rows are padded with missing cells; Row.Date is left zero.
func ReadCSV(r io.Reader) (*entities.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv: no header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	table := entities.NewTable(header)
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		cells := make([]entities.Cell, len(header))
		for j := range cells {
			if j < len(record) && !IsNullToken(record[j]) {
				cells[j] = entities.Cell{Value: record[j], Valid: true}
			}
		}
		table.Rows = append(table.Rows, entities.Row{Cells: cells})
	}
	return table, nil
}
