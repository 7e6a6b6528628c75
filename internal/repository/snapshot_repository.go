// Package repository provides data access implementations
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/abelzeko/water-dashboard/internal/entities"
	"github.com/abelzeko/water-dashboard/internal/integration"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrSnapshotNotFound is returned when no snapshot has the requested id
var ErrSnapshotNotFound = errors.New("snapshot not found")

// DefaultPath is used when no database path is configured
const DefaultPath = "data/snapshots.db"

// SnapshotRepository defines the persistence operations for filtered tables
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, from, to time.Time, stations []string, table *entities.Table) (string, error)
	LoadSnapshot(ctx context.Context, id string) (*Snapshot, error)
	ListSnapshots(ctx context.Context) ([]Snapshot, error)
	Close() error
}

// Snapshot is a stored filtered table together with the filter that produced it
type Snapshot struct {
	ID        string
	CreatedAt time.Time
	From      time.Time
	To        time.Time
	Stations  []string
	RowCount  int
	// Table is only set by LoadSnapshot
	Table *entities.Table
}

type snapshotRecord struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	DateFrom  string    `db:"date_from"`
	DateTo    string    `db:"date_to"`
	Stations  string    `db:"stations"`
	Columns   string    `db:"columns"`
	RowCount  int       `db:"row_count"`
}

type snapshotRow struct {
	SnapshotID string `db:"snapshot_id"`
	Position   int    `db:"position"`
	Cells      string `db:"cells"`
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	date_from TEXT NOT NULL,
	date_to TEXT NOT NULL,
	stations TEXT NOT NULL,
	columns TEXT NOT NULL,
	row_count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS snapshot_rows (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	cells TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, position)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at);`

// SQLiteSnapshotRepository implements SnapshotRepository using SQLite
type SQLiteSnapshotRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
	DBPath string
	now    func() time.Time
}

// NewSQLiteSnapshotRepository opens the database and creates the schema
func NewSQLiteSnapshotRepository(dbPath string, logger *zap.Logger) (*SQLiteSnapshotRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dbPath == "" {
		dbPath = DefaultPath
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	logger.Info("Opening snapshot database", zap.String("path", dbPath))
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteSnapshotRepository{
		db:     db,
		logger: logger,
		DBPath: dbPath,
		now:    time.Now,
	}, nil
}

// Close closes the database connection
func (r *SQLiteSnapshotRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveSnapshot stores a filtered table and returns its id
func (r *SQLiteSnapshotRepository) SaveSnapshot(ctx context.Context, from, to time.Time, stations []string, table *entities.Table) (string, error) {
	stationsJSON, err := json.Marshal(stations)
	if err != nil {
		return "", fmt.Errorf("failed to encode stations: %w", err)
	}
	columnsJSON, err := json.Marshal(table.Columns)
	if err != nil {
		return "", fmt.Errorf("failed to encode columns: %w", err)
	}

	rec := snapshotRecord{
		ID:        uuid.NewString(),
		CreatedAt: r.now().UTC(),
		DateFrom:  entities.FormatDate(from),
		DateTo:    entities.FormatDate(to),
		Stations:  string(stationsJSON),
		Columns:   string(columnsJSON),
		RowCount:  table.Len(),
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO snapshots(id, created_at, date_from, date_to, stations, columns, row_count)
		VALUES(:id, :created_at, :date_from, :date_to, :stations, :columns, :row_count)`, rec); err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `INSERT INTO snapshot_rows(snapshot_id, position, cells) VALUES(?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, row := range table.Rows {
		cells, err := encodeCells(row.Cells)
		if err != nil {
			return "", fmt.Errorf("failed to encode row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, i, cells); err != nil {
			return "", fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("Saved snapshot", zap.String("id", rec.ID), zap.Int("rows", rec.RowCount))
	return rec.ID, nil
}

// LoadSnapshot reads a stored snapshot including its table
func (r *SQLiteSnapshotRepository) LoadSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	var rec snapshotRecord
	err := r.db.GetContext(ctx, &rec, `SELECT * FROM snapshots WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot %s: %w", id, err)
	}

	snap, err := rec.decode()
	if err != nil {
		return nil, err
	}
	var columns []string
	if err := json.Unmarshal([]byte(rec.Columns), &columns); err != nil {
		return nil, fmt.Errorf("failed to decode columns: %w", err)
	}

	var rows []snapshotRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT snapshot_id, position, cells FROM snapshot_rows WHERE snapshot_id = ? ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("failed to query snapshot rows: %w", err)
	}

	table := entities.NewTable(columns)
	dateIdx := table.ColumnIndex(entities.ColumnDate)
	for _, sr := range rows {
		cells, err := decodeCells(sr.Cells)
		if err != nil {
			return nil, fmt.Errorf("failed to decode row %d: %w", sr.Position, err)
		}
		row := entities.Row{Cells: cells}
		if dateIdx >= 0 && cells[dateIdx].Valid {
			if d, err := integration.ParseDate(cells[dateIdx].Value); err == nil {
				row.Date = d
			}
		}
		table.Rows = append(table.Rows, row)
	}
	snap.Table = table
	return snap, nil
}

// ListSnapshots returns stored snapshots, newest first, without their tables
func (r *SQLiteSnapshotRepository) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	var recs []snapshotRecord
	if err := r.db.SelectContext(ctx, &recs, `SELECT * FROM snapshots ORDER BY created_at DESC`); err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}

	result := make([]Snapshot, 0, len(recs))
	for _, rec := range recs {
		snap, err := rec.decode()
		if err != nil {
			return nil, err
		}
		result = append(result, *snap)
	}
	return result, nil
}

func (rec snapshotRecord) decode() (*Snapshot, error) {
	snap := &Snapshot{ID: rec.ID, CreatedAt: rec.CreatedAt, RowCount: rec.RowCount}
	if err := json.Unmarshal([]byte(rec.Stations), &snap.Stations); err != nil {
		return nil, fmt.Errorf("failed to decode stations of %s: %w", rec.ID, err)
	}
	var err error
	if snap.From, err = integration.ParseDate(rec.DateFrom); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", rec.ID, err)
	}
	if snap.To, err = integration.ParseDate(rec.DateTo); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", rec.ID, err)
	}
	return snap, nil
}

// encodeCells stores a row as a JSON array with null for missing cells
func encodeCells(cells []entities.Cell) (string, error) {
	values := make([]*string, len(cells))
	for i := range cells {
		if cells[i].Valid {
			v := cells[i].Value
			values[i] = &v
		}
	}
	b, err := json.Marshal(values)
	return string(b), err
}

func decodeCells(s string) ([]entities.Cell, error) {
	var values []*string
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		return nil, err
	}
	cells := make([]entities.Cell, len(values))
	for i, v := range values {
		if v != nil {
			cells[i] = entities.Cell{Value: *v, Valid: true}
		}
	}
	return cells, nil
}
