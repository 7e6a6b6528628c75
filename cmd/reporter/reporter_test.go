package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abelzeko/water-dashboard/internal/export"
	"github.com/abelzeko/water-dashboard/internal/integration"
	"github.com/abelzeko/water-dashboard/internal/repository"
	"github.com/abelzeko/water-dashboard/internal/usecases"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const measurementsCSV = `Date,Monitoring_Station,Province,Latitude,Longitude,Water_Temperature_C,pH,Dissolved_Oxygen_mg_L
2024-01-01,A,Hubei,30.0,114.0,10,7.0,8.0
2024-01-01,B,Hunan,28.0,112.0,15,6.8,7.5
2024-01-02,A,Hubei,30.0,114.0,12,7.1,8.1
2024-01-02,B,Hunan,28.0,112.0,,6.9,7.6
`

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "measurements.csv")
	require.NoError(t, os.WriteFile(path, []byte(measurementsCSV), 0o644))
	return path
}

// execute runs the root command with args and returns its stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	chdir(t, t.TempDir())
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRequestFlags(t *testing.T) {
	f := requestFlags{from: "2024-01-01", to: " 2024/01/31 ", stations: []string{"A", " ", "B"}}

	req, err := f.request()
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), req.From)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), req.To)
	assert.Equal(t, []string{"A", "B"}, req.Stations)

	_, err = (&requestFlags{from: "soon"}).request()
	assert.ErrorContains(t, err, "--from")
}

func TestSummaryCommand(t *testing.T) {
	path := writeCSV(t)

	out, err := execute(t, "summary", "--data", path, "--station", "A", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "📍 Stations: A")
	assert.Contains(t, out, "📊 Rows: 2")
	assert.Contains(t, out, "🌡️ Mean temperature: 11.00 °C")
}

func TestSummaryCommandMissingData(t *testing.T) {
	_, err := execute(t, "summary", "--data", filepath.Join(t.TempDir(), "nope.csv"), "--log-level", "error")

	assert.ErrorContains(t, err, "not found")
}

func TestExportCommandToStdout(t *testing.T) {
	path := writeCSV(t)

	out, err := execute(t, "export", "--data", path, "--from", "2024-01-02", "-o", "-", "--log-level", "error")
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "latitude", records[0][3])
	assert.Equal(t, "2024-01-02", records[1][0])
	// forward-filled from the row above
	assert.Equal(t, "12", records[2][5])
}

func TestExportJobWritesTimestampedFile(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)
	repo, err := repository.NewSQLiteSnapshotRepository(filepath.Join(dir, "snapshots.db"), logger)
	require.NoError(t, err)
	defer repo.Close()

	job := &exportJob{
		useCase:   usecases.NewReportUseCase(integration.NewCSVSource(writeCSV(t), logger), 6, logger),
		request:   usecases.Request{Stations: []string{"B"}},
		dir:       filepath.Join(dir, "exports"),
		format:    export.FormatCSV,
		snapshots: repo,
		logger:    logger,
		now:       func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) },
	}

	path, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "exports", "filtered_water_pollution_20240501T093000.csv"), path)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)

	snaps, err := repo.ListSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, []string{"B"}, snaps[0].Stations)
}

func TestExportJobFileNameXLSX(t *testing.T) {
	job := &exportJob{format: export.FormatXLSX}

	name := job.fileName(time.Date(2024, 12, 31, 23, 59, 1, 0, time.UTC))

	assert.Equal(t, "filtered_water_pollution_20241231T235901.xlsx", name)
}

func TestDefaultScheduleParses(t *testing.T) {
	_, err := cron.ParseStandard("0 * * * *")
	assert.NoError(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", mask(""))
	assert.Equal(t, "****", mask("short"))
	assert.Equal(t, "1234…cdef", mask("1234567890abcdef"))
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
