package integration

import (
	"strings"
	"testing"
	"time"

	"github.com/abelzeko/water-dashboard/internal/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRead(t *testing.T, content string) *entities.Table {
	t.Helper()
	table, err := ReadCSV(strings.NewReader(content))
	require.NoError(t, err)
	return table
}

func columnValues(t *entities.Table, column string) []string {
	var out []string
	for i := range t.Rows {
		c, _ := t.Value(i, column)
		if c.Valid {
			out = append(out, c.Value)
		} else {
			out = append(out, "<null>")
		}
	}
	return out
}

func TestDropDuplicates(t *testing.T) {
	table := mustRead(t, "Date,Monitoring_Station,Nitrate_mg_L\n"+
		"2024-01-01,A,1.5\n"+
		"2024-01-01,A,1.5\n"+
		"2024-01-02,B,2.0\n")

	removed := DropDuplicates(table)

	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"A", "B"}, columnValues(table, "Monitoring_Station"))
}

func TestDropDuplicatesTreatsMissingAsEqual(t *testing.T) {
	table := mustRead(t, "Date,Monitoring_Station,pH\n"+
		"2024-01-01,A,\n"+
		"2024-01-01,A,NaN\n"+
		"2024-01-01,A,7.1\n")

	assert.Equal(t, 1, DropDuplicates(table))
	assert.Equal(t, 2, table.Len())
}

func TestForwardFill(t *testing.T) {
	table := mustRead(t, "Date,Water_Temperature_C,pH\n"+
		"2024-01-01,5,\n"+
		"2024-01-02,,5\n"+
		"2024-01-03,,\n"+
		"2024-01-04,8,\n")

	filled := ForwardFill(table)

	assert.Equal(t, []string{"5", "5", "5", "8"}, columnValues(table, "Water_Temperature_C"))
	assert.Equal(t, []string{"<null>", "5", "5", "5"}, columnValues(table, "pH"))
	assert.Equal(t, 4, filled)
}

func TestForwardFillKeepsLeadingNull(t *testing.T) {
	table := mustRead(t, "Date,pH\n2024-01-01,\n2024-01-02,5\n")

	ForwardFill(table)

	assert.Equal(t, []string{"<null>", "5"}, columnValues(table, "pH"))
}

func TestParseDate(t *testing.T) {
	cases := map[string]time.Time{
		"2024-03-05":             time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		"2024/03/05":             time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		"03/05/2024":             time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		"05.03.2024":             time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		"2024-03-05 14:30:00":    time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC),
		" 2024-03-05T08:00:00Z ": time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s: want %s got %s", in, want, got)
	}

	for _, bad := range []string{"", "yesterday", "2024-13-45", "not a date"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDateKeepsWallClockOfZonedValues(t *testing.T) {
	for _, in := range []string{"2024-01-01T06:00:00+08:00", "2024-01-01T06:00:00-05:00", "2024-01-01T06:00:00Z"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC), got, in)
	}
}

func TestCleanZonedDateRoundTrips(t *testing.T) {
	table := mustRead(t, "Date,Monitoring_Station,pH\n"+
		"2024-01-01T06:00:00+08:00,A,10\n"+
		"2024-01-02T00:00:00-03:00,B,7\n")

	cleaned, err := NewCleaner(nil).Clean(table)
	require.NoError(t, err)

	require.Equal(t, 2, cleaned.Len())
	assert.Equal(t, []string{"2024-01-01 06:00:00", "2024-01-02"}, columnValues(cleaned, "Date"))
	assert.Equal(t, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC), cleaned.Rows[0].Date)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), cleaned.Rows[1].Date)

	for _, r := range cleaned.Rows {
		again, err := ParseDate(entities.FormatDate(r.Date))
		require.NoError(t, err)
		assert.Equal(t, r.Date, again)
	}
}

func TestCleanDropsBadDatesAndRenames(t *testing.T) {
	table := mustRead(t, "Date,Monitoring_Station,Latitude,Longitude\n"+
		",S0,30.1,120.2\n"+
		"2024-01-01,S1,30.1,120.2\n"+
		"garbage,S2,31.0,121.0\n"+
		"2024-01-03,S3,32.0,122.0\n")

	cleaned, err := NewCleaner(nil).Clean(table)
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Monitoring_Station", "latitude", "longitude"}, cleaned.Columns)
	assert.Equal(t, []string{"S1", "S3"}, columnValues(cleaned, "Monitoring_Station"))
	for _, r := range cleaned.Rows {
		assert.False(t, r.Date.IsZero())
	}
}

func TestCleanFillsMissingDateFromPreviousRow(t *testing.T) {
	table := mustRead(t, "Date,Monitoring_Station\n2024-01-01,S1\n,S2\n")

	cleaned, err := NewCleaner(nil).Clean(table)
	require.NoError(t, err)

	require.Equal(t, 2, cleaned.Len())
	assert.Equal(t, cleaned.Rows[0].Date, cleaned.Rows[1].Date)
}

func TestCleanLeavesNoDuplicates(t *testing.T) {
	// Row 2 becomes a copy of row 1 once filled; row 4 matches row 3 once the
	// dates are normalized.
	table := mustRead(t, "Date,Monitoring_Station,pH\n"+
		"2024-01-01,A,7.0\n"+
		"2024-01-01,A,\n"+
		"2024-01-02,B,6.5\n"+
		"2024/01/02,B,6.5\n")

	cleaned, err := NewCleaner(nil).Clean(table)
	require.NoError(t, err)

	assert.Equal(t, 2, cleaned.Len())
	seen := map[string]bool{}
	for _, r := range cleaned.Rows {
		key := rowKey(r)
		assert.False(t, seen[key], "duplicate row %v", r.Cells)
		seen[key] = true
	}
}

func TestCleanRequiresDateColumn(t *testing.T) {
	table := mustRead(t, "Monitoring_Station\nA\n")

	_, err := NewCleaner(nil).Clean(table)

	var missing *entities.ColumnMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Date", missing.Column)
	assert.ErrorIs(t, err, entities.ErrColumnMissing)
}
