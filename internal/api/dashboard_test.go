package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/abelzeko/water-dashboard/internal/charts"
	"github.com/abelzeko/water-dashboard/internal/repository"
	"github.com/abelzeko/water-dashboard/internal/usecases"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestDashboard(t *testing.T, src usecases.MeasurementSource, snapshots repository.SnapshotRepository) *httptest.Server {
	t.Helper()
	d, err := NewDashboard(newUseCase(t, src), charts.NewRenderer(480, 240), snapshots, zaptest.NewLogger(t))
	require.NoError(t, err)
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, rawURL string) *http.Response {
	t.Helper()
	resp, err := http.Get(rawURL)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestIndexDefaults(t *testing.T) {
	srv := newTestDashboard(t, tableSource{csv: measurementsCSV}, nil)

	resp := get(t, srv.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01", doc.Find(`input[name="from"]`).AttrOr("value", ""))
	assert.Equal(t, "2024-01-03", doc.Find(`input[name="to"]`).AttrOr("value", ""))
	assert.Equal(t, 3, doc.Find(`select[name="station"] option`).Length())
	assert.Equal(t, 3, doc.Find(`select[name="station"] option[selected]`).Length())
	assert.Equal(t, "5", doc.Find("#metric-rows").Text())
	assert.Equal(t, "3", doc.Find("#metric-stations").Text())
	assert.Equal(t, "13.20 °C", doc.Find("#metric-temperature").Text())
	assert.Equal(t, 1, doc.Find(".no-missing").Length())
	assert.Equal(t, 3, doc.Find("#top-stations li").Length())

	var alts []string
	doc.Find("img.chart").Each(func(_ int, s *goquery.Selection) {
		alts = append(alts, s.AttrOr("alt", ""))
	})
	assert.Equal(t, []string{"temperature", "oxygen", "nitrate", charts.KindTopStations, charts.KindComposition, charts.KindMap}, alts)

	assert.Contains(t, doc.Find("#report table").First().Text(), "Rows")
	assert.Equal(t, 0, doc.Find(".warning").Length())
}

func TestIndexFilteredSelection(t *testing.T) {
	srv := newTestDashboard(t, tableSource{csv: measurementsCSV}, nil)

	q := url.Values{"from": {"2024-01-02"}, "to": {"2024-01-02"}, "station": {"Pearl B"}}
	resp := get(t, srv.URL+"/?"+q.Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, "1", doc.Find("#metric-rows").Text())
	assert.Equal(t, "19.00 °C", doc.Find("#metric-temperature").Text())
	selected := doc.Find(`select[name="station"] option[selected]`)
	require.Equal(t, 1, selected.Length())
	assert.Equal(t, "Pearl B", selected.AttrOr("value", ""))

	href := doc.Find("#downloads a").First().AttrOr("href", "")
	link, err := url.Parse(href)
	require.NoError(t, err)
	assert.Equal(t, "/export/csv", link.Path)
	assert.Equal(t, []string{"Pearl B"}, link.Query()["station"])
	assert.Equal(t, "2024-01-02", link.Query().Get("from"))
}

func TestIndexTruncationWarning(t *testing.T) {
	srv := newTestDashboard(t, tableSource{csv: measurementsCSV}, nil)

	q := url.Values{"station": {"S1", "S2", "S3", "S4", "S5", "S6", "Pearl B"}}
	resp := get(t, srv.URL+"/?"+q.Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, doc.Find(".warning").Text(), "At most 6 stations")
	assert.Equal(t, "0", doc.Find("#metric-rows").Text())
}

func TestIndexDataUnavailable(t *testing.T) {
	srv := newTestDashboard(t, unavailableSource(), nil)

	resp := get(t, srv.URL+"/")

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestIndexBadDate(t *testing.T) {
	srv := newTestDashboard(t, tableSource{csv: measurementsCSV}, nil)

	resp := get(t, srv.URL+"/?from=yesterday")

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIndexEscapesStationNames(t *testing.T) {
	const tag = `<img src=x onerror=alert(1)>`
	const image = `![pwn](http://example.com/x.png)`
	src := tableSource{csv: "Date,Monitoring_Station,Water_Temperature_C\n" +
		"2024-01-01," + tag + ",10\n" +
		"2024-01-01," + image + ",12\n"}
	srv := newTestDashboard(t, src, nil)

	q := url.Values{"station": {tag, image}}
	resp := get(t, srv.URL+"/?"+q.Encode())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	require.NoError(t, err)

	assert.NotContains(t, string(body), tag)
	assert.Equal(t, 0, doc.Find("#report img").Length())
	assert.Contains(t, doc.Find("#report").Text(), "Stations:")
	assert.Equal(t, "2", doc.Find("#metric-rows").Text())
}

func TestIndexHeaderOnlyData(t *testing.T) {
	srv := newTestDashboard(t, tableSource{csv: "Date,Monitoring_Station\n"}, nil)

	resp := get(t, srv.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, "0 rows, 2 columns", strings.TrimSpace(doc.Find("#overview-size").Text()))
	assert.Equal(t, "", doc.Find(`input[name="from"]`).AttrOr("value", "x"))
	assert.NotContains(t, string(body), "0001-01-01")
}

func TestChartEndpoint(t *testing.T) {
	srv := newTestDashboard(t, tableSource{csv: measurementsCSV}, nil)

	resp := get(t, srv.URL+"/charts/map")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))

	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/charts/turbidity").StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/charts/radar").StatusCode)
}

func TestExportCSVEndpoint(t *testing.T) {
	srv := newTestDashboard(t, tableSource{csv: measurementsCSV}, nil)

	resp := get(t, srv.URL+"/export/csv?station=Yangtze+A")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="filtered_water_pollution.csv"`, resp.Header.Get("Content-Disposition"))

	records, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "latitude", records[0][3])
	assert.Equal(t, []string{"2024-01-01", "Yangtze A"}, records[1][:2])
	assert.Equal(t, []string{"2024-01-02", "Yangtze A"}, records[2][:2])

	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/export/pdf").StatusCode)
}

func TestReportJSONEndpoint(t *testing.T) {
	srv := newTestDashboard(t, tableSource{csv: measurementsCSV}, nil)

	resp := get(t, srv.URL+"/api/report?station=Yellow+C")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Rows            int      `json:"rows"`
		Stations        []string `json:"stations"`
		MeanTemperature *float64 `json:"mean_temperature"`
		Composition     []struct {
			Name string   `json:"name"`
			Mean *float64 `json:"mean"`
		} `json:"composition"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Rows)
	assert.Equal(t, []string{"Yellow C"}, body.Stations)
	require.NotNil(t, body.MeanTemperature)
	assert.Equal(t, 8.0, *body.MeanTemperature)
	require.Len(t, body.Composition, 4)
	assert.Equal(t, 0.0, *body.Composition[2].Mean)
}

func TestStationsEndpoint(t *testing.T) {
	srv := newTestDashboard(t, tableSource{csv: measurementsCSV}, nil)

	resp := get(t, srv.URL+"/api/stations")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Stations    []string `json:"stations"`
		MaxStations int      `json:"max_stations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"Yangtze A", "Pearl B", "Yellow C"}, body.Stations)
	assert.Equal(t, 6, body.MaxStations)
}

func TestSnapshotEndpoints(t *testing.T) {
	repo, err := repository.NewSQLiteSnapshotRepository(filepath.Join(t.TempDir(), "snapshots.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	srv := newTestDashboard(t, tableSource{csv: measurementsCSV}, repo)

	resp, err := http.Post(srv.URL+"/api/snapshots?station=Pearl+B", "application/x-www-form-urlencoded", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID   string `json:"id"`
		Rows int    `json:"rows"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 2, created.Rows)

	list := get(t, srv.URL+"/api/snapshots")
	var snaps []struct {
		ID       string   `json:"id"`
		Stations []string `json:"stations"`
	}
	require.NoError(t, json.NewDecoder(list.Body).Decode(&snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, []string{"Pearl B"}, snaps[0].Stations)

	exported := get(t, srv.URL+"/api/snapshots/"+created.ID+"/export/csv")
	require.Equal(t, http.StatusOK, exported.StatusCode)
	records, err := csv.NewReader(exported.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 3)

	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/api/snapshots/nope/export/csv").StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newTestDashboard(t, unavailableSource(), nil)

	resp := get(t, srv.URL+"/healthz")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestsAreLoggedWithZap(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	d, err := NewDashboard(newUseCase(t, unavailableSource()), charts.NewRenderer(480, 240), nil, zap.New(core))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	entries := logs.FilterMessage("HTTP request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/healthz", fields["path"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.EqualValues(t, 2, fields["bytes"])
	assert.NotEmpty(t, fields["request_id"])
}
