package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abelzeko/water-dashboard/internal/charts"
	"github.com/abelzeko/water-dashboard/internal/entities"
	"github.com/abelzeko/water-dashboard/internal/export"
	"github.com/abelzeko/water-dashboard/internal/integration"
	"github.com/abelzeko/water-dashboard/internal/repository"
	"github.com/abelzeko/water-dashboard/internal/usecases"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Dashboard serves the HTML dashboard, chart images and exports
type Dashboard struct {
	router    *chi.Mux
	useCase   *usecases.ReportUseCase
	renderer  *charts.Renderer
	snapshots repository.SnapshotRepository
	templates *template.Template
	logger    *zap.Logger
}

// NewDashboard creates the dashboard. The snapshot repository is optional.
func NewDashboard(useCase *usecases.ReportUseCase, renderer *charts.Renderer, snapshots repository.SnapshotRepository, logger *zap.Logger) (*Dashboard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	funcMap := template.FuncMap{
		"day":   formatDay,
		"value": usecases.FormatValue,
		"query": func(q url.Values) template.URL { return template.URL(q.Encode()) },
	}
	templates, err := template.New("").Funcs(funcMap).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	d := &Dashboard{
		router:    chi.NewRouter(),
		useCase:   useCase,
		renderer:  renderer,
		snapshots: snapshots,
		templates: templates,
		logger:    logger,
	}
	d.setupMiddleware()
	d.setupRoutes()
	return d, nil
}

// ServeHTTP makes the dashboard an http.Handler
func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.router.ServeHTTP(w, r)
}

func (d *Dashboard) setupMiddleware() {
	d.router.Use(middleware.RequestID)
	d.router.Use(d.requestLogger)
	d.router.Use(middleware.Recoverer)
	d.router.Use(middleware.Compress(5))
}

func (d *Dashboard) setupRoutes() {
	d.router.Get("/", d.handleIndex)
	d.router.Get("/charts/{kind}", d.handleChart)
	d.router.Get("/export/{format}", d.handleExport)
	d.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	d.router.Get("/api/report", d.handleReportJSON)
	d.router.Get("/api/stations", d.handleStations)
	if d.snapshots != nil {
		d.router.Post("/api/snapshots", d.handleSaveSnapshot)
		d.router.Get("/api/snapshots", d.handleListSnapshots)
		d.router.Get("/api/snapshots/{id}/export/{format}", d.handleSnapshotExport)
	}
}

// requestLogger writes one structured entry per served request
func (d *Dashboard) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			d.logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// parseQuery reads from, to and repeated station parameters
func parseQuery(q url.Values) (usecases.Request, error) {
	var req usecases.Request
	if s := strings.TrimSpace(q.Get("from")); s != "" {
		d, err := integration.ParseDate(s)
		if err != nil {
			return req, fmt.Errorf("invalid from date: %w", err)
		}
		req.From = d
	}
	if s := strings.TrimSpace(q.Get("to")); s != "" {
		d, err := integration.ParseDate(s)
		if err != nil {
			return req, fmt.Errorf("invalid to date: %w", err)
		}
		req.To = d
	}
	for _, s := range q["station"] {
		if s = strings.TrimSpace(s); s != "" {
			req.Stations = append(req.Stations, s)
		}
	}
	return req, nil
}

// selectionQuery encodes a resolved selection so chart and export links match the page
func selectionQuery(sel usecases.Selection) url.Values {
	q := url.Values{}
	if !sel.From.IsZero() {
		q.Set("from", sel.From.Format("2006-01-02"))
	}
	if !sel.To.IsZero() {
		q.Set("to", sel.To.Format("2006-01-02"))
	}
	for _, s := range sel.Stations {
		q.Add("station", s)
	}
	return q
}

// buildReport parses the query and builds the report, writing the error response on failure
func (d *Dashboard) buildReport(w http.ResponseWriter, r *http.Request) (*usecases.Report, bool) {
	req, err := parseQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	report, err := d.useCase.Build(r.Context(), req)
	if err != nil {
		d.writeError(w, err)
		return nil, false
	}
	return report, true
}

// writeError maps an error to its HTTP status
func (d *Dashboard) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entities.ErrDataUnavailable):
		d.logger.Error("Measurement data unavailable", zap.Error(err))
		http.Error(w, "Measurement data is not available: "+err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, entities.ErrColumnMissing), errors.Is(err, charts.ErrNoData), errors.Is(err, charts.ErrUnknownKind),
		errors.Is(err, repository.ErrSnapshotNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		d.logger.Error("Request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

type indexData struct {
	Report    *usecases.Report
	Query     url.Values
	Charts    []string
	Shares    []float64
	Summary   template.HTML
	Stations  map[string]bool
	Snapshots bool
}

func (d *Dashboard) handleIndex(w http.ResponseWriter, r *http.Request) {
	report, ok := d.buildReport(w, r)
	if !ok {
		return
	}

	selected := make(map[string]bool, len(report.Selection.Stations))
	for _, s := range report.Selection.Stations {
		selected[s] = true
	}
	data := indexData{
		Report:    report,
		Query:     selectionQuery(report.Selection),
		Charts:    charts.Available(report),
		Shares:    report.Shares(),
		Summary:   renderMarkdown(report.Markdown()),
		Stations:  selected,
		Snapshots: d.snapshots != nil,
	}

	var buf bytes.Buffer
	if err := d.templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		d.writeError(w, fmt.Errorf("render dashboard: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// renderMarkdown converts the report Markdown to HTML
func renderMarkdown(md string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(md))
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags | mdhtml.SkipHTML | mdhtml.SkipImages | mdhtml.Safelink})
	return template.HTML(markdown.Render(doc, renderer))
}

func (d *Dashboard) handleChart(w http.ResponseWriter, r *http.Request) {
	report, ok := d.buildReport(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := d.renderer.Render(&buf, report, chi.URLParam(r, "kind")); err != nil {
		d.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", charts.ContentType)
	buf.WriteTo(w)
}

func (d *Dashboard) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	report, ok := d.buildReport(w, r)
	if !ok {
		return
	}
	d.writeTable(w, format, report.Filtered)
}

func (d *Dashboard) writeTable(w http.ResponseWriter, format export.Format, table *entities.Table) {
	var buf bytes.Buffer
	if err := export.Write(&buf, format, table); err != nil {
		d.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.FileName()))
	buf.WriteTo(w)
}

// jsonValue is a mean that encodes NaN as null
type jsonValue float64

func (v jsonValue) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(v)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(v))
}

type reportJSON struct {
	GeneratedAt     time.Time      `json:"generated_at"`
	From            string         `json:"from"`
	To              string         `json:"to"`
	Stations        []string       `json:"stations"`
	Warnings        []string       `json:"warnings,omitempty"`
	Rows            int            `json:"rows"`
	ActiveStations  int            `json:"active_stations"`
	MeanTemperature *jsonValue     `json:"mean_temperature"`
	Provinces       []provinceJSON `json:"provinces,omitempty"`
	Top             []stationJSON  `json:"top_stations,omitempty"`
	Composition     []stationJSON  `json:"composition"`
	Skipped         []string       `json:"skipped,omitempty"`
	Missing         map[string]int `json:"missing,omitempty"`
}

type provinceJSON struct {
	Province        string    `json:"province"`
	Temperature     jsonValue `json:"temperature"`
	PH              jsonValue `json:"ph"`
	DissolvedOxygen jsonValue `json:"dissolved_oxygen"`
}

type stationJSON struct {
	Name string    `json:"name"`
	Mean jsonValue `json:"mean"`
}

func toJSON(report *usecases.Report) reportJSON {
	out := reportJSON{
		GeneratedAt:    report.GeneratedAt,
		From:           report.Selection.From.Format("2006-01-02"),
		To:             report.Selection.To.Format("2006-01-02"),
		Stations:       report.Selection.Stations,
		Warnings:       report.Warnings,
		Rows:           report.Summary.Rows,
		ActiveStations: report.Summary.Stations,
	}
	if report.Summary.HasTemperature {
		v := jsonValue(report.Summary.MeanTemperature)
		out.MeanTemperature = &v
	}
	for _, p := range report.Provinces {
		out.Provinces = append(out.Provinces, provinceJSON{
			Province:        p.Province,
			Temperature:     jsonValue(p.Temperature),
			PH:              jsonValue(p.PH),
			DissolvedOxygen: jsonValue(p.DissolvedOxygen),
		})
	}
	for _, s := range report.TopStations {
		out.Top = append(out.Top, stationJSON{Name: s.Station, Mean: jsonValue(s.Mean)})
	}
	for _, p := range report.Composition {
		out.Composition = append(out.Composition, stationJSON{Name: p.Parameter, Mean: jsonValue(p.Mean)})
	}
	for _, s := range report.Skipped {
		out.Skipped = append(out.Skipped, s.Section)
	}
	if len(report.Missing) > 0 {
		out.Missing = make(map[string]int, len(report.Missing))
		for _, m := range report.Missing {
			out.Missing[m.Column] = m.Count
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (d *Dashboard) handleReportJSON(w http.ResponseWriter, r *http.Request) {
	report, ok := d.buildReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toJSON(report))
}

func (d *Dashboard) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := d.useCase.Stations(r.Context())
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stations":     stations,
		"max_stations": d.useCase.MaxStations(),
	})
}

type snapshotJSON struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Stations  []string  `json:"stations"`
	Rows      int       `json:"rows"`
}

func (d *Dashboard) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	report, ok := d.buildReport(w, r)
	if !ok {
		return
	}
	sel := report.Selection
	id, err := d.snapshots.SaveSnapshot(r.Context(), sel.From, sel.To, sel.Stations, report.Filtered)
	if err != nil {
		d.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snapshotJSON{
		ID:        id,
		CreatedAt: report.GeneratedAt,
		From:      sel.From.Format("2006-01-02"),
		To:        sel.To.Format("2006-01-02"),
		Stations:  sel.Stations,
		Rows:      report.Filtered.Len(),
	})
}

func (d *Dashboard) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := d.snapshots.ListSnapshots(r.Context())
	if err != nil {
		d.writeError(w, err)
		return
	}
	out := make([]snapshotJSON, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, snapshotJSON{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			From:      s.From.Format("2006-01-02"),
			To:        s.To.Format("2006-01-02"),
			Stations:  s.Stations,
			Rows:      s.RowCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *Dashboard) handleSnapshotExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	snap, err := d.snapshots.LoadSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		d.writeError(w, err)
		return
	}
	d.writeTable(w, format, snap.Table)
}
