package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/abelzeko/water-dashboard/internal/charts"
	"github.com/abelzeko/water-dashboard/internal/config"
	"github.com/abelzeko/water-dashboard/internal/integration"
	"github.com/abelzeko/water-dashboard/internal/logging"
	"github.com/abelzeko/water-dashboard/internal/usecases"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile  string
	logLevel string
	dataPath string
)

var rootCmd = &cobra.Command{
	Use:   "reporter",
	Short: "Water quality reports, charts and exports from the command line",
	Long: `reporter loads the river water-quality CSV, filters it by date range and
monitoring station, and prints summaries, renders charts or writes exports.
The schedule command keeps running and exports on a cron schedule.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./waterdash.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", "", "measurement CSV path (overrides config)")

	rootCmd.AddCommand(summaryCmd, exportCmd, chartsCmd, scheduleCmd, configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

// app holds the components shared by the subcommands
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	source   *integration.CSVSource
	useCase  *usecases.ReportUseCase
	renderer *charts.Renderer
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dataPath != "" {
		cfg.DataPath = dataPath
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	source := integration.NewCSVSource(cfg.DataPath, logger)
	return &app{
		cfg:      cfg,
		logger:   logger,
		source:   source,
		useCase:  usecases.NewReportUseCase(source, cfg.MaxStations, logger),
		renderer: charts.NewRenderer(cfg.ChartWidth, cfg.ChartHeight),
	}, nil
}

// requestFlags are the selection flags every report command accepts
type requestFlags struct {
	from     string
	to       string
	stations []string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "start date, inclusive (default: first date in the data)")
	cmd.Flags().StringVar(&f.to, "to", "", "end date, inclusive (default: last date in the data)")
	cmd.Flags().StringSliceVar(&f.stations, "station", nil, "monitoring station, repeatable (default: first 6)")
}

func (f *requestFlags) request() (usecases.Request, error) {
	var req usecases.Request
	if s := strings.TrimSpace(f.from); s != "" {
		d, err := integration.ParseDate(s)
		if err != nil {
			return req, fmt.Errorf("invalid --from: %w", err)
		}
		req.From = d
	}
	if s := strings.TrimSpace(f.to); s != "" {
		d, err := integration.ParseDate(s)
		if err != nil {
			return req, fmt.Errorf("invalid --to: %w", err)
		}
		req.To = d
	}
	for _, s := range f.stations {
		if s = strings.TrimSpace(s); s != "" {
			req.Stations = append(req.Stations, s)
		}
	}
	return req, nil
}
