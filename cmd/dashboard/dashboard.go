package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abelzeko/water-dashboard/internal/api"
	"github.com/abelzeko/water-dashboard/internal/charts"
	"github.com/abelzeko/water-dashboard/internal/config"
	"github.com/abelzeko/water-dashboard/internal/integration"
	"github.com/abelzeko/water-dashboard/internal/logging"
	"github.com/abelzeko/water-dashboard/internal/repository"
	"github.com/abelzeko/water-dashboard/internal/usecases"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile    string
	listenAddr string
	noSnapshot bool
)

var rootCmd = &cobra.Command{
	Use:          "dashboard",
	Short:        "Serve the water quality dashboard over HTTP",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is ./waterdash.yaml)")
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	rootCmd.Flags().BoolVar(&noSnapshot, "no-snapshots", false, "disable the snapshot endpoints")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Info("Starting water quality dashboard...", zap.String("data", cfg.DataPath))

	var snapshots repository.SnapshotRepository
	if !noSnapshot {
		repo, err := repository.NewSQLiteSnapshotRepository(cfg.SnapshotDB, logger)
		if err != nil {
			return err
		}
		defer repo.Close()
		snapshots = repo
	}

	source := integration.NewCSVSource(cfg.DataPath, logger)
	useCase := usecases.NewReportUseCase(source, cfg.MaxStations, logger)
	dashboard, err := api.NewDashboard(useCase, charts.NewRenderer(cfg.ChartWidth, cfg.ChartHeight), snapshots, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           dashboard,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Dashboard listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("Shutting down dashboard")
	return srv.Shutdown(shutdownCtx)
}
