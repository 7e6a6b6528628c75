package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abelzeko/water-dashboard/internal/export"
	"github.com/abelzeko/water-dashboard/internal/repository"
	"github.com/abelzeko/water-dashboard/internal/usecases"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	scheduleFlags    requestFlags
	scheduleSpec     string
	scheduleFormat   string
	scheduleSnapshot bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Export the filtered rows on a cron schedule",
	Long:  "Runs one export immediately, then again on every tick of the cron schedule until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		req, err := scheduleFlags.request()
		if err != nil {
			return err
		}
		format, err := export.ParseFormat(scheduleFormat)
		if err != nil {
			return err
		}
		spec := scheduleSpec
		if spec == "" {
			spec = a.cfg.Schedule
		}

		job := &exportJob{
			useCase: a.useCase,
			request: req,
			dir:     a.cfg.ExportDir,
			format:  format,
			logger:  a.logger,
			now:     time.Now,
		}
		if scheduleSnapshot {
			repo, err := repository.NewSQLiteSnapshotRepository(a.cfg.SnapshotDB, a.logger)
			if err != nil {
				return err
			}
			defer repo.Close()
			job.snapshots = repo
		}

		return runSchedule(cmd.Context(), spec, job, a.logger)
	},
}

func init() {
	scheduleFlags.register(scheduleCmd)
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "", "cron expression (default: schedule from config)")
	scheduleCmd.Flags().StringVar(&scheduleFormat, "format", "csv", "csv or xlsx")
	scheduleCmd.Flags().BoolVar(&scheduleSnapshot, "snapshot", false, "also store every export in the snapshot database")
}

// runSchedule runs the job once, then on every cron tick until ctx is done
func runSchedule(ctx context.Context, spec string, job *exportJob, logger *zap.Logger) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := job.Run(ctx); err != nil {
			logger.Error("Scheduled export failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to set up cron job %q: %w", spec, err)
	}

	// Run immediately on startup
	if _, err := job.Run(ctx); err != nil {
		logger.Error("Initial export failed", zap.Error(err))
	}

	logger.Info("Export has been scheduled", zap.String("cron", spec))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("Scheduler stopped")
	return nil
}

// exportJob writes one timestamped export of the current selection
type exportJob struct {
	useCase   *usecases.ReportUseCase
	request   usecases.Request
	dir       string
	format    export.Format
	snapshots repository.SnapshotRepository
	logger    *zap.Logger
	now       func() time.Time
}

// fileName inserts the run time before the extension of the download name
func (j *exportJob) fileName(at time.Time) string {
	name := j.format.FileName()
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + at.Format("20060102T150405") + ext
}

// Run builds the report and writes the export, returning the file path
func (j *exportJob) Run(ctx context.Context) (string, error) {
	report, err := j.useCase.Build(ctx, j.request)
	if err != nil {
		return "", err
	}

	path := filepath.Join(j.dir, j.fileName(j.now()))
	if err := writeFile(path, func(f *os.File) error { return export.Write(f, j.format, report.Filtered) }); err != nil {
		return "", err
	}

	fields := []zap.Field{zap.String("path", path), zap.Int("rows", report.Filtered.Len())}
	if j.snapshots != nil {
		sel := report.Selection
		id, err := j.snapshots.SaveSnapshot(ctx, sel.From, sel.To, sel.Stations, report.Filtered)
		if err != nil {
			return path, err
		}
		fields = append(fields, zap.String("snapshot", id))
	}
	j.logger.Info("Exported measurements", fields...)
	return path, nil
}
