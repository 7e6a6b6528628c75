package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abelzeko/water-dashboard/internal/export"
	"github.com/abelzeko/water-dashboard/internal/repository"
	"github.com/spf13/cobra"
)

var (
	exportFlags  requestFlags
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the filtered rows as CSV, XLSX or a SQLite snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		req, err := exportFlags.request()
		if err != nil {
			return err
		}
		report, err := a.useCase.Build(cmd.Context(), req)
		if err != nil {
			return err
		}

		if exportFormat == "sqlite" {
			repo, err := repository.NewSQLiteSnapshotRepository(a.cfg.SnapshotDB, a.logger)
			if err != nil {
				return err
			}
			defer repo.Close()
			sel := report.Selection
			id, err := repo.SaveSnapshot(cmd.Context(), sel.From, sel.To, sel.Stations, report.Filtered)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved snapshot %s (%d rows) to %s\n", id, report.Filtered.Len(), repo.DBPath)
			return nil
		}

		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		if exportOut == "-" {
			return export.Write(cmd.OutOrStdout(), format, report.Filtered)
		}
		out := exportOut
		if out == "" {
			out = filepath.Join(a.cfg.ExportDir, format.FileName())
		}
		if err := writeFile(out, func(f *os.File) error { return export.Write(f, format, report.Filtered) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d rows to %s\n", report.Filtered.Len(), out)
		return nil
	},
}

func init() {
	exportFlags.register(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "csv, xlsx or sqlite")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file, - for stdout (default: <export_dir>/filtered_water_pollution.<format>)")
}

// writeFile creates path and its directory and removes the file again if write fails
func writeFile(path string, write func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
