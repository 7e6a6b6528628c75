package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abelzeko/water-dashboard/internal/charts"
	"github.com/abelzeko/water-dashboard/internal/entities"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	chartsFlags requestFlags
	chartsDir   string
	chartsKinds []string
)

var chartsCmd = &cobra.Command{
	Use:   "charts",
	Short: "Render the report charts as PNG files",
	Long:  "Render the report charts as PNG files. Without --kind every chart the data supports is drawn.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		req, err := chartsFlags.request()
		if err != nil {
			return err
		}
		report, err := a.useCase.Build(cmd.Context(), req)
		if err != nil {
			return err
		}

		kinds := chartsKinds
		if len(kinds) == 0 {
			kinds = charts.Available(report)
		}
		dir := chartsDir
		if dir == "" {
			dir = filepath.Join(a.cfg.ExportDir, "charts")
		}

		for _, kind := range kinds {
			path := filepath.Join(dir, kind+".png")
			err := writeFile(path, func(f *os.File) error { return a.renderer.Render(f, report, kind) })
			switch {
			case errors.Is(err, entities.ErrColumnMissing), errors.Is(err, charts.ErrNoData):
				a.logger.Warn("Skipped chart", zap.String("chart", kind), zap.Error(err))
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Skipped %s: %v\n", kind, err)
			case err != nil:
				return err
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", path)
			}
		}
		return nil
	},
}

func init() {
	chartsFlags.register(chartsCmd)
	chartsCmd.Flags().StringVarP(&chartsDir, "out", "o", "", "output directory (default: <export_dir>/charts)")
	chartsCmd.Flags().StringSliceVar(&chartsKinds, "kind", nil, fmt.Sprintf("chart to draw, repeatable: %v", charts.Kinds()))
}
