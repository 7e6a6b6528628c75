package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	summaryFlags    requestFlags
	summaryMarkdown bool
	summaryStations bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print statistics for a selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		if summaryStations {
			stations, err := a.useCase.Stations(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range stations {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		}

		req, err := summaryFlags.request()
		if err != nil {
			return err
		}
		report, err := a.useCase.Build(cmd.Context(), req)
		if err != nil {
			return err
		}
		if summaryMarkdown {
			fmt.Fprint(cmd.OutOrStdout(), report.Markdown())
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.FormatSummary())
		return nil
	},
}

func init() {
	summaryFlags.register(summaryCmd)
	summaryCmd.Flags().BoolVar(&summaryMarkdown, "markdown", false, "print the full report as Markdown")
	summaryCmd.Flags().BoolVar(&summaryStations, "stations", false, "list the monitoring stations and exit")
}
