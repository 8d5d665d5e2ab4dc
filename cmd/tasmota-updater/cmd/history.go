package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/tasmota-updater/internal/repository/history"
)

var (
	// historyLimit caps how many runs are listed.
	historyLimit int

	// historyCmd lists recorded update runs, newest first.
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recorded update runs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := commandContext()
			defer stop()

			cfg, err := loadSettings()
			if err != nil {
				return err
			}

			repo, err := history.Open(cfg.HistoryFile)
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close() }()

			runs, err := repo.List(ctx, historyLimit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(runs) == 0 {
				fmt.Fprintln(out, "No recorded runs")
				return nil
			}

			for i := range runs {
				run := &runs[i]
				s := run.Summary

				fmt.Fprintf(out, "%s: %d device(s), %d succeeded, %d need an update, %d updated\n",
					run.StartedAt.Format(time.RFC3339), s.Total, s.Succeeded, s.NeedsUpdate, s.Updated)

				for j := range run.Results {
					printResult(out, &run.Results[j])
				}

				fmt.Fprintln(out)
			}

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10,
		"maximum number of runs to list, 0 for all")

	rootCmd.AddCommand(historyCmd)
}
