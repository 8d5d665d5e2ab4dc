package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// checkAddress narrows the check to a single inventory device.
	checkAddress string

	// checkCmd reports firmware status without changing anything.
	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Report firmware status of all devices without upgrading.",
		Long: `Queries every inventory device for its firmware version and compares it
against the latest official release. No upgrade commands are sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := commandContext()
			defer stop()

			cfg, err := loadSettings()
			if err != nil {
				return err
			}

			devices, err := selectDevices(ctx, cfg, checkAddress)
			if err != nil {
				return err
			}

			runner, closeHistory := newRunner(ctx, cfg)
			defer closeHistory()

			batch, err := runner.Run(ctx, devices, true, false)
			if err != nil {
				return err
			}

			printBatch(cmd.OutOrStdout(), batch)

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	checkCmd.Flags().StringVarP(&checkAddress, "device", "d", "",
		"check a single device by its inventory address")

	rootCmd.AddCommand(checkCmd)
}
