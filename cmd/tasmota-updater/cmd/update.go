package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// onlyNeeded restricts the mutating pass to devices that report stale.
	onlyNeeded bool
	// updateAddress narrows the run to a single inventory device.
	updateAddress string

	// updateCmd upgrades stale devices to the latest official release.
	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Upgrade stale devices to the latest official release.",
		Long: `Checks every inventory device against the latest official release and
sends the upgrade command to those running an older version. Each device
is given time to flash and restart before the next one is processed, so
a full run over a large fleet takes a while by design.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := commandContext()
			defer stop()

			cfg, err := loadSettings()
			if err != nil {
				return err
			}

			devices, err := selectDevices(ctx, cfg, updateAddress)
			if err != nil {
				return err
			}

			runner, closeHistory := newRunner(ctx, cfg)
			defer closeHistory()

			batch, err := runner.Run(ctx, devices, false, onlyNeeded)
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
	updateCmd.Flags().BoolVar(&onlyNeeded, "only-needed", false,
		"check first and upgrade only devices reporting an older version")
	updateCmd.Flags().StringVarP(&updateAddress, "device", "d", "",
		"process a single device by its inventory address")

	rootCmd.AddCommand(updateCmd)
}
