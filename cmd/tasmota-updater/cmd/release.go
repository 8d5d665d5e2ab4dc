package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// downloadOutput is where the firmware binary is written.
	downloadOutput string

	// releaseCmd shows the latest official release.
	releaseCmd = &cobra.Command{
		Use:   "release",
		Short: "Show the latest official firmware release.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := commandContext()
			defer stop()

			cfg, err := loadSettings()
			if err != nil {
				return err
			}

			rel, err := newReleaseClient(cfg).Latest(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Latest release: %s\n", rel.Version)

			if rel.ReleaseDate != "" {
				fmt.Fprintf(out, "Published:      %s\n", rel.ReleaseDate)
			}

			if rel.DownloadURL != "" {
				fmt.Fprintf(out, "Firmware:       %s\n", rel.DownloadURL)
			}

			fmt.Fprintf(out, "Release notes:  %s\n", rel.ReleaseURL)

			return nil
		},
	}

	// downloadCmd fetches the firmware binary of the latest release.
	downloadCmd = &cobra.Command{
		Use:   "download",
		Short: "Download the firmware binary of the latest release.",
		Long: `Downloads the standard firmware binary of the latest official release
and writes it atomically to the output path, for flashing over serial or
serving from a local OTA endpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := commandContext()
			defer stop()

			cfg, err := loadSettings()
			if err != nil {
				return err
			}

			client := newReleaseClient(cfg)

			rel, err := client.Latest(ctx)
			if err != nil {
				return err
			}

			if err = client.Download(ctx, rel, downloadOutput); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved firmware %s to %s\n", rel.Version, downloadOutput)

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "tasmota.bin",
		"path to write the firmware binary to")

	releaseCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(releaseCmd)
}
