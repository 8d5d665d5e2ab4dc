package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/tasmota-updater/internal/config"
	"github.com/oshokin/tasmota-updater/internal/logger"
	"github.com/oshokin/tasmota-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel for the global logger.
	logLevel string

	// rootCmd represents the base command for the firmware updater.
	rootCmd = &cobra.Command{
		Use:   "tasmota-updater",
		Short: "Check and update Tasmota device firmware over the local network.",
		Long: `Manages firmware of Tasmota devices on the local network.

The latest official release is resolved through the Tasmota GitHub release
feed and cached locally, so repeated runs stay within API rate limits.
Devices are read from a YAML inventory and processed strictly one at a
time: version check, upgrade command, and a wait for the device to come
back online before the next device starts.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level: %q", logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
	}
)

// Execute runs the tasmota-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// commandContext returns a context cancelled by SIGTERM or SIGINT.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().
		StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
}
