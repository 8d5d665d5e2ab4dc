package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/oshokin/tasmota-updater/internal/service/monitor"
)

// monitorCmd follows device telemetry over MQTT until interrupted.
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow device telemetry over MQTT.",
	Long: `Connects to the configured MQTT broker and prints device availability,
periodic state reports and firmware version answers as they arrive.
Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := commandContext()
		defer stop()

		cfg, err := loadSettings()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		return monitor.New(cfg.MQTT, func(_ context.Context, event monitor.Event) {
			printTelemetry(out, event)
		}).Run(ctx)
	},
}

// printTelemetry renders one telemetry event as a single line.
func printTelemetry(w io.Writer, event monitor.Event) {
	switch event.Kind {
	case monitor.EventAvailability:
		state := "offline"
		if event.Online {
			state = "online"
		}

		fmt.Fprintf(w, "%s: %s\n", event.Device, state)
	case monitor.EventState:
		fmt.Fprintf(w, "%s: uptime %s, RSSI %d\n", event.Device, event.Uptime, event.RSSI)
	case monitor.EventFirmware:
		fmt.Fprintf(w, "%s: firmware %s\n", event.Device, event.Version)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(monitorCmd)
}
