package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oshokin/tasmota-updater/internal/config"
	"github.com/oshokin/tasmota-updater/internal/device"
)

// devicesCmd prints the configured inventory with credentials masked.
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the configured device inventory.",
	Long: `Prints every device from the inventory file. Passwords are masked;
missing DNS names are resolved through a reverse lookup when possible.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := commandContext()
		defer stop()

		cfg, err := loadSettings()
		if err != nil {
			return err
		}

		devices, err := config.LoadDevices(ctx, cfg.DevicesFile)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		for i := range devices {
			dev := &devices[i]
			printDevice(out, dev, device.ResolveName(ctx, dev))
		}

		fmt.Fprintf(out, "\n%d device(s) configured\n", len(devices))

		return nil
	},
}

// printDevice renders one inventory entry.
func printDevice(w io.Writer, dev *config.Device, dnsName string) {
	var details []string

	if dnsName != "" {
		details = append(details, "dns: "+dnsName)
	}

	if dev.HasCredentials() {
		details = append(details, fmt.Sprintf("user: %s, password: ********", dev.Username))
	}

	if dev.TimeoutSeconds > 0 {
		details = append(details, fmt.Sprintf("restart window: %ds", dev.TimeoutSeconds))
	}

	if dev.Simulated {
		details = append(details, "simulated")
	}

	if len(details) == 0 {
		fmt.Fprintf(w, "%s\n", dev.Address)
		return
	}

	fmt.Fprintf(w, "%s (%s)\n", dev.Address, strings.Join(details, ", "))
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(devicesCmd)
}
