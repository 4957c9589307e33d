package cmd

import (
	"fmt"

	"github.com/smazurov/lednode/internal/transport"
	"github.com/spf13/cobra"
)

// CreateScanCmd creates the scan command.
func CreateScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List visible Wi-Fi networks",
		Long:  `Opens the configured transport, prints the network hardware identity and every access point a scan reports.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			logger := initLogging(configPath(c))

			net, err := openNetwork(ctx, c, logger)
			if err != nil {
				return err
			}
			defer func() { _ = net.Close() }()

			out := c.OutOrStdout()
			fmt.Fprintf(out, "Transport: %s\n", net.handle.Kind())
			if id, ok := net.handle.(transport.Identifier); ok {
				if identity, err := id.Identity(ctx); err == nil {
					fmt.Fprintf(out, "Firmware:  %s\nMAC:       %s\n", identity.Firmware, identity.MAC)
				} else {
					logger.Warn("Could not read hardware identity", "error", err)
				}
			}

			fmt.Fprintln(out, "Available WiFi networks:")
			found := 0
			for n := range net.handle.ScanNetworks(ctx) {
				fmt.Fprintf(out, "\t%-32s\tRSSI: %d\tChannel: %d\n", n.SSID, n.RSSI, n.Channel)
				found++
			}
			if found == 0 {
				fmt.Fprintln(out, "\t(none)")
			}
			return nil
		},
	}
}
