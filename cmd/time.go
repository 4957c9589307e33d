package cmd

import (
	"fmt"
	"time"

	"github.com/smazurov/lednode/internal/timesync"
	"github.com/spf13/cobra"
)

// CreateTimeCmd creates the time command.
func CreateTimeCmd() *cobra.Command {
	var location, format string

	cmd := &cobra.Command{
		Use:   "time",
		Short: "Print the local time from the time service",
		Long: `Connects to the configured network and asks the Adafruit IO time service for the local time. ` +
			`With --format the raw strftime reply is printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			logger := initLogging(configPath(c))

			net, err := openNetwork(ctx, c, logger)
			if err != nil {
				return err
			}
			defer func() { _ = net.Close() }()

			client := timesync.New(net.creds, net.sup, net.handle.NewHTTPClient())
			out := c.OutOrStdout()

			if format != "" {
				reply, err := client.FetchFormattedTime(ctx, format, location)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, reply)
				return nil
			}

			sample, err := client.FetchLocalTime(ctx, location, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s (day %d of the year, weekday %d)\n",
				sample.Time().Format(time.DateTime), sample.YearDay, sample.Weekday)
			return nil
		},
	}

	cmd.Flags().StringVarP(&location, "location", "l", "", "Timezone, defaults to the secrets file or "+timesync.DefaultLocation)
	cmd.Flags().StringVarP(&format, "format", "f", "", "strftime format for a raw reply")
	return cmd
}
