package cmd

import (
	"fmt"
	"strconv"

	"github.com/smazurov/lednode/internal/feeds"
	"github.com/spf13/cobra"
)

// CreateTempsCmd creates the temps command.
func CreateTempsCmd() *cobra.Command {
	var names []string
	var location string
	var skipWeather bool

	cmd := &cobra.Command{
		Use:   "temps",
		Short: "Print indoor feed temperatures and the outdoor weather",
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

			client := feeds.New(net.creds, net.sup, net.handle.NewHTTPClient())
			out := c.OutOrStdout()

			values := client.FetchFeeds(ctx, names)
			for _, name := range names {
				fmt.Fprintf(out, "%-12s %s\n", name+":", formatReading(values[name]))
			}

			if skipWeather {
				return nil
			}
			temp, err := client.FetchWeather(ctx, location)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-12s %s\n", "outside:", temp)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&names, "feed", feeds.DefaultFeeds, "Feeds to read")
	cmd.Flags().StringVar(&location, "location", "", "Weather location, defaults to the secrets file")
	cmd.Flags().BoolVar(&skipWeather, "no-weather", false, "Skip the weather lookup")
	return cmd
}

func formatReading(v *float64) string {
	if v == nil {
		return "unavailable"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
