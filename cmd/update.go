package cmd

import (
	"fmt"

	"github.com/smazurov/lednode/internal/updater"
	"github.com/spf13/cobra"
)

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	var opts updater.Options
	var checkOnly, rollback bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Install the newest release binary",
		Long: `Replaces this binary with the newest GitHub release for this platform, keeping a backup. ` +
			`Downloads use the host network, not the co-processor. Restart the service afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			initLogging(configPath(c))

			svc, err := updater.New(opts)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()

			switch {
			case rollback:
				restored, err := svc.Rollback(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Restored %s; restart lednode to run it\n", restored)
			case checkOnly:
				info, err := svc.Check(ctx)
				if err != nil {
					return err
				}
				if !info.UpdateAvailable {
					fmt.Fprintf(out, "Up to date (%s)\n", info.CurrentVersion)
					return nil
				}
				fmt.Fprintf(out, "Update available: %s -> %s\n%s\n", info.CurrentVersion, info.LatestVersion, info.ReleaseURL)
			default:
				installed, err := svc.Apply(ctx)
				if updater.HasCode(err, updater.CodeNoUpdate) {
					fmt.Fprintln(out, "Already up to date")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Installed %s; restart lednode to run it\n", installed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Repository, "repo", updater.DefaultRepository, "GitHub repository slug")
	cmd.Flags().BoolVar(&opts.Prerelease, "prerelease", false, "Consider prereleases")
	cmd.Flags().StringVar(&opts.BackupDir, "backup-dir", "", "Backup directory (default ~/.cache/lednode/backup)")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether an update exists")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Restore the binary replaced by the last update")
	cmd.MarkFlagsMutuallyExclusive("check", "rollback")
	return cmd
}
