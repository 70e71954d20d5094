package main

import (
	"fmt"

	"github.com/openmined/modsync/internal/modsdk"
	"github.com/openmined/modsync/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newCheckUpdateCmd())
}

func newCheckUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-update",
		Short: "Check the server for a newer ModSync release",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			client, err := modsdk.New(&modsdk.Config{BaseURL: cfg.ServerURL})
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			info, err := client.GetLatestVersion(cmd.Context())
			if err != nil {
				return fmt.Errorf("update check: %w", err)
			}

			out := cmd.OutOrStdout()
			if !info.NewerThan(version.Version) {
				_, err = fmt.Fprintf(out, "ModSync %s is up to date\n", version.Version)
				return err
			}

			fmt.Fprintf(out, "New version available: %s (current %s)\n", info.Version, version.Version)
			if info.Note != "" {
				fmt.Fprintf(out, "\n%s\n\n", info.Note)
			}
			_, err = fmt.Fprintf(out, "Download: %s\n", info.URL)
			return err
		},
	}
}
