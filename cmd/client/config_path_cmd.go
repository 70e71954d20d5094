package main

import (
	"fmt"

	"github.com/openmined/modsync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newConfigPathCmd())
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config-path",
		Short: "Print the resolved config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(cmd)
			if !utils.FileExists(path) {
				fmt.Fprintln(cmd.ErrOrStderr(), "config file does not exist yet, run 'modsync init'")
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
}
