package main

import (
	"fmt"

	"github.com/openmined/modsync/internal/client/config"
	"github.com/openmined/modsync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var versionDir string
	var serverURL string
	var reconfig bool
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter ModSync config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(cmd)
			out := cmd.OutOrStdout()

			if cfg, err := config.Load(path); err == nil && !force {
				fmt.Fprintln(out, "ModSync already initialized")
				printConfig(cmd, cfg)
				return nil
			}

			cfg := config.Default()
			cfg.ServerURL = serverURL
			cfg.VersionDir = versionDir
			cfg.PreserveConfig = !reconfig
			cfg.Path = path
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(out, "%s: %s\n", red("ERROR"), err)
				return err
			}
			cmd.SilenceUsage = true

			if err := cfg.Save(cfg.Path); err != nil {
				fmt.Fprintf(out, "%s: %s\n", red("ERROR"), err)
				return err
			}

			fmt.Fprintln(out, "ModSync initialized")
			printConfig(cmd, cfg)
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&versionDir, "dir", "d", config.DefaultVersionDir, "Minecraft version directory")
	cmd.Flags().StringVarP(&serverURL, "server-url", "u", config.DefaultServerURL, "mod server URL")
	cmd.Flags().BoolVar(&reconfig, "reconfig", false, "overwrite existing config files on sync")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")

	return cmd
}

func printConfig(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config Path: %s\n", green(cfg.Path))
	fmt.Fprintf(out, "Server:      %s\n", cyan(cfg.ServerURL))
	fmt.Fprintf(out, "Version Dir: %s\n", cyan(cfg.VersionDir))
	fmt.Fprintf(out, "Preserve:    %s\n", cyan(fmt.Sprint(cfg.PreserveConfig)))
	fmt.Fprintf(out, "Workers:     %s\n", cyan(fmt.Sprint(cfg.Workers)))
	if !utils.DirExists(cfg.VersionDir) {
		fmt.Fprintf(out, "%s version directory does not exist yet, it is created on first sync\n", yellow("NOTE"))
	}
}
