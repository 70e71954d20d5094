package main

import (
	"os"
	"path/filepath"

	"github.com/openmined/modsync/internal/utils"
	"github.com/spf13/cobra"
)

// resolveConfigPath determines which config file path to use, honoring (in order):
// 1) An explicitly set --config flag
// 2) MODSYNC_CONFIG_PATH environment variable
// 3) Existing config files in common locations
// 4) The default path
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv(envPrefix + "_CONFIG_PATH"); envPath != "" {
		return envPath
	}

	candidates := configCandidates()
	for _, candidate := range candidates {
		if utils.FileExists(candidate) {
			return candidate
		}
	}

	return candidates[0]
}

func configCandidates() []string {
	return []string{
		filepath.Join(home, ".modsync", "config.json"),
		filepath.Join(home, ".config", "modsync", "config.json"),
	}
}
