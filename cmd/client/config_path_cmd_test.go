package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestConfigPathCommand_PrintsResolvedPath(t *testing.T) {
	h := withHome(t)

	cmd := &cobra.Command{Use: "modsync"}
	cmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	cmd.AddCommand(newConfigPathCmd())

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"config-path"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, filepath.Join(h, ".modsync", "config.json"), strings.TrimSpace(out.String()))
	require.Contains(t, errOut.String(), "modsync init")
}
