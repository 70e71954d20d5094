package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/modsync/internal/server"
	"github.com/openmined/modsync/internal/server/library"
	"github.com/openmined/modsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "MODSYNC_SERVER"

var rootCmd = &cobra.Command{
	Use:     "modsync-server",
	Short:   "Serve mod folders to ModSync clients",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		srv, err := server.New(cfg)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		slog.Info("modsync server", "version", version.Version, "root", cfg.Root, "addr", cfg.Http.Addr)
		defer slog.Info("Bye!")
		return srv.Start(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("root", "r", ".", "Directory holding the mod folders")
	rootCmd.Flags().StringP("bind", "b", server.DefaultAddr, "Address to bind the server")
	rootCmd.Flags().String("cert", "", "Path to the certificate file")
	rootCmd.Flags().String("key", "", "Path to the key file")
	rootCmd.Flags().Int("hash-cache", library.DefaultHashCacheSize, "Number of file hashes kept in memory")
	rootCmd.Flags().StringP("config", "c", "", "Server config file (yaml or json)")
}

func main() {
	_ = godotenv.Load()

	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	v := viper.New()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			enoent := errors.Is(err, os.ErrNotExist)
			_, ok := err.(viper.ConfigFileNotFoundError)
			if !enoent && !ok {
				return nil, fmt.Errorf("config read '%s': %w", path, err)
			}
		}
	}

	v.SetDefault("root", ".")
	v.SetDefault("hash_cache_size", library.DefaultHashCacheSize)
	v.SetDefault("http.addr", server.DefaultAddr)

	v.BindPFlag("root", cmd.Flags().Lookup("root"))
	v.BindPFlag("hash_cache_size", cmd.Flags().Lookup("hash-cache"))
	v.BindPFlag("http.addr", cmd.Flags().Lookup("bind"))
	v.BindPFlag("http.cert_file", cmd.Flags().Lookup("cert"))
	v.BindPFlag("http.key_file", cmd.Flags().Lookup("key"))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &server.Config{
		Root:          v.GetString("root"),
		HashCacheSize: v.GetInt("hash_cache_size"),
		Http: &server.HttpServerConfig{
			Addr:     v.GetString("http.addr"),
			CertFile: v.GetString("http.cert_file"),
			KeyFile:  v.GetString("http.key_file"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
