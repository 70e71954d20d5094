package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/modsync/internal/client/config"
	"github.com/openmined/modsync/internal/utils"
	"github.com/openmined/modsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _   = os.UserHomeDir()
	envPrefix = "MODSYNC"
)

var (
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
)

// fileLogHandler writes to the log file only; the TUI swaps it in so stdout
// stays clean while the alt screen is active.
var fileLogHandler slog.Handler

var rootCmd = &cobra.Command{
	Use:     "modsync",
	Short:   "Sync a Minecraft version folder with a mod server",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// all good now, show header
		cmd.SilenceUsage = true

		tui, _ := cmd.Flags().GetBool("tui")
		auto, _ := cmd.Flags().GetBool("auto")
		return runSync(cmd.Context(), cfg, &syncOpts{TUI: tui, Auto: auto})
	},
}

func init() {
	addSyncFlags(rootCmd)
}

func addSyncFlags(cmd *cobra.Command) {
	cmd.Flags().SortFlags = false
	cmd.PersistentFlags().StringP("server", "s", config.DefaultServerURL, "Mod server URL")
	cmd.Flags().StringP("dir", "d", config.DefaultVersionDir, "Minecraft version directory to sync")
	cmd.Flags().Bool("reconfig", false, "Overwrite existing config files instead of keeping them")
	cmd.Flags().Bool("auto", false, "Exit as soon as the sync finishes")
	cmd.Flags().Bool("tui", false, "Show the interactive progress view")
	cmd.Flags().IntP("workers", "w", config.Default().Workers, "Concurrent downloads")
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "ModSync config file")
}

func main() {
	// optional .env next to the working directory
	_ = godotenv.Load()

	logFile := config.DefaultLogFilePath
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	logInterceptor := utils.NewLogInterceptor(file)
	defer logInterceptor.Close()
	fileLogHandler = slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// time is added by the log interceptor
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileLogHandler)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers flags over MODSYNC_* environment variables over the
// config file over defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	configPath := resolveConfigPath(cmd)
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	def := config.Default()
	v.SetDefault("server_url", def.ServerURL)
	v.SetDefault("version_dir", def.VersionDir)
	v.SetDefault("preserve_config", def.PreserveConfig)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("recheck_ratio", def.RecheckRatio)
	v.SetDefault("archive_ratio", def.ArchiveRatio)
	v.SetDefault("retry_delay", def.RetryDelay)

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.BindPFlag("server_url", cmd.Flag("server"))
	v.BindPFlag("version_dir", cmd.Flag("dir"))
	v.BindPFlag("workers", cmd.Flag("workers"))

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	cfg := &config.Config{
		Path:           configPath,
		ServerURL:      v.GetString("server_url"),
		VersionDir:     v.GetString("version_dir"),
		PreserveConfig: v.GetBool("preserve_config"),
		Workers:        v.GetInt("workers"),
		MaxRetries:     v.GetInt("max_retries"),
		RecheckRatio:   v.GetFloat64("recheck_ratio"),
		ArchiveRatio:   v.GetFloat64("archive_ratio"),
		RetryDelay:     v.GetDuration("retry_delay"),
	}

	if f := cmd.Flag("reconfig"); f != nil && f.Changed {
		cfg.PreserveConfig = f.Value.String() != "true"
	}

	return cfg, nil
}

func showHeader(cfg *config.Config) {
	color.New(color.FgHiCyan, color.Bold).Println(version.ShortWithApp())
	fmt.Printf("Server:  %s\n", cyan(cfg.ServerURL))
	fmt.Printf("Version: %s\n", cyan(cfg.VersionDir))
	if cfg.PreserveConfig {
		fmt.Printf("Config:  %s\n\n", green("keeping existing config files"))
	} else {
		fmt.Printf("Config:  %s\n\n", yellow("--reconfig, config files will be overwritten"))
	}
}
