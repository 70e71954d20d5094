package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/modsync/internal/engine"
	"github.com/openmined/modsync/internal/modsdk"
	"github.com/openmined/modsync/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".modsync", "config.json")
	DefaultLogFilePath = filepath.Join(home, ".modsync", "logs", "modsync.log")
	DefaultServerURL   = modsdk.DefaultBaseURL
	DefaultVersionDir  = executableDir()
)

var (
	ErrNoVersionDir     = errors.New("version directory is required")
	ErrInvalidWorkers   = errors.New("workers must be positive")
	ErrInvalidRetries   = errors.New("max retries must be positive")
	ErrInvalidThreshold = errors.New("ratio thresholds must be in (0, 1]")
)

type Config struct {
	ServerURL      string        `json:"server_url"`
	VersionDir     string        `json:"version_dir"`
	PreserveConfig bool          `json:"preserve_config"`
	Workers        int           `json:"workers"`
	MaxRetries     int           `json:"max_retries"`
	RecheckRatio   float64       `json:"recheck_ratio"`
	ArchiveRatio   float64       `json:"archive_ratio"`
	RetryDelay     time.Duration `json:"retry_delay"`
	Path           string        `json:"-"`
}

// Default returns a config with every field at its default.
func Default() *Config {
	return &Config{
		ServerURL:      DefaultServerURL,
		VersionDir:     DefaultVersionDir,
		PreserveConfig: true,
		Workers:        engine.DefaultWorkers,
		MaxRetries:     engine.DefaultMaxRetries,
		RecheckRatio:   engine.DefaultRecheckRatio,
		ArchiveRatio:   engine.DefaultArchiveRatio,
		RetryDelay:     engine.DefaultRetryDelay,
		Path:           DefaultConfigPath,
	}
}

// Validate normalizes paths and the server url and rejects unusable values.
func (c *Config) Validate() error {
	sdkCfg := &modsdk.Config{BaseURL: c.ServerURL}
	if err := sdkCfg.Validate(); err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	c.ServerURL = sdkCfg.BaseURL

	if c.VersionDir == "" {
		return ErrNoVersionDir
	}
	dir, err := utils.ResolvePath(c.VersionDir)
	if err != nil {
		return fmt.Errorf("version dir: %w", err)
	}
	c.VersionDir = dir

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.MaxRetries <= 0 {
		return ErrInvalidRetries
	}
	if !validRatio(c.RecheckRatio) || !validRatio(c.ArchiveRatio) {
		return ErrInvalidThreshold
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}

	return nil
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	c.Path = path
	return nil
}

// Load reads a config file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Path = path

	return cfg, nil
}

func validRatio(r float64) bool {
	return r > 0 && r <= 1
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		wd, _ := os.Getwd()
		return wd
	}
	return filepath.Dir(exe)
}
