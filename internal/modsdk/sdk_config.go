package modsdk

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "http://modapi.barian.moe"
)

// Config is the configuration for a Client.
type Config struct {
	BaseURL         string        // BaseURL is required
	ManifestTimeout time.Duration // ManifestTimeout bounds listing requests, defaults to 10s

	// Downloads have no overall deadline. These bound each phase instead.
	DialTimeout           time.Duration // defaults to 10s
	ResponseHeaderTimeout time.Duration // defaults to 15s
	IdleReadTimeout       time.Duration // longest gap between body reads, defaults to 30s
}

func (c *Config) Validate() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		return ErrNoServerURL
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidServerURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidServerURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidServerURL)
	}

	if c.ManifestTimeout <= 0 {
		c.ManifestTimeout = DefaultManifestTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ResponseHeaderTimeout <= 0 {
		c.ResponseHeaderTimeout = DefaultResponseHeaderTimeout
	}
	if c.IdleReadTimeout <= 0 {
		c.IdleReadTimeout = DefaultIdleReadTimeout
	}
	return nil
}
