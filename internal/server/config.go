package server

import (
	"errors"

	"github.com/openmined/modsync/internal/utils"
)

const DefaultAddr = "127.0.0.1:8080"

type Config struct {
	Http          *HttpServerConfig
	Root          string // directory whose top-level folders are served
	HashCacheSize int
}

type HttpServerConfig struct {
	Addr     string
	CertFile string
	KeyFile  string
}

func (c *Config) Validate() error {
	if c.Http == nil {
		c.Http = &HttpServerConfig{}
	}
	if c.Http.Addr == "" {
		c.Http.Addr = DefaultAddr
	}
	if (c.Http.CertFile == "") != (c.Http.KeyFile == "") {
		return errors.New("both cert and key files are required for tls")
	}

	root, err := utils.ResolvePath(c.Root)
	if err != nil {
		return err
	}
	if !utils.DirExists(root) {
		return errors.New("root directory does not exist: " + root)
	}
	c.Root = root

	return nil
}
