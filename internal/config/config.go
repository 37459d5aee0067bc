// Package config loads server configuration from the environment.
package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds everything the server needs at startup.
type Config struct {
	DataDir       string        `env:"GRIDSYNC_DATA_DIR"`
	BaseURL       string        `env:"GRIDSYNC_BASE_URL,default=http://localhost:3000"`
	APIToken      string        `env:"GRIDSYNC_API_TOKEN"`
	LogLevel      string        `env:"GRIDSYNC_LOG_LEVEL,default=info"`
	SchemaMaxAge  time.Duration `env:"GRIDSYNC_SCHEMA_MAX_AGE,default=1h"`
	RemoteTimeout time.Duration `env:"GRIDSYNC_REMOTE_TIMEOUT,default=30s"`
}

// Load reads configuration from the environment. DataDir defaults to
// ~/.gridsync when unset (envconfig cannot expand the home directory).
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".gridsync")
	}
	return &cfg, nil
}

// WriteHelp prints the supported environment variables.
func WriteHelp(w io.Writer, version string) {
	fmt.Fprintf(w, "gridsync %s\n\n", version)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintln(w, "  GRIDSYNC_DATA_DIR=~/.gridsync")
	fmt.Fprintln(w, "  GRIDSYNC_BASE_URL=http://localhost:3000")
	fmt.Fprintln(w, "  GRIDSYNC_API_TOKEN=")
	fmt.Fprintln(w, "  GRIDSYNC_LOG_LEVEL=info")
	fmt.Fprintln(w, "  GRIDSYNC_SCHEMA_MAX_AGE=1h")
	fmt.Fprintln(w, "  GRIDSYNC_REMOTE_TIMEOUT=30s")
}
