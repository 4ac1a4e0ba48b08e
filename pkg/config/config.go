// Package config loads server settings from a TOML file with environment
// overrides. A missing file just means defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultPath is consulted when no --config flag is given.
const DefaultPath = "shylock.toml"

// Config carries the server's runtime settings.
type Config struct {
	ListenAddr     string `toml:"listen_addr"`
	DBPath         string `toml:"db_path"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// Default returns the built-in settings used when nothing else is supplied.
func Default() Config {
	return Config{
		ListenAddr:     ":8080",
		DBPath:         "shylock.db",
		MetricsEnabled: false,
	}
}

// Load reads configuration in precedence order: defaults, then the TOML
// file at path (required to exist only when explicitly given), then
// SHYLOCK_* environment variables. A .env file in the working directory is
// loaded first so the env overrides work in development too.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // absent .env is fine

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if explicit {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}

	if v := os.Getenv("SHYLOCK_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SHYLOCK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("SHYLOCK_METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SHYLOCK_METRICS_ENABLED %q: %w", v, err)
		}
		cfg.MetricsEnabled = b
	}
	return cfg, nil
}
