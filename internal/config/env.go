package config

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvAppEnv      = "APP_ENV"
	EnvPort        = "PORT"
	EnvAPIURL      = "API_URL"
	EnvStoragePath = "STORAGE_PATH"
)

// LoadDotEnv reads .env files into the process environment. Variables that
// are already set win. Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg. lookup is usually
// os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvAppEnv); ok && strings.TrimSpace(v) != "" {
		cfg.Environment = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvPort); ok && strings.TrimSpace(v) != "" {
		cfg.Server.Addr = withPort(cfg.Server.Addr, strings.TrimSpace(v))
	}
	if v, ok := lookup(EnvAPIURL); ok && strings.TrimSpace(v) != "" {
		cfg.Backend.URL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvStoragePath); ok && strings.TrimSpace(v) != "" {
		if cfg.Storage == nil {
			cfg.Storage = &StorageConfig{Driver: "sqlite"}
		}
		cfg.Storage.Path = strings.TrimSpace(v)
	}
}

// withPort keeps the host of addr and replaces its port.
func withPort(addr, port string) string {
	host := ""
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	return net.JoinHostPort(host, port)
}
