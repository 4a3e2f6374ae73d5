package app

import (
	"strings"

	"resumeassist/internal/config"
	"resumeassist/internal/engagement"
	"resumeassist/internal/httpserver"
	"resumeassist/internal/storage"
	logx "resumeassist/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:       cfg.Logging.Level,
		Console:     cfg.Logging.Console,
		ConsoleJSON: cfg.Logging.ConsoleJSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorage reports false when persistence is off.
func mapStorage(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, true, nil
}

func mapEngagement(cfg *config.Config) (engagement.Settings, int, error) {
	e, err := cfg.EngagementSettings()
	if err != nil {
		return engagement.Settings{}, 0, err
	}
	return engagement.Settings{
		DwellDelay:     e.Dwell,
		SnoozeBackoff:  e.SnoozeBackoff,
		ForcedDelay:    e.ForcedDelay,
		StorageTimeout: e.StorageTimeout,
		Debug:          e.Debug,
	}, e.MaxPages, nil
}

func mapServer(cfg *config.Config) (httpserver.Config, error) {
	u, err := cfg.BackendURL()
	if err != nil {
		return httpserver.Config{}, err
	}
	read, err := config.ParseDurationField("server.read_timeout", cfg.Server.ReadTimeout)
	if err != nil {
		return httpserver.Config{}, err
	}
	idle, err := config.ParseDurationField("server.idle_timeout", cfg.Server.IdleTimeout)
	if err != nil {
		return httpserver.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("backend.timeout", cfg.Backend.Timeout, config.DefaultBackendTimeout)
	if err != nil {
		return httpserver.Config{}, err
	}
	rps, burst := cfg.Backend.RatePerSec, cfg.Backend.Burst
	if rps == 0 {
		rps, burst = config.DefaultRatePerSec, max(burst, config.DefaultBurst)
	}
	addr := cfg.Server.Addr
	if addr == "" {
		addr = config.DefaultAddr
	}
	return httpserver.Config{
		Addr:           addr,
		ReadTimeout:    read,
		IdleTimeout:    idle,
		Backend:        u,
		BackendTimeout: timeout,
		RatePerSec:     rps,
		Burst:          burst,
		SecureCookies:  cfg.Production(),
	}, nil
}
