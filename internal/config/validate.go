package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultAddr            = ":3000"
	DefaultBackendURL      = "http://localhost:8080"
	DefaultBackendTimeout  = 30 * time.Second
	DefaultRatePerSec      = 5
	DefaultBurst           = 10
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaintenanceSpec = "@every 15m"
	DefaultAuditRetention  = 30 * 24 * time.Hour
)

// Engagement is EngagementConfig with durations parsed. Zero durations
// mean "use the engagement package default".
type Engagement struct {
	Dwell          time.Duration
	SnoozeBackoff  time.Duration
	ForcedDelay    time.Duration
	StorageTimeout time.Duration
	Debug          bool
	MaxPages       int
}

// EngagementSettings parses the engagement section.
func (c *Config) EngagementSettings() (Engagement, error) {
	e := c.Engagement
	var out Engagement
	var err error
	if out.Dwell, err = ParseDurationField("engagement.dwell", e.Dwell); err != nil {
		return Engagement{}, err
	}
	if out.SnoozeBackoff, err = ParseDurationField("engagement.snooze_backoff", e.SnoozeBackoff); err != nil {
		return Engagement{}, err
	}
	if out.ForcedDelay, err = ParseDurationField("engagement.forced_delay", e.ForcedDelay); err != nil {
		return Engagement{}, err
	}
	if out.StorageTimeout, err = ParseDurationField("engagement.storage_timeout", e.StorageTimeout); err != nil {
		return Engagement{}, err
	}
	if e.MaxPages < 0 {
		return Engagement{}, errors.New("engagement.max_pages: must be >= 0")
	}
	out.MaxPages = e.MaxPages
	out.Debug = c.DebugEnabled()
	return out, nil
}

// MaintenanceSchedule returns the cron spec and audit retention.
func (c *Config) MaintenanceSchedule() (string, time.Duration, error) {
	spec := strings.TrimSpace(c.Maintenance.Schedule)
	if spec == "" {
		spec = DefaultMaintenanceSpec
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return "", 0, fmt.Errorf("maintenance.schedule: %w", err)
	}
	ret, err := ParseDurationOrDefault("maintenance.audit_retention", c.Maintenance.AuditRetention, DefaultAuditRetention)
	if err != nil {
		return "", 0, err
	}
	return spec, ret, nil
}

// BackendURL returns the parsed backend base URL.
func (c *Config) BackendURL() (*url.URL, error) {
	raw := strings.TrimSpace(c.Backend.URL)
	if raw == "" {
		raw = DefaultBackendURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("backend.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend.url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("backend.url: missing host")
	}
	return u, nil
}

// Validate checks every field that is parsed later, so a bad reload is
// rejected before anything is applied.
func Validate(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	switch cfg.Environment {
	case "", "development", "dev", "production", "prod", "test":
	default:
		errs = append(errs, fmt.Errorf("environment: unknown value %q", cfg.Environment))
	}
	for _, f := range []struct{ path, raw string }{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.idle_timeout", cfg.Server.IdleTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout},
		{"backend.timeout", cfg.Backend.Timeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Backend.RatePerSec < 0 || cfg.Backend.Burst < 0 {
		errs = append(errs, errors.New("backend: rate_per_sec and burst must be >= 0"))
	}
	if _, err := cfg.BackendURL(); err != nil {
		errs = append(errs, err)
	}
	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "memory":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path: required for driver %q", s.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := cfg.EngagementSettings(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := cfg.MaintenanceSchedule(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
