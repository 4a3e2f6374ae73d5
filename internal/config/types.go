package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "10s", "1m"); empty means the built-in default.
type Config struct {
	// Environment is "development" or "production". APP_ENV overrides it.
	Environment string `json:"environment,omitempty"`

	Server      ServerConfig      `json:"server"`
	Backend     BackendConfig     `json:"backend"`
	Logging     LoggingConfig     `json:"logging"`
	Storage     *StorageConfig    `json:"storage,omitempty"`
	Engagement  EngagementConfig  `json:"engagement"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

// ServerConfig controls the HTTP listener. PORT overrides the port in Addr.
type ServerConfig struct {
	Addr            string `json:"addr,omitempty"` // default: ":3000"
	ReadTimeout     string `json:"read_timeout,omitempty"`
	IdleTimeout     string `json:"idle_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

// BackendConfig points the upload and proxy routes at the API backend.
//
// Example:
//
//	"backend": { "url": "http://localhost:8080", "rate_per_sec": 5, "burst": 10 }
type BackendConfig struct {
	URL        string `json:"url,omitempty"` // API_URL overrides
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Burst      int    `json:"burst,omitempty"`
}

type LoggingConfig struct {
	Level       string      `json:"level"`
	Console     bool        `json:"console"`
	ConsoleJSON bool        `json:"console_json,omitempty"`
	File        LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls where visitor decisions live. Nil disables
// persistence: decisions then last only as long as the page.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/decisions.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"` // STORAGE_PATH overrides
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// EngagementConfig tunes the bookmark prompt.
//
// Debug is a pointer so an omitted value can follow Environment
// (on in development, off in production).
type EngagementConfig struct {
	Dwell          string `json:"dwell,omitempty"`          // default: "60s"
	SnoozeBackoff  string `json:"snooze_backoff,omitempty"` // default: "60s"
	ForcedDelay    string `json:"forced_delay,omitempty"`   // default: "1s"
	StorageTimeout string `json:"storage_timeout,omitempty"`
	Debug          *bool  `json:"debug,omitempty"`
	MaxPages       int    `json:"max_pages,omitempty"`
}

type MaintenanceConfig struct {
	// Schedule is a robfig/cron spec. Default: "@every 15m".
	Schedule       string `json:"schedule,omitempty"`
	AuditRetention string `json:"audit_retention,omitempty"` // default: "720h"
	Disabled       bool   `json:"disabled,omitempty"`
}

// Production reports whether the environment is production.
func (c *Config) Production() bool {
	return c != nil && (c.Environment == "production" || c.Environment == "prod")
}

// DebugEnabled resolves the engagement debug flag.
func (c *Config) DebugEnabled() bool {
	if c == nil {
		return false
	}
	if c.Engagement.Debug != nil {
		return *c.Engagement.Debug
	}
	return !c.Production()
}
