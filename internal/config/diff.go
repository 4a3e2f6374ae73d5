package config

import (
	"reflect"
	"sort"
	"strings"

	logx "resumeassist/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// fields for logging. The backend URL is reduced to its host.
//
// Sections that need a restart (server, storage) are reported like the
// others; the caller decides what to apply live.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Environment != newCfg.Environment {
		changed = append(changed, "environment")
		attrs = append(attrs, logx.String("environment", newCfg.Environment))
	}

	if oldCfg.Server != newCfg.Server {
		changed = append(changed, "server")
		attrs = append(attrs, logx.String("server.addr", newCfg.Server.Addr))
	}

	if oldCfg.Backend != newCfg.Backend {
		changed = append(changed, "backend")
		host := ""
		if u, err := newCfg.BackendURL(); err == nil {
			host = u.Host
		}
		attrs = append(attrs,
			logx.String("backend.host", host),
			logx.Int("backend.rate_per_sec", newCfg.Backend.RatePerSec),
			logx.Int("backend.burst", newCfg.Backend.Burst),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	var oDriver, nDriver string
	var oPathSet, nPathSet bool
	if s := oldCfg.Storage; s != nil {
		oDriver = strings.TrimSpace(s.Driver)
		oPathSet = strings.TrimSpace(s.Path) != ""
	}
	if s := newCfg.Storage; s != nil {
		nDriver = strings.TrimSpace(s.Driver)
		nPathSet = strings.TrimSpace(s.Path) != ""
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.Bool("storage.driver_changed", oDriver != nDriver || oPathSet != nPathSet),
		)
	}

	if !reflect.DeepEqual(oldCfg.Engagement, newCfg.Engagement) || oldCfg.DebugEnabled() != newCfg.DebugEnabled() {
		changed = append(changed, "engagement")
		attrs = append(attrs,
			logx.String("engagement.dwell", newCfg.Engagement.Dwell),
			logx.String("engagement.snooze_backoff", newCfg.Engagement.SnoozeBackoff),
			logx.Bool("engagement.debug", newCfg.DebugEnabled()),
		)
	}

	if oldCfg.Maintenance != newCfg.Maintenance {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.String("maintenance.schedule", newCfg.Maintenance.Schedule),
			logx.Bool("maintenance.disabled", newCfg.Maintenance.Disabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// NeedsRestart reports sections in changed that are only read at startup.
func NeedsRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "server", "storage", "backend":
			out = append(out, s)
		}
	}
	return out
}
