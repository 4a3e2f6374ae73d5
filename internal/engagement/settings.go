package engagement

import "time"

const (
	// DefaultDwellDelay is how long a page must stay open before the prompt.
	DefaultDwellDelay = 60 * time.Second
	// DefaultSnoozeBackoff is how long a snoozed prompt stays hidden.
	DefaultSnoozeBackoff = 60 * time.Second
	// DefaultForcedDelay applies when the page URL carries ForceMarker.
	DefaultForcedDelay    = time.Second
	DefaultStorageTimeout = 2 * time.Second
	DefaultMaxPages       = 10000

	// ForceMarker in a page query string forces an early prompt.
	ForceMarker = "show-bookmark"
)

// Settings holds the tunable timings. Zero fields fall back to defaults.
type Settings struct {
	DwellDelay     time.Duration
	SnoozeBackoff  time.Duration
	ForcedDelay    time.Duration
	StorageTimeout time.Duration
	// Debug exposes DebugCommands on every runtime.
	Debug bool
}

func DefaultSettings() Settings {
	return Settings{
		DwellDelay:     DefaultDwellDelay,
		SnoozeBackoff:  DefaultSnoozeBackoff,
		ForcedDelay:    DefaultForcedDelay,
		StorageTimeout: DefaultStorageTimeout,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.DwellDelay <= 0 {
		s.DwellDelay = d.DwellDelay
	}
	if s.SnoozeBackoff <= 0 {
		s.SnoozeBackoff = d.SnoozeBackoff
	}
	if s.ForcedDelay <= 0 {
		s.ForcedDelay = d.ForcedDelay
	}
	if s.StorageTimeout <= 0 {
		s.StorageTimeout = d.StorageTimeout
	}
	return s
}
