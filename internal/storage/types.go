package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Store is the minimal persistence API used by the engagement core.
type Store interface {
	// GetDecisions returns every stored key for profile. Unknown profiles
	// yield an empty map, not an error.
	GetDecisions(ctx context.Context, profile string) (map[string]string, error)
	PutDecision(ctx context.Context, profile, key, value string) error
	// DeleteDecisions removes keys as one unit: readers observe either all
	// of them or none of them.
	DeleteDecisions(ctx context.Context, profile string, keys ...string) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Maintain(ctx context.Context, opts MaintainOptions) error
	Close() error
}

// Config configures storage.
//
// Driver values:
//   - "memory": process-local map (tests, throwaway deployments)
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records a decision write.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Profile string    `json:"profile"`
	Session string    `json:"session,omitempty"`
	Action  string    `json:"action"`
	Source  string    `json:"source,omitempty"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
}

// MaintainOptions drives periodic housekeeping.
type MaintainOptions struct {
	Now time.Time
	// AuditRetention drops audit entries older than Now-AuditRetention.
	// Zero keeps everything.
	AuditRetention time.Duration
}

func (o MaintainOptions) cutoff() (time.Time, bool) {
	if o.AuditRetention <= 0 {
		return time.Time{}, false
	}
	now := o.Now
	if now.IsZero() {
		now = time.Now()
	}
	return now.Add(-o.AuditRetention), true
}
