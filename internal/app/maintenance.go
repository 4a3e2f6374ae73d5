package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"resumeassist/internal/storage"
	logx "resumeassist/pkg/logx"
)

// maintenance runs Store.Maintain on a cron schedule.
type maintenance struct {
	store storage.Store
	log   logx.Logger

	mu        sync.Mutex
	c         *cron.Cron
	spec      string
	retention time.Duration
	entry     cron.EntryID
}

func newMaintenance(store storage.Store, log logx.Logger) *maintenance {
	return &maintenance{
		store: store,
		log:   log,
		c:     cron.New(),
	}
}

// Apply (re)schedules the job. An empty spec disables it.
func (m *maintenance) Apply(spec string, retention time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if spec == m.spec && retention == m.retention {
		return nil
	}
	if m.entry != 0 {
		m.c.Remove(m.entry)
		m.entry = 0
	}
	m.spec, m.retention = spec, retention
	if spec == "" || m.store == nil {
		return nil
	}
	id, err := m.c.AddFunc(spec, func() { m.Run(context.Background()) })
	if err != nil {
		return err
	}
	m.entry = id
	m.log.Info("maintenance scheduled", logx.String("schedule", spec), logx.Duration("audit_retention", retention))
	return nil
}

// Run performs one pass now.
func (m *maintenance) Run(ctx context.Context) {
	if m.store == nil {
		return
	}
	m.mu.Lock()
	retention := m.retention
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	start := time.Now()
	if err := m.store.Maintain(ctx, storage.MaintainOptions{Now: start, AuditRetention: retention}); err != nil {
		m.log.Warn("maintenance failed", logx.Err(err))
		return
	}
	m.log.Debug("maintenance done", logx.Duration("took", time.Since(start)))
}

func (m *maintenance) Start() { m.c.Start() }

// Stop waits for a running job until ctx ends.
func (m *maintenance) Stop(ctx context.Context) error {
	select {
	case <-m.c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
