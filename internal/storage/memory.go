package storage

import (
	"context"
	"errors"
	"sync"
)

type memoryStore struct {
	mu        sync.RWMutex
	decisions map[string]map[string]string
	audit     []AuditEntry
	closed    bool
}

// NewMemory returns a process-local Store.
func NewMemory() Store {
	return &memoryStore{decisions: map[string]map[string]string{}}
}

func (s *memoryStore) GetDecisions(ctx context.Context, profile string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrDisabled
	}
	out := make(map[string]string, len(s.decisions[profile]))
	for k, v := range s.decisions[profile] {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStore) PutDecision(ctx context.Context, profile, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if profile == "" || key == "" {
		return errors.New("profile and key are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	m := s.decisions[profile]
	if m == nil {
		m = map[string]string{}
		s.decisions[profile] = m
	}
	m[key] = value
	return nil
}

func (s *memoryStore) DeleteDecisions(ctx context.Context, profile string, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	m := s.decisions[profile]
	for _, k := range keys {
		delete(m, k)
	}
	if len(m) == 0 {
		delete(s.decisions, profile)
	}
	return nil
}

func (s *memoryStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	s.audit = append(s.audit, e)
	return nil
}

func (s *memoryStore) Maintain(ctx context.Context, opts MaintainOptions) error {
	cut, ok := opts.cutoff()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.audit[:0]
	for _, e := range s.audit {
		if !e.At.Before(cut) {
			kept = append(kept, e)
		}
	}
	s.audit = kept
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
