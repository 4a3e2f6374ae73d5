package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "resumeassist/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.audit.jsonl              (append-only JSON Lines)
//   - <prefix>.decisions.snapshot.json  (periodic snapshot)
//   - <prefix>.decisions.journal.jsonl  (append-only journal)
//
// The journal is compacted into the snapshot every compactEvery writes and
// on Maintain.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditPath string
	auditFile *os.File

	snapshotPath string
	journalFile  *os.File
	decisions    map[string]map[string]string

	writes       int
	compactEvery int
}

// journalRecord is one line of the decisions journal. A delete carries
// every key it removes so a reset replays as one unit.
type journalRecord struct {
	Op      string   `json:"op"`
	Profile string   `json:"profile"`
	Key     string   `json:"key,omitempty"`
	Value   string   `json:"value,omitempty"`
	Keys    []string `json:"keys,omitempty"`
}

const (
	opPut    = "put"
	opDelete = "del"
)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	auditPath := prefix + ".audit.jsonl"
	snapPath := prefix + ".decisions.snapshot.json"
	journalPath := prefix + ".decisions.journal.jsonl"

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	decisions := map[string]map[string]string{}
	if err := loadSnapshot(snapPath, decisions); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("decision snapshot unreadable; starting from journal", logx.Err(err))
	}
	if err := replayJournal(journalPath, decisions); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("decision journal replay incomplete", logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	return &fileStore{
		log:          log,
		auditPath:    auditPath,
		auditFile:    af,
		snapshotPath: snapPath,
		journalFile:  jf,
		decisions:    decisions,
		compactEvery: 1000,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.auditFile != nil {
		err1 = s.auditFile.Close()
		s.auditFile = nil
	}
	if s.journalFile != nil {
		err2 = s.journalFile.Close()
		s.journalFile = nil
	}
	return errors.Join(err1, err2)
}

func (s *fileStore) GetDecisions(ctx context.Context, profile string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil, ErrDisabled
	}
	src := s.decisions[profile]
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

func (s *fileStore) PutDecision(ctx context.Context, profile, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	profile = strings.TrimSpace(profile)
	key = strings.TrimSpace(key)
	if profile == "" || key == "" {
		return errors.New("profile and key are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: opPut, Profile: profile, Key: key, Value: value}); err != nil {
		return err
	}
	applyRecord(s.decisions, journalRecord{Op: opPut, Profile: profile, Key: key, Value: value})
	s.afterWriteLocked()
	return nil
}

func (s *fileStore) DeleteDecisions(ctx context.Context, profile string, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	profile = strings.TrimSpace(profile)
	if profile == "" || len(keys) == 0 {
		return nil
	}

	rec := journalRecord{Op: opDelete, Profile: profile, Keys: append([]string(nil), keys...)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(rec); err != nil {
		return err
	}
	applyRecord(s.decisions, rec)
	s.afterWriteLocked()
	return nil
}

// appendLocked writes the journal line before the in-memory map changes,
// so a failed write leaves both views untouched.
func (s *fileStore) appendLocked(rec journalRecord) error {
	if s.journalFile == nil {
		return ErrDisabled
	}
	return json.NewEncoder(s.journalFile).Encode(rec)
}

func (s *fileStore) afterWriteLocked() {
	s.writes++
	if s.compactEvery > 0 && s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("decision compact failed", logx.Err(err))
		}
	}
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Maintain(ctx context.Context, opts MaintainOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrDisabled
	}
	if err := s.compactLocked(); err != nil {
		return err
	}
	if cut, ok := opts.cutoff(); ok {
		return s.pruneAuditLocked(cut)
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.decisions); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func (s *fileStore) pruneAuditLocked(cut time.Time) error {
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	in, err := os.Open(s.auditPath)
	if err != nil {
		return err
	}
	tmp := s.auditPath + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		_ = in.Close()
		return err
	}

	dropped := 0
	sc := bufio.NewScanner(in)
	w := bufio.NewWriter(out)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err == nil && e.At.Before(cut) {
			dropped++
			continue
		}
		_, _ = w.Write(sc.Bytes())
		_ = w.WriteByte('\n')
	}
	_ = in.Close()
	if err := errors.Join(sc.Err(), w.Flush(), out.Close()); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if dropped == 0 {
		return os.Remove(tmp)
	}

	_ = s.auditFile.Close()
	s.auditFile = nil
	if err := os.Rename(tmp, s.auditPath); err != nil {
		return err
	}
	af, err := os.OpenFile(s.auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.auditFile = af
	s.log.Debug("audit pruned", logx.Int("dropped", dropped))
	return nil
}

func applyRecord(m map[string]map[string]string, r journalRecord) {
	switch r.Op {
	case opPut:
		if r.Profile == "" || r.Key == "" {
			return
		}
		p := m[r.Profile]
		if p == nil {
			p = map[string]string{}
			m[r.Profile] = p
		}
		p[r.Key] = r.Value
	case opDelete:
		p := m[r.Profile]
		for _, k := range r.Keys {
			delete(p, k)
		}
		if len(p) == 0 {
			delete(m, r.Profile)
		}
	}
}

func loadSnapshot(path string, out map[string]map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]map[string]string
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		var r journalRecord
		if err := json.Unmarshal(s.Bytes(), &r); err != nil {
			// A torn last line after a crash is expected; skip it.
			continue
		}
		applyRecord(out, r)
	}
	return s.Err()
}
