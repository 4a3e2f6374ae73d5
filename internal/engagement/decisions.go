package engagement

import (
	"context"
	"sync"
	"time"

	"resumeassist/internal/storage"
	logx "resumeassist/pkg/logx"
)

// Storage keys. Other tooling reads these names; do not rename.
const (
	KeyConfirmedBookmarked  = "confirmed-bookmarked"
	KeyPermanentlyDismissed = "permanently-dismissed"
	KeyPromptedThisSession  = "prompted-this-session"
)

var decisionKeys = []string{KeyConfirmedBookmarked, KeyPermanentlyDismissed, KeyPromptedThisSession}

// DecisionRecord is the visitor's persisted prompt state.
type DecisionRecord struct {
	ConfirmedBookmarked  bool `json:"confirmed_bookmarked"`
	PermanentlyDismissed bool `json:"permanently_dismissed"`
	// EverPrompted is true once a prompt was shown in the current browser session.
	EverPrompted bool `json:"ever_prompted"`
}

// Suppressed reports whether the visitor must not be prompted again.
func (r DecisionRecord) Suppressed() bool {
	return r.ConfirmedBookmarked || r.PermanentlyDismissed
}

// DecisionStore is one visitor's view of the decision flags.
//
// Backend failures never reach the caller: they are logged and the write is
// kept in a per-handle overlay, so the decision holds for this page but is
// lost on reload. A nil backend runs on the overlay alone.
type DecisionStore struct {
	backend storage.Store
	profile string
	session string
	timeout time.Duration
	log     logx.Logger

	mu sync.Mutex
	// pending holds writes the backend did not accept; a nil value is a
	// pending delete.
	pending map[string]*string
}

func NewDecisionStore(backend storage.Store, profile, session string, timeout time.Duration, log logx.Logger) *DecisionStore {
	if timeout <= 0 {
		timeout = DefaultStorageTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DecisionStore{
		backend: backend,
		profile: profile,
		session: session,
		timeout: timeout,
		log:     log,
		pending: map[string]*string{},
	}
}

func (s *DecisionStore) Profile() string { return s.profile }
func (s *DecisionStore) Session() string { return s.session }

// Get returns the current record. On read failure it falls back to the
// default record plus any local writes.
func (s *DecisionStore) Get(ctx context.Context) DecisionRecord {
	vals := map[string]string{}
	if s.backend != nil {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		m, err := s.backend.GetDecisions(cctx, s.profile)
		cancel()
		if err != nil {
			s.log.Warn("decision read failed; using session state", logx.String("profile", s.profile), logx.Err(err))
		} else {
			vals = m
		}
	}

	s.mu.Lock()
	for k, v := range s.pending {
		if v == nil {
			delete(vals, k)
		} else {
			vals[k] = *v
		}
	}
	s.mu.Unlock()

	return DecisionRecord{
		ConfirmedBookmarked:  vals[KeyConfirmedBookmarked] == "true",
		PermanentlyDismissed: vals[KeyPermanentlyDismissed] == "true",
		EverPrompted:         s.session != "" && vals[KeyPromptedThisSession] == s.session,
	}
}

func (s *DecisionStore) SetConfirmedBookmarked(ctx context.Context) {
	s.put(ctx, "confirm-bookmarked", KeyConfirmedBookmarked, "true")
}

func (s *DecisionStore) SetPermanentlyDismissed(ctx context.Context) {
	s.put(ctx, "dismiss-permanently", KeyPermanentlyDismissed, "true")
}

// MarkPrompted records that the current session has seen the prompt. A new
// browser session is eligible again.
func (s *DecisionStore) MarkPrompted(ctx context.Context) {
	s.put(ctx, "mark-prompted", KeyPromptedThisSession, s.session)
}

// Reset clears all three flags with a single backend delete.
func (s *DecisionStore) Reset(ctx context.Context) {
	s.del(ctx, "reset", decisionKeys...)
}

// ClearPrompted forgets that this session saw the prompt. The durable
// flags are left alone.
func (s *DecisionStore) ClearPrompted(ctx context.Context) {
	s.del(ctx, "clear-prompted", KeyPromptedThisSession)
}

func (s *DecisionStore) del(ctx context.Context, action string, keys ...string) {
	var err error
	if s.backend != nil {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err = s.backend.DeleteDecisions(cctx, s.profile, keys...)
		cancel()
	}

	s.mu.Lock()
	for _, k := range keys {
		if s.backend == nil || err != nil {
			s.pending[k] = nil
		} else {
			delete(s.pending, k)
		}
	}
	s.mu.Unlock()

	s.audit(ctx, action, err)
}

func (s *DecisionStore) put(ctx context.Context, action, key, value string) {
	var err error
	if s.backend != nil {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err = s.backend.PutDecision(cctx, s.profile, key, value)
		cancel()
	}

	s.mu.Lock()
	if s.backend == nil || err != nil {
		v := value
		s.pending[key] = &v
	} else {
		delete(s.pending, key)
	}
	s.mu.Unlock()

	s.audit(ctx, action, err)
}

func (s *DecisionStore) audit(ctx context.Context, action string, err error) {
	if err != nil {
		s.log.Warn("decision write failed; kept for this page only",
			logx.String("action", action), logx.String("profile", s.profile), logx.Err(err))
	}
	if s.backend == nil {
		return
	}
	e := storage.AuditEntry{
		At:      time.Now(),
		Profile: s.profile,
		Session: s.session,
		Action:  action,
		OK:      err == nil,
	}
	if err != nil {
		e.Error = err.Error()
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if aerr := s.backend.AppendAudit(cctx, e); aerr != nil {
		s.log.Debug("audit append failed", logx.String("action", action), logx.Err(aerr))
	}
}
