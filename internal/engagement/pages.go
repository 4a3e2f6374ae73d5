package engagement

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	logx "resumeassist/pkg/logx"
)

var (
	ErrPageLimit    = errors.New("too many open pages")
	ErrPageNotFound = errors.New("page not found")
)

// Pages tracks the runtimes of every connected page.
type Pages struct {
	limit int

	mu    sync.RWMutex
	deps  Deps
	pages map[string]*Runtime
}

func NewPages(deps Deps, limit int) *Pages {
	if limit <= 0 {
		limit = DefaultMaxPages
	}
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	return &Pages{limit: limit, deps: deps, pages: map[string]*Runtime{}}
}

// Apply swaps the settings used by pages opened from now on. Open pages
// keep the timings they started with.
func (p *Pages) Apply(s Settings) {
	p.mu.Lock()
	p.deps.Settings = s
	p.mu.Unlock()
}

func (p *Pages) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deps.Settings.withDefaults()
}

// Open creates and starts a runtime. An empty opts.ID gets a fresh one.
func (p *Pages) Open(opts PageOptions, presenter Presenter) (*Runtime, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}

	p.mu.Lock()
	if len(p.pages) >= p.limit {
		p.mu.Unlock()
		return nil, ErrPageLimit
	}
	if _, dup := p.pages[opts.ID]; dup {
		p.mu.Unlock()
		return nil, errors.New("page id already open: " + opts.ID)
	}
	r := NewRuntime(p.deps, opts, presenter)
	p.pages[opts.ID] = r
	p.mu.Unlock()

	r.Start(opts.ForceDisplay)
	return r, nil
}

func (p *Pages) Get(id string) (*Runtime, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.pages[id]
	if !ok {
		return nil, ErrPageNotFound
	}
	return r, nil
}

// Close stops and forgets one runtime.
func (p *Pages) Close(id string) {
	p.mu.Lock()
	r, ok := p.pages[id]
	delete(p.pages, id)
	p.mu.Unlock()
	if ok {
		r.Stop()
	}
}

func (p *Pages) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.pages)
}

// CloseAll stops every runtime, a few at a time, until ctx expires.
func (p *Pages) CloseAll(ctx context.Context) error {
	p.mu.Lock()
	all := p.pages
	p.pages = map[string]*Runtime{}
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, r := range all {
		r := r
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.Stop()
			return nil
		})
	}
	return g.Wait()
}

// Decisions returns a decision handle for one visitor outside any page,
// for debug resets and operator tooling.
func (p *Pages) Decisions(profile, session string) *DecisionStore {
	p.mu.RLock()
	deps := p.deps
	p.mu.RUnlock()
	return NewDecisionStore(deps.Backend, profile, session, deps.Settings.withDefaults().StorageTimeout, deps.Log)
}
