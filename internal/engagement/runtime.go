package engagement

import (
	"context"
	"sync"

	"resumeassist/internal/eventbus"
	"resumeassist/internal/storage"
	logx "resumeassist/pkg/logx"
)

// Deps are shared by every runtime.
type Deps struct {
	Backend  storage.Store
	Clock    Clock
	Log      logx.Logger
	Settings Settings
}

// PageOptions describe one connected page.
type PageOptions struct {
	ID           string
	Profile      string
	Session      string
	Capabilities Capabilities
	// ForceDisplay is set when the page URL carried ForceMarker.
	ForceDisplay bool
}

// Runtime is the engagement state of one open page: its bus, its
// coordinator and the watchers mounted on it.
type Runtime struct {
	id        string
	settings  Settings
	clock     Clock
	bus       eventbus.Bus
	store     *DecisionStore
	heuristic *Heuristic
	coord     *Coordinator
	debug     *DebugCommands
	log       logx.Logger

	life latch

	mu       sync.Mutex
	watchers map[string]*DwellWatcher
	forced   Timer
}

func NewRuntime(deps Deps, opts PageOptions, presenter Presenter) *Runtime {
	settings := deps.Settings.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("page", opts.ID))

	bus := eventbus.New(eventbus.WithLogger(log), eventbus.WithClock(clock.Now))
	store := NewDecisionStore(deps.Backend, opts.Profile, opts.Session, settings.StorageTimeout, log)
	heuristic := NewHeuristic(log,
		PermissionStrategy(opts.Capabilities),
		DisplayModeStrategy(opts.Capabilities),
		StoredConfirmationStrategy(store),
	)

	r := &Runtime{
		id:        opts.ID,
		settings:  settings,
		clock:     clock,
		bus:       bus,
		store:     store,
		heuristic: heuristic,
		log:       log,
		watchers:  map[string]*DwellWatcher{},
		coord: NewCoordinator(CoordinatorConfig{
			Bus:           bus,
			Store:         store,
			Clock:         clock,
			Presenter:     presenter,
			SnoozeBackoff: settings.SnoozeBackoff,
			Log:           log,
		}),
	}
	if settings.Debug {
		r.debug = NewDebugCommands(store, bus, settings.DwellDelay, log)
	}
	return r
}

func (r *Runtime) ID() string                { return r.id }
func (r *Runtime) Bus() eventbus.Bus         { return r.bus }
func (r *Runtime) Store() *DecisionStore     { return r.store }
func (r *Runtime) Coordinator() *Coordinator { return r.coord }
func (r *Runtime) Settings() Settings        { return r.settings }
func (r *Runtime) Debug() *DebugCommands     { return r.debug }
func (r *Runtime) Heuristic() *Heuristic     { return r.heuristic }

// Start subscribes the coordinator and, when requested, schedules the
// forced early display. Later calls are no-ops.
func (r *Runtime) Start(forceDisplay bool) {
	if !r.life.Begin() {
		return
	}
	r.coord.Start()
	if forceDisplay {
		r.mu.Lock()
		r.forced = r.clock.AfterFunc(r.settings.ForcedDelay, func() {
			r.mu.Lock()
			r.forced = nil
			r.mu.Unlock()
			r.bus.Publish(ChannelShowPrompt, ShowPrompt{Source: SourceQuery})
		})
		r.mu.Unlock()
		r.log.Debug("forced prompt scheduled", logx.Duration("delay", r.settings.ForcedDelay))
	}
}

// Mount starts a dwell watcher for route. A route that already has a live
// watcher keeps it; duplicate renders of the same view do not arm a second
// timer.
func (r *Runtime) Mount(ctx context.Context, route string) *DwellWatcher {
	if !r.life.Active() {
		return nil
	}
	r.mu.Lock()
	// Stop may have run since the check above.
	if !r.life.Active() {
		r.mu.Unlock()
		return nil
	}
	if w, ok := r.watchers[route]; ok && w.State() != WatcherCancelled {
		r.mu.Unlock()
		return w
	}
	w := NewDwellWatcher(WatcherConfig{
		Route:     route,
		Delay:     r.settings.DwellDelay,
		Clock:     r.clock,
		Bus:       r.bus,
		Store:     r.store,
		Heuristic: r.heuristic,
		Log:       r.log,
	})
	r.watchers[route] = w
	r.mu.Unlock()

	w.Mount(ctx)
	return w
}

// Unmount tears down the watcher for route, if any.
func (r *Runtime) Unmount(route string) {
	r.mu.Lock()
	w, ok := r.watchers[route]
	if ok {
		delete(r.watchers, route)
	}
	r.mu.Unlock()
	if ok {
		w.Unmount()
	}
}

// Watchers returns the live watchers keyed by route.
func (r *Runtime) Watchers() map[string]*DwellWatcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*DwellWatcher, len(r.watchers))
	for k, v := range r.watchers {
		out[k] = v
	}
	return out
}

// Stop clears every timer the runtime owns. Safe to call more than once.
func (r *Runtime) Stop() {
	if !r.life.End() {
		return
	}
	r.mu.Lock()
	watchers := r.watchers
	r.watchers = map[string]*DwellWatcher{}
	if r.forced != nil {
		r.forced.Stop()
		r.forced = nil
	}
	r.mu.Unlock()

	for _, w := range watchers {
		w.Unmount()
	}
	r.coord.Stop()
	r.log.Debug("page runtime stopped")
}
