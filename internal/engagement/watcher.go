package engagement

import (
	"context"
	"sync"
	"time"

	"resumeassist/internal/eventbus"
	logx "resumeassist/pkg/logx"
)

type WatcherState int

const (
	WatcherIdle WatcherState = iota
	WatcherCheckingHeuristic
	WatcherWaiting
	WatcherFired
	WatcherCancelled
)

func (s WatcherState) String() string {
	switch s {
	case WatcherIdle:
		return "idle"
	case WatcherCheckingHeuristic:
		return "checking-heuristic"
	case WatcherWaiting:
		return "waiting"
	case WatcherFired:
		return "fired"
	case WatcherCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the watcher can no longer publish.
func (s WatcherState) Terminal() bool { return s == WatcherFired || s == WatcherCancelled }

// DwellWatcher arms one dwell timer for one mount and publishes a
// show-prompt event when it expires.
type DwellWatcher struct {
	route     string
	delay     time.Duration
	clock     Clock
	bus       eventbus.Bus
	store     *DecisionStore
	heuristic *Heuristic
	log       logx.Logger

	mounted latch

	mu    sync.Mutex
	state WatcherState
	timer Timer
}

type WatcherConfig struct {
	Route     string
	Delay     time.Duration
	Clock     Clock
	Bus       eventbus.Bus
	Store     *DecisionStore
	Heuristic *Heuristic
	Log       logx.Logger
}

func NewDwellWatcher(cfg WatcherConfig) *DwellWatcher {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDwellDelay
	}
	if cfg.Heuristic == nil {
		cfg.Heuristic = NewHeuristic(cfg.Log)
	}
	if cfg.Log.IsZero() {
		cfg.Log = logx.Nop()
	}
	return &DwellWatcher{
		route:     cfg.Route,
		delay:     cfg.Delay,
		clock:     cfg.Clock,
		bus:       cfg.Bus,
		store:     cfg.Store,
		heuristic: cfg.Heuristic,
		log:       cfg.Log.With(logx.String("route", cfg.Route)),
	}
}

func (w *DwellWatcher) Route() string { return w.route }

func (w *DwellWatcher) State() WatcherState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Mount consults the decision store and the heuristic, then arms the dwell
// timer. It blocks until the heuristic settles. Only the first call does
// anything; later calls for the same watcher are no-ops.
func (w *DwellWatcher) Mount(ctx context.Context) {
	if !w.mounted.Begin() {
		w.log.Debug("dwell watcher already mounted")
		return
	}

	if rec := w.store.Get(ctx); rec.Suppressed() {
		w.cancelFrom(WatcherIdle, "visitor opted out")
		return
	}
	if !w.advance(WatcherIdle, WatcherCheckingHeuristic) {
		return
	}

	bookmarked := w.heuristic.IsLikelyBookmarked(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != WatcherCheckingHeuristic {
		// Unmounted while the heuristic ran.
		return
	}
	if bookmarked || ctx.Err() != nil {
		w.state = WatcherCancelled
		w.log.Debug("dwell watcher cancelled", logx.Bool("bookmarked", bookmarked))
		return
	}
	w.state = WatcherWaiting
	w.timer = w.clock.AfterFunc(w.delay, w.fire)
	w.log.Debug("dwell timer armed", logx.Duration("delay", w.delay))
}

// Unmount clears a pending timer. A watcher that already fired stays fired.
func (w *DwellWatcher) Unmount() {
	w.mounted.End()

	w.mu.Lock()
	defer w.mu.Unlock()
	switch w.state {
	case WatcherWaiting:
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.state = WatcherCancelled
		w.log.Debug("dwell timer cleared on unmount")
	case WatcherIdle, WatcherCheckingHeuristic:
		w.state = WatcherCancelled
	}
}

func (w *DwellWatcher) fire() {
	w.mu.Lock()
	if w.state != WatcherWaiting {
		w.mu.Unlock()
		return
	}
	w.state = WatcherFired
	w.timer = nil
	w.mu.Unlock()

	w.log.Debug("dwell elapsed; publishing show-prompt")
	w.bus.Publish(ChannelShowPrompt, ShowPrompt{Source: SourceDwell, Route: w.route})
}

func (w *DwellWatcher) advance(from, to WatcherState) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != from {
		return false
	}
	w.state = to
	return true
}

func (w *DwellWatcher) cancelFrom(from WatcherState, reason string) {
	if w.advance(from, WatcherCancelled) {
		w.log.Debug("dwell watcher cancelled", logx.String("reason", reason))
	}
}
