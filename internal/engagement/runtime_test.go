package engagement

import (
	"context"
	"errors"
	"testing"
	"time"

	"resumeassist/internal/storage"
	logx "resumeassist/pkg/logx"
)

func newTestRuntime(t *testing.T, settings Settings, opts PageOptions) (*Runtime, *ManualClock, *recorder) {
	t.Helper()
	clock := NewManualClock(time.Time{})
	pres := &recorder{}
	if opts.ID == "" {
		opts.ID = "page-1"
	}
	if opts.Profile == "" {
		opts.Profile = "profile-1"
	}
	if opts.Session == "" {
		opts.Session = "session-1"
	}
	r := NewRuntime(Deps{
		Backend:  storage.NewMemory(),
		Clock:    clock,
		Log:      logx.Nop(),
		Settings: settings,
	}, opts, pres)
	t.Cleanup(r.Stop)
	return r, clock, pres
}

func TestRuntimeForcedDisplay(t *testing.T) {
	t.Parallel()
	r, clock, pres := newTestRuntime(t, Settings{}, PageOptions{})
	r.Start(true)

	clock.Advance(DefaultForcedDelay - time.Millisecond)
	if pres.Shows() != 0 {
		t.Fatalf("forced prompt shown early")
	}
	clock.Advance(time.Millisecond)
	if pres.Shows() != 1 || pres.Last().Source != SourceQuery {
		t.Fatalf("forced prompt not shown: shows=%d last=%+v", pres.Shows(), pres.Last())
	}
}

func TestRuntimeForcedDisplayRespectsDismissal(t *testing.T) {
	t.Parallel()
	r, clock, pres := newTestRuntime(t, Settings{}, PageOptions{})
	r.Store().SetPermanentlyDismissed(context.Background())
	r.Start(true)
	clock.Advance(time.Minute)
	if pres.Shows() != 0 {
		t.Fatalf("forced display overrode dismissal")
	}
}

func TestRuntimeMountSameRouteReusesWatcher(t *testing.T) {
	t.Parallel()
	r, clock, pres := newTestRuntime(t, Settings{}, PageOptions{})
	r.Start(false)

	a := r.Mount(context.Background(), "/")
	b := r.Mount(context.Background(), "/")
	if a != b {
		t.Fatalf("second mount built a new watcher")
	}
	if n := clock.Pending(); n != 1 {
		t.Fatalf("pending timers = %d, want 1", n)
	}
	clock.Advance(DefaultDwellDelay)
	if pres.Shows() != 1 {
		t.Fatalf("shows = %d, want 1", pres.Shows())
	}
}

func TestRuntimeNavigationLeavesNoPhantom(t *testing.T) {
	t.Parallel()
	r, clock, pres := newTestRuntime(t, Settings{}, PageOptions{})
	r.Start(false)

	r.Mount(context.Background(), "/a")
	clock.Advance(DefaultDwellDelay / 2)
	r.Unmount("/a")
	r.Mount(context.Background(), "/b")

	clock.Advance(DefaultDwellDelay/2 + time.Millisecond)
	if pres.Shows() != 0 {
		t.Fatalf("timer from /a fired after navigation")
	}
	clock.Advance(DefaultDwellDelay / 2)
	if pres.Shows() != 1 || pres.Last().Route != "/b" {
		t.Fatalf("expected one prompt for /b, got shows=%d last=%+v", pres.Shows(), pres.Last())
	}
	if _, ok := r.Watchers()["/a"]; ok {
		t.Fatalf("unmounted route still tracked")
	}
}

func TestRuntimeStopClearsTimers(t *testing.T) {
	t.Parallel()
	r, clock, pres := newTestRuntime(t, Settings{}, PageOptions{})
	r.Start(true)
	r.Mount(context.Background(), "/")
	r.Mount(context.Background(), "/other")

	r.Stop()
	if n := clock.Pending(); n != 0 {
		t.Fatalf("pending timers after Stop = %d, want 0", n)
	}
	if w := r.Mount(context.Background(), "/late"); w != nil {
		t.Fatalf("Mount after Stop returned a watcher")
	}
	clock.Advance(time.Hour)
	if pres.Shows() != 0 {
		t.Fatalf("prompt shown after Stop")
	}
}

func TestRuntimeResetThenFreshMount(t *testing.T) {
	t.Parallel()
	r, clock, pres := newTestRuntime(t, Settings{Debug: true}, PageOptions{})
	r.Start(false)
	ctx := context.Background()
	r.Store().SetPermanentlyDismissed(ctx)

	if w := r.Mount(ctx, "/"); w.State() != WatcherCancelled {
		t.Fatalf("dismissed visitor got an armed watcher: %v", w.State())
	}
	r.Debug().Reset(ctx)

	w := r.Mount(ctx, "/")
	if w.State() != WatcherWaiting {
		t.Fatalf("state after reset = %v, want waiting", w.State())
	}
	clock.Advance(DefaultDwellDelay)
	if pres.Shows() != 1 {
		t.Fatalf("shows = %d, want 1", pres.Shows())
	}
}

func TestRuntimeResetAfterPermanentClose(t *testing.T) {
	t.Parallel()
	r, clock, pres := newTestRuntime(t, Settings{Debug: true}, PageOptions{})
	r.Start(false)
	ctx := context.Background()
	r.Mount(ctx, "/")
	clock.Advance(DefaultDwellDelay)
	if pres.Shows() != 1 {
		t.Fatalf("shows = %d, want 1", pres.Shows())
	}

	r.Coordinator().PermanentClose(ctx)
	r.Debug().Reset(ctx)
	if got := r.Store().Get(ctx); got != (DecisionRecord{}) {
		t.Fatalf("record after reset = %+v, want zero", got)
	}
	r.Debug().Trigger(false)
	if pres.Shows() != 2 {
		t.Fatalf("plain trigger after reset: shows = %d, want 2", pres.Shows())
	}

	r.Coordinator().ConfirmBookmarked(ctx)
	r.Debug().Reset(ctx)
	r.Unmount("/")
	w := r.Mount(ctx, "/next")
	if w.State() != WatcherWaiting {
		t.Fatalf("state after reset = %v, want waiting", w.State())
	}
	clock.Advance(DefaultDwellDelay)
	if pres.Shows() != 3 {
		t.Fatalf("dwell after reset: shows = %d, want 3", pres.Shows())
	}
}

func TestRuntimeSnoozeThenNavigate(t *testing.T) {
	t.Parallel()
	backend := storage.NewMemory()
	clock := NewManualClock(time.Time{})
	deps := Deps{Backend: backend, Clock: clock, Log: logx.Nop()}
	opts := PageOptions{ID: "a", Profile: "profile-1", Session: "session-1"}

	first := &recorder{}
	a := NewRuntime(deps, opts, first)
	a.Start(false)
	a.Mount(context.Background(), "/")
	clock.Advance(DefaultDwellDelay)
	if !a.Coordinator().TemporaryClose() {
		t.Fatalf("snooze on page a failed (shows = %d)", first.Shows())
	}
	a.Stop()

	opts.ID = "b"
	second := &recorder{}
	b := NewRuntime(deps, opts, second)
	t.Cleanup(b.Stop)
	b.Start(false)
	if w := b.Mount(context.Background(), "/jobs"); w.State() != WatcherWaiting {
		t.Fatalf("state on new page = %v, want waiting", w.State())
	}
	clock.Advance(DefaultDwellDelay)
	if second.Shows() != 1 {
		t.Fatalf("shows on new page = %d, want 1", second.Shows())
	}
}

func TestRuntimeMountRacingStop(t *testing.T) {
	t.Parallel()
	r, clock, _ := newTestRuntime(t, Settings{}, PageOptions{})
	r.Start(false)

	// Hold the lock so Mount passes its first liveness check and waits,
	// then end the runtime underneath it.
	r.mu.Lock()
	done := make(chan *DwellWatcher, 1)
	go func() { done <- r.Mount(context.Background(), "/") }()
	time.Sleep(20 * time.Millisecond)
	r.life.End()
	r.mu.Unlock()

	if w := <-done; w != nil {
		t.Fatalf("Mount on a stopped runtime returned a watcher in state %v", w.State())
	}
	if n := clock.Pending(); n != 0 {
		t.Fatalf("pending timers = %d, want 0", n)
	}
	if n := len(r.Watchers()); n != 0 {
		t.Fatalf("watchers = %d, want 0", n)
	}
}

func TestRuntimeDebugOnlyWhenEnabled(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestRuntime(t, Settings{}, PageOptions{})
	if r.Debug() != nil {
		t.Fatalf("debug commands exposed without debug settings")
	}
}

func TestRuntimeHeuristicUsesCapabilities(t *testing.T) {
	t.Parallel()
	r, clock, _ := newTestRuntime(t, Settings{}, PageOptions{
		Capabilities: Capabilities{Permission: "granted"},
	})
	r.Start(false)
	if w := r.Mount(context.Background(), "/"); w.State() != WatcherCancelled {
		t.Fatalf("state = %v, want cancelled for a granted permission", w.State())
	}
	if n := clock.Pending(); n != 0 {
		t.Fatalf("pending timers = %d, want 0", n)
	}
}

func TestPagesOpenGetClose(t *testing.T) {
	t.Parallel()
	pages := NewPages(Deps{Backend: storage.NewMemory(), Clock: NewManualClock(time.Time{})}, 2)
	t.Cleanup(func() { _ = pages.CloseAll(context.Background()) })

	a, err := pages.Open(PageOptions{Profile: "p", Session: "s"}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if a.ID() == "" {
		t.Fatalf("Open did not assign an id")
	}
	if got, err := pages.Get(a.ID()); err != nil || got != a {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if _, err := pages.Open(PageOptions{ID: a.ID()}, nil); err == nil {
		t.Fatalf("duplicate id accepted")
	}
	if _, err := pages.Open(PageOptions{}, nil); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if _, err := pages.Open(PageOptions{}, nil); !errors.Is(err, ErrPageLimit) {
		t.Fatalf("Open over limit err = %v, want ErrPageLimit", err)
	}

	pages.Close(a.ID())
	if _, err := pages.Get(a.ID()); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("Get after Close err = %v, want ErrPageNotFound", err)
	}
	if pages.Len() != 1 {
		t.Fatalf("Len = %d, want 1", pages.Len())
	}
}

func TestPagesApplyAffectsNewPagesOnly(t *testing.T) {
	t.Parallel()
	pages := NewPages(Deps{Clock: NewManualClock(time.Time{})}, 0)
	t.Cleanup(func() { _ = pages.CloseAll(context.Background()) })

	before, err := pages.Open(PageOptions{}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pages.Apply(Settings{DwellDelay: 5 * time.Second})
	after, err := pages.Open(PageOptions{}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got := before.Settings().DwellDelay; got != DefaultDwellDelay {
		t.Fatalf("open page dwell = %v, want %v", got, DefaultDwellDelay)
	}
	if got := after.Settings().DwellDelay; got != 5*time.Second {
		t.Fatalf("new page dwell = %v, want 5s", got)
	}
	if got := pages.Settings().SnoozeBackoff; got != DefaultSnoozeBackoff {
		t.Fatalf("snooze default = %v", got)
	}
}

func TestPagesCloseAllStopsEverything(t *testing.T) {
	t.Parallel()
	clock := NewManualClock(time.Time{})
	pages := NewPages(Deps{Clock: clock}, 0)
	for i := 0; i < 20; i++ {
		r, err := pages.Open(PageOptions{ForceDisplay: true}, nil)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		r.Mount(context.Background(), "/")
	}
	if err := pages.CloseAll(context.Background()); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if pages.Len() != 0 {
		t.Fatalf("Len = %d, want 0", pages.Len())
	}
	if n := clock.Pending(); n != 0 {
		t.Fatalf("pending timers = %d, want 0", n)
	}
}
