package engagement

import (
	"context"
	"testing"
	"time"

	"resumeassist/internal/eventbus"
	"resumeassist/internal/storage"
	logx "resumeassist/pkg/logx"
)

func publish(bus eventbus.Bus, p ShowPrompt) { bus.Publish(ChannelShowPrompt, p) }

func TestCoordinatorStartSubscribesOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, storage.NewMemory())
	if f.coord.Start() {
		t.Fatalf("second Start reported a fresh subscription")
	}
	if n := f.bus.Subscribers(ChannelShowPrompt); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}
	f.coord.Stop()
	if n := f.bus.Subscribers(ChannelShowPrompt); n != 0 {
		t.Fatalf("subscribers after Stop = %d, want 0", n)
	}
	if f.coord.Start() {
		t.Fatalf("Start after Stop should be refused")
	}
}

func TestCoordinatorShowMarksPrompted(t *testing.T) {
	t.Parallel()
	f := newFixture(t, storage.NewMemory())
	publish(f.bus, ShowPrompt{Source: SourceDwell, Route: "/jobs"})

	if !f.coord.Visible() {
		t.Fatalf("prompt not visible after show event")
	}
	if got := f.pres.Last(); got != (Prompt{Source: SourceDwell, Route: "/jobs"}) {
		t.Fatalf("presented %+v", got)
	}
	if !f.store.Get(context.Background()).EverPrompted {
		t.Fatalf("EverPrompted not recorded")
	}
}

func TestCoordinatorIgnoresEventsWhileVisible(t *testing.T) {
	t.Parallel()
	f := newFixture(t, storage.NewMemory())
	for i := 0; i < 3; i++ {
		publish(f.bus, ShowPrompt{Source: SourceQuery})
	}
	if f.pres.Shows() != 1 {
		t.Fatalf("shows = %d, want 1", f.pres.Shows())
	}
}

func TestCoordinatorSnoozeReshowsAfterBackoff(t *testing.T) {
	t.Parallel()
	f := newFixture(t, storage.NewMemory())
	publish(f.bus, ShowPrompt{Source: SourceDwell, Route: "/"})

	if !f.coord.TemporaryClose() {
		t.Fatalf("TemporaryClose on a visible prompt returned false")
	}
	if f.coord.Visible() {
		t.Fatalf("prompt still visible after snooze")
	}
	if f.coord.TemporaryClose() {
		t.Fatalf("TemporaryClose on a hidden prompt returned true")
	}

	f.clock.Advance(30*time.Second - time.Millisecond)
	if f.coord.Visible() {
		t.Fatalf("prompt reappeared before backoff elapsed")
	}
	f.clock.Advance(time.Millisecond)
	if !f.coord.Visible() {
		t.Fatalf("prompt did not reappear after backoff")
	}
	if got := f.pres.Last().Source; got != SourceSnooze {
		t.Fatalf("reshow source = %q, want %q", got, SourceSnooze)
	}
	if f.pres.Shows() != 2 || f.pres.Hides() != 1 {
		t.Fatalf("shows/hides = %d/%d, want 2/1", f.pres.Shows(), f.pres.Hides())
	}
	rec := f.store.Get(context.Background())
	if rec.Suppressed() {
		t.Fatalf("snooze wrote a durable decision: %+v", rec)
	}
}

func TestCoordinatorSnoozeClearsSessionMarker(t *testing.T) {
	t.Parallel()
	f := newFixture(t, storage.NewMemory())
	publish(f.bus, ShowPrompt{Source: SourceDwell})
	f.coord.TemporaryClose()

	if f.store.Get(context.Background()).EverPrompted {
		t.Fatalf("snooze left the session marked as prompted")
	}
	// The pending reshow owns the next render on this page.
	publish(f.bus, ShowPrompt{Source: SourceDwell})
	if f.coord.Visible() {
		t.Fatalf("dwell event cut the snooze backoff short")
	}
	f.clock.Advance(30 * time.Second)
	if !f.coord.Visible() || f.pres.Last().Source != SourceSnooze || f.pres.Shows() != 2 {
		t.Fatalf("reshow visible=%v source=%q shows=%d", f.coord.Visible(), f.pres.Last().Source, f.pres.Shows())
	}
	if !f.store.Get(context.Background()).EverPrompted {
		t.Fatalf("reshow did not mark the session again")
	}
}

func TestCoordinatorPermanentCloseDuringBackoff(t *testing.T) {
	t.Parallel()
	f := newFixture(t, storage.NewMemory())
	publish(f.bus, ShowPrompt{Source: SourceDwell})
	f.coord.TemporaryClose()

	f.coord.PermanentClose(context.Background())
	f.clock.Advance(time.Hour)

	if f.coord.Visible() || f.pres.Shows() != 1 {
		t.Fatalf("prompt came back after permanent close (shows = %d)", f.pres.Shows())
	}
	if n := f.clock.Pending(); n != 0 {
		t.Fatalf("pending timers = %d, want 0", n)
	}
}

func TestCoordinatorClosedForGoodIgnoresLaterEvents(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		close func(*Coordinator, context.Context)
		check func(DecisionRecord) bool
	}{
		{"dismiss", (*Coordinator).PermanentClose, func(r DecisionRecord) bool { return r.PermanentlyDismissed }},
		{"confirm", (*Coordinator).ConfirmBookmarked, func(r DecisionRecord) bool { return r.ConfirmedBookmarked }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, storage.NewMemory())
			publish(f.bus, ShowPrompt{Source: SourceDwell})
			tt.close(f.coord, context.Background())

			if f.coord.Visible() {
				t.Fatalf("prompt visible after %s", tt.name)
			}
			if !tt.check(f.store.Get(context.Background())) {
				t.Fatalf("%s not persisted", tt.name)
			}
			for _, src := range []Source{SourceDwell, SourceSnooze, SourceQuery, SourceDebug} {
				publish(f.bus, ShowPrompt{Source: src})
			}
			if f.pres.Shows() != 1 {
				t.Fatalf("shows = %d, want 1", f.pres.Shows())
			}
		})
	}
}

func TestCoordinatorDwellIgnoredAfterPromptThisSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, storage.NewMemory())
	f.store.MarkPrompted(context.Background())

	publish(f.bus, ShowPrompt{Source: SourceDwell})
	if f.coord.Visible() {
		t.Fatalf("dwell event rendered twice in one session")
	}
	publish(f.bus, ShowPrompt{Source: SourceQuery})
	if !f.coord.Visible() {
		t.Fatalf("forced display blocked by earlier prompt")
	}
}

func TestCoordinatorNewSessionIsEligibleAgain(t *testing.T) {
	t.Parallel()
	backend := storage.NewMemory()
	f := newFixture(t, backend)
	publish(f.bus, ShowPrompt{Source: SourceDwell})

	next := NewDecisionStore(backend, "profile-1", "session-2", time.Second, logx.Nop())
	if next.Get(context.Background()).EverPrompted {
		t.Fatalf("a new session inherited EverPrompted")
	}
}

func TestCoordinatorDegradedWriteHidesLocally(t *testing.T) {
	t.Parallel()
	backend := &flakyStore{Store: storage.NewMemory()}
	f := newFixture(t, backend)
	publish(f.bus, ShowPrompt{Source: SourceQuery})

	backend.setBroken(true)
	f.coord.PermanentClose(context.Background())
	if f.coord.Visible() {
		t.Fatalf("prompt stayed open after a failed write")
	}
	publish(f.bus, ShowPrompt{Source: SourceQuery})
	if f.pres.Shows() != 1 {
		t.Fatalf("dismissal not honored on this page")
	}

	// A reload builds a new handle; the dismissal did not survive.
	backend.setBroken(false)
	reload := NewDecisionStore(backend, "profile-1", "session-3", time.Second, logx.Nop())
	if reload.Get(context.Background()).PermanentlyDismissed {
		t.Fatalf("failed write became durable")
	}
}

func TestCoordinatorTwoWatchersRenderOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t, storage.NewMemory())
	a, b := f.watcher("/"), f.watcher("/")
	a.Mount(context.Background())
	b.Mount(context.Background())

	f.clock.Advance(testDwell)
	if f.pres.Shows() != 1 {
		t.Fatalf("shows = %d, want 1", f.pres.Shows())
	}
}

func TestCoordinatorStopClearsSnoozeTimer(t *testing.T) {
	t.Parallel()
	f := newFixture(t, storage.NewMemory())
	publish(f.bus, ShowPrompt{Source: SourceDwell})
	f.coord.TemporaryClose()
	if n := f.clock.Pending(); n != 1 {
		t.Fatalf("pending timers = %d, want 1", n)
	}

	f.coord.Stop()
	if n := f.clock.Pending(); n != 0 {
		t.Fatalf("pending timers after Stop = %d, want 0", n)
	}
	f.clock.Advance(time.Hour)
	if f.pres.Shows() != 1 {
		t.Fatalf("phantom reshow after Stop")
	}
}

func TestCoordinatorDebugOverride(t *testing.T) {
	t.Parallel()
	f := newFixture(t, storage.NewMemory())
	f.store.SetPermanentlyDismissed(context.Background())
	dbg := NewDebugCommands(f.store, f.bus, testDwell, logx.Nop())

	dbg.Trigger(false)
	if f.coord.Visible() {
		t.Fatalf("plain debug trigger overrode dismissal")
	}
	dbg.Trigger(true)
	if !f.coord.Visible() {
		t.Fatalf("override trigger did not render")
	}
}

func TestDebugResetRestoresDefaults(t *testing.T) {
	t.Parallel()
	f := newFixture(t, storage.NewMemory())
	ctx := context.Background()
	f.store.SetConfirmedBookmarked(ctx)
	f.store.MarkPrompted(ctx)

	dbg := NewDebugCommands(f.store, f.bus, testDwell, logx.Nop())
	if msg := dbg.Reset(ctx); msg == "" {
		t.Fatalf("Reset returned an empty summary")
	}
	if got := f.store.Get(ctx); got != (DecisionRecord{}) {
		t.Fatalf("record after reset = %+v, want zero", got)
	}
}
