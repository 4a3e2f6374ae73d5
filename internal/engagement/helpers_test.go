package engagement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"resumeassist/internal/eventbus"
	"resumeassist/internal/storage"
	logx "resumeassist/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testDwell = 60 * time.Second

// recorder is a Presenter that counts calls.
type recorder struct {
	mu    sync.Mutex
	shown []Prompt
	hides int
}

func (r *recorder) Show(p Prompt) {
	r.mu.Lock()
	r.shown = append(r.shown, p)
	r.mu.Unlock()
}

func (r *recorder) Hide() {
	r.mu.Lock()
	r.hides++
	r.mu.Unlock()
}

func (r *recorder) Shows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shown)
}

func (r *recorder) Hides() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hides
}

func (r *recorder) Last() Prompt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.shown) == 0 {
		return Prompt{}
	}
	return r.shown[len(r.shown)-1]
}

// flakyStore fails every call once broken is set.
type flakyStore struct {
	storage.Store
	mu     sync.Mutex
	broken bool
}

var errBackendDown = errors.New("backend down")

func (f *flakyStore) setBroken(v bool) {
	f.mu.Lock()
	f.broken = v
	f.mu.Unlock()
}

func (f *flakyStore) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return errBackendDown
	}
	return nil
}

func (f *flakyStore) GetDecisions(ctx context.Context, profile string) (map[string]string, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Store.GetDecisions(ctx, profile)
}

func (f *flakyStore) PutDecision(ctx context.Context, profile, key, value string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.Store.PutDecision(ctx, profile, key, value)
}

func (f *flakyStore) DeleteDecisions(ctx context.Context, profile string, keys ...string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.Store.DeleteDecisions(ctx, profile, keys...)
}

// fixture wires one page by hand, without Runtime.
type fixture struct {
	clock *ManualClock
	bus   eventbus.Bus
	store *DecisionStore
	pres  *recorder
	coord *Coordinator
}

func newFixture(t *testing.T, backend storage.Store) *fixture {
	t.Helper()
	clock := NewManualClock(time.Time{})
	bus := eventbus.New()
	store := NewDecisionStore(backend, "profile-1", "session-1", time.Second, logx.Nop())
	pres := &recorder{}
	coord := NewCoordinator(CoordinatorConfig{
		Bus:           bus,
		Store:         store,
		Clock:         clock,
		Presenter:     pres,
		SnoozeBackoff: 30 * time.Second,
	})
	coord.Start()
	t.Cleanup(coord.Stop)
	return &fixture{clock: clock, bus: bus, store: store, pres: pres, coord: coord}
}

func (f *fixture) watcher(route string, strategies ...Strategy) *DwellWatcher {
	return NewDwellWatcher(WatcherConfig{
		Route:     route,
		Delay:     testDwell,
		Clock:     f.clock,
		Bus:       f.bus,
		Store:     f.store,
		Heuristic: NewHeuristic(logx.Nop(), strategies...),
	})
}

// countShowEvents counts raw publishes on the show-prompt channel.
func countShowEvents(t *testing.T, bus eventbus.Bus) *int {
	t.Helper()
	n := new(int)
	unsub := bus.Subscribe(ChannelShowPrompt, func(eventbus.Event) { *n++ })
	t.Cleanup(unsub)
	return n
}
