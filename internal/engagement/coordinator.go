package engagement

import (
	"context"
	"sync"
	"time"

	"resumeassist/internal/eventbus"
	logx "resumeassist/pkg/logx"
)

// Prompt is what the presenter renders.
type Prompt struct {
	Source Source `json:"source"`
	Route  string `json:"route,omitempty"`
}

// Presenter shows or hides the single prompt. Calls are made while the
// coordinator holds its lock, so implementations must not block or call
// back into the coordinator.
type Presenter interface {
	Show(p Prompt)
	Hide()
}

// PresenterFuncs adapts two functions to a Presenter.
type PresenterFuncs struct {
	OnShow func(Prompt)
	OnHide func()
}

func (p PresenterFuncs) Show(pr Prompt) {
	if p.OnShow != nil {
		p.OnShow(pr)
	}
}

func (p PresenterFuncs) Hide() {
	if p.OnHide != nil {
		p.OnHide()
	}
}

// Coordinator owns the prompt's visibility for one page runtime.
type Coordinator struct {
	bus       eventbus.Bus
	store     *DecisionStore
	clock     Clock
	presenter Presenter
	backoff   time.Duration
	log       logx.Logger

	life  latch
	unsub func()

	mu        sync.Mutex
	visible   bool
	reshow    Timer
	reshowSeq uint64
	shows     int
}

type CoordinatorConfig struct {
	Bus           eventbus.Bus
	Store         *DecisionStore
	Clock         Clock
	Presenter     Presenter
	SnoozeBackoff time.Duration
	Log           logx.Logger
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.SnoozeBackoff <= 0 {
		cfg.SnoozeBackoff = DefaultSnoozeBackoff
	}
	if cfg.Presenter == nil {
		cfg.Presenter = PresenterFuncs{}
	}
	if cfg.Log.IsZero() {
		cfg.Log = logx.Nop()
	}
	return &Coordinator{
		bus:       cfg.Bus,
		store:     cfg.Store,
		clock:     cfg.Clock,
		presenter: cfg.Presenter,
		backoff:   cfg.SnoozeBackoff,
		log:       cfg.Log,
	}
}

// Start subscribes to the show-prompt channel. Only the first call
// subscribes; it reports whether this call did.
func (c *Coordinator) Start() bool {
	if !c.life.Begin() {
		c.log.Debug("coordinator already started")
		return false
	}
	c.unsub = c.bus.Subscribe(ChannelShowPrompt, c.onShowPrompt)
	return true
}

// Stop unsubscribes and clears the snooze timer. The presenter is not
// called: the page it renders into is going away.
func (c *Coordinator) Stop() {
	if !c.life.End() {
		return
	}
	if c.unsub != nil {
		c.unsub()
	}
	c.mu.Lock()
	c.stopReshowLocked()
	c.visible = false
	c.mu.Unlock()
}

func (c *Coordinator) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Shown counts renders since Start.
func (c *Coordinator) Shown() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shows
}

func (c *Coordinator) onShowPrompt(e eventbus.Event) {
	req, ok := e.Data.(ShowPrompt)
	if !ok {
		req = ShowPrompt{Source: SourceDebug}
	}
	c.present(context.Background(), req)
}

// present re-reads the decision store before every render; state captured
// earlier may be stale if a close action raced this event.
func (c *Coordinator) present(ctx context.Context, req ShowPrompt) {
	if !c.life.Active() || c.Visible() {
		return
	}
	rec := c.store.Get(ctx)

	c.mu.Lock()
	if !c.life.Active() || c.visible {
		c.mu.Unlock()
		return
	}
	if rec.Suppressed() && !req.Override {
		c.mu.Unlock()
		c.log.Debug("prompt suppressed by visitor decision",
			logx.String("source", string(req.Source)),
			logx.Bool("confirmed", rec.ConfirmedBookmarked),
			logx.Bool("dismissed", rec.PermanentlyDismissed))
		return
	}
	if req.Source == SourceDwell && (rec.EverPrompted || c.reshow != nil) {
		c.mu.Unlock()
		c.log.Debug("dwell prompt skipped; already shown or snoozed", logx.String("route", req.Route))
		return
	}
	c.stopReshowLocked()
	c.visible = true
	c.shows++
	c.presenter.Show(Prompt{Source: req.Source, Route: req.Route})
	c.mu.Unlock()

	c.log.Info("bookmark prompt shown", logx.String("source", string(req.Source)), logx.String("route", req.Route))
	c.store.MarkPrompted(ctx)
}

// TemporaryClose hides the prompt and shows it again after the snooze
// backoff. The session marker is cleared so a page opened before the
// reshow may ask again; nothing else is written.
func (c *Coordinator) TemporaryClose() bool {
	c.mu.Lock()
	if !c.life.Active() || !c.visible {
		c.mu.Unlock()
		return false
	}
	c.visible = false
	c.presenter.Hide()

	c.stopReshowLocked()
	c.reshowSeq++
	seq := c.reshowSeq
	c.reshow = c.clock.AfterFunc(c.backoff, func() { c.onReshow(seq) })
	c.mu.Unlock()

	c.log.Debug("prompt snoozed", logx.Duration("backoff", c.backoff))
	c.store.ClearPrompted(context.Background())
	return true
}

// PermanentClose hides the prompt and records that the visitor never
// wants to be asked again.
func (c *Coordinator) PermanentClose(ctx context.Context) {
	c.hideForGood()
	c.store.SetPermanentlyDismissed(ctx)
	c.log.Info("prompt dismissed permanently")
}

// ConfirmBookmarked hides the prompt and records the visitor's claim that
// the site is bookmarked.
func (c *Coordinator) ConfirmBookmarked(ctx context.Context) {
	c.hideForGood()
	c.store.SetConfirmedBookmarked(ctx)
	c.log.Info("visitor confirmed bookmark")
}

// hideForGood runs before the store write so a failing backend cannot keep
// the prompt open.
func (c *Coordinator) hideForGood() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopReshowLocked()
	if c.visible {
		c.visible = false
		c.presenter.Hide()
	}
}

func (c *Coordinator) onReshow(seq uint64) {
	c.mu.Lock()
	if seq != c.reshowSeq || c.reshow == nil {
		c.mu.Unlock()
		return
	}
	c.reshow = nil
	c.mu.Unlock()

	c.present(context.Background(), ShowPrompt{Source: SourceSnooze})
}

func (c *Coordinator) stopReshowLocked() {
	if c.reshow != nil {
		c.reshow.Stop()
		c.reshow = nil
	}
	c.reshowSeq++
}
