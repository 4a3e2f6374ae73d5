package engagement

import (
	"context"
	"fmt"
	"time"

	"resumeassist/internal/eventbus"
	logx "resumeassist/pkg/logx"
)

// DebugCommands are manual QA hooks. They act only on the visitor's own
// state and are wired only when debug is enabled.
type DebugCommands struct {
	store *DecisionStore
	bus   eventbus.Bus
	dwell time.Duration
	log   logx.Logger
}

func NewDebugCommands(store *DecisionStore, bus eventbus.Bus, dwell time.Duration, log logx.Logger) *DebugCommands {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DebugCommands{store: store, bus: bus, dwell: dwell, log: log.With(logx.String("comp", "debug"))}
}

// Reset clears every decision flag and returns an operator-facing summary.
func (d *DebugCommands) Reset(ctx context.Context) string {
	d.store.Reset(ctx)
	d.log.Info("decision flags reset", logx.String("profile", d.store.Profile()))
	return fmt.Sprintf("bookmark prompt reset; after reload it shows again within %s", d.dwell)
}

// Trigger publishes a show-prompt event now. Without override the visitor's
// opt-out still wins.
func (d *DebugCommands) Trigger(override bool) string {
	d.log.Info("show-prompt triggered manually", logx.Bool("override", override))
	d.bus.Publish(ChannelShowPrompt, ShowPrompt{Source: SourceDebug, Override: override})
	return "show-prompt event published"
}
