package engagement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logx "resumeassist/pkg/logx"
)

// ErrUnsupported marks a strategy whose platform capability is missing.
var ErrUnsupported = errors.New("capability not supported")

// Strategy is one independent way of guessing that the site is already
// bookmarked or installed. A false result with a nil error is inconclusive.
type Strategy interface {
	Name() string
	Check(ctx context.Context) (bool, error)
}

type strategyFunc struct {
	name string
	fn   func(ctx context.Context) (bool, error)
}

func (s strategyFunc) Name() string                            { return s.name }
func (s strategyFunc) Check(ctx context.Context) (bool, error) { return s.fn(ctx) }

// NewStrategy adapts a function.
func NewStrategy(name string, fn func(ctx context.Context) (bool, error)) Strategy {
	return strategyFunc{name: name, fn: fn}
}

// Capabilities is what the page reported about its platform when it
// connected. Empty fields mean the platform did not answer.
type Capabilities struct {
	// Permission is the state of the app-manifest permission query
	// ("granted", "prompt", "denied").
	Permission string `json:"permission,omitempty"`
	// DisplayMode is the matched display-mode media feature
	// ("standalone", "browser", ...).
	DisplayMode string `json:"display_mode,omitempty"`
}

// PermissionStrategy treats a granted manifest permission as installed.
func PermissionStrategy(caps Capabilities) Strategy {
	return NewStrategy("permission", func(ctx context.Context) (bool, error) {
		state := strings.ToLower(strings.TrimSpace(caps.Permission))
		if state == "" {
			return false, fmt.Errorf("permission query: %w", ErrUnsupported)
		}
		return state == "granted", nil
	})
}

// DisplayModeStrategy treats a standalone display as an installed app.
func DisplayModeStrategy(caps Capabilities) Strategy {
	return NewStrategy("display-mode", func(ctx context.Context) (bool, error) {
		mode := strings.ToLower(strings.TrimSpace(caps.DisplayMode))
		if mode == "" {
			return false, fmt.Errorf("display-mode query: %w", ErrUnsupported)
		}
		return mode == "standalone", nil
	})
}

// StoredConfirmationStrategy trusts the visitor's own earlier answer.
func StoredConfirmationStrategy(store *DecisionStore) Strategy {
	return NewStrategy("stored-confirmation", func(ctx context.Context) (bool, error) {
		return store.Get(ctx).ConfirmedBookmarked, nil
	})
}

// Heuristic runs strategies in order and stops at the first affirmative
// answer. Nothing is cached; every call re-evaluates.
type Heuristic struct {
	strategies []Strategy
	log        logx.Logger
}

func NewHeuristic(log logx.Logger, strategies ...Strategy) *Heuristic {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Heuristic{strategies: strategies, log: log}
}

// IsLikelyBookmarked never fails: a strategy that errors or panics counts
// as inconclusive and the next one runs.
func (h *Heuristic) IsLikelyBookmarked(ctx context.Context) bool {
	for _, s := range h.strategies {
		if s == nil {
			continue
		}
		if ctx.Err() != nil {
			return false
		}
		ok, err := h.run(ctx, s)
		if err != nil {
			lvl := h.log.Debug
			if !errors.Is(err, ErrUnsupported) {
				lvl = h.log.Warn
			}
			lvl("bookmark strategy failed", logx.String("strategy", s.Name()), logx.Err(err))
			continue
		}
		if ok {
			h.log.Debug("bookmark strategy matched", logx.String("strategy", s.Name()))
			return true
		}
	}
	return false
}

func (h *Heuristic) run(ctx context.Context, s Strategy) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Check(ctx)
}
