package engagement

import (
	"context"
	"errors"
	"testing"
	"time"

	"resumeassist/internal/storage"
	logx "resumeassist/pkg/logx"
)

func TestHeuristicStopsAtFirstAffirmative(t *testing.T) {
	t.Parallel()
	var calls []string
	mk := func(name string, ok bool, err error) Strategy {
		return NewStrategy(name, func(context.Context) (bool, error) {
			calls = append(calls, name)
			return ok, err
		})
	}
	h := NewHeuristic(logx.Nop(),
		mk("a", false, nil),
		mk("b", true, nil),
		mk("c", true, nil),
	)
	if !h.IsLikelyBookmarked(context.Background()) {
		t.Fatal("expected affirmative")
	}
	if len(calls) != 2 || calls[1] != "b" {
		t.Fatalf("calls = %v, want [a b]", calls)
	}
}

func TestHeuristicIsolatesFailures(t *testing.T) {
	t.Parallel()
	reached := false
	h := NewHeuristic(logx.Nop(),
		NewStrategy("errors", func(context.Context) (bool, error) { return true, errors.New("boom") }),
		NewStrategy("panics", func(context.Context) (bool, error) { panic("no platform") }),
		NewStrategy("unsupported", func(context.Context) (bool, error) { return false, ErrUnsupported }),
		NewStrategy("last", func(context.Context) (bool, error) { reached = true; return true, nil }),
	)
	if !h.IsLikelyBookmarked(context.Background()) {
		t.Fatal("last strategy should decide")
	}
	if !reached {
		t.Fatal("failures must not abort remaining strategies")
	}
}

func TestHeuristicAllInconclusive(t *testing.T) {
	t.Parallel()
	h := NewHeuristic(logx.Nop(),
		PermissionStrategy(Capabilities{}),
		DisplayModeStrategy(Capabilities{}),
		NewStrategy("panics", func(context.Context) (bool, error) { panic("x") }),
	)
	if h.IsLikelyBookmarked(context.Background()) {
		t.Fatal("expected false when every strategy fails")
	}
}

func TestHeuristicReevaluatesEachCall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewDecisionStore(storage.NewMemory(), "p", "s", time.Second, logx.Nop())
	h := NewHeuristic(logx.Nop(), StoredConfirmationStrategy(store))

	if h.IsLikelyBookmarked(ctx) {
		t.Fatal("unexpected affirmative before confirmation")
	}
	store.SetConfirmedBookmarked(ctx)
	if !h.IsLikelyBookmarked(ctx) {
		t.Fatal("result must not be cached")
	}
}

func TestBuiltinStrategies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		name    string
		s       Strategy
		want    bool
		wantErr bool
	}{
		{"permission granted", PermissionStrategy(Capabilities{Permission: "granted"}), true, false},
		{"permission prompt", PermissionStrategy(Capabilities{Permission: "prompt"}), false, false},
		{"permission missing", PermissionStrategy(Capabilities{}), false, true},
		{"standalone", DisplayModeStrategy(Capabilities{DisplayMode: "Standalone"}), true, false},
		{"browser tab", DisplayModeStrategy(Capabilities{DisplayMode: "browser"}), false, false},
		{"display missing", DisplayModeStrategy(Capabilities{}), false, true},
	}
	for _, tt := range tests {
		got, err := tt.s.Check(ctx)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if tt.wantErr && !errors.Is(err, ErrUnsupported) {
			t.Fatalf("%s: err = %v, want ErrUnsupported", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
