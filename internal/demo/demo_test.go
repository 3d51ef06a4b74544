package demo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"susmarket/internal/domain"
	"susmarket/internal/engine"
	"susmarket/internal/pricing"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildScriptShape(t *testing.T) {
	steps, err := BuildScript(DefaultRoster, DefaultImposter, newRNG(1))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	kinds := make([]domain.EventKind, len(steps))
	for i, s := range steps {
		kinds[i] = s.Event.Kind()
		if s.Delay < 500*time.Millisecond || s.Delay > 4000*time.Millisecond {
			t.Errorf("step %d delay %s out of range", i, s.Delay)
		}
	}

	// start, kill, meeting, 7 votes, ejection, kill, meeting, 5 votes, ejection, end
	if len(steps) != 1+1+1+7+1+1+1+5+1+1 {
		t.Fatalf("unexpected step count %d: %v", len(steps), kinds)
	}
	if kinds[0] != domain.KindGameStart || kinds[len(kinds)-1] != domain.KindGameEnd {
		t.Fatalf("script must start and end the match: %v", kinds)
	}

	end := steps[len(steps)-1].Event.(domain.GameEnd)
	if end.Winner != domain.WinnerCrew || end.Imposter != DefaultImposter {
		t.Fatalf("unexpected ending %+v", end)
	}

	lastEjection := steps[len(steps)-2].Event.(domain.Ejection)
	if lastEjection.Ejected != DefaultImposter {
		t.Fatalf("imposter must be ejected last, got %s", lastEjection.Ejected)
	}
}

func TestBuildScriptVotes(t *testing.T) {
	steps, err := BuildScript(DefaultRoster, DefaultImposter, newRNG(9))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	meetings := 0
	for _, s := range steps {
		switch e := s.Event.(type) {
		case domain.MeetingStart:
			meetings++
		case domain.Vote:
			if meetings == 1 && e.Agent == e.Target {
				t.Fatalf("agent %s voted for itself", e.Agent)
			}
			if meetings == 2 && e.Target != DefaultImposter {
				t.Fatalf("final vote must name the imposter, got %s", e.Target)
			}
		case domain.Kill:
			if e.Victim == DefaultImposter {
				t.Fatalf("imposter was killed")
			}
		}
	}
}

func TestBuildScriptValidatesRoster(t *testing.T) {
	tests := []struct {
		name     string
		roster   []string
		imposter string
		want     error
	}{
		{"missing imposter", []string{"A", "B", "C", "D"}, "Z", ErrImposterNotInRoster},
		{"too small", []string{"A", "B", "C"}, "A", ErrRosterTooSmall},
		{"duplicates", []string{"A", "B", "B", "C"}, "A", ErrDuplicateAgent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildScript(tt.roster, tt.imposter, newRNG(1)); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestScriptDrivesEngine replays full scripts through the reducer and checks
// the invariants that must hold after every step.
func TestScriptDrivesEngine(t *testing.T) {
	for seed := uint64(0); seed < 25; seed++ {
		steps, err := BuildScript(DefaultRoster, DefaultImposter, newRNG(seed))
		if err != nil {
			t.Fatalf("build: %v", err)
		}

		defaults := domain.DefaultTokenDefaults()
		r := engine.NewReducer(pricing.NewPricer(defaults.BasePrice, seed), defaults)
		s := r.Initial()
		resolved := map[string]domain.Outcome{}

		for i, step := range steps {
			prev := s
			s = r.Apply(s, step.Event)
			if s.Version != prev.Version+1 {
				t.Fatalf("seed %d step %d: %s was not applied", seed, i, step.Event.Kind())
			}
			if len(s.Feed) > domain.FeedLimit {
				t.Fatalf("feed over limit")
			}
			if i > 0 && len(s.Agents) != len(DefaultRoster) {
				t.Fatalf("roster changed size")
			}
			for _, m := range s.Markets {
				if out, ok := resolved[m.ID]; ok && (m.Status != domain.MarketResolved || m.Resolved != out) {
					t.Fatalf("resolved market %s changed", m.ID)
				}
				if m.IsResolved() {
					resolved[m.ID] = m.Resolved
				}
			}
			// keep a ledger position open through the match
			if s.Token.GameActive {
				if s, err = engine.Buy(s, 10); err != nil {
					t.Fatalf("buy during match: %v", err)
				}
			}
		}

		if s.Phase != domain.PhaseEnded || s.Winner != domain.WinnerCrew {
			t.Fatalf("seed %d: expected crew win, got %s/%s", seed, s.Phase, s.Winner)
		}
		for _, m := range s.Markets {
			if m.Status != domain.MarketResolved {
				t.Fatalf("seed %d: market %q left %s", seed, m.Question, m.Status)
			}
		}
		// 1 crew market, 2 first-kill markets, 1 kill-again market
		if len(s.Markets) != 4 {
			t.Fatalf("seed %d: expected 4 markets, got %d", seed, len(s.Markets))
		}
		if s.Markets[1].Resolved != domain.OutcomeYes {
			t.Fatalf("seed %d: accusation of the real imposter should resolve YES", seed)
		}
	}
}

type recorder struct {
	mu     sync.Mutex
	events []domain.GameEvent
}

func (r *recorder) Dispatch(e domain.GameEvent) domain.MatchState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return domain.MatchState{}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestSchedulerPlaysInOrder(t *testing.T) {
	steps, _ := BuildScript(DefaultRoster, DefaultImposter, newRNG(4))
	rec := &recorder{}
	sched := NewScheduler(rec, discardLogger())
	sched.Scale = 0.0005

	if err := sched.Run(context.Background(), steps); err != nil {
		t.Fatalf("run: %v", err)
	}
	if rec.count() != len(steps) {
		t.Fatalf("expected %d events, got %d", len(steps), rec.count())
	}
	for i, e := range rec.events {
		if e.Kind() != steps[i].Event.Kind() {
			t.Fatalf("event %d out of order", i)
		}
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	steps, _ := BuildScript(DefaultRoster, DefaultImposter, newRNG(4))
	rec := &recorder{}
	sched := NewScheduler(rec, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx, steps) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop")
	}
	// the first step waits 500ms, so nothing was dispatched
	if rec.count() != 0 {
		t.Fatalf("expected no events, got %d", rec.count())
	}
}
