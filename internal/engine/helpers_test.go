package engine

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"susmarket/internal/domain"
	"susmarket/internal/pricing"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestReducer(t *testing.T, opts ...ReducerOption) *Reducer {
	t.Helper()

	tick := 0
	clock := func() time.Time {
		tick++
		return testEpoch.Add(time.Duration(tick) * time.Millisecond)
	}
	seq := 0
	ids := func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}

	defaults := domain.DefaultTokenDefaults()
	pricer := pricing.NewPricer(defaults.BasePrice, 1)
	opts = append([]ReducerOption{WithClock(clock), WithIDs(ids)}, opts...)
	return NewReducer(pricer, defaults, opts...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func apply(r *Reducer, s domain.MatchState, events ...domain.GameEvent) domain.MatchState {
	for _, e := range events {
		s = r.Apply(s, e)
	}
	return s
}

// startedABC is GAME_START [A,B,C] with imposter B followed by B killing A
func startedABC(t *testing.T, r *Reducer) domain.MatchState {
	t.Helper()
	return apply(r, r.Initial(),
		domain.GameStart{Agents: []string{"A", "B", "C"}, Imposter: "B"},
		domain.Kill{Killer: "B", Victim: "A"},
	)
}

func withPrice(s domain.MatchState, price string) domain.MatchState {
	s.Token.Price = decimal.RequireFromString(price)
	return s
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
