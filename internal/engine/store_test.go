package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"susmarket/internal/domain"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []domain.EventKind
	trades map[string]int
}

func (o *recordingObserver) EventApplied(kind domain.EventKind, _ domain.MatchState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, kind)
}

func (o *recordingObserver) TradeAttempted(op string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.trades == nil {
		o.trades = make(map[string]int)
	}
	if err != nil {
		op += ":rejected"
	}
	o.trades[op]++
}

func newTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	s := NewStore(newTestReducer(t), discardLogger(), opts...)
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, store *Store, cond func(domain.MatchState) bool) domain.MatchState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := store.Snapshot(); cond(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
	return domain.MatchState{}
}

func allMarkets(status domain.MarketStatus) func(domain.MatchState) bool {
	return func(s domain.MatchState) bool {
		for _, m := range s.Markets {
			if m.Status != status {
				return false
			}
		}
		return len(s.Markets) > 0
	}
}

func TestStoreNotifiesSubscribers(t *testing.T) {
	store := newTestStore(t)

	var got []uint64
	unsubscribe := store.Subscribe(func(s domain.MatchState) {
		got = append(got, s.Version)
	})

	store.Dispatch(domain.GameStart{Agents: []string{"A", "B", "C"}, Imposter: "B"})
	store.Dispatch(domain.Kill{Killer: "B", Victim: "A"})
	store.Dispatch(domain.Kill{Killer: "B", Victim: "A"}) // no-op, no notification

	if len(got) != 2 || got[0] >= got[1] {
		t.Fatalf("expected two increasing versions, got %v", got)
	}

	unsubscribe()
	store.Dispatch(domain.Vote{Agent: "B", Target: "C"})
	if len(got) != 2 {
		t.Fatalf("unsubscribed listener was called")
	}
}

func TestStoreSnapshotsAreStable(t *testing.T) {
	store := newTestStore(t)
	store.Dispatch(domain.GameStart{Agents: []string{"A", "B", "C"}})
	before := store.Snapshot()
	status := before.Markets[0].Status

	store.Dispatch(domain.MeetingStart{})
	if before.Markets[0].Status != status {
		t.Fatalf("earlier snapshot was modified")
	}
}

func TestStoreReopensMarketsAfterMeeting(t *testing.T) {
	store := newTestStore(t, WithReopenDelay(20*time.Millisecond))
	store.Dispatch(domain.GameStart{Agents: []string{"A", "B", "C"}, Imposter: "B"})
	store.Dispatch(domain.Kill{Killer: "B", Victim: "A"})

	s := store.Dispatch(domain.MeetingStart{})
	if !allMarkets(domain.MarketFrozen)(s) {
		t.Fatalf("expected all markets frozen")
	}

	s = waitFor(t, store, allMarkets(domain.MarketOpen))
	if s.Phase != domain.PhaseMeeting {
		t.Fatalf("reopen must not change phase, got %s", s.Phase)
	}
}

func TestStoreGameEndCancelsReopen(t *testing.T) {
	store := newTestStore(t, WithReopenDelay(30*time.Millisecond))
	store.Dispatch(domain.GameStart{Agents: []string{"A", "B", "C"}, Imposter: "B"})
	store.Dispatch(domain.MeetingStart{})
	store.Dispatch(domain.GameEnd{Winner: domain.WinnerCrew, Imposter: "B"})

	time.Sleep(80 * time.Millisecond)
	if !allMarkets(domain.MarketResolved)(store.Snapshot()) {
		t.Fatalf("markets changed after game end")
	}
}

func TestStoreResetCancelsReopen(t *testing.T) {
	store := newTestStore(t, WithReopenDelay(30*time.Millisecond))
	store.Dispatch(domain.GameStart{Agents: []string{"A", "B", "C"}})
	store.Dispatch(domain.MeetingStart{})
	gen := store.Generation()

	store.Reset()
	if store.Generation() == gen {
		t.Fatalf("reset should start a new generation")
	}

	// the next match's own reopen is far away; only a leaked timer could reopen it
	store.mu.Lock()
	store.reopenDelay = time.Hour
	store.mu.Unlock()

	store.Dispatch(domain.GameStart{Agents: []string{"X", "Y"}})
	store.Dispatch(domain.MeetingStart{})

	time.Sleep(80 * time.Millisecond)
	if !allMarkets(domain.MarketFrozen)(store.Snapshot()) {
		t.Fatalf("stale reopen leaked into the next match")
	}
}

func TestStoreResetKeepsMetaAndConnection(t *testing.T) {
	store := newTestStore(t)
	store.SetGameMeta(domain.GameMeta{Ticker: "$VENT", Title: "Vent Coin"})
	if _, err := store.SetConnectionStatus(domain.StatusConnected); err != nil {
		t.Fatalf("set status: %v", err)
	}
	store.Dispatch(domain.GameStart{Agents: []string{"A", "B"}})
	before := store.Snapshot()

	s := store.Reset()
	if s.Phase != domain.PhaseWaiting || len(s.Agents) != 0 || len(s.Markets) != 0 {
		t.Fatalf("expected fresh waiting state, got %+v", s)
	}
	if s.Token.Ticker != "$VENT" || s.Token.Name != "Vent Coin" {
		t.Fatalf("meta lost on reset")
	}
	if s.ConnectionStatus != domain.StatusConnected {
		t.Fatalf("connection status lost on reset")
	}
	if s.Version <= before.Version {
		t.Fatalf("version must keep increasing across reset")
	}
}

func TestStoreSetConnectionStatusValidates(t *testing.T) {
	store := newTestStore(t)
	before := store.Snapshot()

	if _, err := store.SetConnectionStatus("flaky"); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if store.Snapshot().Version != before.Version {
		t.Fatalf("invalid status changed the state")
	}
}

func TestStoreTrades(t *testing.T) {
	obs := &recordingObserver{}
	store := newTestStore(t, WithObserver(obs))
	store.Dispatch(domain.GameStart{Agents: []string{"A", "B", "C"}, Imposter: "B"})

	if _, err := store.Buy(10); err != nil {
		t.Fatalf("buy: %v", err)
	}
	before := store.Snapshot()
	s, err := store.Sell(11)
	if !errors.Is(err, domain.ErrInsufficientTokens) {
		t.Fatalf("expected ErrInsufficientTokens, got %v", err)
	}
	if s.Version != before.Version {
		t.Fatalf("rejected sell changed the state")
	}

	store.Dispatch(domain.GameEnd{Winner: domain.WinnerCrew, Imposter: "B"})
	s, err = store.CashOut()
	if err != nil {
		t.Fatalf("cash out: %v", err)
	}
	if !s.Token.CashedOut || s.Token.UserTokens != 0 {
		t.Fatalf("expected cashed out ledger")
	}
	if _, err := store.Buy(1); !errors.Is(err, domain.ErrTradingClosed) {
		t.Fatalf("expected trading closed after cash out, got %v", err)
	}

	if obs.trades["buy"] != 1 || obs.trades["sell:rejected"] != 1 || obs.trades["cash_out"] != 1 || obs.trades["buy:rejected"] != 1 {
		t.Fatalf("unexpected trade observations %v", obs.trades)
	}
	if len(obs.events) != 2 {
		t.Fatalf("expected two applied events, got %v", obs.events)
	}
}

func TestStoreCloseStopsTransitions(t *testing.T) {
	store := NewStore(newTestReducer(t), discardLogger())
	store.Close()

	s := store.Dispatch(domain.GameStart{Agents: []string{"A"}})
	if s.Phase != domain.PhaseWaiting {
		t.Fatalf("closed store applied an event")
	}
}
