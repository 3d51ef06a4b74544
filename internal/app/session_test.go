package app

import (
	"errors"
	"testing"
	"time"

	"susmarket/internal/demo"
	"susmarket/internal/domain"
)

func TestSessionBroadcastsSnapshots(t *testing.T) {
	hub := newTestHub(t)
	session, _ := hub.CreateMatch()
	client := &fakeClient{id: "c1"}
	session.RegisterClient(client)

	session.Dispatch(domain.GameStart{Agents: []string{"A", "B", "C"}, Imposter: "B"})
	session.Dispatch(domain.Kill{Killer: "B", Victim: "A"})

	waitFor(t, func() bool {
		last, _ := client.last()
		return len(last.Markets) == 3
	})

	last, _ := client.last()
	if last.Phase != domain.PhaseRunning || last.Token.HypeScore != 35 {
		t.Fatalf("unexpected snapshot %+v", last)
	}
}

func TestSessionSlowSpectatorEndsOnLatestSnapshot(t *testing.T) {
	hub := newTestHub(t)
	session, _ := hub.CreateMatch()
	client := &slowClient{fakeClient: fakeClient{id: "slow"}, delay: 2 * time.Millisecond}
	session.RegisterClient(client)

	session.Dispatch(domain.GameStart{Agents: []string{"A", "B", "C"}, Imposter: "B"})
	for range 300 {
		session.Dispatch(domain.Vote{Agent: "A", Target: "B"})
	}
	want := session.Snapshot().Version

	waitFor(t, func() bool {
		last, _ := client.last()
		return last.Version == want
	})

	_, received := client.last()
	if received > 300 {
		t.Fatalf("expected snapshots to coalesce, got %d sends", received)
	}
}

func TestSessionTradingPassthrough(t *testing.T) {
	hub := newTestHub(t)
	session, _ := hub.CreateMatch()

	if _, err := session.Buy(10); !errors.Is(err, domain.ErrTradingClosed) {
		t.Fatalf("expected ErrTradingClosed before the match, got %v", err)
	}

	session.Dispatch(domain.GameStart{Agents: []string{"A", "B", "C"}})
	state, err := session.Buy(100)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if state.Token.UserTokens != 100 {
		t.Fatalf("expected 100 tokens, got %d", state.Token.UserTokens)
	}
	if _, err := session.Sell(500); !errors.Is(err, domain.ErrInsufficientTokens) {
		t.Fatalf("expected ErrInsufficientTokens, got %v", err)
	}
	if _, err := session.CashOut(); !errors.Is(err, domain.ErrCashOutUnavailable) {
		t.Fatalf("expected ErrCashOutUnavailable, got %v", err)
	}

	session.Dispatch(domain.GameEnd{Winner: domain.WinnerCrew, Imposter: "B"})
	state, err = session.CashOut()
	if err != nil {
		t.Fatalf("cash out: %v", err)
	}
	if state.Token.UserTokens != 0 || !state.Token.CashedOut {
		t.Fatalf("unexpected token state after cash out %+v", state.Token)
	}
}

func TestSessionHandsOffFinishedMatch(t *testing.T) {
	recorder := &fakeRecorder{}
	hub := newTestHub(t, WithRecorder(recorder))
	session, _ := hub.CreateMatch()

	session.Dispatch(domain.GameStart{Agents: []string{"A", "B", "C"}, Imposter: "B"})
	session.Dispatch(domain.Kill{Killer: "B", Victim: "A"})
	session.Dispatch(domain.GameEnd{Winner: domain.WinnerCrew, Imposter: "B"})
	// events after the end change nothing and must not record twice
	session.Dispatch(domain.GameEnd{Winner: domain.WinnerImposter, Imposter: "B"})

	waitFor(t, func() bool { return len(recorder.all()) == 1 })

	res := recorder.all()[0]
	if res.Code != session.GetMatchCode() || res.Winner != domain.WinnerCrew || res.Imposter != "B" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Markets) != 3 || res.MatchID == "" {
		t.Fatalf("expected 3 resolved markets and an id, got %+v", res)
	}

	// a second match in the same session is recorded separately
	session.Dispatch(domain.GameStart{Agents: []string{"X", "Y"}})
	session.Dispatch(domain.GameEnd{Winner: domain.WinnerImposter, Imposter: "Y"})
	waitFor(t, func() bool { return len(recorder.all()) == 2 })
	if recorder.all()[1].MatchID == res.MatchID {
		t.Fatalf("matches must get distinct ids")
	}
}

func TestSessionDemoPlaysToCompletion(t *testing.T) {
	recorder := &fakeRecorder{}
	hub := newTestHub(t, WithRecorder(recorder))
	session, _ := hub.CreateMatch()
	session.SetDemoScale(0.0002)

	if err := session.StartDemo(3); err != nil {
		t.Fatalf("start demo: %v", err)
	}

	waitFor(t, func() bool { return session.Snapshot().Phase == domain.PhaseEnded })
	waitFor(t, func() bool { return !session.DemoRunning() })

	state := session.Snapshot()
	if state.Winner != domain.WinnerCrew || state.Imposter != demo.DefaultImposter {
		t.Fatalf("unexpected ending %s %s", state.Winner, state.Imposter)
	}
	for _, m := range state.Markets {
		if m.Status != domain.MarketResolved {
			t.Fatalf("market %q not resolved", m.Question)
		}
	}
	waitFor(t, func() bool { return len(recorder.all()) == 1 })
}

func TestSessionDemoLifecycle(t *testing.T) {
	hub := newTestHub(t)
	session, _ := hub.CreateMatch()

	if err := session.StartDemo(1); err != nil {
		t.Fatalf("start demo: %v", err)
	}
	if err := session.StartDemo(1); !errors.Is(err, ErrDemoRunning) {
		t.Fatalf("expected ErrDemoRunning, got %v", err)
	}

	state := session.Reset()
	if session.DemoRunning() {
		t.Fatalf("reset should stop the demo")
	}
	if state.Phase != domain.PhaseWaiting {
		t.Fatalf("expected waiting after reset, got %s", state.Phase)
	}

	// the first step waits 500ms; nothing may leak in after the reset
	if err := session.StartDemo(2); err != nil {
		t.Fatalf("restart demo: %v", err)
	}
	session.StopDemo()
	if session.DemoRunning() {
		t.Fatalf("stop should clear the demo")
	}
}

func TestSessionResetWinsOverDueDemoStep(t *testing.T) {
	hub := newTestHub(t)

	for range 50 {
		session, _ := hub.CreateMatch()
		// steps fire within microseconds of the start
		session.SetDemoScale(0.00001)
		if err := session.StartDemo(5); err != nil {
			t.Fatalf("start demo: %v", err)
		}

		state := session.Reset()
		time.Sleep(2 * time.Millisecond)

		after := session.Snapshot()
		if after.Phase != domain.PhaseWaiting || after.Version != state.Version {
			t.Fatalf("demo step landed after reset: phase %s version %d, want %d", after.Phase, after.Version, state.Version)
		}
		hub.DeleteSession(session.GetMatchCode())
	}
}

func TestSessionMetaSurvivesReset(t *testing.T) {
	hub := newTestHub(t)
	session, _ := hub.CreateMatch()

	session.SetGameMeta(domain.GameMeta{Ticker: "$IMP", Title: "ImpCoin"})
	session.Dispatch(domain.GameStart{Agents: []string{"A", "B"}})
	state := session.Reset()

	if state.Token.Ticker != "$IMP" || state.Token.Name != "ImpCoin" {
		t.Fatalf("meta lost: %+v", state.Token)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	hub := newTestHub(t)
	session, _ := hub.CreateMatch()
	client := &fakeClient{id: "c1"}
	session.RegisterClient(client)
	session.StartDemo(1)

	session.Close()
	session.Close()

	if !client.isClosed() || session.DemoRunning() {
		t.Fatalf("close must stop the demo and drop clients")
	}
	if err := session.StartDemo(1); !errors.Is(err, domain.ErrMatchNotFound) {
		t.Fatalf("expected ErrMatchNotFound on closed session, got %v", err)
	}
}
