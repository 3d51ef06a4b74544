package engine

import (
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"

	"susmarket/internal/domain"
)

func TestBuyScenario(t *testing.T) {
	r := newTestReducer(t)
	s := withPrice(startedABC(t, r), "0.001")

	got, err := Buy(s, 100)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !got.Token.UserCredits.Equal(dec("999.90")) {
		t.Fatalf("expected 999.90 credits, got %s", got.Token.UserCredits)
	}
	if got.Token.UserTokens != 100 {
		t.Fatalf("expected 100 tokens, got %d", got.Token.UserTokens)
	}

	got, err = Buy(withPrice(s, "1"), 100)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !got.Token.UserCredits.Equal(dec("900.00")) || got.Token.UserTokens != 100 {
		t.Fatalf("expected 900.00 credits and 100 tokens, got %s and %d", got.Token.UserCredits, got.Token.UserTokens)
	}
}

func TestBuyRoundsCreditsToCents(t *testing.T) {
	r := newTestReducer(t)
	s := withPrice(startedABC(t, r), "0.001234")

	got, err := Buy(s, 7)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	// 1000 - 0.008638
	if !got.Token.UserCredits.Equal(dec("999.99")) {
		t.Fatalf("expected 999.99, got %s", got.Token.UserCredits)
	}
}

// Credits are kept to the cent, so an order worth less than half a cent
// rounds to no charge at all. Holdings still grow by the full amount.
func TestSubCentOrdersRoundToZeroCost(t *testing.T) {
	r := newTestReducer(t)
	s := withPrice(startedABC(t, r), "0.001")

	for range 25 {
		var err error
		if s, err = Buy(s, 4); err != nil {
			t.Fatalf("buy: %v", err)
		}
	}
	if !s.Token.UserCredits.Equal(dec("1000")) || s.Token.UserTokens != 100 {
		t.Fatalf("expected 1000.00 credits and 100 tokens, got %s and %d", s.Token.UserCredits, s.Token.UserTokens)
	}

	got, err := Sell(s, 100)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !got.Token.UserCredits.Equal(dec("1000.10")) {
		t.Fatalf("expected 1000.10 after one large sell, got %s", got.Token.UserCredits)
	}
}

func TestSell(t *testing.T) {
	r := newTestReducer(t)
	s := withPrice(startedABC(t, r), "2")
	s, _ = Buy(s, 100)

	got, err := Sell(withPrice(s, "3"), 40)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if got.Token.UserTokens != 60 {
		t.Fatalf("expected 60 tokens, got %d", got.Token.UserTokens)
	}
	if !got.Token.UserCredits.Equal(dec("920")) {
		t.Fatalf("expected 920 credits, got %s", got.Token.UserCredits)
	}
}

func TestRejectedTradesAreNoops(t *testing.T) {
	r := newTestReducer(t)
	running := withPrice(startedABC(t, r), "1")
	holding, _ := Buy(running, 10)
	ended := r.Apply(holding, domain.GameEnd{Winner: domain.WinnerCrew, Imposter: "B"})
	cashed, _ := CashOut(ended)

	tests := []struct {
		name  string
		state domain.MatchState
		op    func(domain.MatchState) (domain.MatchState, error)
		want  error
	}{
		{"buy before start", r.Initial(), func(s domain.MatchState) (domain.MatchState, error) { return Buy(s, 1) }, domain.ErrTradingClosed},
		{"buy after end", ended, func(s domain.MatchState) (domain.MatchState, error) { return Buy(s, 1) }, domain.ErrTradingClosed},
		{"sell after cash out", cashed, func(s domain.MatchState) (domain.MatchState, error) { return Sell(s, 1) }, domain.ErrTradingClosed},
		{"buy zero", running, func(s domain.MatchState) (domain.MatchState, error) { return Buy(s, 0) }, domain.ErrInvalidAmount},
		{"sell negative", holding, func(s domain.MatchState) (domain.MatchState, error) { return Sell(s, -5) }, domain.ErrInvalidAmount},
		{"buy beyond credits", running, func(s domain.MatchState) (domain.MatchState, error) { return Buy(s, 1001) }, domain.ErrInsufficientCredits},
		{"sell beyond holdings", holding, func(s domain.MatchState) (domain.MatchState, error) { return Sell(s, 11) }, domain.ErrInsufficientTokens},
		{"cash out while running", holding, CashOut, domain.ErrCashOutUnavailable},
		{"cash out before start", r.Initial(), CashOut, domain.ErrCashOutUnavailable},
		{"cash out twice", cashed, CashOut, domain.ErrCashOutUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op(tt.state)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !reflect.DeepEqual(got, tt.state) {
				t.Fatalf("rejected operation changed the state")
			}
		})
	}
}

func TestCashOut(t *testing.T) {
	r := newTestReducer(t)
	s := withPrice(startedABC(t, r), "1.5")
	s, _ = Buy(s, 200)
	s = r.Apply(s, domain.GameEnd{Winner: domain.WinnerCrew, Imposter: "B"})

	got, err := CashOut(s)
	if err != nil {
		t.Fatalf("cash out: %v", err)
	}
	if got.Token.UserTokens != 0 || !got.Token.CashedOut {
		t.Fatalf("expected empty, cashed out ledger, got %+v", got.Token)
	}
	if !got.Token.UserCredits.Equal(dec("1000")) {
		t.Fatalf("expected 1000 credits back, got %s", got.Token.UserCredits)
	}
}

func TestLedgerNeverGoesNegative(t *testing.T) {
	r := newTestReducer(t)
	s := startedABC(t, r)
	rng := rand.New(rand.NewPCG(3, 4))

	for i := 0; i < 2000; i++ {
		if i%50 == 0 {
			s = r.Apply(s, domain.Vote{Agent: "B", Target: "C"})
		}
		amount := rng.Int64N(500_000) - 1000
		if rng.IntN(2) == 0 {
			s, _ = Buy(s, amount)
		} else {
			s, _ = Sell(s, amount)
		}
		if s.Token.UserTokens < 0 || s.Token.UserCredits.IsNegative() {
			t.Fatalf("step %d: ledger went negative: %d tokens, %s credits", i, s.Token.UserTokens, s.Token.UserCredits)
		}
	}
}
