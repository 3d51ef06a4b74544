package engine

import (
	"github.com/shopspring/decimal"

	"susmarket/internal/domain"
)

// Ledger operations fill whole orders at the current snapshot price.
// A rejected operation returns the input state untouched together with the
// reason, so callers can ignore the error and still hold a valid state.

// Buy converts credits into amount token units
func Buy(s domain.MatchState, amount int64) (domain.MatchState, error) {
	if err := tradable(s.Token); err != nil {
		return s, err
	}
	if amount <= 0 {
		return s, domain.ErrInvalidAmount
	}

	cost := s.Token.Price.Mul(decimal.NewFromInt(amount))
	if cost.GreaterThan(s.Token.UserCredits) {
		return s, domain.ErrInsufficientCredits
	}

	next := s
	next.Token.UserCredits = s.Token.UserCredits.Sub(cost).Round(domain.CreditDecimals)
	next.Token.UserTokens = s.Token.UserTokens + amount
	next.Version++
	return next, nil
}

// Sell converts amount token units back into credits
func Sell(s domain.MatchState, amount int64) (domain.MatchState, error) {
	if err := tradable(s.Token); err != nil {
		return s, err
	}
	if amount <= 0 {
		return s, domain.ErrInvalidAmount
	}
	if amount > s.Token.UserTokens {
		return s, domain.ErrInsufficientTokens
	}

	revenue := s.Token.Price.Mul(decimal.NewFromInt(amount))

	next := s
	next.Token.UserCredits = s.Token.UserCredits.Add(revenue).Round(domain.CreditDecimals)
	next.Token.UserTokens = s.Token.UserTokens - amount
	next.Version++
	return next, nil
}

// CashOut sells every held unit at the final frozen price. It is possible
// once per match, after GAME_END, and closes the ledger for good.
func CashOut(s domain.MatchState) (domain.MatchState, error) {
	if s.Phase != domain.PhaseEnded || s.Token.GameActive || s.Token.CashedOut {
		return s, domain.ErrCashOutUnavailable
	}

	next := s
	next.Token.UserCredits = s.Token.UserCredits.Add(s.Token.Holdings()).Round(domain.CreditDecimals)
	next.Token.UserTokens = 0
	next.Token.CashedOut = true
	next.Version++
	return next, nil
}

func tradable(t domain.TokenState) error {
	if !t.GameActive || t.CashedOut {
		return domain.ErrTradingClosed
	}
	return nil
}
