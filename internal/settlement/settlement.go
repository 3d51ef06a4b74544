// Package settlement persists resolved markets for whoever pays them out.
// The engine only resolves markets; settling positions happens elsewhere.
package settlement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"susmarket/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadySettled = errors.New("market already settled")
	ErrInvalidResult  = errors.New("invalid match result")
)

// Result is one finished match handed over for settlement
type Result struct {
	MatchID    string
	Code       string
	Winner     domain.Winner
	Imposter   string
	FinalPrice decimal.Decimal
	EndedAt    time.Time
	Markets    []domain.PredictionMarket
}

// NewResult captures a finished match from its final state. Unresolved
// markets are skipped.
func NewResult(matchID, code string, s domain.MatchState, endedAt time.Time) Result {
	return Result{
		MatchID:    matchID,
		Code:       code,
		Winner:     s.Winner,
		Imposter:   s.Imposter,
		FinalPrice: s.Token.Price,
		EndedAt:    endedAt,
		Markets:    s.ResolvedMarkets(),
	}
}

// Resolution is one market outcome awaiting or past settlement.
// An empty Outcome is a void market.
type Resolution struct {
	MarketID   string            `json:"marketId"`
	MatchID    string            `json:"matchId"`
	Question   string            `json:"question"`
	Kind       domain.MarketKind `json:"kind"`
	Outcome    domain.Outcome    `json:"outcome"`
	ResolvedAt time.Time         `json:"resolvedAt"`
	SettledAt  *time.Time        `json:"settledAt,omitempty"`
}

// Void reports whether the market resolved with neither side winning
func (r Resolution) Void() bool {
	return r.Outcome == domain.OutcomeNone
}

// MatchRecord is a stored match result with its resolutions
type MatchRecord struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Winner      domain.Winner   `json:"winner"`
	Imposter    string          `json:"imposter"`
	FinalPrice  decimal.Decimal `json:"finalPrice"`
	EndedAt     time.Time       `json:"endedAt"`
	Resolutions []Resolution    `json:"resolutions"`
}
