package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// PriceDecimals is the precision token prices are rounded to
	PriceDecimals = 6

	// CreditDecimals is the precision user credits are rounded to
	CreditDecimals = 2
)

// PricePoint is one entry of the token price series
type PricePoint struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
	Label string          `json:"label,omitempty"`
}

// TokenState is the in-match speculative token and the user's ledger
type TokenState struct {
	Name         string          `json:"name"`
	Ticker       string          `json:"ticker"`
	Price        decimal.Decimal `json:"price"`
	PriceHistory []PricePoint    `json:"priceHistory"`
	HypeScore    int             `json:"hypeScore"`
	UserCredits  decimal.Decimal `json:"userCredits"`
	UserTokens   int64           `json:"userTokens"`
	GameActive   bool            `json:"gameActive"`
	CashedOut    bool            `json:"cashedOut"`
}

// TokenDefaults seeds a fresh token sub-state
type TokenDefaults struct {
	Name            string
	Ticker          string
	BasePrice       decimal.Decimal
	StartingCredits decimal.Decimal
}

// DefaultTokenDefaults returns the stock $SUS token parameters
func DefaultTokenDefaults() TokenDefaults {
	return TokenDefaults{
		Name:            "SusProtocol",
		Ticker:          "$SUS",
		BasePrice:       decimal.NewFromFloat(0.001),
		StartingCredits: decimal.NewFromInt(1000),
	}
}

// NewTokenState returns an inactive token at the base price with a one-point history
func NewTokenState(d TokenDefaults, now time.Time) TokenState {
	return TokenState{
		Name:         d.Name,
		Ticker:       d.Ticker,
		Price:        d.BasePrice,
		PriceHistory: []PricePoint{{Time: now, Price: d.BasePrice}},
		UserCredits:  d.StartingCredits,
	}
}

// Holdings is the value of held token units at the current price
func (t TokenState) Holdings() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.UserTokens))
}
