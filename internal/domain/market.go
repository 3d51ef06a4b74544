package domain

import "time"

// MarketStatus is the tradability of a prediction market
type MarketStatus string

const (
	MarketOpen     MarketStatus = "OPEN"
	MarketFrozen   MarketStatus = "FROZEN"
	MarketResolved MarketStatus = "RESOLVED"
)

// Outcome is the resolution of a market. The zero value is a void outcome.
type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeYes  Outcome = "YES"
	OutcomeNo   Outcome = "NO"
)

// MarketKind records which rule created a market and therefore how it resolves
type MarketKind string

const (
	MarketCrewWin    MarketKind = "crew_win"
	MarketAccusation MarketKind = "imposter_accusation"
	MarketSurvival   MarketKind = "survival"
	MarketKillAgain  MarketKind = "kill_again"
)

// PredictionMarket is a binary proposition derived from match events
type PredictionMarket struct {
	ID           string       `json:"id"`
	Kind         MarketKind   `json:"kind"`
	Question     string       `json:"question"`
	YesOdds      int          `json:"yesOdds"`
	NoOdds       int          `json:"noOdds"`
	Status       MarketStatus `json:"status"`
	Resolved     Outcome      `json:"resolved,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	RelatedAgent string       `json:"relatedAgent,omitempty"`
}

// IsResolved reports whether the market reached its terminal status
func (m PredictionMarket) IsResolved() bool {
	return m.Status == MarketResolved
}

// Resolve returns a copy of the market resolved with the given outcome
func (m PredictionMarket) Resolve(outcome Outcome) PredictionMarket {
	m.Status = MarketResolved
	m.Resolved = outcome
	return m
}

// YesIf maps a condition onto a binary outcome
func YesIf(cond bool) Outcome {
	if cond {
		return OutcomeYes
	}
	return OutcomeNo
}
