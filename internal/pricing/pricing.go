// Package pricing maps accumulated hype onto the token price.
package pricing

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"susmarket/internal/domain"
)

const (
	// HypeDivisor scales hype into the price multiplier: 1 + hype/HypeDivisor
	HypeDivisor = 50

	noiseLow   = 0.97
	noiseWidth = 0.06
)

// Pricer computes token prices from a hype score.
// A Pricer is not safe for concurrent use; callers serialize access.
type Pricer struct {
	base decimal.Decimal
	rng  *rand.Rand
}

// NewPricer creates a pricer around base whose noise is drawn from a PCG
// source seeded with seed, so a run can be replayed.
func NewPricer(base decimal.Decimal, seed uint64) *Pricer {
	return NewPricerWithRand(base, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// NewPricerWithRand creates a pricer drawing noise from rng
func NewPricerWithRand(base decimal.Decimal, rng *rand.Rand) *Pricer {
	return &Pricer{base: base, rng: rng}
}

// Base returns the price at zero hype before noise
func (p *Pricer) Base() decimal.Decimal {
	return p.base
}

// Price returns base * (1 + hype/50) * noise, noise uniform in [0.97, 1.03],
// rounded to six decimals.
func (p *Pricer) Price(hype int) decimal.Decimal {
	noise := decimal.NewFromFloat(noiseLow + p.rng.Float64()*noiseWidth)
	return Quote(p.base, hype, noise)
}

// Quote is the noise-explicit form of Price
func Quote(base decimal.Decimal, hype int, noise decimal.Decimal) decimal.Decimal {
	multiplier := decimal.NewFromInt(1).Add(
		decimal.NewFromInt(int64(hype)).Div(decimal.NewFromInt(HypeDivisor)),
	)
	return base.Mul(multiplier).Mul(noise).Round(domain.PriceDecimals)
}

// Intn exposes the pricer's source for other draws made while reducing,
// such as market odds, so one seed covers a whole replay.
func (p *Pricer) Intn(n int) int {
	return p.rng.IntN(n)
}
