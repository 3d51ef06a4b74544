// Package metrics exposes engine activity to Prometheus
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"susmarket/internal/domain"
	"susmarket/internal/engine"
)

const namespace = "susmarket"

// Collector holds every engine metric on its own registry
type Collector struct {
	registry *prometheus.Registry

	EventsApplied *prometheus.CounterVec
	Trades        *prometheus.CounterVec
	TokenPrice    *prometheus.GaugeVec
	ActiveMatches prometheus.Gauge
}

// NewCollector registers the engine metrics plus the Go runtime collectors
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		EventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_applied_total",
			Help:      "Game events that changed match state, by kind.",
		}, []string{"kind"}),
		Trades: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Ledger operations by operation and result.",
		}, []string{"op", "result"}),
		TokenPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "token_price",
			Help:      "Current match token price.",
		}, []string{"match"}),
		ActiveMatches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_matches",
			Help:      "Matches currently held by the hub.",
		}),
	}
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// MatchOpened counts a new match
func (c *Collector) MatchOpened() {
	c.ActiveMatches.Inc()
}

// MatchClosed forgets a match and its price series
func (c *Collector) MatchClosed(code string) {
	c.ActiveMatches.Dec()
	c.TokenPrice.DeleteLabelValues(code)
}

// ForMatch returns an engine observer that labels price updates with code
func (c *Collector) ForMatch(code string) engine.Observer {
	return &matchObserver{c: c, code: code}
}

type matchObserver struct {
	c    *Collector
	code string
}

func (o *matchObserver) EventApplied(kind domain.EventKind, state domain.MatchState) {
	o.c.EventsApplied.WithLabelValues(kind.String()).Inc()
	o.c.TokenPrice.WithLabelValues(o.code).Set(state.Token.Price.InexactFloat64())
}

func (o *matchObserver) TradeAttempted(op string, err error) {
	o.c.Trades.WithLabelValues(op, TradeResult(err)).Inc()
}

// TradeResult is the result label for a ledger error; nil is "ok"
func TradeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrTradingClosed):
		return "trading_closed"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, domain.ErrInsufficientTokens):
		return "insufficient_tokens"
	case errors.Is(err, domain.ErrCashOutUnavailable):
		return "cash_out_unavailable"
	}
	return "error"
}
