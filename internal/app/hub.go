package app

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"sync"
	"time"

	"susmarket/internal/domain"
	"susmarket/internal/engine"
	"susmarket/internal/pricing"
)

const (
	// DefaultMatchCodeLength is the default length for match codes
	DefaultMatchCodeLength = 6

	// StaleMatchTimeout is how long an idle match lives before cleanup
	StaleMatchTimeout = 2 * time.Hour

	cleanupInterval = 10 * time.Minute
)

// MatchCodeChars are characters used for match codes (no ambiguous chars)
const MatchCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// MatchMetrics receives match lifecycle and per-match engine activity
type MatchMetrics interface {
	MatchOpened()
	MatchClosed(code string)
	ForMatch(code string) engine.Observer
}

// HubConfig is applied to every match the hub creates
type HubConfig struct {
	Defaults    domain.TokenDefaults
	Seed        uint64 // 0 draws a fresh seed per match
	ReopenDelay time.Duration
	Blind       bool
	CodeLength  int
	StaleAfter  time.Duration
}

// MatchHub manages all active match sessions
type MatchHub struct {
	sessions map[string]*MatchSession
	mu       sync.RWMutex
	cfg      HubConfig
	recorder Recorder
	metrics  MatchMetrics
	logger   *slog.Logger
	done     chan struct{}
	once     sync.Once
}

// HubOption configures a MatchHub
type HubOption func(*MatchHub)

// WithRecorder hands finished matches to r
func WithRecorder(r Recorder) HubOption {
	return func(h *MatchHub) { h.recorder = r }
}

// WithMetrics reports match activity to m
func WithMetrics(m MatchMetrics) HubOption {
	return func(h *MatchHub) { h.metrics = m }
}

// NewMatchHub creates a new match hub
func NewMatchHub(cfg HubConfig, logger *slog.Logger, opts ...HubOption) *MatchHub {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = DefaultMatchCodeLength
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = StaleMatchTimeout
	}
	if cfg.Defaults.BasePrice.IsZero() {
		cfg.Defaults = domain.DefaultTokenDefaults()
	}

	hub := &MatchHub{
		sessions: make(map[string]*MatchSession),
		cfg:      cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(hub)
	}

	go hub.cleanupLoop()

	return hub
}

// CreateMatch creates a match under a fresh random code
func (h *MatchHub) CreateMatch() (*MatchSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var code string
	for attempts := 0; attempts < 10; attempts++ {
		code = h.generateMatchCode()
		if _, exists := h.sessions[code]; !exists {
			break
		}
	}
	if _, exists := h.sessions[code]; exists {
		return nil, fmt.Errorf("failed to generate unique match code")
	}

	return h.openLocked(code, false), nil
}

// CreatePinnedMatch creates a match under a fixed code that cleanup never
// removes. The live upstream feed runs in one.
func (h *MatchHub) CreatePinnedMatch(code string) (*MatchSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.sessions[code]; exists {
		return nil, fmt.Errorf("match code %s already in use", code)
	}
	return h.openLocked(code, true), nil
}

func (h *MatchHub) openLocked(code string, pinned bool) *MatchSession {
	seed := h.cfg.Seed
	if seed == 0 {
		seed = mrand.Uint64()
	}

	reducer := engine.NewReducer(
		pricing.NewPricer(h.cfg.Defaults.BasePrice, seed),
		h.cfg.Defaults,
		engine.WithBlind(h.cfg.Blind),
	)
	logger := h.logger.With("matchCode", code)

	storeOpts := []engine.StoreOption{}
	if h.cfg.ReopenDelay > 0 {
		storeOpts = append(storeOpts, engine.WithReopenDelay(h.cfg.ReopenDelay))
	}
	if h.metrics != nil {
		storeOpts = append(storeOpts, engine.WithObserver(h.metrics.ForMatch(code)))
		h.metrics.MatchOpened()
	}

	session := NewMatchSession(code, engine.NewStore(reducer, logger, storeOpts...), h.recorder, logger)
	session.pinned = pinned
	h.sessions[code] = session

	h.logger.Info("match created", "matchCode", code, "pinned", pinned, "seed", seed)
	return session
}

// GetSession returns a match session by code
func (h *MatchHub) GetSession(code string) (*MatchSession, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	session, ok := h.sessions[code]
	if !ok {
		return nil, domain.ErrMatchNotFound
	}

	return session, nil
}

// DeleteSession closes and removes a match
func (h *MatchHub) DeleteSession(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[code]; ok {
		h.closeLocked(code)
		h.logger.Info("match deleted", "matchCode", code)
	}
}

// GetSessionCount returns the number of active matches
func (h *MatchHub) GetSessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// GetSpectatorCount returns the number of connected spectators across all matches
func (h *MatchHub) GetSpectatorCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, session := range h.sessions {
		total += session.GetSpectatorCount()
	}
	return total
}

// Close shuts down the hub and all sessions
func (h *MatchHub) Close() {
	h.once.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for code := range h.sessions {
		h.closeLocked(code)
	}
}

func (h *MatchHub) closeLocked(code string) {
	h.sessions[code].Close()
	delete(h.sessions, code)
	if h.metrics != nil {
		h.metrics.MatchClosed(code)
	}
}

// generateMatchCode generates a random match code
func (h *MatchHub) generateMatchCode() string {
	b := make([]byte, h.cfg.CodeLength)
	rand.Read(b)

	code := make([]byte, h.cfg.CodeLength)
	for i := range code {
		code[i] = MatchCodeChars[int(b[i])%len(MatchCodeChars)]
	}

	return string(code)
}

// cleanupLoop periodically removes stale matches
func (h *MatchHub) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case now := <-ticker.C:
			h.cleanupStaleMatches(now)
		}
	}
}

// cleanupStaleMatches removes unpinned matches nobody watches or drives
func (h *MatchHub) cleanupStaleMatches(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for code, session := range h.sessions {
		if session.pinned || session.GetSpectatorCount() > 0 || session.DemoRunning() {
			continue
		}
		if now.Sub(session.LastActive()) > h.cfg.StaleAfter {
			h.closeLocked(code)
			h.logger.Info("stale match cleaned up", "matchCode", code)
		}
	}
}
