package app

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"susmarket/internal/domain"
	"susmarket/internal/engine"
	"susmarket/internal/settlement"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

type fakeClient struct {
	id string

	mu        sync.Mutex
	snapshots []domain.MatchState
	closed    bool
}

func (c *fakeClient) SendSnapshot(s domain.MatchState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, s)
	return nil
}

func (c *fakeClient) GetClientID() string { return c.id }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) last() (domain.MatchState, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.snapshots) == 0 {
		return domain.MatchState{}, 0
	}
	return c.snapshots[len(c.snapshots)-1], len(c.snapshots)
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// slowClient takes a while with every snapshot, like a spectator on a
// congested link
type slowClient struct {
	fakeClient
	delay time.Duration
}

func (c *slowClient) SendSnapshot(s domain.MatchState) error {
	time.Sleep(c.delay)
	return c.fakeClient.SendSnapshot(s)
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []settlement.Result
}

func (r *fakeRecorder) RecordMatch(_ context.Context, res settlement.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return nil
}

func (r *fakeRecorder) all() []settlement.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.results)
}

type fakeMetrics struct {
	mu     sync.Mutex
	opened int
	closed []string
}

func (m *fakeMetrics) MatchOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
}

func (m *fakeMetrics) MatchClosed(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, code)
}

func (m *fakeMetrics) ForMatch(string) engine.Observer { return nopObserver{} }

type nopObserver struct{}

func (nopObserver) EventApplied(domain.EventKind, domain.MatchState) {}
func (nopObserver) TradeAttempted(string, error)                     {}

func newTestHub(t *testing.T, opts ...HubOption) *MatchHub {
	t.Helper()
	hub := NewMatchHub(HubConfig{Seed: 7, ReopenDelay: 20 * time.Millisecond}, discardLogger(), opts...)
	t.Cleanup(hub.Close)
	return hub
}
