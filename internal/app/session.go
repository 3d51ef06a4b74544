package app

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"susmarket/internal/demo"
	"susmarket/internal/domain"
	"susmarket/internal/engine"
	"susmarket/internal/settlement"
)

const recordTimeout = 5 * time.Second

// ErrDemoRunning is returned when a demo is already playing in the match
var ErrDemoRunning = errors.New("demo already running")

// ClientConnection represents a connected spectator
type ClientConnection interface {
	SendSnapshot(state domain.MatchState) error
	GetClientID() string
	Close() error
}

// Recorder receives every finished match for settlement
type Recorder interface {
	RecordMatch(ctx context.Context, r settlement.Result) error
}

// MatchSession wraps one match store with spectator fan-out, demo
// playback and the settlement hand-off
type MatchSession struct {
	code      string
	store     *engine.Store
	recorder  Recorder
	logger    *slog.Logger
	createdAt time.Time
	pinned    bool

	clients   map[string]ClientConnection
	clientsMu sync.RWMutex

	activeMu   sync.Mutex
	lastActive time.Time

	demoMu    sync.Mutex
	playback  *demoRun
	demoScale float64

	// lastPhase is only touched by the store listener, which the store
	// serializes under its own lock
	lastPhase domain.Phase

	// latest holds the newest snapshot not yet broadcast; notify wakes
	// the broadcaster
	latestMu sync.Mutex
	latest   *domain.MatchState
	notify   chan struct{}

	unsubscribe func()
	recording   sync.WaitGroup
	done        chan struct{}
	closeOnce   sync.Once
}

type demoRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMatchSession creates a session around store and starts its broadcaster
func NewMatchSession(code string, store *engine.Store, recorder Recorder, logger *slog.Logger) *MatchSession {
	now := time.Now()
	session := &MatchSession{
		code:       code,
		store:      store,
		recorder:   recorder,
		logger:     logger,
		createdAt:  now,
		lastActive: now,
		clients:    make(map[string]ClientConnection),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	session.lastPhase = store.Snapshot().Phase
	session.unsubscribe = store.Subscribe(session.onState)

	go session.eventLoop()

	return session
}

// GetMatchCode returns the match code
func (s *MatchSession) GetMatchCode() string {
	return s.code
}

// GetCreatedAt returns when the match was created
func (s *MatchSession) GetCreatedAt() time.Time {
	return s.createdAt
}

// Pinned reports whether cleanup skips this match
func (s *MatchSession) Pinned() bool {
	return s.pinned
}

// LastActive returns the time of the last transition or action
func (s *MatchSession) LastActive() time.Time {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return s.lastActive
}

func (s *MatchSession) touch() {
	s.activeMu.Lock()
	s.lastActive = time.Now()
	s.activeMu.Unlock()
}

// Snapshot returns the current match state
func (s *MatchSession) Snapshot() domain.MatchState {
	return s.store.Snapshot()
}

// GetSpectatorCount returns the number of connected spectators
func (s *MatchSession) GetSpectatorCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// RegisterClient adds a spectator to the broadcast
func (s *MatchSession) RegisterClient(client ClientConnection) {
	s.clientsMu.Lock()
	s.clients[client.GetClientID()] = client
	s.clientsMu.Unlock()

	s.touch()
}

// UnregisterClient removes a spectator
func (s *MatchSession) UnregisterClient(clientID string) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, clientID)
}

// Dispatch applies one game event
func (s *MatchSession) Dispatch(event domain.GameEvent) domain.MatchState {
	return s.store.Dispatch(event)
}

// SetConnectionStatus mirrors the upstream feed status into the match
func (s *MatchSession) SetConnectionStatus(status domain.ConnectionStatus) (domain.MatchState, error) {
	return s.store.SetConnectionStatus(status)
}

// Buy purchases amount tokens at the current price
func (s *MatchSession) Buy(amount int64) (domain.MatchState, error) {
	s.touch()
	return s.store.Buy(amount)
}

// Sell sells amount tokens at the current price
func (s *MatchSession) Sell(amount int64) (domain.MatchState, error) {
	s.touch()
	return s.store.Sell(amount)
}

// CashOut converts all holdings at the final price
func (s *MatchSession) CashOut() (domain.MatchState, error) {
	s.touch()
	return s.store.CashOut()
}

// Reset stops any demo and starts the match over
func (s *MatchSession) Reset() domain.MatchState {
	s.StopDemo()
	s.touch()
	return s.store.Reset()
}

// SetGameMeta sets the token ticker and title
func (s *MatchSession) SetGameMeta(meta domain.GameMeta) domain.MatchState {
	s.touch()
	return s.store.SetGameMeta(meta)
}

// SetDemoScale speeds up demo playback; tests use a small factor
func (s *MatchSession) SetDemoScale(scale float64) {
	s.demoMu.Lock()
	defer s.demoMu.Unlock()
	s.demoScale = scale
}

// StartDemo plays the stock demo script into this match. A seed of 0
// picks a random script.
func (s *MatchSession) StartDemo(seed uint64) error {
	s.demoMu.Lock()
	defer s.demoMu.Unlock()

	select {
	case <-s.done:
		return domain.ErrMatchNotFound
	default:
	}
	if s.playback != nil {
		return ErrDemoRunning
	}
	if seed == 0 {
		seed = rand.Uint64()
	}

	steps, err := demo.BuildScript(demo.DefaultRoster, demo.DefaultImposter, rand.New(rand.NewPCG(seed, seed)))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &demoRun{cancel: cancel, done: make(chan struct{})}
	s.playback = run

	scheduler := demo.NewScheduler(s.store, s.logger)
	scheduler.Scale = s.demoScale

	s.logger.Info("demo started", "seed", seed, "duration", demo.Duration(steps))
	s.touch()

	go func() {
		defer close(run.done)
		defer cancel()
		if err := scheduler.Run(ctx, steps); err == nil {
			s.logger.Info("demo finished")
		}

		s.demoMu.Lock()
		// a newer demo may already own the slot
		if s.playback == run {
			s.playback = nil
		}
		s.demoMu.Unlock()
	}()

	return nil
}

// StopDemo cancels demo playback if one is running and waits for it to
// exit, so no scripted event lands after StopDemo returns
func (s *MatchSession) StopDemo() {
	s.demoMu.Lock()
	run := s.playback
	s.playback = nil
	s.demoMu.Unlock()

	if run != nil {
		run.cancel()
		<-run.done
	}
}

// DemoRunning reports whether a demo is playing
func (s *MatchSession) DemoRunning() bool {
	s.demoMu.Lock()
	defer s.demoMu.Unlock()
	return s.playback != nil
}

// onState runs under the store lock for every transition
func (s *MatchSession) onState(state domain.MatchState) {
	if state.Phase == domain.PhaseEnded && s.lastPhase != domain.PhaseEnded {
		s.handOff(state)
	}
	s.lastPhase = state.Phase

	// a slow broadcaster skips to the newest snapshot
	s.latestMu.Lock()
	s.latest = &state
	s.latestMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// handOff records a finished match without blocking the store
func (s *MatchSession) handOff(state domain.MatchState) {
	if s.recorder == nil {
		return
	}

	result := settlement.NewResult(uuid.NewString(), s.code, state, time.Now())
	s.recording.Add(1)
	go func() {
		defer s.recording.Done()

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if err := s.recorder.RecordMatch(ctx, result); err != nil {
			s.logger.Error("failed to record match result", "matchId", result.MatchID, "error", err)
			return
		}
		s.logger.Info("match result recorded",
			"matchId", result.MatchID,
			"winner", result.Winner,
			"markets", len(result.Markets),
		)
	}()
}

// eventLoop broadcasts snapshots to spectators
func (s *MatchSession) eventLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
			s.latestMu.Lock()
			state := s.latest
			s.latest = nil
			s.latestMu.Unlock()

			if state != nil {
				s.broadcast(*state)
			}
		}
	}
}

func (s *MatchSession) broadcast(state domain.MatchState) {
	s.touch()

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for clientID, client := range s.clients {
		if err := client.SendSnapshot(state); err != nil {
			s.logger.Debug("failed to send to client", "clientID", clientID, "error", err)
		}
	}
}

// Close shuts down the session
func (s *MatchSession) Close() {
	s.closeOnce.Do(func() {
		s.StopDemo()
		s.unsubscribe()
		s.store.Close()
		close(s.done)
		s.recording.Wait()

		s.clientsMu.Lock()
		for _, client := range s.clients {
			client.Close()
		}
		s.clients = make(map[string]ClientConnection)
		s.clientsMu.Unlock()
	})
}
