package engine

import (
	"log/slog"
	"sync"
	"time"

	"susmarket/internal/domain"
)

// DefaultReopenDelay is how long markets stay frozen after a meeting starts
const DefaultReopenDelay = 2 * time.Second

// Listener receives every new snapshot. Listeners run while the store is
// locked and must not call back into it.
type Listener func(domain.MatchState)

// Observer is told about each applied event and ledger operation
type Observer interface {
	EventApplied(kind domain.EventKind, state domain.MatchState)
	TradeAttempted(op string, err error)
}

// Store owns the single current MatchState of one match. Every transition
// replaces the state wholesale under the store lock and then notifies
// listeners, so observers only ever see complete snapshots.
type Store struct {
	mu          sync.Mutex
	state       domain.MatchState
	reducer     *Reducer
	listeners   map[int]Listener
	nextID      int
	generation  uint64
	pending     map[*time.Timer]struct{}
	reopenDelay time.Duration
	observer    Observer
	logger      *slog.Logger
	closed      bool
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithReopenDelay overrides DefaultReopenDelay
func WithReopenDelay(d time.Duration) StoreOption {
	return func(s *Store) { s.reopenDelay = d }
}

// WithObserver attaches an observer, typically metrics
func WithObserver(o Observer) StoreOption {
	return func(s *Store) { s.observer = o }
}

// NewStore creates a store holding a fresh waiting state
func NewStore(reducer *Reducer, logger *slog.Logger, opts ...StoreOption) *Store {
	s := &Store{
		state:       reducer.Initial(),
		reducer:     reducer,
		listeners:   make(map[int]Listener),
		pending:     make(map[*time.Timer]struct{}),
		reopenDelay: DefaultReopenDelay,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state
func (s *Store) Snapshot() domain.MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation identifies the current match; it changes on every new match,
// reset and game end.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Subscribe registers a listener and returns a function removing it
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Dispatch applies one event and returns the resulting state
func (s *Store) Dispatch(event domain.GameEvent) domain.MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || event == nil {
		return s.state
	}

	prev := s.state
	next := s.reducer.Apply(prev, event)
	if next.Version == prev.Version {
		s.logger.Debug("event had no effect", "kind", event.Kind(), "phase", prev.Phase)
		return prev
	}

	switch event.Kind() {
	case domain.KindGameStart, domain.KindGameEnd:
		s.invalidateLocked()
	case domain.KindMeetingStart:
		s.scheduleReopenLocked()
	}

	if s.observer != nil {
		s.observer.EventApplied(event.Kind(), next)
	}
	s.setLocked(next)
	return next
}

// Buy purchases amount token units at the current price
func (s *Store) Buy(amount int64) (domain.MatchState, error) {
	return s.trade("buy", func(st domain.MatchState) (domain.MatchState, error) {
		return Buy(st, amount)
	})
}

// Sell sells amount token units at the current price
func (s *Store) Sell(amount int64) (domain.MatchState, error) {
	return s.trade("sell", func(st domain.MatchState) (domain.MatchState, error) {
		return Sell(st, amount)
	})
}

// CashOut converts all holdings at the final price
func (s *Store) CashOut() (domain.MatchState, error) {
	return s.trade("cash_out", CashOut)
}

func (s *Store) trade(op string, fn func(domain.MatchState) (domain.MatchState, error)) (domain.MatchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.state)
	if s.observer != nil {
		s.observer.TradeAttempted(op, err)
	}
	if err != nil {
		s.logger.Debug("trade rejected", "op", op, "error", err)
		return s.state, err
	}

	s.setLocked(next)
	return next, nil
}

// Reset replaces the state with a fresh waiting match. Token metadata and
// the feed connection status carry over; everything else starts over.
func (s *Store) Reset() domain.MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidateLocked()

	next := s.reducer.Initial()
	next.Version = s.state.Version + 1
	next.ConnectionStatus = s.state.ConnectionStatus
	next.Token.Name = s.state.Token.Name
	next.Token.Ticker = s.state.Token.Ticker

	s.setLocked(next)
	return next
}

// SetConnectionStatus records the state of the upstream feed
func (s *Store) SetConnectionStatus(status domain.ConnectionStatus) (domain.MatchState, error) {
	if !status.Valid() {
		return s.Snapshot(), domain.ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.ConnectionStatus == status {
		return s.state, nil
	}
	next := s.state
	next.ConnectionStatus = status
	next.Version++
	s.setLocked(next)
	return next, nil
}

// SetGameMeta sets the token ticker and title
func (s *Store) SetGameMeta(meta domain.GameMeta) domain.MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.Token.Ticker = meta.Ticker
	next.Token.Name = meta.Title
	next.Version++
	s.setLocked(next)
	return next
}

// Close cancels pending deferred work and stops further transitions
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.invalidateLocked()
	s.listeners = make(map[int]Listener)
}

// scheduleReopenLocked reopens frozen markets after the reopen delay unless
// the match it was scheduled for is gone by then.
func (s *Store) scheduleReopenLocked() {
	gen := s.generation

	var timer *time.Timer
	timer = time.AfterFunc(s.reopenDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		delete(s.pending, timer)
		if s.closed || s.generation != gen {
			s.logger.Debug("stale market reopen dropped", "generation", gen)
			return
		}

		if next, changed := ReopenMarkets(s.state); changed {
			s.setLocked(next)
		}
	})
	s.pending[timer] = struct{}{}
}

// invalidateLocked starts a new generation and stops deferred work of the old one
func (s *Store) invalidateLocked() {
	s.generation++
	for t := range s.pending {
		t.Stop()
		delete(s.pending, t)
	}
}

func (s *Store) setLocked(next domain.MatchState) {
	s.state = next
	for _, l := range s.listeners {
		l(next)
	}
}
