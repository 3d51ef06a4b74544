// Package engine derives match state, prediction markets and the token
// ledger from an ordered stream of game events.
package engine

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"susmarket/internal/domain"
	"susmarket/internal/pricing"
)

// Price history labels per event kind
const (
	LabelLaunch  = "Launch"
	LabelKill    = "Kill"
	LabelMeeting = "Meeting"
	LabelEject   = "Eject"
	LabelEnd     = "End"
)

// CrewWinQuestion is the market seeded by every GAME_START
const CrewWinQuestion = "Will the Crew win?"

var _ domain.EventVisitor = (*Reducer)(nil)

// Reducer is the pure transition function (state, event) -> state.
// It holds only its injected collaborators: a pricer for noise and odds,
// a clock and an id source. It is not safe for concurrent use.
type Reducer struct {
	pricer   *pricing.Pricer
	defaults domain.TokenDefaults
	now      func() time.Time
	newID    func() string

	// Blind withholds the imposter from state until GAME_END reveals it.
	Blind bool
}

// ReducerOption configures a Reducer
type ReducerOption func(*Reducer)

// WithClock sets the clock used for timestamps
func WithClock(now func() time.Time) ReducerOption {
	return func(r *Reducer) { r.now = now }
}

// WithIDs sets the id generator for markets and feed items
func WithIDs(newID func() string) ReducerOption {
	return func(r *Reducer) { r.newID = newID }
}

// WithBlind withholds the imposter named in GAME_START
func WithBlind(blind bool) ReducerOption {
	return func(r *Reducer) { r.Blind = blind }
}

// NewReducer creates a reducer for tokens built from defaults
func NewReducer(pricer *pricing.Pricer, defaults domain.TokenDefaults, opts ...ReducerOption) *Reducer {
	r := &Reducer{
		pricer:   pricer,
		defaults: defaults,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Defaults returns the token parameters new matches start from
func (r *Reducer) Defaults() domain.TokenDefaults {
	return r.defaults
}

// Initial returns a fresh waiting state
func (r *Reducer) Initial() domain.MatchState {
	return domain.NewMatchState(r.defaults, r.now())
}

// Apply returns the state after event. Events that do not fit the current
// state return s unchanged.
func (r *Reducer) Apply(s domain.MatchState, event domain.GameEvent) domain.MatchState {
	if event == nil {
		return s
	}
	if event.Kind() != domain.KindGameStart && !s.Phase.InProgress() {
		return s
	}
	return event.Accept(s, r)
}

// VisitGameStart builds the roster and resets markets, feed and token
func (r *Reducer) VisitGameStart(s domain.MatchState, e domain.GameStart) domain.MatchState {
	if len(e.Agents) == 0 || hasDuplicates(e.Agents) {
		return s
	}

	now := r.now()
	agents := make([]domain.Agent, len(e.Agents))
	for i, name := range e.Agents {
		agents[i] = domain.NewAgent(name, i)
	}

	token := domain.NewTokenState(r.defaults, now)
	token.Name = s.Token.Name
	token.Ticker = s.Token.Ticker
	token.GameActive = true

	next := s
	next.Phase = domain.PhaseRunning
	next.Agents = agents
	next.Feed = []domain.FeedItem{}
	next.Markets = []domain.PredictionMarket{r.newMarket(domain.MarketCrewWin, CrewWinQuestion, "", now)}
	next.Imposter = ""
	if !r.Blind {
		next.Imposter = e.Imposter
	}
	next.Winner = ""
	next.Token = token

	return r.record(next, e.Kind(), LabelLaunch, "Game Started", fmt.Sprintf("%d agents entered", len(e.Agents)), now)
}

// VisitKill eliminates the victim and seeds kill-driven markets
func (r *Reducer) VisitKill(s domain.MatchState, e domain.Kill) domain.MatchState {
	victim := s.AgentIndex(e.Victim)
	if victim < 0 || !s.Agents[victim].Alive {
		return s
	}

	now := r.now()
	firstDeath := s.DeadCount() == 0

	agents := slices.Clone(s.Agents)
	agents[victim] = agents[victim].Kill(now)

	markets := slices.Clip(s.Markets)
	if firstDeath {
		survivor := "someone"
		for _, a := range agents {
			if a.Alive && a.Name != e.Killer {
				survivor = a.Name
				break
			}
		}
		markets = append(markets,
			r.newMarket(domain.MarketAccusation, fmt.Sprintf("Is %s the Imposter?", e.Killer), e.Killer, now),
			r.newMarket(domain.MarketSurvival, fmt.Sprintf("Will %s survive?", survivor), "", now),
		)
	} else {
		markets = append(markets,
			r.newMarket(domain.MarketKillAgain, fmt.Sprintf("Will %s kill again?", e.Killer), e.Killer, now),
		)
	}

	next := s
	next.Agents = agents
	next.Markets = markets

	return r.record(next, e.Kind(), LabelKill, fmt.Sprintf("%s was eliminated", e.Victim), fmt.Sprintf("Killed by %s", e.Killer), now)
}

// VisitMeetingStart freezes every open market
func (r *Reducer) VisitMeetingStart(s domain.MatchState, e domain.MeetingStart) domain.MatchState {
	now := r.now()

	next := s
	next.Phase = domain.PhaseMeeting
	next.Markets = setStatus(s.Markets, domain.MarketOpen, domain.MarketFrozen)

	return r.record(next, e.Kind(), LabelMeeting, "Emergency Meeting Called", "All agents assemble", now)
}

// VisitVote logs the vote. Voter and target are not checked against the
// roster: votes cast before a simultaneous elimination are still recorded.
func (r *Reducer) VisitVote(s domain.MatchState, e domain.Vote) domain.MatchState {
	return r.record(s, e.Kind(), "", fmt.Sprintf("%s voted", e.Agent), fmt.Sprintf("Voted to eject %s", e.Target), r.now())
}

// VisitEjection removes a living agent and resumes play
func (r *Reducer) VisitEjection(s domain.MatchState, e domain.Ejection) domain.MatchState {
	idx := s.AgentIndex(e.Ejected)
	if idx < 0 || !s.Agents[idx].Alive {
		return s
	}

	now := r.now()
	agents := slices.Clone(s.Agents)
	agents[idx] = agents[idx].Eject(now)

	next := s
	next.Phase = domain.PhaseRunning
	next.Agents = agents

	return r.record(next, e.Kind(), LabelEject, fmt.Sprintf("%s was ejected", e.Ejected), "The crew has spoken", now)
}

// VisitGameEnd ends the match and resolves every market that is not yet resolved
func (r *Reducer) VisitGameEnd(s domain.MatchState, e domain.GameEnd) domain.MatchState {
	if !e.Winner.Valid() {
		return s
	}

	now := r.now()
	markets := make([]domain.PredictionMarket, len(s.Markets))
	for i, m := range s.Markets {
		markets[i] = resolveMarket(m, e)
	}

	next := s
	next.Phase = domain.PhaseEnded
	next.Winner = e.Winner
	next.Imposter = e.Imposter
	next.Markets = markets

	headline := "Imposter Wins!"
	if e.Winner == domain.WinnerCrew {
		headline = "Crew Wins!"
	}
	return r.record(next, e.Kind(), LabelEnd, headline, fmt.Sprintf("The imposter was %s", e.Imposter), now)
}

// ReopenMarkets returns every FROZEN market to OPEN. It is the deferred
// half of a meeting and leaves RESOLVED markets alone. The bool is false
// when nothing was frozen.
func ReopenMarkets(s domain.MatchState) (domain.MatchState, bool) {
	if !slices.ContainsFunc(s.Markets, func(m domain.PredictionMarket) bool {
		return m.Status == domain.MarketFrozen
	}) {
		return s, false
	}
	next := s
	next.Markets = setStatus(s.Markets, domain.MarketFrozen, domain.MarketOpen)
	next.Version++
	return next, true
}

// resolveMarket applies the GAME_END rules to one market
func resolveMarket(m domain.PredictionMarket, e domain.GameEnd) domain.PredictionMarket {
	if m.IsResolved() {
		return m
	}
	switch {
	case m.Kind == domain.MarketCrewWin:
		return m.Resolve(domain.YesIf(e.Winner == domain.WinnerCrew))
	case m.Kind == domain.MarketAccusation && m.RelatedAgent != "":
		return m.Resolve(domain.YesIf(m.RelatedAgent == e.Imposter))
	default:
		// void: closed without a YES/NO result
		return m.Resolve(domain.OutcomeNone)
	}
}

func (r *Reducer) newMarket(kind domain.MarketKind, question, related string, now time.Time) domain.PredictionMarket {
	yes := 30 + r.pricer.Intn(41)
	return domain.PredictionMarket{
		ID:           r.newID(),
		Kind:         kind,
		Question:     question,
		YesOdds:      yes,
		NoOdds:       100 - yes,
		Status:       domain.MarketOpen,
		CreatedAt:    now,
		RelatedAgent: related,
	}
}

// record finishes an applied event: one feed entry, one hype step, one version
func (r *Reducer) record(s domain.MatchState, kind domain.EventKind, label, message, details string, now time.Time) domain.MatchState {
	s = r.appendFeed(s, kind, message, details, now)
	s = r.raiseHype(s, kind, label, now)
	s.Version++
	return s
}

// appendFeed prepends an entry, keeping at most FeedLimit entries
func (r *Reducer) appendFeed(s domain.MatchState, kind domain.EventKind, message, details string, now time.Time) domain.MatchState {
	item := domain.FeedItem{
		ID:        r.newID(),
		Timestamp: now,
		Type:      kind,
		Message:   message,
		Details:   details,
	}

	n := min(len(s.Feed)+1, domain.FeedLimit)
	feed := make([]domain.FeedItem, 0, n)
	feed = append(feed, item)
	feed = append(feed, s.Feed[:n-1]...)

	s.Feed = feed
	return s
}

// raiseHype adds the kind's hype weight and reprices the token once.
// GAME_END freezes the price and only closes the series.
func (r *Reducer) raiseHype(s domain.MatchState, kind domain.EventKind, label string, now time.Time) domain.MatchState {
	token := s.Token
	token.HypeScore += domain.HypeWeight(kind)
	if kind == domain.KindGameEnd {
		token.GameActive = false
	} else {
		token.Price = r.pricer.Price(token.HypeScore)
		token.GameActive = true
	}

	history := make([]domain.PricePoint, len(token.PriceHistory), len(token.PriceHistory)+1)
	copy(history, token.PriceHistory)
	token.PriceHistory = append(history, domain.PricePoint{Time: now, Price: token.Price, Label: label})

	s.Token = token
	return s
}

func setStatus(markets []domain.PredictionMarket, from, to domain.MarketStatus) []domain.PredictionMarket {
	out := make([]domain.PredictionMarket, len(markets))
	for i, m := range markets {
		if m.Status == from {
			m.Status = to
		}
		out[i] = m
	}
	return out
}

func hasDuplicates(names []string) bool {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			return true
		}
		seen[n] = struct{}{}
	}
	return false
}
