package domain

import "time"

// FeedLimit is the maximum number of feed entries kept, newest first
const FeedLimit = 200

// FeedItem is one human-readable line of the match log
type FeedItem struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventKind `json:"type"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
}

// GameMeta is display metadata for the token
type GameMeta struct {
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// MatchState is the complete state of one match.
//
// A MatchState is a value: transitions build a new one and never write into
// the slices of the state they were given, so a snapshot handed to a
// subscriber stays valid after later transitions.
type MatchState struct {
	// Version increases by one with every transition that changes the state.
	Version          uint64             `json:"version"`
	Phase            Phase              `json:"phase"`
	Agents           []Agent            `json:"agents"`
	Feed             []FeedItem         `json:"feed"`
	Markets          []PredictionMarket `json:"markets"`
	Imposter         string             `json:"imposter,omitempty"`
	Winner           Winner             `json:"winner,omitempty"`
	ConnectionStatus ConnectionStatus   `json:"connectionStatus"`
	Token            TokenState         `json:"token"`
}

// NewMatchState creates a waiting match with an empty roster
func NewMatchState(d TokenDefaults, now time.Time) MatchState {
	return MatchState{
		Phase:            PhaseWaiting,
		Agents:           []Agent{},
		Feed:             []FeedItem{},
		Markets:          []PredictionMarket{},
		ConnectionStatus: StatusDisconnected,
		Token:            NewTokenState(d, now),
	}
}

// AgentIndex returns the roster position of the named agent, or -1
func (s MatchState) AgentIndex(name string) int {
	for i, a := range s.Agents {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// IsAlive reports whether the named agent is on the roster and alive
func (s MatchState) IsAlive(name string) bool {
	i := s.AgentIndex(name)
	return i >= 0 && s.Agents[i].Alive
}

// DeadCount returns the number of eliminated agents
func (s MatchState) DeadCount() int {
	n := 0
	for _, a := range s.Agents {
		if !a.Alive {
			n++
		}
	}
	return n
}

// Market returns the market with the given id
func (s MatchState) Market(id string) (PredictionMarket, bool) {
	for _, m := range s.Markets {
		if m.ID == id {
			return m, true
		}
	}
	return PredictionMarket{}, false
}

// ResolvedMarkets returns the markets that reached RESOLVED
func (s MatchState) ResolvedMarkets() []PredictionMarket {
	out := make([]PredictionMarket, 0, len(s.Markets))
	for _, m := range s.Markets {
		if m.IsResolved() {
			out = append(out, m)
		}
	}
	return out
}
