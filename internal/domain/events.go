package domain

import "fmt"

// EventKind identifies a GameEvent variant
type EventKind int

const (
	KindGameStart EventKind = iota
	KindKill
	KindMeetingStart
	KindVote
	KindEjection
	KindGameEnd

	numEventKinds
)

var eventKindNames = [...]string{
	KindGameStart:    "GAME_START",
	KindKill:         "KILL",
	KindMeetingStart: "MEETING_START",
	KindVote:         "VOTE",
	KindEjection:     "EJECTION",
	KindGameEnd:      "GAME_END",
}

// Every kind needs a wire name. A kind appended without one fails to compile.
var _ = [1]struct{}{}[len(eventKindNames)-int(numEventKinds)]

// String returns the wire name of the kind
func (k EventKind) String() string {
	if k < 0 || k >= numEventKinds {
		return "UNKNOWN"
	}
	return eventKindNames[k]
}

// MarshalText implements encoding.TextMarshaler
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *EventKind) UnmarshalText(text []byte) error {
	kind, ok := ParseEventKind(string(text))
	if !ok {
		return fmt.Errorf("unknown event kind %q", text)
	}
	*k = kind
	return nil
}

// ParseEventKind maps a wire name back to its kind
func ParseEventKind(name string) (EventKind, bool) {
	for k, n := range eventKindNames {
		if n == name {
			return EventKind(k), true
		}
	}
	return 0, false
}

// Winner is the side that won a match
type Winner string

const (
	WinnerCrew     Winner = "crew"
	WinnerImposter Winner = "imposter"
)

// Valid reports whether w is one of the two sides
func (w Winner) Valid() bool {
	return w == WinnerCrew || w == WinnerImposter
}

// EventVisitor has one method per GameEvent variant. Adding a variant adds a
// method here, so every visitor stops compiling until it handles it.
type EventVisitor interface {
	VisitGameStart(MatchState, GameStart) MatchState
	VisitKill(MatchState, Kill) MatchState
	VisitMeetingStart(MatchState, MeetingStart) MatchState
	VisitVote(MatchState, Vote) MatchState
	VisitEjection(MatchState, Ejection) MatchState
	VisitGameEnd(MatchState, GameEnd) MatchState
}

// GameEvent is the closed set of events a match can receive.
// Only the variants declared in this file implement it.
type GameEvent interface {
	Kind() EventKind
	Accept(s MatchState, v EventVisitor) MatchState
	gameEvent()
}

// GameStart opens a match with a fixed roster
type GameStart struct {
	Agents   []string
	Imposter string // optional
}

// Kill records one agent eliminating another
type Kill struct {
	Killer string
	Victim string
}

// MeetingStart calls an emergency meeting
type MeetingStart struct{}

// Vote records one agent voting to eject another
type Vote struct {
	Agent  string
	Target string
}

// Ejection removes an agent after a meeting
type Ejection struct {
	Ejected string
}

// GameEnd closes the match and reveals the imposter
type GameEnd struct {
	Winner   Winner
	Imposter string
}

func (GameStart) Kind() EventKind    { return KindGameStart }
func (Kill) Kind() EventKind         { return KindKill }
func (MeetingStart) Kind() EventKind { return KindMeetingStart }
func (Vote) Kind() EventKind         { return KindVote }
func (Ejection) Kind() EventKind     { return KindEjection }
func (GameEnd) Kind() EventKind      { return KindGameEnd }

func (e GameStart) Accept(s MatchState, v EventVisitor) MatchState    { return v.VisitGameStart(s, e) }
func (e Kill) Accept(s MatchState, v EventVisitor) MatchState         { return v.VisitKill(s, e) }
func (e MeetingStart) Accept(s MatchState, v EventVisitor) MatchState { return v.VisitMeetingStart(s, e) }
func (e Vote) Accept(s MatchState, v EventVisitor) MatchState         { return v.VisitVote(s, e) }
func (e Ejection) Accept(s MatchState, v EventVisitor) MatchState     { return v.VisitEjection(s, e) }
func (e GameEnd) Accept(s MatchState, v EventVisitor) MatchState      { return v.VisitGameEnd(s, e) }

func (GameStart) gameEvent()    {}
func (Kill) gameEvent()         {}
func (MeetingStart) gameEvent() {}
func (Vote) gameEvent()         {}
func (Ejection) gameEvent()     {}
func (GameEnd) gameEvent()      {}

// hypeWeights is how much each event kind raises the hype score.
var hypeWeights = [...]int{
	KindGameStart:    20,
	KindKill:         15,
	KindMeetingStart: 10,
	KindVote:         2,
	KindEjection:     8,
	KindGameEnd:      0,
}

var _ = [1]struct{}{}[len(hypeWeights)-int(numEventKinds)]

// HypeWeight returns the fixed hype increment for an event kind
func HypeWeight(k EventKind) int {
	return hypeWeights[k]
}
