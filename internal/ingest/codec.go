// Package ingest turns upstream wire messages into game events and feeds
// them to a match store.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"susmarket/internal/domain"
)

var (
	ErrMalformedEvent   = errors.New("malformed event")
	ErrUnknownEventType = errors.New("unknown event type")
)

// wireEvent is the flat JSON shape used by upstream producers:
// {"type":"KILL","killer":"Nova","victim":"Echo"}
type wireEvent struct {
	Type     string   `json:"type"`
	Agents   []string `json:"agents,omitempty"`
	Imposter string   `json:"imposter,omitempty"`
	Killer   string   `json:"killer,omitempty"`
	Victim   string   `json:"victim,omitempty"`
	Agent    string   `json:"agent,omitempty"`
	Target   string   `json:"target,omitempty"`
	Ejected  string   `json:"ejected,omitempty"`
	Winner   string   `json:"winner,omitempty"`
}

// DecodeEvent parses one wire message. Errors wrap ErrMalformedEvent or
// ErrUnknownEventType so callers can drop the message and keep reading.
func DecodeEvent(data []byte) (domain.GameEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if w.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	kind, ok := domain.ParseEventKind(w.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, w.Type)
	}

	switch kind {
	case domain.KindGameStart:
		if len(w.Agents) == 0 {
			return nil, missing(kind, "agents")
		}
		if slices.Contains(w.Agents, "") {
			return nil, fmt.Errorf("%w: %s has an empty agent name", ErrMalformedEvent, kind)
		}
		sorted := slices.Clone(w.Agents)
		slices.Sort(sorted)
		if len(slices.Compact(sorted)) != len(w.Agents) {
			return nil, fmt.Errorf("%w: %s has duplicate agents", ErrMalformedEvent, kind)
		}
		return domain.GameStart{Agents: w.Agents, Imposter: w.Imposter}, nil

	case domain.KindKill:
		if w.Killer == "" {
			return nil, missing(kind, "killer")
		}
		if w.Victim == "" {
			return nil, missing(kind, "victim")
		}
		return domain.Kill{Killer: w.Killer, Victim: w.Victim}, nil

	case domain.KindMeetingStart:
		return domain.MeetingStart{}, nil

	case domain.KindVote:
		if w.Agent == "" {
			return nil, missing(kind, "agent")
		}
		if w.Target == "" {
			return nil, missing(kind, "target")
		}
		return domain.Vote{Agent: w.Agent, Target: w.Target}, nil

	case domain.KindEjection:
		if w.Ejected == "" {
			return nil, missing(kind, "ejected")
		}
		return domain.Ejection{Ejected: w.Ejected}, nil

	case domain.KindGameEnd:
		winner := domain.Winner(w.Winner)
		if !winner.Valid() {
			return nil, fmt.Errorf("%w: %s winner %q", ErrMalformedEvent, kind, w.Winner)
		}
		return domain.GameEnd{Winner: winner, Imposter: w.Imposter}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, w.Type)
}

// EncodeEvent writes an event in the same flat shape DecodeEvent reads
func EncodeEvent(e domain.GameEvent) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil event", ErrMalformedEvent)
	}

	w := wireEvent{Type: e.Kind().String()}
	switch ev := e.(type) {
	case domain.GameStart:
		w.Agents = ev.Agents
		w.Imposter = ev.Imposter
	case domain.Kill:
		w.Killer = ev.Killer
		w.Victim = ev.Victim
	case domain.MeetingStart:
	case domain.Vote:
		w.Agent = ev.Agent
		w.Target = ev.Target
	case domain.Ejection:
		w.Ejected = ev.Ejected
	case domain.GameEnd:
		w.Winner = string(ev.Winner)
		w.Imposter = ev.Imposter
	}
	return json.Marshal(w)
}

func missing(kind domain.EventKind, field string) error {
	return fmt.Errorf("%w: %s missing %q", ErrMalformedEvent, kind, field)
}
