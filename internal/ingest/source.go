package ingest

import (
	"context"

	"susmarket/internal/domain"
)

// Sink receives decoded events and feed status changes.
// *engine.Store satisfies it.
type Sink interface {
	Dispatch(domain.GameEvent) domain.MatchState
	SetConnectionStatus(domain.ConnectionStatus) (domain.MatchState, error)
}

// Source feeds a sink until its context is cancelled
type Source interface {
	Run(ctx context.Context) error
}

// deliver decodes one message and hands it to the sink. Bad messages are
// reported but never stop the feed.
func deliver(sink Sink, data []byte) (domain.GameEvent, error) {
	event, err := DecodeEvent(data)
	if err != nil {
		return nil, err
	}
	sink.Dispatch(event)
	return event, nil
}
