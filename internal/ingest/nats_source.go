package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"susmarket/internal/domain"
)

// DefaultSubject carries match events on the bus
const DefaultSubject = "sus.events"

// NATSSource subscribes to a subject where each message is one JSON event.
// Messages on one subscription are delivered in order.
type NATSSource struct {
	url      string
	subject  string
	sink     Sink
	logger   *slog.Logger
	interval time.Duration
}

// NewNATSSource creates a source for subject on the server at url
func NewNATSSource(url, subject string, sink Sink, interval time.Duration, logger *slog.Logger) *NATSSource {
	if subject == "" {
		subject = DefaultSubject
	}
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	return &NATSSource{
		url:      url,
		subject:  subject,
		sink:     sink,
		logger:   logger,
		interval: interval,
	}
}

// Run connects and consumes until ctx is done. The client library owns
// reconnection; its callbacks drive the connection status.
func (s *NATSSource) Run(ctx context.Context) error {
	s.setStatus(domain.StatusConnecting)

	nc, err := nats.Connect(s.url,
		nats.Name("susmarket"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(s.interval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.logger.Warn("nats disconnected", "error", err)
			s.setStatus(domain.StatusDisconnected)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			s.setStatus(domain.StatusConnected)
		}),
	)
	if err != nil {
		s.setStatus(domain.StatusDisconnected)
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	sub, err := nc.Subscribe(s.subject, func(msg *nats.Msg) {
		if _, err := deliver(s.sink, msg.Data); err != nil {
			s.logger.Debug("dropping bus message", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		s.setStatus(domain.StatusDisconnected)
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	// the server knows the subscription once the flush round trip is back
	if err := nc.Flush(); err != nil {
		s.setStatus(domain.StatusDisconnected)
		return fmt.Errorf("flush subscription: %w", err)
	}

	s.setStatus(domain.StatusConnected)
	s.logger.Info("subscribed to event bus", "subject", s.subject)

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		s.logger.Warn("nats drain failed", "error", err)
	}
	s.setStatus(domain.StatusDisconnected)
	return ctx.Err()
}

func (s *NATSSource) setStatus(status domain.ConnectionStatus) {
	_, _ = s.sink.SetConnectionStatus(status)
}
