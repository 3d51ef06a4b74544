package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"susmarket/internal/domain"
)

// DefaultReconnectInterval is the fixed wait between connection attempts
const DefaultReconnectInterval = 3 * time.Second

// WSSource reads events from an upstream WebSocket. Every message is one
// JSON event. The connection status is mirrored into the sink and the
// source reconnects at a fixed interval until its context ends.
type WSSource struct {
	url      string
	sink     Sink
	logger   *slog.Logger
	interval time.Duration
	dialer   *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWSSource creates a source for url. interval <= 0 uses the default.
func NewWSSource(url string, sink Sink, interval time.Duration, logger *slog.Logger) *WSSource {
	if interval <= 0 {
		interval = DefaultReconnectInterval
	}
	return &WSSource{
		url:      url,
		sink:     sink,
		logger:   logger,
		interval: interval,
		dialer:   websocket.DefaultDialer,
	}
}

// Run connects, reads and reconnects until ctx is done
func (s *WSSource) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.closeConn)
	defer stop()

	attempt := 0
	for {
		s.setStatus(domain.StatusConnecting)

		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			attempt++
			s.logger.Warn("upstream dial failed", "url", s.url, "attempt", attempt, "error", err)
		} else {
			attempt = 0
			s.setConn(conn)
			// the close hook may have fired before conn was visible to it
			if ctx.Err() != nil {
				conn.Close()
			}
			s.setStatus(domain.StatusConnected)
			s.logger.Info("upstream connected", "url", s.url)

			s.readLoop(conn)
			s.setConn(nil)
		}

		if ctx.Err() != nil {
			s.setStatus(domain.StatusDisconnected)
			return ctx.Err()
		}
		s.setStatus(domain.StatusDisconnected)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval):
		}
	}
}

func (s *WSSource) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("upstream read error", "error", err)
			}
			return
		}

		event, err := deliver(s.sink, msg)
		if err != nil {
			s.logger.Debug("dropping upstream message", "error", err)
			continue
		}
		s.logger.Debug("upstream event", "kind", event.Kind())
	}
}

func (s *WSSource) setStatus(status domain.ConnectionStatus) {
	// statuses here are always valid
	_, _ = s.sink.SetConnectionStatus(status)
}

func (s *WSSource) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// closeConn unblocks a pending read when the context ends
func (s *WSSource) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}
