package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"susmarket/internal/app"
	"susmarket/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Size of the send channel buffer
	sendBufferSize = 256
)

// Client is one spectator connection to a match
type Client struct {
	conn     *websocket.Conn
	session  *app.MatchSession
	clientID string
	send     chan []byte
	done     chan struct{}
	logger   *slog.Logger
	mu       sync.Mutex
	closed   bool
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, session *app.MatchSession, clientID string, logger *slog.Logger) *Client {
	return &Client{
		conn:     conn,
		session:  session,
		clientID: clientID,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// GetClientID implements app.ClientConnection
func (c *Client) GetClientID() string {
	return c.clientID
}

// SendSnapshot implements app.ClientConnection
func (c *Client) SendSnapshot(state domain.MatchState) error {
	return c.Send(NewServerMessage(MsgSnapshot, &SnapshotPayload{
		MatchCode: c.session.GetMatchCode(),
		State:     state,
	}))
}

// Send queues a message for the write pump
func (c *Client) Send(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer full, message dropped
		c.logger.Warn("send buffer full, message dropped", "clientID", c.clientID)
		return nil
	}
}

// Close implements app.ClientConnection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)
	return c.conn.Close()
}

// Run starts the client's read and write pumps
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump pumps messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.session.UnregisterClient(c.clientID)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection.
// Every message goes out as its own frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming message from the client
func (c *Client) handleMessage(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(ErrCodeInvalidMessage, "Invalid message format")
		return
	}

	switch msg.Type {
	case MsgBuy:
		c.handleTrade(msg.Payload, c.session.Buy)
	case MsgSell:
		c.handleTrade(msg.Payload, c.session.Sell)
	case MsgCashOut:
		if _, err := c.session.CashOut(); err != nil {
			c.sendActionError(err)
		}
	case MsgReset:
		c.session.Reset()
	case MsgStartDemo:
		c.handleStartDemo(msg.Payload)
	case MsgPing:
		c.sendPong()
	default:
		c.sendError(ErrCodeInvalidMessage, "Unknown message type")
	}
}

// handleTrade decodes an amount and runs a ledger operation. Successful
// trades reach every spectator through the snapshot broadcast.
func (c *Client) handleTrade(payload json.RawMessage, op func(int64) (domain.MatchState, error)) {
	var p AmountPayload
	if len(payload) == 0 || json.Unmarshal(payload, &p) != nil {
		c.sendError(ErrCodeInvalidMessage, "Amount is required")
		return
	}

	if _, err := op(p.Amount); err != nil {
		c.sendActionError(err)
	}
}

// handleStartDemo handles a start_demo message
func (c *Client) handleStartDemo(payload json.RawMessage) {
	var p StartDemoPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			c.sendError(ErrCodeInvalidMessage, "Invalid payload")
			return
		}
	}

	if err := c.session.StartDemo(p.Seed); err != nil {
		c.sendActionError(err)
	}
}

// sendConnected sends the connected message with the current snapshot
func (c *Client) sendConnected() {
	payload := &ConnectedPayload{
		ClientID:  c.clientID,
		MatchCode: c.session.GetMatchCode(),
		State:     c.session.Snapshot(),
	}

	c.Send(NewServerMessage(MsgConnected, payload))
}

func (c *Client) sendActionError(err error) {
	code, message := ErrorCode(err)
	if code == ErrCodeInternalError {
		c.logger.Error("client action failed", "clientID", c.clientID, "error", err)
	}
	c.sendError(code, message)
}

// sendError sends an error message to the client
func (c *Client) sendError(code, message string) {
	payload := &ErrorPayload{
		Code:    code,
		Message: message,
	}

	c.Send(NewServerMessage(MsgError, payload))
}

// sendPong sends a pong message in response to ping
func (c *Client) sendPong() {
	c.Send(NewServerMessage(MsgPong, nil))
}
