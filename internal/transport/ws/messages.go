package ws

import (
	"encoding/json"
	"time"

	"susmarket/internal/domain"
)

// MessageType represents the type of WebSocket message
type MessageType string

// Client → Server message types
const (
	MsgBuy       MessageType = "buy"
	MsgSell      MessageType = "sell"
	MsgCashOut   MessageType = "cash_out"
	MsgReset     MessageType = "reset"
	MsgStartDemo MessageType = "start_demo"
	MsgPing      MessageType = "ping"
)

// Server → Client message types
const (
	MsgConnected MessageType = "connected"
	MsgSnapshot  MessageType = "snapshot"
	MsgError     MessageType = "error"
	MsgPong      MessageType = "pong"
)

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage represents a message from server to client
type ServerMessage struct {
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NewServerMessage creates a new server message with current timestamp
func NewServerMessage(msgType MessageType, payload any) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Client message payloads

// AmountPayload is the payload for buy and sell messages
type AmountPayload struct {
	Amount int64 `json:"amount"`
}

// StartDemoPayload is the optional payload for start_demo
type StartDemoPayload struct {
	Seed uint64 `json:"seed"`
}

// Server message payloads

// ConnectedPayload is the payload for connected message
type ConnectedPayload struct {
	ClientID  string            `json:"clientId"`
	MatchCode string            `json:"matchCode"`
	State     domain.MatchState `json:"state"`
}

// SnapshotPayload carries the match state after a transition
type SnapshotPayload struct {
	MatchCode string            `json:"matchCode"`
	State     domain.MatchState `json:"state"`
}

// ErrorPayload is the payload for error message
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidMessage      = "INVALID_MESSAGE"
	ErrCodeMatchNotFound       = "MATCH_NOT_FOUND"
	ErrCodeTradingClosed       = "TRADING_CLOSED"
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	ErrCodeInsufficientTokens  = "INSUFFICIENT_TOKENS"
	ErrCodeCashOutUnavailable  = "CASH_OUT_UNAVAILABLE"
	ErrCodeDemoRunning         = "DEMO_RUNNING"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)
