package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"susmarket/internal/app"
	"susmarket/internal/domain"
	"susmarket/internal/ingest"
	"susmarket/internal/settlement"
)

const maxBodyBytes = 1 << 16

// Response is a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateMatchResponse is the response for match creation
type CreateMatchResponse struct {
	MatchCode     string `json:"matchCode"`
	SpectatorLink string `json:"spectatorLink"`
}

// GetMatchResponse summarizes a match without its full state
type GetMatchResponse struct {
	MatchCode   string          `json:"matchCode"`
	Phase       string          `json:"phase"`
	Version     uint64          `json:"version"`
	Spectators  int             `json:"spectators"`
	DemoRunning bool            `json:"demoRunning"`
	Ticker      string          `json:"ticker"`
	Price       decimal.Decimal `json:"price"`
	Pinned      bool            `json:"pinned"`
}

// AmountRequest is the body of buy and sell
type AmountRequest struct {
	Amount int64 `json:"amount"`
}

// DemoRequest is the optional body of a demo start
type DemoRequest struct {
	Seed uint64 `json:"seed"`
}

// HealthResponse is the response for health check
type HealthResponse struct {
	Status string `json:"status"`
}

// StatsResponse is the response for stats endpoint
type StatsResponse struct {
	ActiveMatches int `json:"activeMatches"`
	Spectators    int `json:"spectators"`
}

// handleCreateMatch handles POST /api/matches
func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	session, err := s.hub.CreateMatch()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "CREATION_FAILED", "Failed to create match")
		return
	}

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}

	s.sendSuccessStatus(w, http.StatusCreated, &CreateMatchResponse{
		MatchCode:     session.GetMatchCode(),
		SpectatorLink: scheme + "://" + r.Host + "/watch/" + session.GetMatchCode(),
	})
}

// handleGetMatch handles GET /api/matches/{code}
func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	state := session.Snapshot()
	s.sendSuccess(w, &GetMatchResponse{
		MatchCode:   session.GetMatchCode(),
		Phase:       state.Phase.String(),
		Version:     state.Version,
		Spectators:  session.GetSpectatorCount(),
		DemoRunning: session.DemoRunning(),
		Ticker:      state.Token.Ticker,
		Price:       state.Token.Price,
		Pinned:      session.Pinned(),
	})
}

// handleSnapshot handles GET /api/matches/{code}/snapshot
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	s.sendSuccess(w, session.Snapshot())
}

// handleEvent handles POST /api/matches/{code}/events. The body is one
// event in the upstream wire format.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "INVALID_BODY", "Failed to read body")
		return
	}

	event, err := ingest.DecodeEvent(body)
	if err != nil {
		code := "MALFORMED_EVENT"
		if errors.Is(err, ingest.ErrUnknownEventType) {
			code = "UNKNOWN_EVENT_TYPE"
		}
		s.sendError(w, http.StatusBadRequest, code, err.Error())
		return
	}

	s.sendSuccess(w, session.Dispatch(event))
}

// handleBuy handles POST /api/matches/{code}/buy
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, (*app.MatchSession).Buy)
}

// handleSell handles POST /api/matches/{code}/sell
func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, (*app.MatchSession).Sell)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, op func(*app.MatchSession, int64) (domain.MatchState, error)) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var req AmountRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	state, err := op(session, req.Amount)
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendSuccess(w, state)
}

// handleCashOut handles POST /api/matches/{code}/cashout
func (s *Server) handleCashOut(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	state, err := session.CashOut()
	if err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendSuccess(w, state)
}

// handleReset handles POST /api/matches/{code}/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	s.sendSuccess(w, session.Reset())
}

// handleMeta handles POST /api/matches/{code}/meta
func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var meta domain.GameMeta
	if !s.decode(w, r, &meta, false) {
		return
	}
	meta.Ticker = strings.TrimSpace(meta.Ticker)
	meta.Title = strings.TrimSpace(meta.Title)
	if meta.Ticker == "" || meta.Title == "" {
		s.sendError(w, http.StatusBadRequest, "INVALID_META", "Ticker and title are required")
		return
	}

	s.sendSuccess(w, session.SetGameMeta(meta))
}

// handleStartDemo handles POST /api/matches/{code}/demo
func (s *Server) handleStartDemo(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var req DemoRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	if err := session.StartDemo(req.Seed); err != nil {
		s.sendDomainError(w, err)
		return
	}
	s.sendSuccessStatus(w, http.StatusAccepted, session.Snapshot())
}

// handleStopDemo handles DELETE /api/matches/{code}/demo
func (s *Server) handleStopDemo(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	session.StopDemo()
	s.sendSuccess(w, session.Snapshot())
}

// handleResolutions handles GET /api/matches/{code}/resolutions
func (s *Server) handleResolutions(w http.ResponseWriter, r *http.Request) {
	if s.resolutions == nil {
		s.sendError(w, http.StatusServiceUnavailable, "SETTLEMENT_DISABLED", "Settlement storage is not configured")
		return
	}

	code := strings.ToUpper(r.PathValue("code"))
	records, err := s.resolutions.ListMatches(r.Context(), code, 0)
	if err != nil {
		s.logger.Error("list resolutions failed", "matchCode", code, "error", err)
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
		return
	}
	if records == nil {
		records = []settlement.MatchRecord{}
	}
	s.sendSuccess(w, records)
}

// handleSettle handles POST /api/resolutions/{marketId}/settle
func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	if s.resolutions == nil {
		s.sendError(w, http.StatusServiceUnavailable, "SETTLEMENT_DISABLED", "Settlement storage is not configured")
		return
	}

	marketID := r.PathValue("marketId")
	err := s.resolutions.MarkSettled(r.Context(), marketID, time.Now())
	switch {
	case errors.Is(err, settlement.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "RESOLUTION_NOT_FOUND", "Resolution not found")
	case errors.Is(err, settlement.ErrAlreadySettled):
		s.sendError(w, http.StatusConflict, "ALREADY_SETTLED", "Market already settled")
	case err != nil:
		s.logger.Error("mark settled failed", "marketId", marketID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	default:
		s.sendSuccess(w, map[string]string{"marketId": marketID})
	}
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, &HealthResponse{
		Status: "ok",
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.sendSuccess(w, &StatsResponse{
		ActiveMatches: s.hub.GetSessionCount(),
		Spectators:    s.hub.GetSpectatorCount(),
	})
}

// session resolves the {code} path value or writes the error response
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*app.MatchSession, bool) {
	code := r.PathValue("code")
	if code == "" {
		s.sendError(w, http.StatusBadRequest, "MISSING_MATCH_CODE", "Match code is required")
		return nil, false
	}

	session, err := s.hub.GetSession(strings.ToUpper(code))
	if err != nil {
		s.sendDomainError(w, err)
		return nil, false
	}
	return session, true
}

// decode reads a JSON body into v. An empty body is accepted when optional.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || optional && errors.Is(err, io.EOF) {
		return true
	}
	s.sendError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid JSON body")
	return false
}

// sendDomainError maps engine and session errors onto status codes
func (s *Server) sendDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrMatchNotFound):
		s.sendError(w, http.StatusNotFound, "MATCH_NOT_FOUND", "Match not found")
	case errors.Is(err, domain.ErrInvalidAmount):
		s.sendError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
	case errors.Is(err, domain.ErrTradingClosed):
		s.sendError(w, http.StatusConflict, "TRADING_CLOSED", err.Error())
	case errors.Is(err, domain.ErrInsufficientCredits):
		s.sendError(w, http.StatusConflict, "INSUFFICIENT_CREDITS", err.Error())
	case errors.Is(err, domain.ErrInsufficientTokens):
		s.sendError(w, http.StatusConflict, "INSUFFICIENT_TOKENS", err.Error())
	case errors.Is(err, domain.ErrCashOutUnavailable):
		s.sendError(w, http.StatusConflict, "CASH_OUT_UNAVAILABLE", err.Error())
	case errors.Is(err, app.ErrDemoRunning):
		s.sendError(w, http.StatusConflict, "DEMO_RUNNING", err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// sendSuccess sends a successful JSON response
func (s *Server) sendSuccess(w http.ResponseWriter, data any) {
	s.sendSuccessStatus(w, http.StatusOK, data)
}

func (s *Server) sendSuccessStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&Response{
		Success: true,
		Data:    data,
	})
}

// sendError sends an error JSON response
func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	})
}
