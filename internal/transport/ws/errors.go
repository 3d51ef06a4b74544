package ws

import (
	"errors"

	"susmarket/internal/app"
	"susmarket/internal/domain"
)

// ErrorCode maps an action error onto its wire code and message
func ErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, domain.ErrTradingClosed):
		return ErrCodeTradingClosed, "Trading is closed"
	case errors.Is(err, domain.ErrInvalidAmount):
		return ErrCodeInvalidAmount, "Amount must be a positive whole number"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return ErrCodeInsufficientCredits, "Not enough credits"
	case errors.Is(err, domain.ErrInsufficientTokens):
		return ErrCodeInsufficientTokens, "Not enough tokens"
	case errors.Is(err, domain.ErrCashOutUnavailable):
		return ErrCodeCashOutUnavailable, "Cash out is only available once after the match ends"
	case errors.Is(err, domain.ErrMatchNotFound):
		return ErrCodeMatchNotFound, "Match not found"
	case errors.Is(err, app.ErrDemoRunning):
		return ErrCodeDemoRunning, "A demo is already running"
	}
	return ErrCodeInternalError, "Internal server error"
}
