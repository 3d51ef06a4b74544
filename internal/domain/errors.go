package domain

import "errors"

// Domain errors
var (
	ErrMatchNotFound       = errors.New("match not found")
	ErrTradingClosed       = errors.New("trading is closed")
	ErrInvalidAmount       = errors.New("amount must be a positive integer")
	ErrInsufficientCredits = errors.New("not enough credits")
	ErrInsufficientTokens  = errors.New("not enough tokens")
	ErrCashOutUnavailable  = errors.New("cash out is only available once after the match ends")
	ErrInvalidStatus       = errors.New("invalid connection status")
)
