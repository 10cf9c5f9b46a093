package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

var (
	// ErrDataUnavailable is matched by every error that prevents a profile from being assembled
	ErrDataUnavailable = errors.New("financial data unavailable")

	// ErrSymbolNotFound means the provider does not know the ticker
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrRateLimited means the provider answered with a usage notice instead of data
	ErrRateLimited = errors.New("rate limited by data provider")
)

// DataUnavailableError describes a failed provider call
type DataUnavailableError struct {
	Symbol    string
	Operation string
	Reason    string
	Err       error
}

func (e *DataUnavailableError) Error() string {
	msg := fmt.Sprintf("data unavailable for %s (%s)", e.Symbol, e.Operation)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// Is makes every DataUnavailableError match ErrDataUnavailable
func (e *DataUnavailableError) Is(target error) bool {
	return target == ErrDataUnavailable
}

func unavailable(symbol, operation, reason string, err error) *DataUnavailableError {
	return &DataUnavailableError{Symbol: symbol, Operation: operation, Reason: reason, Err: err}
}

// ErrorType classifies an error for metrics labels
func ErrorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrSymbolNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, errHTTPStatus):
		return "http_status"
	case errors.Is(err, errDecode):
		return "decode"
	default:
		return "network"
	}
}

var (
	errHTTPStatus = errors.New("unexpected HTTP status")
	errDecode     = errors.New("undecodable response")
)
