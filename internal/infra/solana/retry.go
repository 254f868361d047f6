package solana

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// ErrRateLimited is surfaced when the endpoint answers 429 or an equivalent
// throttle message. Callers back off the whole round instead of issuing
// further calls against the endpoint.
var ErrRateLimited = errors.New("rpc rate limited")

// RetryConfig defines retry behavior for a single RPC call.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults for short polling calls.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    500 * time.Millisecond,
	MaxDelay:        5 * time.Second,
	BackoffMultiple: 2.0,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionAbort
)

// ClassifyError determines the action for a given call error. Rate limits
// and JSON-RPC request-shape errors abort immediately; everything else
// (network errors, 5xx, timeouts) is retried.
func ClassifyError(err error) ErrorAction {
	if errors.Is(err, ErrRateLimited) {
		return ActionAbort
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionAbort
	}

	s := err.Error()
	// -32700: Parse error, -32600: Invalid Request, -32601: Method not found, -32602: Invalid params
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") || strings.Contains(s, "-32602") {
		return ActionAbort
	}

	return ActionRetry
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
