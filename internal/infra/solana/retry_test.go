package solana

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorAction
	}{
		{"rate limited", fmt.Errorf("%w: retry after 10", ErrRateLimited), ActionAbort},
		{"context canceled", context.Canceled, ActionAbort},
		{"deadline exceeded", context.DeadlineExceeded, ActionAbort},
		{"method not found", &rpcError{Code: -32601, Message: "method not found"}, ActionAbort},
		{"invalid params", &rpcError{Code: -32602, Message: "invalid params"}, ActionAbort},
		{"http 500", errors.New("http 500: internal server error"), ActionRetry},
		{"network error", errors.New("rpc call: connection reset"), ActionRetry},
		{"server error code", &rpcError{Code: -32005, Message: "node is behind"}, ActionRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if action := ClassifyError(tt.err); action != tt.expected {
				t.Errorf("ClassifyError(%v) = %d, want %d", tt.err, action, tt.expected)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:    time.Second,
		MaxDelay:        10 * time.Second,
		BackoffMultiple: 2.0,
	}

	if d := calculateBackoff(0, cfg); d != time.Second {
		t.Errorf("attempt 0: expected 1s, got %s", d)
	}
	if d := calculateBackoff(2, cfg); d != 4*time.Second {
		t.Errorf("attempt 2: expected 4s, got %s", d)
	}
	if d := calculateBackoff(10, cfg); d != 10*time.Second {
		t.Errorf("attempt 10: expected cap 10s, got %s", d)
	}
}
