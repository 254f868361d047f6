package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/neonwatch/neonmon/internal/core/domain"
)

// Client is a JSON-RPC client for one Solana endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	retry      RetryConfig
}

// NewClient creates a client for the given endpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: DefaultRetryConfig,
	}
}

// Endpoint returns the endpoint URL this client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Call makes a JSON-RPC call with bounded retry and exponential backoff.
// Rate limits and malformed-request errors abort immediately.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	var lastErr error

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		result, err := c.callOnce(ctx, method, params)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if ClassifyError(err) == ActionAbort {
			return nil, err
		}
		if attempt == c.retry.MaxAttempts-1 {
			break
		}

		delay := calculateBackoff(attempt, c.retry)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.retry.MaxAttempts, lastErr)
}

func (c *Client) callOnce(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: retry after %s", ErrRateLimited, resp.Header.Get("Retry-After"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// GetSignaturesForAddress returns signatures touching the address, newest
// first at confirmed commitment. When until is set, the page stops at that
// signature; otherwise limit bounds the initial backfill depth.
func (c *Client) GetSignaturesForAddress(
	ctx context.Context,
	address, until string,
	limit int,
) ([]domain.SignatureInfo, error) {
	if limit <= 0 {
		limit = 1
	}
	cfg := map[string]any{
		"limit":      limit,
		"commitment": "confirmed",
	}
	if until != "" {
		cfg["until"] = until
	}

	result, err := c.Call(ctx, "getSignaturesForAddress", []any{address, cfg})
	if err != nil {
		return nil, err
	}

	var entries []signatureEntry
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, fmt.Errorf("decode signatures response: %w", err)
	}

	infos := make([]domain.SignatureInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, domain.SignatureInfo{
			Signature: e.Signature,
			Slot:      e.Slot,
			BlockTime: e.BlockTime,
		})
	}
	return infos, nil
}

// GetTransactionOutcome classifies a transaction by signature. A null result
// is TxNotFound, never a counted failure.
func (c *Client) GetTransactionOutcome(ctx context.Context, signature string) (TxOutcome, error) {
	result, err := c.Call(ctx, "getTransaction", []any{
		signature,
		map[string]any{
			"encoding":                       "json",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	})
	if err != nil {
		return TxNotFound, err
	}
	if len(result) == 0 || string(result) == "null" {
		return TxNotFound, nil
	}

	var tx transactionResult
	if err := json.Unmarshal(result, &tx); err != nil {
		return TxNotFound, fmt.Errorf("decode transaction response: %w", err)
	}

	if tx.Meta != nil && len(tx.Meta.Err) > 0 && string(tx.Meta.Err) != "null" {
		return TxFailure, nil
	}
	return TxSuccess, nil
}

// GetSlot returns the current slot at confirmed commitment.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	result, err := c.Call(ctx, "getSlot", []any{map[string]any{"commitment": "confirmed"}})
	if err != nil {
		return 0, err
	}

	var slot uint64
	if err := json.Unmarshal(result, &slot); err != nil {
		return 0, fmt.Errorf("decode slot response: %w", err)
	}
	return slot, nil
}

// GetBalance returns the lamport balance for the given address.
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	result, err := c.Call(ctx, "getBalance", []any{
		address,
		map[string]string{"commitment": "confirmed"},
	})
	if err != nil {
		return 0, err
	}

	var res balanceResult
	if err := json.Unmarshal(result, &res); err != nil {
		return 0, fmt.Errorf("decode balance response: %w", err)
	}
	return res.Value, nil
}

// GetHealth probes the node's getHealth RPC. A healthy node answers "ok";
// a lagging node answers with an rpc error carrying numSlotsBehind.
func (c *Client) GetHealth(ctx context.Context) (healthy bool, slotsBehind uint64, err error) {
	result, callErr := c.callOnce(ctx, "getHealth", nil)
	if callErr == nil {
		var status string
		if err := json.Unmarshal(result, &status); err == nil && status == "ok" {
			return true, 0, nil
		}
		return false, 0, nil
	}

	var rpcErr *rpcError
	if errors.As(callErr, &rpcErr) && len(rpcErr.Data) > 0 {
		var data healthErrorData
		if err := json.Unmarshal(rpcErr.Data, &data); err == nil {
			return false, data.NumSlotsBehind, nil
		}
		return false, 0, nil
	}
	return false, 0, callErr
}
