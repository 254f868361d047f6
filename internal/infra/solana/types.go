package solana

import (
	"encoding/json"
	"fmt"
)

// TxOutcome is the result of looking up a transaction by signature.
type TxOutcome int

const (
	// TxNotFound means the RPC has no record of the signature yet. It is
	// not a counted failure; the caller retries next round.
	TxNotFound TxOutcome = iota
	TxSuccess
	TxFailure
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error (%d): %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type signatureEntry struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Err       any    `json:"err"`
}

type balanceResult struct {
	Value uint64 `json:"value"`
}

type transactionResult struct {
	Slot uint64 `json:"slot"`
	Meta *struct {
		Err json.RawMessage `json:"err"`
	} `json:"meta"`
}

type healthErrorData struct {
	NumSlotsBehind uint64 `json:"numSlotsBehind"`
}
