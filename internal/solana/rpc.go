package solana

import (
	"context"
	"errors"
)

// RPCClient defines the read-capable Solana connection used for resolution.
// Safe for concurrent use.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature at the given
	// commitment. Returns (nil, nil) when the transaction is not yet
	// visible at that commitment.
	GetTransaction(ctx context.Context, signature string, commitment string) (*Transaction, error)

	// GetBlockTime retrieves the estimated production time of a slot
	// in Unix seconds. Returns (nil, nil) when unknown.
	GetBlockTime(ctx context.Context, slot int64) (*int64, error)
}

// Classified network failures. The RPC client wraps the last failure with
// one of these so callers can report a stable error tag instead of a raw
// transport error.
var (
	// ErrRateLimited indicates the endpoint returned HTTP 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrGatewayTimeout indicates an upstream gateway timeout (502/504).
	ErrGatewayTimeout = errors.New("gateway timeout")
)
