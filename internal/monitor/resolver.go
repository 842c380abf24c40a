package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-pool-watch/internal/domain"
	"solana-pool-watch/internal/solana"
)

// ErrNotYetAvailable means the transaction is not visible at the requested
// commitment yet. A normal race with notification delivery, not a failure.
var ErrNotYetAvailable = errors.New("transaction not yet available")

// resolveAttempts is the fixed fetch budget: one lookup plus one retry.
const resolveAttempts = 2

// DefaultResolveRetryDelay is the pause before the single retry.
const DefaultResolveRetryDelay = 150 * time.Millisecond

// Resolver fetches full transactions for notified signatures.
type Resolver struct {
	rpc        solana.RPCClient
	retryDelay time.Duration
	logger     *log.Logger
}

// ResolverOptions contains configuration for creating a Resolver.
type ResolverOptions struct {
	RPC        solana.RPCClient
	RetryDelay time.Duration // 0 means DefaultResolveRetryDelay
	Logger     *log.Logger
}

// NewResolver creates a transaction resolver.
func NewResolver(opts ResolverOptions) *Resolver {
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultResolveRetryDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		rpc:        opts.RPC,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Resolve fetches the transaction at the given commitment. A not-found
// response is retried exactly once after the retry delay; a second
// not-found yields ErrNotYetAvailable. Block time comes from the
// transaction when present, otherwise from a slot-to-time lookup.
func (r *Resolver) Resolve(ctx context.Context, signature string, commitment domain.Commitment) (*domain.ResolvedTransaction, error) {
	var tx *solana.Transaction

	for attempt := 0; attempt < resolveAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}

		fetched, err := r.rpc.GetTransaction(ctx, signature, commitment.String())
		if err != nil {
			return nil, fmt.Errorf("get transaction %s: %w", signature, err)
		}
		if fetched != nil {
			tx = fetched
			break
		}
	}

	if tx == nil {
		return nil, ErrNotYetAvailable
	}

	resolved := &domain.ResolvedTransaction{
		Signature:       signature,
		Slot:            tx.Slot,
		AccountsTouched: tx.AccountKeys(),
	}

	if tx.BlockTime > 0 {
		ms := tx.BlockTime * 1000
		resolved.BlockTimeMs = &ms
	} else if bt, err := r.rpc.GetBlockTime(ctx, tx.Slot); err != nil {
		// Missing block time degrades the record (no latency), nothing more.
		r.logger.Printf("[resolver] block time lookup for slot %d: %v", tx.Slot, err)
	} else if bt != nil {
		ms := *bt * 1000
		resolved.BlockTimeMs = &ms
	}

	if tx.Meta != nil {
		resolved.Err = tx.Meta.Err
		resolved.Logs = tx.Meta.LogMessages
		resolved.PreBalances = convertBalances(tx.Meta.PreTokenBalances)
		resolved.PostBalances = convertBalances(tx.Meta.PostTokenBalances)
	}

	return resolved, nil
}

func convertBalances(in []solana.TokenBalance) []domain.TokenBalance {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.TokenBalance, len(in))
	for i, b := range in {
		out[i] = domain.TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Amount:       b.Amount,
			Decimals:     b.Decimals,
		}
	}
	return out
}

// ClassifyError maps a resolution failure to a stable tag for the output
// record's error field.
func ClassifyError(err error) string {
	switch {
	case errors.Is(err, ErrNotYetAvailable):
		return "not_yet_available"
	case errors.Is(err, solana.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, solana.ErrGatewayTimeout):
		return "gateway_timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "rpc_error"
	}
}
