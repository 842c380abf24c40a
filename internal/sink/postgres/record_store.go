package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"solana-pool-watch/internal/domain"
	"solana-pool-watch/internal/sink"
)

// RecordStore implements sink.Sink using PostgreSQL. The unique
// (venue, signature) constraint backs the append-only contract at the
// database level.
type RecordStore struct {
	pool *Pool
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(pool *Pool) *RecordStore {
	return &RecordStore{pool: pool}
}

// Compile-time interface check.
var _ sink.Sink = (*RecordStore)(nil)

// Append inserts one output record. Returns sink.ErrDuplicateKey when
// (venue, signature) already exists.
func (s *RecordStore) Append(ctx context.Context, rec *domain.OutputRecord) error {
	query := `
		INSERT INTO output_records (
			venue, signature, slot, pool, instruction,
			token_in, token_out, amount_in, amount_out,
			detected_at_ms, block_time_ms, latency_ms,
			chain_err, error, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	var tokenIn, tokenOut *string
	var amountIn, amountOut *float64
	if rec.Swap != nil {
		if rec.Swap.TokenIn != "" {
			tokenIn = &rec.Swap.TokenIn
			amountIn = &rec.Swap.AmountIn
		}
		if rec.Swap.TokenOut != "" {
			tokenOut = &rec.Swap.TokenOut
			amountOut = &rec.Swap.AmountOut
		}
	}

	_, err := s.pool.Exec(ctx, query,
		rec.Venue,
		rec.Signature,
		rec.Slot,
		rec.Pool,
		nullable(rec.Instruction),
		tokenIn,
		tokenOut,
		amountIn,
		amountOut,
		rec.DetectedAtMs,
		rec.BlockTimeMs,
		rec.LatencyMs,
		chainErrJSON(rec.ChainErr),
		nullable(rec.Error),
		nullable(rec.Note),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return sink.ErrDuplicateKey
		}
		return fmt.Errorf("insert output record: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *RecordStore) Close() error {
	return nil
}

// nullable maps "" to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// chainErrJSON serializes the chain-level error indicator, which has no
// fixed shape, into a JSON text column.
func chainErrJSON(chainErr interface{}) *string {
	if chainErr == nil {
		return nil
	}
	data, err := json.Marshal(chainErr)
	if err != nil {
		fallback := fmt.Sprintf("%v", chainErr)
		return &fallback
	}
	s := string(data)
	return &s
}
