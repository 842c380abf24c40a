package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"solana-pool-watch/internal/domain"
	"solana-pool-watch/internal/sink"
)

// RecordStore implements sink.Sink using ClickHouse. The table is a
// ReplacingMergeTree keyed on (venue, signature), so a duplicate insert is
// absorbed at merge time rather than rejected. The in-process dedup tracker
// is still the primary guard.
type RecordStore struct {
	conn *Conn
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(conn *Conn) *RecordStore {
	return &RecordStore{conn: conn}
}

// Compile-time interface check.
var _ sink.Sink = (*RecordStore)(nil)

// Append inserts one output record.
func (s *RecordStore) Append(ctx context.Context, rec *domain.OutputRecord) error {
	query := `
		INSERT INTO output_records (
			venue, signature, slot, pool, instruction,
			token_in, token_out, amount_in, amount_out,
			detected_at_ms, block_time_ms, latency_ms,
			chain_err, error, note
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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

	err := s.conn.Exec(ctx, query,
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
		return fmt.Errorf("insert output record: %w", err)
	}
	return nil
}

// Close is a no-op; the connection is owned by the caller.
func (s *RecordStore) Close() error {
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

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
