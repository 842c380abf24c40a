package clickhouse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-pool-watch/internal/domain"
	"solana-pool-watch/internal/sink/clickhouse"
)

func TestRecordStore_Append(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := clickhouse.NewRecordStore(conn)

	rec := &domain.OutputRecord{
		Venue:       "raydium",
		Signature:   "Sig1",
		Slot:        100,
		Pool:        ptr("Pool1"),
		Instruction: "swap",
		Swap: &domain.SwapData{
			TokenIn:   "MintX",
			TokenOut:  "MintY",
			AmountIn:  5,
			AmountOut: 10,
		},
		DetectedAtMs: 1000300,
		BlockTimeMs:  ptr(int64(1000000)),
		LatencyMs:    ptr(int64(300)),
	}

	require.NoError(t, store.Append(ctx, rec))

	var (
		venue, signature    string
		slot                int64
		poolAddr            *string
		tokenIn             *string
		amountIn, amountOut *float64
		latencyMs           *int64
	)
	row := conn.QueryRow(ctx, `
		SELECT venue, signature, slot, pool, token_in, amount_in, amount_out, latency_ms
		FROM output_records WHERE venue = ? AND signature = ?`,
		"raydium", "Sig1")
	require.NoError(t, row.Scan(&venue, &signature, &slot, &poolAddr, &tokenIn,
		&amountIn, &amountOut, &latencyMs))

	assert.Equal(t, "raydium", venue)
	assert.Equal(t, "Sig1", signature)
	assert.Equal(t, int64(100), slot)
	require.NotNil(t, poolAddr)
	assert.Equal(t, "Pool1", *poolAddr)
	require.NotNil(t, tokenIn)
	assert.Equal(t, "MintX", *tokenIn)
	require.NotNil(t, amountIn)
	assert.InDelta(t, 5.0, *amountIn, 0.0001)
	require.NotNil(t, amountOut)
	assert.InDelta(t, 10.0, *amountOut, 0.0001)
	require.NotNil(t, latencyMs)
	assert.Equal(t, int64(300), *latencyMs)
}

func TestRecordStore_AppendDegradedRecord(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := clickhouse.NewRecordStore(conn)

	rec := &domain.OutputRecord{
		Venue:        "raydium",
		Signature:    "FailedSig",
		Slot:         100,
		DetectedAtMs: 1000,
		ChainErr:     map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
		Note:         "failed transaction, not resolved",
	}

	require.NoError(t, store.Append(ctx, rec))

	var chainErr, note, tokenIn *string
	row := conn.QueryRow(ctx,
		`SELECT chain_err, note, token_in FROM output_records WHERE signature = ?`,
		"FailedSig")
	require.NoError(t, row.Scan(&chainErr, &note, &tokenIn))

	require.NotNil(t, chainErr)
	assert.Contains(t, *chainErr, "InstructionError")
	require.NotNil(t, note)
	assert.Equal(t, "failed transaction, not resolved", *note)
	assert.Nil(t, tokenIn)
}
