// Package sink defines the append-only output contract and its file,
// memory and database implementations.
package sink

import (
	"context"
	"errors"

	"solana-pool-watch/internal/domain"
)

// Sink is the append-only record writer. One Append is one self-contained
// record; the pipeline never reads records back, updates or deletes them.
// Implementations must serialize concurrent appends.
type Sink interface {
	Append(ctx context.Context, rec *domain.OutputRecord) error
	Close() error
}

// Sink errors.
var (
	// ErrClosed is returned by Append after Close.
	ErrClosed = errors.New("sink closed")

	// ErrDuplicateKey is returned when a backend with a uniqueness
	// constraint rejects a record that already exists.
	ErrDuplicateKey = errors.New("duplicate key: record already written")
)
