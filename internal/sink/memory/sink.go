// Package memory provides an in-memory sink for tests.
package memory

import (
	"context"
	"sync"

	"solana-pool-watch/internal/domain"
	"solana-pool-watch/internal/sink"
)

// Sink collects records in memory.
type Sink struct {
	mu      sync.Mutex
	records []*domain.OutputRecord
	closed  bool
}

// NewSink creates an empty in-memory sink.
func NewSink() *Sink {
	return &Sink{}
}

var _ sink.Sink = (*Sink)(nil)

// Append stores a copy of the record.
func (s *Sink) Append(_ context.Context, rec *domain.OutputRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return sink.ErrClosed
	}
	clone := *rec
	s.records = append(s.records, &clone)
	return nil
}

// Close marks the sink closed.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Records returns a snapshot of everything appended so far.
func (s *Sink) Records() []*domain.OutputRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.OutputRecord, len(s.records))
	copy(out, s.records)
	return out
}
