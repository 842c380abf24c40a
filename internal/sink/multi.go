package sink

import (
	"context"
	"errors"

	"solana-pool-watch/internal/domain"
)

// MultiSink fans one record out to several sinks. Every sink is attempted
// even after a failure; the first error is returned.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks. A single sink is returned unwrapped.
func NewMultiSink(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &MultiSink{sinks: sinks}
}

var _ Sink = (*MultiSink)(nil)

// Append writes the record to every sink. A duplicate rejection from one
// backend does not suppress writes to the others.
func (m *MultiSink) Append(ctx context.Context, rec *domain.OutputRecord) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Append(ctx, rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes all sinks, returning the first error.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
