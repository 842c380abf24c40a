package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"solana-pool-watch/internal/domain"
)

// JSONLSink appends records as newline-delimited JSON to a file. Records
// are flushed per append so external tooling can tail the file.
type JSONLSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	closed bool
}

// NewJSONLSink opens (or creates) the output file in append mode.
func NewJSONLSink(path string) (*JSONLSink, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file: %w", err)
	}

	return &JSONLSink{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

var _ Sink = (*JSONLSink)(nil)

// Append writes one record as a single JSON line.
func (s *JSONLSink) Append(_ context.Context, rec *domain.OutputRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, err := s.writer.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close flushes buffered output and closes the file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writer.Flush(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	return s.file.Close()
}
