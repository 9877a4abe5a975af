package sink

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
)

// Stdout writes one message per line to an io.Writer (default os.Stdout).
// Sessions share it, so writes are serialised.
type Stdout struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{w: bufio.NewWriter(w)}
}

func (s *Stdout) Send(_ context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(msg); err != nil {
		return err
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *Stdout) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}
