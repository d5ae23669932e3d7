package notifier

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// BellSink is the audible sink: it rings the terminal bell and prints a one-line alert.
type BellSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewBellSink creates an audible sink writing to w.
func NewBellSink(w io.Writer) *BellSink {
	return &BellSink{w: w}
}

func (s *BellSink) Name() string { return "bell" }

// Notify rings the terminal bell and prints the message on one line.
func (s *BellSink) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "\a[%s] %s\n", n.Key, n.Message); err != nil {
		return fmt.Errorf("write bell: %w", err)
	}
	return nil
}
