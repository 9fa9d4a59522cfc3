// Package notify delivers short, fire-and-forget user notifications.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Log emits notifications as structured log records.
type Log struct {
	Logger *slog.Logger
}

func (n Log) Notify(ctx context.Context, message string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification", "message", message)
}

// Writer prints one line per notification.
type Writer struct {
	mu sync.Mutex
	W  io.Writer
}

// NewWriter returns a Writer that prints to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{W: w}
}

func (n *Writer) Notify(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintln(n.W, message)
}
