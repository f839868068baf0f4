// Package console writes presence updates to a stream. It backs the dry-run
// mode, where no Discord session is opened.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/9-FS/minecraft-server-status/internal/presence"
	"github.com/9-FS/minecraft-server-status/internal/sink"
)

// Sink prints one "<status>\t<text>" line per update.
type Sink struct {
	mu    sync.Mutex
	w     io.Writer
	once  sync.Once
	ready chan struct{}
}

// Compile-time interface check.
var _ sink.Sink = (*Sink)(nil)

func New(w io.Writer) *Sink {
	return &Sink{w: w, ready: make(chan struct{})}
}

func (s *Sink) Name() string { return "console" }

// Open marks the sink ready; there is nothing to connect to.
func (s *Sink) Open(_ context.Context) error {
	s.once.Do(func() { close(s.ready) })
	return nil
}

func (s *Sink) Ready() <-chan struct{} { return s.ready }

func (s *Sink) Publish(_ context.Context, u presence.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "%s\t%s\n", u.Status, u.Text); err != nil {
		return fmt.Errorf("console: write: %w", err)
	}
	return nil
}

func (s *Sink) Healthy(_ context.Context) error { return nil }

func (s *Sink) Close() error { return nil }
