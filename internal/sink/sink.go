package sink

import (
	"context"

	"github.com/9-FS/minecraft-server-status/internal/presence"
)

// Sink receives presence updates and shows them on an external display.
type Sink interface {
	// Name returns the sink identifier for logging and metric labels.
	Name() string

	// Open connects to the external service. Readiness is signalled later
	// through Ready.
	Open(ctx context.Context) error

	// Ready is closed once the sink can accept updates. It is closed at most
	// once for the lifetime of the sink.
	Ready() <-chan struct{}

	// Publish shows a single update.
	Publish(ctx context.Context, u presence.Update) error

	// Healthy returns nil if the sink is connected to its upstream.
	Healthy(ctx context.Context) error

	// Close performs graceful shutdown.
	Close() error
}
