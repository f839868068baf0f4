// Package monitor drives the sample, format and publish cycle on a fixed
// interval until its context is cancelled.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/9-FS/minecraft-server-status/internal/metrics"
	"github.com/9-FS/minecraft-server-status/internal/presence"
	"github.com/9-FS/minecraft-server-status/internal/sampler"
	"github.com/9-FS/minecraft-server-status/internal/sink"
	"github.com/9-FS/minecraft-server-status/internal/target"
)

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("monitor: already running")

// Monitor republishes the target's presence every interval.
type Monitor struct {
	target   target.Target
	interval time.Duration
	sampler  sampler.Sampler
	sinks    []sink.Sink

	running atomic.Bool
	started atomic.Bool

	// previous is only touched by the loop goroutine.
	previous *presence.Update
}

// New validates the arguments and returns an idle Monitor.
func New(t target.Target, interval time.Duration, s sampler.Sampler, sinks ...sink.Sink) (*Monitor, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("monitor: interval must be positive, got %s", interval)
	}
	if s == nil {
		return nil, errors.New("monitor: sampler is nil")
	}
	return &Monitor{target: t, interval: interval, sampler: s, sinks: sinks}, nil
}

// Start launches Run on its own goroutine. The returned channel is closed
// when the loop has exited.
func (m *Monitor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Run(ctx); err != nil {
			log.Error().Err(err).Msg("monitor stopped")
		}
	}()
	return done
}

// Started reports whether the loop has begun its first iteration.
func (m *Monitor) Started() bool { return m.started.Load() }

// Run executes the first iteration immediately and then waits exactly
// interval after each publish. It returns nil when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	log.Info().
		Str("target", m.target.DisplayAddress()).
		Dur("interval", m.interval).
		Int("sinks", len(m.sinks)).
		Msg("monitor started")

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		if ctx.Err() != nil {
			log.Info().Msg("monitor stopped")
			return nil
		}

		m.iterate(ctx)
		timer.Reset(m.interval)
	}
}

// iterate performs one sample and, unless ctx was cancelled meanwhile,
// publishes the formatted update to every sink in order.
func (m *Monitor) iterate(ctx context.Context) {
	m.started.Store(true)

	out := m.sampler.Sample(ctx, m.target)
	if ctx.Err() != nil {
		return
	}
	if !out.IsOnline() {
		log.Error().
			Str("target", m.target.DisplayAddress()).
			Str("kind", string(out.Failure.Kind)).
			Str("reason", out.Reason()).
			Msg("sample failed")
	}

	u := presence.Format(m.target, out)
	metrics.PresenceUpdates.WithLabelValues(u.Status.String()).Inc()

	ev := log.Info().Str("status", u.Status.String()).Str("text", u.Text)
	if m.previous != nil {
		ev = ev.Str("prev_status", m.previous.Status.String()).Str("prev_text", m.previous.Text)
	}
	ev.Msg("applying presence")

	for _, s := range m.sinks {
		if err := s.Publish(ctx, u); err != nil {
			metrics.PublishErrors.WithLabelValues(s.Name()).Inc()
			log.Error().Err(err).Str("sink", s.Name()).Msg("publish failed")
		}
	}

	log.Info().Str("status", u.Status.String()).Str("text", u.Text).Msg("applied presence")
	m.previous = &u
}
