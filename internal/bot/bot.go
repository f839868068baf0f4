// Package bot implements the runtime that opens the presence sinks, waits for
// them to become ready and then drives the monitor loop.
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/9-FS/minecraft-server-status/internal/config"
	"github.com/9-FS/minecraft-server-status/internal/monitor"
	"github.com/9-FS/minecraft-server-status/internal/sampler"
	"github.com/9-FS/minecraft-server-status/internal/sink"
	"github.com/9-FS/minecraft-server-status/internal/target"
)

// Option customises a Bot.
type Option func(*Bot)

// WithSampler replaces the Server List Ping sampler.
func WithSampler(s sampler.Sampler) Option {
	return func(b *Bot) { b.sampler = s }
}

// Bot connects the configured Minecraft server to one or more sinks.
type Bot struct {
	cfg     *config.Config
	target  target.Target
	sinks   []sink.Sink
	sampler sampler.Sampler
	monitor *monitor.Monitor
	httpSrv *http.Server // nil when MetricsAddr == ""

	running atomic.Bool

	mu     sync.Mutex
	opened []sink.Sink
}

// New creates a Bot and initialises all dependencies. Nothing is connected
// until Run.
func New(cfg *config.Config, sinks []sink.Sink, opts ...Option) (*Bot, error) {
	b := &Bot{
		cfg:    cfg,
		target: target.New(cfg.ServerHost, cfg.Port()),
		sinks:  sinks,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.sampler == nil {
		b.sampler = sampler.New(cfg.SampleTimeout, cfg.SRVLookup)
	}

	m, err := monitor.New(b.target, cfg.RefreshInterval, b.sampler, sinks...)
	if err != nil {
		return nil, err
	}
	b.monitor = m

	if cfg.MetricsAddr != "" {
		b.httpSrv = &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      b.router(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		}
	}

	return b, nil
}

func (b *Bot) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := b.Healthy(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Target returns the monitored address.
func (b *Bot) Target() target.Target { return b.target }

// Run opens every sink, waits until all of them are ready and runs the
// monitor until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return errors.New("bot: already running")
	}

	// Start metrics / health HTTP server.
	if b.httpSrv != nil {
		go func() {
			log.Info().Str("addr", b.cfg.MetricsAddr).Msg("metrics server listening")
			if err := b.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	if b.target.IsPrivate() {
		log.Warn().
			Str("target", b.target.DisplayAddress()).
			Msg("target is a private address, players outside this network cannot join it")
	}

	for _, s := range b.sinks {
		if err := s.Open(ctx); err != nil {
			return fmt.Errorf("open sink %s: %w", s.Name(), err)
		}
		b.mu.Lock()
		b.opened = append(b.opened, s)
		b.mu.Unlock()
	}

	for _, s := range b.sinks {
		log.Debug().Str("sink", s.Name()).Msg("waiting for sink")
		select {
		case <-ctx.Done():
			log.Info().Msg("bot stopped before sinks were ready")
			return nil
		case <-s.Ready():
		}
	}

	log.Info().
		Str("target", b.target.DisplayAddress()).
		Bool("ip", b.target.IsIP()).
		Str("interval", b.cfg.RefreshInterval.String()).
		Str("sample_timeout", b.cfg.SampleTimeout.String()).
		Bool("srv_lookup", b.cfg.SRVLookup).
		Str("log_level", b.cfg.LogLevel).
		Msg("bot started")

	<-b.monitor.Start(ctx)
	log.Info().Msg("bot stopped")
	return nil
}

// Healthy reports whether the monitor is running and every sink is connected.
func (b *Bot) Healthy(ctx context.Context) error {
	if !b.monitor.Started() {
		return errors.New("monitor not started")
	}
	for _, s := range b.sinks {
		if err := s.Healthy(ctx); err != nil {
			return fmt.Errorf("sink %s: %w", s.Name(), err)
		}
	}
	return nil
}

// Close performs graceful shutdown.
func (b *Bot) Close() {
	if b.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.httpSrv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("metrics server shutdown error")
		}
	}
	b.mu.Lock()
	opened := b.opened
	b.opened = nil
	b.mu.Unlock()
	for _, s := range opened {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Msg("sink close failed")
		}
	}
}
