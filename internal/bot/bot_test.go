package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9-FS/minecraft-server-status/internal/config"
	"github.com/9-FS/minecraft-server-status/internal/mcping/mcpingtest"
	"github.com/9-FS/minecraft-server-status/internal/presence"
	"github.com/9-FS/minecraft-server-status/internal/sampler"
	"github.com/9-FS/minecraft-server-status/internal/sink"
	"github.com/9-FS/minecraft-server-status/internal/target"
)

// gatedSink becomes ready only when the test calls release.
type gatedSink struct {
	name      string
	openErr   error
	healthErr error

	ready   chan struct{}
	release func()

	mu        sync.Mutex
	published []presence.Update
	opens     atomic.Int32
	closes    atomic.Int32
}

func newGatedSink(name string) *gatedSink {
	s := &gatedSink{name: name, ready: make(chan struct{})}
	var once sync.Once
	s.release = func() { once.Do(func() { close(s.ready) }) }
	return s
}

func (s *gatedSink) Name() string { return s.name }
func (s *gatedSink) Open(_ context.Context) error {
	s.opens.Add(1)
	return s.openErr
}
func (s *gatedSink) Ready() <-chan struct{} { return s.ready }
func (s *gatedSink) Publish(_ context.Context, u presence.Update) error {
	s.mu.Lock()
	s.published = append(s.published, u)
	s.mu.Unlock()
	return nil
}
func (s *gatedSink) Healthy(_ context.Context) error { return s.healthErr }
func (s *gatedSink) Close() error {
	s.closes.Add(1)
	return nil
}
func (s *gatedSink) Published() []presence.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]presence.Update(nil), s.published...)
}

var _ sink.Sink = (*gatedSink)(nil)

type fixedSampler struct{ out sampler.Outcome }

func (f fixedSampler) Sample(context.Context, target.Target) sampler.Outcome { return f.out }

func baseConfig() *config.Config {
	return &config.Config{
		ServerHost:      "play.example.com",
		RefreshInterval: 20 * time.Millisecond,
		SampleTimeout:   time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
		MetricsAddr:     "",
	}
}

func TestNew_RejectsBadInterval(t *testing.T) {
	cfg := baseConfig()
	cfg.RefreshInterval = 0
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestNew_BuildsTarget(t *testing.T) {
	cfg := baseConfig()
	cfg.ServerHost = "203.0.113.7"
	cfg.ServerPort = 25566

	b, err := New(cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	assert.True(t, b.Target().IsIP())
	assert.Equal(t, "203.0.113.7:25566", b.Target().DisplayAddress())
	assert.Nil(t, b.httpSrv)
}

func TestNew_MetricsHandlers(t *testing.T) {
	cfg := baseConfig()
	cfg.MetricsAddr = "127.0.0.1:9090"
	s := newGatedSink("gated")

	b, err := New(cfg, []sink.Sink{s}, WithSampler(fixedSampler{sampler.Online(1, 10, "amy")}))
	require.NoError(t, err)
	defer b.Close()
	require.NotNil(t, b.httpSrv)

	serve := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		b.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, serve("/healthz").Code)
	assert.Equal(t, http.StatusOK, serve("/metrics").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve("/readyz").Code, "monitor not started yet")
	assert.Equal(t, http.StatusNotFound, serve("/nope").Code)
}

func TestRun_WaitsForReadyBeforeMonitoring(t *testing.T) {
	s := newGatedSink("gated")
	b, err := New(baseConfig(), []sink.Sink{s}, WithSampler(fixedSampler{sampler.Online(3, 20, "Zed", "amy")}))
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return s.opens.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, s.Published(), "published before ready")
	assert.Error(t, b.Healthy(context.Background()))

	s.release()
	require.Eventually(t, func() bool { return len(s.Published()) >= 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, presence.Update{Status: presence.Online, Text: "3/20; play.example.com: amy,Zed"}, s.Published()[0])
	assert.NoError(t, b.Healthy(context.Background()))

	cancel()
	require.NoError(t, <-errCh)
}

func TestRun_CancelBeforeReady(t *testing.T) {
	s := newGatedSink("never")
	b, err := New(baseConfig(), []sink.Sink{s}, WithSampler(fixedSampler{sampler.Online(0, 1)}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, b.Run(ctx))
	assert.Empty(t, s.Published())

	b.Close()
	assert.EqualValues(t, 1, s.closes.Load())
}

func TestRun_OpenErrorClosesOnlyOpenedSinks(t *testing.T) {
	good := newGatedSink("good")
	bad := newGatedSink("bad")
	bad.openErr = errors.New("invalid token")
	never := newGatedSink("never")

	b, err := New(baseConfig(), []sink.Sink{good, bad, never}, WithSampler(fixedSampler{sampler.Online(0, 1)}))
	require.NoError(t, err)

	err = b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open sink bad")
	assert.Contains(t, err.Error(), "invalid token")
	assert.EqualValues(t, 0, never.opens.Load())

	b.Close()
	assert.EqualValues(t, 1, good.closes.Load())
	assert.EqualValues(t, 0, bad.closes.Load())
	assert.EqualValues(t, 0, never.closes.Load())
}

func TestRun_RejectsSecondRun(t *testing.T) {
	s := newGatedSink("gated")
	b, err := New(baseConfig(), []sink.Sink{s}, WithSampler(fixedSampler{sampler.Online(0, 1)}))
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx) }()
	require.Eventually(t, func() bool { return s.opens.Load() == 1 }, time.Second, time.Millisecond)

	assert.Error(t, b.Run(ctx))
	cancel()
	require.NoError(t, <-errCh)
}

func TestHealthy_ReportsSinkError(t *testing.T) {
	s := newGatedSink("flaky")
	s.healthErr = errors.New("gateway not connected")
	s.release()
	b, err := New(baseConfig(), []sink.Sink{s}, WithSampler(fixedSampler{sampler.Online(0, 1)}))
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx) }()
	require.Eventually(t, func() bool { return len(s.Published()) >= 1 }, time.Second, time.Millisecond)

	err = b.Healthy(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink flaky")

	cancel()
	require.NoError(t, <-errCh)
}

// TestRun_EndToEndWithFakeServer drives the real sampler against the
// in-process Server List Ping responder.
func TestRun_EndToEndWithFakeServer(t *testing.T) {
	srv, err := mcpingtest.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()
	srv.SetStatus(mcpingtest.Players(2, 8, "bob", "Alice"))

	cfg := baseConfig()
	cfg.ServerHost = srv.Host()
	cfg.ServerPort = int(srv.Port())

	s := newGatedSink("gated")
	s.release()
	b, err := New(cfg, []sink.Sink{s})
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx) }()

	require.Eventually(t, func() bool { return len(s.Published()) >= 1 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, presence.Update{
		Status: presence.Online,
		Text:   "2/8; " + srv.Addr() + ": Alice,bob",
	}, s.Published()[0])

	srv.SetBehavior(mcpingtest.HangUp)
	require.Eventually(t, func() bool {
		p := s.Published()
		return p[len(p)-1].Status == presence.Unavailable
	}, 3*time.Second, 5*time.Millisecond)
	p := s.Published()
	assert.Equal(t, "offline; IP: "+srv.Addr(), p[len(p)-1].Text)

	cancel()
	require.NoError(t, <-errCh)
}
