// Package sampler takes one status sample of a Minecraft server and reduces
// every possible result to an Outcome. A sample never returns an error and
// never panics out to the caller: failures are classified and carried inside
// the Outcome.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/9-FS/minecraft-server-status/internal/mcping"
	"github.com/9-FS/minecraft-server-status/internal/metrics"
	"github.com/9-FS/minecraft-server-status/internal/target"
)

// FailureKind classifies why a sample failed. It is used for logs and
// metric labels only; the presence text never shows it.
type FailureKind string

const (
	KindResolve  FailureKind = "resolve"
	KindConnect  FailureKind = "connect"
	KindProtocol FailureKind = "protocol"
)

// Failure describes a sample that produced no status.
type Failure struct {
	Kind FailureKind
	Err  error
}

// Outcome is the result of one sample. Failure is nil when the server
// answered; the remaining fields are only meaningful in that case.
type Outcome struct {
	PlayersOnline int
	PlayersMax    int
	// SampleNames may be shorter than PlayersOnline or empty.
	SampleNames []string
	Version     string
	MOTD        string
	Latency     time.Duration

	Failure *Failure
}

// Online builds a successful Outcome.
func Online(online, maxPlayers int, names ...string) Outcome {
	return Outcome{PlayersOnline: online, PlayersMax: maxPlayers, SampleNames: names}
}

// Failed builds a failed Outcome.
func Failed(kind FailureKind, err error) Outcome {
	return Outcome{Failure: &Failure{Kind: kind, Err: err}}
}

// IsOnline reports whether the server answered.
func (o Outcome) IsOnline() bool { return o.Failure == nil }

// Reason returns the raw failure reason, or "" for an online outcome.
func (o Outcome) Reason() string {
	if o.Failure == nil || o.Failure.Err == nil {
		return ""
	}
	return o.Failure.Err.Error()
}

// Sampler performs one status round trip against a target.
type Sampler interface {
	Sample(ctx context.Context, t target.Target) Outcome
}

// Pinger is the subset of *mcping.Client used by SLP.
type Pinger interface {
	Status(ctx context.Context, host string, port uint16) (*mcping.Response, error)
}

// SLP samples a server with the Server List Ping protocol.
type SLP struct {
	pinger Pinger
}

// Compile-time interface check.
var _ Sampler = (*SLP)(nil)

// New returns an SLP sampler. timeout bounds the whole round trip; srvLookup
// enables _minecraft._tcp SRV resolution for domain targets without a port.
func New(timeout time.Duration, srvLookup bool) *SLP {
	return &SLP{pinger: &mcping.Client{Timeout: timeout, SRVLookup: srvLookup}}
}

// NewWithPinger returns an SLP sampler backed by p. Used by tests.
func NewWithPinger(p Pinger) *SLP {
	return &SLP{pinger: p}
}

// Sample performs exactly one status request. There are no retries.
func (s *SLP) Sample(ctx context.Context, t target.Target) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Failed(KindProtocol, fmt.Errorf("sampler: panic during status request: %v", r))
		}
		observe(out, time.Since(start))
	}()

	port, _ := t.Port()
	resp, err := s.pinger.Status(ctx, t.Host(), port)
	if err != nil {
		return Failed(Classify(err), err)
	}

	out = Outcome{
		PlayersOnline: resp.Players.Online,
		PlayersMax:    resp.Players.Max,
		SampleNames:   make([]string, 0, len(resp.Players.Sample)),
		Version:       resp.Version.Name,
		MOTD:          resp.MOTD(),
		Latency:       resp.Latency,
	}
	for _, p := range resp.Players.Sample {
		out.SampleNames = append(out.SampleNames, p.Name)
	}

	log.Debug().
		Str("target", t.DisplayAddress()).
		Int("online", out.PlayersOnline).
		Int("max", out.PlayersMax).
		Str("version", out.Version).
		Str("motd", out.MOTD).
		Dur("latency", out.Latency).
		Msg("sampled server")
	return out
}

// Classify maps a status error onto a FailureKind. DNS failures anywhere in
// the chain are resolve errors, malformed replies are protocol errors and
// everything else (refused, reset, timeout, cancelled) is a connect error.
func Classify(err error) FailureKind {
	if errors.Is(err, mcping.ErrProtocol) {
		return KindProtocol
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindResolve
	}
	return KindConnect
}

func observe(o Outcome, elapsed time.Duration) {
	metrics.SampleDuration.Observe(elapsed.Seconds())
	if o.Failure != nil {
		metrics.SamplesTotal.WithLabelValues("failure").Inc()
		metrics.SampleFailures.WithLabelValues(string(o.Failure.Kind)).Inc()
		return
	}
	metrics.SamplesTotal.WithLabelValues("online").Inc()
	metrics.PlayersOnline.Set(float64(o.PlayersOnline))
	metrics.PlayersMax.Set(float64(o.PlayersMax))
}
