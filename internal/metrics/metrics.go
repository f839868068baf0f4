// Package metrics defines package-level Prometheus metric variables for the
// Minecraft status bot. Call Register() once at startup to expose them on the
// default registry, or RegisterWith() to use an isolated registry in tests.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// SamplesTotal counts completed status samples, labelled by result.
	// Valid results: online, failure.
	SamplesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcstatus_samples_total",
		Help: "Status samples taken, by result (online|failure).",
	}, []string{"result"})

	// SampleFailures counts failed samples, labelled by failure kind.
	// Valid kinds: resolve, connect, protocol.
	SampleFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcstatus_sample_failures_total",
		Help: "Failed status samples, by kind (resolve|connect|protocol).",
	}, []string{"kind"})

	// SampleDuration observes the wall time of one sample, successful or not.
	SampleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mcstatus_sample_duration_seconds",
		Help:    "Wall time of one Server List Ping round trip.",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// PlayersOnline is the online player count from the last successful sample.
	PlayersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mcstatus_players_online",
		Help: "Players online according to the last successful sample.",
	})

	// PlayersMax is the player limit from the last successful sample.
	PlayersMax = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mcstatus_players_max",
		Help: "Player limit according to the last successful sample.",
	})

	// PresenceUpdates counts updates handed to the sinks, labelled by status.
	PresenceUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcstatus_presence_updates_total",
		Help: "Presence updates produced, by status (online|unavailable).",
	}, []string{"status"})

	// PublishErrors counts failed sink publishes, labelled by sink name.
	PublishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcstatus_publish_errors_total",
		Help: "Presence publishes that failed, by sink.",
	}, []string{"sink"})
)

// Register registers all metrics with prometheus.DefaultRegisterer.
// Call once at process startup.
func Register() {
	RegisterWith(prometheus.DefaultRegisterer)
}

// RegisterWith registers all metrics with the given registerer.
// Use an isolated prometheus.NewRegistry() in tests to avoid conflicts.
func RegisterWith(reg prometheus.Registerer) {
	reg.MustRegister(
		SamplesTotal,
		SampleFailures,
		SampleDuration,
		PlayersOnline,
		PlayersMax,
		PresenceUpdates,
		PublishErrors,
	)
}
