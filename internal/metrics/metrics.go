// Package metrics exposes game counters to Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shakegame"

type Metrics struct {
	registry *prometheus.Registry

	samples           prometheus.Counter
	shakes            *prometheus.CounterVec
	gamesStarted      prometheus.Counter
	gamesFinished     prometheus.Counter
	finalScore        prometheus.Histogram
	rankingErrors     prometheus.Counter
	sensorUnavailable prometheus.Counter
	sensorDropped     prometheus.Counter
	activeSessions    prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		samples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_samples_total",
			Help:      "Accelerometer samples processed while playing.",
		}),
		shakes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shakes_total",
			Help:      "Accepted shake pulses by feedback tier.",
		}, []string{"tier"}),
		gamesStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Games that entered the countdown.",
		}),
		gamesFinished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Games that ran to the end and were recorded.",
		}),
		finalScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "final_score",
			Help:      "Shake count at the end of a game.",
			Buckets:   prometheus.LinearBuckets(0, 10, 10),
		}),
		rankingErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_errors_total",
			Help:      "Failures reading or writing the ranking store.",
		}),
		sensorUnavailable: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_unavailable_total",
			Help:      "Games that started playing without a sensor attached.",
		}),
		sensorDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_dropped_total",
			Help:      "Samples discarded because a session fell behind the device.",
		}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Connected game sessions.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Sample() {
	if m == nil {
		return
	}
	m.samples.Inc()
}

func (m *Metrics) Shake(tier string) {
	if m == nil {
		return
	}
	m.shakes.WithLabelValues(tier).Inc()
}

func (m *Metrics) GameStarted() {
	if m == nil {
		return
	}
	m.gamesStarted.Inc()
}

func (m *Metrics) GameFinished(score int) {
	if m == nil {
		return
	}
	m.gamesFinished.Inc()
	m.finalScore.Observe(float64(score))
}

func (m *Metrics) RankingError() {
	if m == nil {
		return
	}
	m.rankingErrors.Inc()
}

func (m *Metrics) SensorUnavailable() {
	if m == nil {
		return
	}
	m.sensorUnavailable.Inc()
}

func (m *Metrics) SensorDropped() {
	if m == nil {
		return
	}
	m.sensorDropped.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
