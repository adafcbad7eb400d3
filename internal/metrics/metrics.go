// Package metrics exposes Prometheus counters for the publish cycle so
// skipped and rejected cycles are observable without scraping logs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bridge collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	mu  sync.Mutex
	srv *http.Server

	Polls           prometheus.Counter
	PollFailures    prometheus.Counter
	SamplesAccepted prometheus.Counter
	SamplesRejected prometheus.Counter
	Publishes       prometheus.Counter
	PublishFailures prometheus.Counter

	CPM      prometheus.Gauge
	DoseRate prometheus.Gauge
}

// New creates and registers all bridge collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gmcbridge_polls_total",
			Help: "Device polls attempted.",
		}),
		PollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gmcbridge_poll_failures_total",
			Help: "Device polls that failed or returned undecodable data.",
		}),
		SamplesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gmcbridge_samples_accepted_total",
			Help: "Readings that passed validation.",
		}),
		SamplesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gmcbridge_samples_rejected_total",
			Help: "Readings rejected by the validator.",
		}),
		Publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gmcbridge_publishes_total",
			Help: "Aggregate payloads published to the broker.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gmcbridge_publish_failures_total",
			Help: "Aggregate payloads that could not be published.",
		}),
		CPM: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gmcbridge_cpm",
			Help: "Latest accepted reading in counts per minute.",
		}),
		DoseRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gmcbridge_dose_rate_usvh",
			Help: "Latest accepted reading converted to microsieverts per hour.",
		}),
	}

	m.registry.MustRegister(
		m.Polls,
		m.PollFailures,
		m.SamplesAccepted,
		m.SamplesRejected,
		m.Publishes,
		m.PublishFailures,
		m.CPM,
		m.DoseRate,
	)

	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve blocks serving /metrics on addr until Shutdown is called. A
// shutdown-initiated return is not an error.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	m.mu.Lock()
	m.srv = srv
	m.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the metrics listener, draining in-flight scrapes. A nop
// when the endpoint was never started.
func (m *Metrics) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	srv := m.srv
	m.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
