// Package metrics exposes the node's counters to Prometheus.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pointdag"

// Metrics holds the collectors of a node. Every node has its own registry,
// so several nodes can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	currentRound      prometheus.Gauge
	committedAnchors  prometheus.Counter
	committedPoints   prometheus.Counter
	validatedPoints   *prometheus.CounterVec
	droppedBroadcasts prometheus.Counter
	tryLaterServed    *prometheus.CounterVec

	server   *http.Server
	listener net.Listener
}

// New creates the collectors and registers them together with the Go
// runtime and process collectors.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		currentRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_round",
			Help:      "The round the node is currently building a point for.",
		}),
		committedAnchors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "committed_anchors_total",
			Help:      "The number of committed anchors.",
		}),
		committedPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "committed_points_total",
			Help:      "The number of payload bearing points committed in anchor histories.",
		}),
		validatedPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validated_points_total",
			Help:      "The number of validated points by result.",
		}, []string{"status"}),
		droppedBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_broadcasts_total",
			Help:      "The number of received broadcasts dropped because the intake queue was full.",
		}),
		tryLaterServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "try_later_served_total",
			Help:      "The number of tryLater responses sent by query kind.",
		}, []string{"query"}),
	}

	toRegister := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.currentRound,
		m.committedAnchors,
		m.committedPoints,
		m.validatedPoints,
		m.droppedBroadcasts,
		m.tryLaterServed,
	}
	for _, collector := range toRegister {
		err := m.registry.Register(collector)
		if err != nil {
			return nil, errors.Wrap(err, "failed to register a metrics collector")
		}
	}
	return m, nil
}

// SetCurrentRound records the current round.
func (m *Metrics) SetCurrentRound(round externalapi.Round) {
	m.currentRound.Set(float64(round))
}

// AddCommittedAnchor records a committed anchor and the size of its history.
func (m *Metrics) AddCommittedAnchor(anchor *externalapi.CommittedAnchor) {
	m.committedAnchors.Inc()
	m.committedPoints.Add(float64(len(anchor.History)))
}

// AddValidatedPoint records the result of a point validation.
func (m *Metrics) AddValidatedPoint(status string) {
	m.validatedPoints.WithLabelValues(status).Inc()
}

// AddDroppedBroadcast records a broadcast dropped on a full intake queue.
func (m *Metrics) AddDroppedBroadcast() {
	m.droppedBroadcasts.Inc()
}

// AddTryLaterServed records a tryLater response to a query of the given kind.
func (m *Metrics) AddTryLaterServed(query string) {
	m.tryLaterServed.WithLabelValues(query).Inc()
}

// Handler returns the HTTP handler exposing the collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Start serves the collectors over HTTP on listenAddress.
func (m *Metrics) Start(listenAddress string) error {
	listener, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return errors.Wrapf(err, "error listening on %s", listenAddress)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.listener = listener
	m.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	spawn("Metrics.Start-Serve", func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Error serving metrics on %s: %s", listenAddress, err)
		}
	})
	log.Infof("Metrics server listening on %s", listener.Addr())
	return nil
}

// Address returns the address metrics are served on, or an empty string
// if the server was not started.
func (m *Metrics) Address() string {
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Stop shuts the HTTP server down.
func (m *Metrics) Stop() error {
	if m.server == nil {
		return nil
	}
	const stopTimeout = 2 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return m.server.Shutdown(ctx)
}
