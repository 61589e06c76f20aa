// Package metrics holds the Prometheus instruments of a hive node. They are
// registered on a private registry so that several nodes can live in one
// process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hive"

// Gossip message results
const (
	GossipPublished = "published"
	GossipDelivered = "delivered"
	GossipDuplicate = "duplicate"
	GossipRejected  = "rejected"
)

// Metrics groups the instruments updated by the node loop.
type Metrics struct {
	registry *prometheus.Registry

	MessagesReceived *prometheus.CounterVec
	DedupDropped     prometheus.Counter
	DedupEvictions   prometheus.Counter
	GossipMessages   *prometheus.CounterVec

	ElectionsStarted prometheus.Counter
	ElectionsWon     prometheus.Counter
	Term             prometheus.Gauge
	Role             prometheus.Gauge
	CommitIndex      prometheus.Gauge

	ConnectedPeers prometheus.Gauge
	DialFailures   prometheus.Counter
}

// NewMetrics creates the instruments and registers them, together with the Go
// and process collectors, on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_received_total",
			Help:      "Decoded consensus messages received, by kind",
		}, []string{"kind"}),

		DedupDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "dropped_total",
			Help:      "Inbound messages dropped as duplicates",
		}),

		DedupEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dedup",
			Name:      "evictions_total",
			Help:      "Fingerprints evicted from a full dedup filter",
		}),

		GossipMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "messages_total",
			Help:      "Gossip messages by result",
		}, []string{"result"}),

		ElectionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "elections_started_total",
			Help:      "Elections started by this node",
		}),

		ElectionsWon: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "elections_won_total",
			Help:      "Elections won by this node",
		}),

		Term: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "term",
			Help:      "Current term",
		}),

		Role: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "role",
			Help:      "Current role: 0 Follower, 1 Candidate, 2 Leader",
		}),

		CommitIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "consensus",
			Name:      "commit_index",
			Help:      "Index of the highest committed log entry",
		}),

		ConnectedPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "connected_peers",
			Help:      "Peers with at least one established connection",
		}),

		DialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "dial_failures_total",
			Help:      "Failed dial attempts",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesReceived,
		m.DedupDropped,
		m.DedupEvictions,
		m.GossipMessages,
		m.ElectionsStarted,
		m.ElectionsWon,
		m.Term,
		m.Role,
		m.CommitIndex,
		m.ConnectedPeers,
		m.DialFailures,
	)

	return m
}

// Registry returns the registry holding every instrument.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
