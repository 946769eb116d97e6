// Package metrics exposes relay server counters to Prometheus.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "linerelay"

// Relay holds the server collectors. A nil *Relay is valid and records
// nothing, so the server runs without metrics by default.
type Relay struct {
	peers           prometheus.Gauge
	accepted        prometheus.Counter
	disconnected    prometheus.Counter
	messagesFramed  prometheus.Counter
	messagesRelayed prometheus.Counter
	bytesRead       prometheus.Counter
	bytesWritten    prometheus.Counter
}

// NewRelay creates the collectors and registers them with reg.
func NewRelay(reg prometheus.Registerer) *Relay {
	m := &Relay{
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Number of connected peers.",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accepted_total",
			Help:      "Connections accepted.",
		}),
		disconnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnected_total",
			Help:      "Peers removed after a close or an I/O error.",
		}),
		messagesFramed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_framed_total",
			Help:      "Complete messages received from peers.",
		}),
		messagesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Message copies queued for delivery to peers.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Bytes read from peer sockets.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes written to peer sockets.",
		}),
	}
	reg.MustRegister(
		m.peers,
		m.accepted,
		m.disconnected,
		m.messagesFramed,
		m.messagesRelayed,
		m.bytesRead,
		m.bytesWritten,
	)
	return m
}

// PeerAccepted records a new peer and the current table size.
func (m *Relay) PeerAccepted(count int) {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.peers.Set(float64(count))
}

// PeerRemoved records a removed peer and the current table size.
func (m *Relay) PeerRemoved(count int) {
	if m == nil {
		return
	}
	m.disconnected.Inc()
	m.peers.Set(float64(count))
}

// Read records bytes read and messages framed from them.
func (m *Relay) Read(bytes, messages int) {
	if m == nil {
		return
	}
	m.bytesRead.Add(float64(bytes))
	m.messagesFramed.Add(float64(messages))
}

// Relayed records message copies queued to other peers.
func (m *Relay) Relayed(copies int) {
	if m == nil {
		return
	}
	m.messagesRelayed.Add(float64(copies))
}

// Written records bytes drained to a peer.
func (m *Relay) Written(bytes int) {
	if m == nil {
		return
	}
	m.bytesWritten.Add(float64(bytes))
}
