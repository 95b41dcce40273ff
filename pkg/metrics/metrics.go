// Package metrics exposes the prometheus collectors an embedding
// application can register to observe connection and stream behavior.
// The core packages update these counters and gauges as a side effect of
// their own control flow; nothing in the core reads them back, so an
// embedder that never scrapes /metrics pays only the cost of a handful of
// counter increments.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every metric the core reports. Construct one with
// NewCollectors and register it with a prometheus.Registerer; pass it (or
// nil) into conn.Config to wire it into the core.
type Collectors struct {
	PacketsSent         prometheus.Counter
	PacketsAcked        prometheus.Counter
	PacketsRetransmitted prometheus.Counter
	PacketsAbandoned    prometheus.Counter
	MalformedFrames     prometheus.Counter
	FECShardsSent       prometheus.Counter
	FECGroupsRecovered  prometheus.Counter
	FECGroupsLost       prometheus.Counter
	RTT                 prometheus.Gauge
	StreamsOpen         prometheus.Gauge
	StreamReceivedPkts  prometheus.Counter
}

// NewCollectors builds a fresh Collectors set, namespaced "sliq".
func NewCollectors() *Collectors {
	ns := "sliq"
	return &Collectors{
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "packets_sent_total", Help: "Data packets sent.",
		}),
		PacketsAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "packets_acked_total", Help: "Data packets acknowledged.",
		}),
		PacketsRetransmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "packets_retransmitted_total", Help: "Data packets retransmitted.",
		}),
		PacketsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "packets_abandoned_total", Help: "Data packets abandoned under semi-reliable delivery.",
		}),
		MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "malformed_frames_total", Help: "Inbound datagrams dropped for failing to parse.",
		}),
		FECShardsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "fec_shards_sent_total", Help: "FEC source and coded shards sent.",
		}),
		FECGroupsRecovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "fec_groups_recovered_total", Help: "FEC groups fully recovered via coded shards.",
		}),
		FECGroupsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "fec_groups_lost_total", Help: "FEC groups retired without recovering every source shard.",
		}),
		RTT: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "rtt_seconds", Help: "Most recent smoothed RTT sample.",
		}),
		StreamsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "streams_open", Help: "Currently open streams.",
		}),
		StreamReceivedPkts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "stream", Name: "received_packets_total",
			Help: "Data headers accepted by a receiving stream.",
		}),
	}
}

// MustRegister registers every collector with reg, panicking on a
// duplicate-registration error (a programmer error, not a runtime one).
func (c *Collectors) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.PacketsSent, c.PacketsAcked, c.PacketsRetransmitted, c.PacketsAbandoned,
		c.MalformedFrames, c.FECShardsSent, c.FECGroupsRecovered, c.FECGroupsLost,
		c.RTT, c.StreamsOpen, c.StreamReceivedPkts,
	)
}
