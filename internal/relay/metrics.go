package relay

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_peers",
		Help: "Number of currently connected peers",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Total messages processed by type",
	}, []string{"type"})

	RejectedConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_rejected_connections_total",
		Help: "Connections closed because every slot was occupied",
	})

	BroadcastDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_broadcast_seconds",
		Help:    "Time to fan one message out to all recipients",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(ConnectedPeers)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(RejectedConnections)
	prometheus.MustRegister(BroadcastDuration)
}
