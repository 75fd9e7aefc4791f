package transceiver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rxPacketsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_gateway_rx_packets_total",
		Help: "Packets received on the N2G channel, before decode.",
	})
	rxDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_gateway_rx_dropped_total",
		Help: "Received packets dropped: failed both ACK and sensor-frame decode.",
	})
	cmdTxTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_gateway_cmd_tx_total",
		Help: "Command transmit attempts, including retries.",
	})
	cmdRetiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_gateway_cmd_retired_total",
		Help: "Commands retired after receiving enough ACKs.",
	})
	cmdExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_gateway_cmd_expired_total",
		Help: "Commands retired after exhausting their retry ceiling with no ACK.",
	})
	discoveryDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "telemetry_gateway_discovery_duration_seconds",
		Help:    "Wall-clock duration of a discovery sub-protocol run.",
		Buckets: prometheus.DefBuckets,
	})
)
