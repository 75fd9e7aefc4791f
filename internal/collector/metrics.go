package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	readingsQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_gateway_collector_readings_queued_total",
		Help: "Readings submitted to the collector for dashboard forwarding.",
	})
	readingsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_gateway_collector_readings_dropped_total",
		Help: "Queued readings dropped to make room under queue pressure.",
	})
	forwardSuccessTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_gateway_collector_forward_success_total",
		Help: "Readings successfully POSTed to the dashboard ingest endpoint.",
	})
	forwardFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetry_gateway_collector_forward_failures_total",
		Help: "Dashboard forwarding attempts that returned an error or non-2xx status.",
	})
)
