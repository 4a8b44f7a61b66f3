// Package metrics defines the Prometheus collectors exposed by the
// control plane on MetricsAddr, grounded on the client_golang usage
// patterns in jessesanford-kcp, Kizsoft-Solution-Limited-uniroute and
// batonogov-xray-health-exporter.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BytesServed is the cumulative count of download-route body
	// bytes the monitor has attributed to any tunnel.
	BytesServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dropwire",
		Name:      "bytes_served_total",
		Help:      "Cumulative bytes served across all tunnels' download routes.",
	})

	// TunnelsByStatus counts tunnel-status transitions the monitor
	// has driven.
	TunnelsByStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dropwire",
		Name:      "tunnels_total",
		Help:      "Tunnels transitioned, by terminal status.",
	}, []string{"status"})

	// LogParseErrors counts access-log lines that failed to parse.
	LogParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dropwire",
		Name:      "log_parse_errors_total",
		Help:      "Access-log lines that could not be parsed.",
	})

	// ActiveTunnels is a gauge of currently non-terminal tunnels,
	// refreshed each trigger tick.
	ActiveTunnels = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dropwire",
		Name:      "active_tunnels",
		Help:      "Number of tunnels not yet in a terminal state.",
	})
)

// Handler returns the HTTP handler to mount on MetricsAddr.
func Handler() http.Handler {
	return promhttp.Handler()
}
