// Package observability holds the bridge's Prometheus metrics, OpenTelemetry
// tracing setup and the HTTP middleware that feeds both.
package observability

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hifibridge/internal/bus"
)

var (
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hifibridge_commands_total",
			Help: "Zone commands dispatched, by adapter, action and result.",
		},
		[]string{"adapter", "action", "result"},
	)

	AdapterFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hifibridge_adapter_failures_total",
			Help: "Failed adapter run attempts that were scheduled for retry.",
		},
		[]string{"adapter"},
	)

	ShutdownAcksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hifibridge_shutdown_acks_total",
			Help: "Adapter shutdown outcomes seen by the coordinator.",
		},
		[]string{"outcome"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hifibridge_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		},
		[]string{"endpoint", "method", "status"},
	)
)

func init() {
	prometheus.MustRegister(CommandsTotal, AdapterFailuresTotal, ShutdownAcksTotal, httpRequestsTotal)
}

// RegisterBusMetrics exposes the bus counters. Registering a second bus with the
// same registerer is ignored.
func RegisterBusMetrics(reg prometheus.Registerer, b *bus.Bus) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "hifibridge_bus_published_total",
			Help: "Events published on the bus.",
		}, func() float64 { return float64(b.Metrics().Published) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "hifibridge_bus_skipped_total",
			Help: "Events skipped by lagging subscribers.",
		}, func() float64 { return float64(b.Metrics().Skipped) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "hifibridge_bus_subscribers",
			Help: "Current bus subscribers.",
		}, func() float64 { return float64(b.SubscriberCount()) }),
	}
	return registerAll(reg, collectors...)
}

// RegisterZoneGauge exposes the number of zones currently known.
func RegisterZoneGauge(reg prometheus.Registerer, count func() int) error {
	return registerAll(reg, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "hifibridge_zones",
		Help: "Zones currently known to the aggregator.",
	}, func() float64 { return float64(count()) }))
}

func registerAll(reg prometheus.Registerer, collectors ...prometheus.Collector) error {
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
