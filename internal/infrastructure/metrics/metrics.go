package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/accessory"
	"github.com/mdaskalov/homebridge-tasmota-zbbridge-sub000/internal/reconcile"
)

const namespace = "zbbridge"

// Collector holds the bridge's Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	MessagesDispatched *prometheus.CounterVec
	MessagesDropped    *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	ValueOutcomes      *prometheus.CounterVec
	AccessoryValue     *prometheus.GaugeVec
	MQTTConnected      prometheus.Gauge
	MQTTDisconnects    prometheus.Counter
}

// New creates a Collector with every metric registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		MessagesDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "messages_dispatched_total",
				Help:      "Inbound messages dispatched, by whether any subscription matched",
			},
			[]string{"matched"},
		),

		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "messages_dropped_total",
				Help:      "Inbound messages dropped before or during dispatch",
			},
			[]string{"reason"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "request_duration_seconds",
				Help:      "Request/response round trips to devices",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"outcome"},
		),

		ValueOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "accessory",
				Name:      "value_outcomes_total",
				Help:      "Reconciliation outcomes of reported property values",
			},
			[]string{"accessory", "kind", "outcome"},
		),

		AccessoryValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "accessory",
				Name:      "value",
				Help:      "Last accepted property value",
			},
			[]string{"accessory", "kind"},
		),

		MQTTConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "connected",
				Help:      "Broker connection status (0=disconnected, 1=connected)",
			},
		),

		MQTTDisconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mqtt",
				Name:      "disconnects_total",
				Help:      "Lost broker connections",
			},
		),
	}

	c.registry.MustRegister(
		c.MessagesDispatched,
		c.MessagesDropped,
		c.RequestDuration,
		c.ValueOutcomes,
		c.AccessoryValue,
		c.MQTTConnected,
		c.MQTTDisconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// MessageDispatched implements router.Metrics.
func (c *Collector) MessageDispatched(handlers int) {
	c.MessagesDispatched.WithLabelValues(strconv.FormatBool(handlers > 0)).Inc()
}

// MessageDropped implements router.Metrics.
func (c *Collector) MessageDropped(reason string) {
	c.MessagesDropped.WithLabelValues(reason).Inc()
}

// RequestCompleted implements router.Metrics.
func (c *Collector) RequestCompleted(outcome string, elapsed time.Duration) {
	c.RequestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveOutcome implements accessory.Observer.
func (c *Collector) ObserveOutcome(accessoryID string, kind accessory.Kind, outcome reconcile.Outcome) {
	c.ValueOutcomes.WithLabelValues(accessoryID, string(kind), outcome.String()).Inc()
}

// ValueChanged implements accessory.Notifier.
func (c *Collector) ValueChanged(change accessory.Change) {
	c.AccessoryValue.WithLabelValues(change.AccessoryID, string(change.Kind)).Set(float64(change.Value))
}

// SetMQTTConnected records the broker connection state. A transition to
// disconnected counts as a disconnect.
func (c *Collector) SetMQTTConnected(connected bool) {
	if connected {
		c.MQTTConnected.Set(1)
		return
	}
	c.MQTTConnected.Set(0)
	c.MQTTDisconnects.Inc()
}
