package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"echoping/internal/models"
)

const namespace = "echoping"

// Collector holds the prometheus series exported by the service.
type Collector struct {
	reg *prometheus.Registry

	probes    *prometheus.CounterVec
	roundTrip prometheus.Histogram
	lastRTT   prometheus.Gauge
	reachable prometheus.Gauge
	observers prometheus.Gauge
	target    *prometheus.GaugeVec
}

// New creates a collector registered on its own registry.
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Completed probes by outcome.",
		}, []string{"outcome"}),
		roundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_trip_seconds",
			Help:      "Measured round trip of successful probes.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		lastRTT: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_round_trip_seconds",
			Help:      "Round trip of the latest successful probe.",
		}),
		reachable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_reachable",
			Help:      "1 if the latest probe got a reply, 0 otherwise.",
		}),
		observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observers",
			Help:      "Connected live observers.",
		}),
		target: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_info",
			Help:      "Current probe target, value is always 1.",
		}, []string{"address"}),
	}
	c.reg.MustRegister(c.probes, c.roundTrip, c.lastRTT, c.reachable, c.observers, c.target)
	return c
}

// Observe records one delivered result.
func (c *Collector) Observe(r models.Result) {
	if !r.Outcome.Reachable() {
		c.probes.WithLabelValues("unreachable").Inc()
		c.reachable.Set(0)
		return
	}
	seconds := r.Outcome.RoundTrip().Seconds()
	c.probes.WithLabelValues("success").Inc()
	c.roundTrip.Observe(seconds)
	c.lastRTT.Set(seconds)
	c.reachable.Set(1)
}

// SetObservers records the number of live observers.
func (c *Collector) SetObservers(n int) {
	c.observers.Set(float64(n))
}

// SetTarget replaces the exported target label.
func (c *Collector) SetTarget(addr string) {
	c.target.Reset()
	c.target.WithLabelValues(addr).Set(1)
}

// Gatherer exposes the registry for tests and custom exporters.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.reg
}

// Handler serves the registry in the prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
