// Package promexport exposes a Scheduler's Metrics as Prometheus
// metrics, grounded on the collector pattern used across the example
// corpus's sockstats exporter: a prometheus.Collector whose Collect
// method reads a snapshot on every scrape rather than keeping its own
// counters, so the exporter can never drift from the scheduler's own
// bookkeeping.
package promexport

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshotter is satisfied by the root package's *Scheduler (and by a
// test double): anything that can produce a metrics snapshot on
// demand.
type Snapshotter interface {
	MetricsSnapshot() Snapshot
}

// Snapshot mirrors the fields of the root package's MetricsSnapshot
// that are worth exporting. Defined locally so this package does not
// import the root package's full surface, only the shape it needs.
type Snapshot struct {
	RequestsCompleted uint64
	RequestsDropped   uint64
	PreemptsSent      uint64
	SLOOvershoots     uint64
	AvgLatencyNs      uint64
	LatencyP50Ns      uint64
	LatencyP99Ns      uint64
	LatencyP999Ns     uint64
	QueueDepth        []uint32
	QueueDepthPeak    []uint32
}

var (
	descRequestsCompleted = prometheus.NewDesc("dispatchd_requests_completed_total", "Total requests completed.", nil, nil)
	descRequestsDropped   = prometheus.NewDesc("dispatchd_requests_dropped_total", "Total requests dropped.", nil, nil)
	descPreemptsSent      = prometheus.NewDesc("dispatchd_preempts_sent_total", "Total preempt signals sent to workers.", nil, nil)
	descSLOOvershoots     = prometheus.NewDesc("dispatchd_slo_overshoots_total", "Total requests that missed their port's SLO.", nil, nil)
	descAvgLatency        = prometheus.NewDesc("dispatchd_latency_avg_ns", "Average completed-request latency in nanoseconds.", nil, nil)
	descLatencyQuantile   = prometheus.NewDesc("dispatchd_latency_ns", "Completed-request latency in nanoseconds at a quantile.", []string{"quantile"}, nil)
	descQueueDepth        = prometheus.NewDesc("dispatchd_queue_depth", "Current TSKQ depth for a port.", []string{"port"}, nil)
	descQueueDepthPeak    = prometheus.NewDesc("dispatchd_queue_depth_peak", "Peak TSKQ depth observed for a port.", []string{"port"}, nil)
)

// Collector adapts a Snapshotter to prometheus.Collector.
type Collector struct {
	src Snapshotter
}

// NewCollector builds a Collector reading from src on every scrape.
func NewCollector(src Snapshotter) *Collector {
	return &Collector{src: src}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descRequestsCompleted
	ch <- descRequestsDropped
	ch <- descPreemptsSent
	ch <- descSLOOvershoots
	ch <- descAvgLatency
	ch <- descLatencyQuantile
	ch <- descQueueDepth
	ch <- descQueueDepthPeak
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.src.MetricsSnapshot()

	ch <- prometheus.MustNewConstMetric(descRequestsCompleted, prometheus.CounterValue, float64(snap.RequestsCompleted))
	ch <- prometheus.MustNewConstMetric(descRequestsDropped, prometheus.CounterValue, float64(snap.RequestsDropped))
	ch <- prometheus.MustNewConstMetric(descPreemptsSent, prometheus.CounterValue, float64(snap.PreemptsSent))
	ch <- prometheus.MustNewConstMetric(descSLOOvershoots, prometheus.CounterValue, float64(snap.SLOOvershoots))
	ch <- prometheus.MustNewConstMetric(descAvgLatency, prometheus.GaugeValue, float64(snap.AvgLatencyNs))

	ch <- prometheus.MustNewConstMetric(descLatencyQuantile, prometheus.GaugeValue, float64(snap.LatencyP50Ns), "0.5")
	ch <- prometheus.MustNewConstMetric(descLatencyQuantile, prometheus.GaugeValue, float64(snap.LatencyP99Ns), "0.99")
	ch <- prometheus.MustNewConstMetric(descLatencyQuantile, prometheus.GaugeValue, float64(snap.LatencyP999Ns), "0.999")

	for i, depth := range snap.QueueDepth {
		port := portLabel(i)
		ch <- prometheus.MustNewConstMetric(descQueueDepth, prometheus.GaugeValue, float64(depth), port)
	}
	for i, peak := range snap.QueueDepthPeak {
		port := portLabel(i)
		ch <- prometheus.MustNewConstMetric(descQueueDepthPeak, prometheus.GaugeValue, float64(peak), port)
	}
}

func portLabel(i int) string {
	const digits = "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	// Ports beyond single digits are rare (MaxPorts bounds this low);
	// fall through to a slower but correct conversion.
	var buf []byte
	for i > 0 {
		buf = append([]byte{digits[i%10]}, buf...)
		i /= 10
	}
	return string(buf)
}

// Handler registers collector against a fresh registry and returns the
// resulting promhttp.Handler, ready to mount at e.g. "/metrics".
func Handler(collector *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
