package dispatchd

import (
	"sync/atomic"
	"time"

	"github.com/nanodispatch/dispatchd/internal/constants"
)

// LatencyBuckets defines the request-completion latency histogram
// buckets in nanoseconds, spanning 1us to 10s with logarithmic spacing
// — appropriate for a microsecond-scale scheduler where most requests
// finish well under a millisecond but a tail can run long.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks scheduler-wide operational statistics: request
// throughput and latency, SLO adherence, preemption activity, and
// per-type queue depth.
type Metrics struct {
	RequestsCompleted atomic.Uint64
	RequestsDropped   atomic.Uint64
	PreemptsSent      atomic.Uint64
	SLOOvershoots     atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	QueueDepth     [constants.MaxPorts]atomic.Uint32
	QueueDepthPeak [constants.MaxPorts]atomic.Uint32

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordCompletion records a finished request's latency for type typ.
func (m *Metrics) RecordCompletion(typ uint16, latencyNs uint64, success bool) {
	if success {
		m.RequestsCompleted.Add(1)
	} else {
		m.RequestsDropped.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordDrop records a request dropped before completion (mempool
// exhaustion, malformed packet, etc.).
func (m *Metrics) RecordDrop() {
	m.RequestsDropped.Add(1)
}

// RecordPreempt records the dispatcher sending a preempt signal.
func (m *Metrics) RecordPreempt() {
	m.PreemptsSent.Add(1)
}

// RecordSLOOvershoot records a request type's head task exceeding its
// SLO. The dispatcher never reports an overshoot to its Observer, so
// within a Scheduler this counter stays at zero.
func (m *Metrics) RecordSLOOvershoot() {
	m.SLOOvershoots.Add(1)
}

// RecordQueueDepth records the current TSKQ depth for type typ,
// updating the observed peak.
func (m *Metrics) RecordQueueDepth(typ uint16, depth uint32) {
	if int(typ) >= len(m.QueueDepth) {
		return
	}
	m.QueueDepth[typ].Store(depth)
	for {
		peak := m.QueueDepthPeak[typ].Load()
		if depth <= peak {
			break
		}
		if m.QueueDepthPeak[typ].CompareAndSwap(peak, depth) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the scheduler as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read
// without further synchronization.
type MetricsSnapshot struct {
	RequestsCompleted uint64
	RequestsDropped   uint64
	PreemptsSent      uint64
	SLOOvershoots     uint64

	AvgLatencyNs  uint64
	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
	QueueDepth       []uint32
	QueueDepthPeak   []uint32

	UptimeNs  uint64
	ErrorRate float64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		RequestsCompleted: m.RequestsCompleted.Load(),
		RequestsDropped:   m.RequestsDropped.Load(),
		PreemptsSent:      m.PreemptsSent.Load(),
		SLOOvershoots:     m.SLOOvershoots.Load(),
		QueueDepth:        make([]uint32, len(m.QueueDepth)),
		QueueDepthPeak:    make([]uint32, len(m.QueueDepthPeak)),
	}
	for i := range m.QueueDepth {
		snap.QueueDepth[i] = m.QueueDepth[i].Load()
		snap.QueueDepthPeak[i] = m.QueueDepthPeak[i].Load()
	}

	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	total := snap.RequestsCompleted + snap.RequestsDropped
	if total > 0 {
		snap.ErrorRate = float64(snap.RequestsDropped) / float64(total) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters, useful for testing.
func (m *Metrics) Reset() {
	m.RequestsCompleted.Store(0)
	m.RequestsDropped.Store(0)
	m.PreemptsSent.Store(0)
	m.SLOOvershoots.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	for i := range m.QueueDepth {
		m.QueueDepth[i].Store(0)
		m.QueueDepthPeak[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection off the hot path.
// Implementations must be safe for concurrent use: methods are called
// from the dispatcher, worker, and networker goroutines.
type Observer interface {
	ObserveCompletion(typ uint16, latencyNs uint64, success bool)
	ObserveDrop(code ErrorCode)
	ObservePreempt(worker int)
	ObserveSLOOvershoot(typ uint16)
	ObserveQueueDepth(typ uint16, depth uint32)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCompletion(uint16, uint64, bool) {}
func (NoOpObserver) ObserveDrop(ErrorCode)                  {}
func (NoOpObserver) ObservePreempt(int)                     {}
func (NoOpObserver) ObserveSLOOvershoot(uint16)             {}
func (NoOpObserver) ObserveQueueDepth(uint16, uint32)       {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveCompletion(typ uint16, latencyNs uint64, success bool) {
	o.metrics.RecordCompletion(typ, latencyNs, success)
}

func (o *MetricsObserver) ObserveDrop(ErrorCode) {
	o.metrics.RecordDrop()
}

func (o *MetricsObserver) ObservePreempt(int) {
	o.metrics.RecordPreempt()
}

func (o *MetricsObserver) ObserveSLOOvershoot(uint16) {
	o.metrics.RecordSLOOvershoot()
}

func (o *MetricsObserver) ObserveQueueDepth(typ uint16, depth uint32) {
	o.metrics.RecordQueueDepth(typ, depth)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
