package promexport

import (
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeSnapshotter struct {
	snap Snapshot
}

func (f fakeSnapshotter) MetricsSnapshot() Snapshot { return f.snap }

func TestCollectorExposesExpectedMetricNames(t *testing.T) {
	src := fakeSnapshotter{snap: Snapshot{
		RequestsCompleted: 42,
		RequestsDropped:   3,
		PreemptsSent:      7,
		SLOOvershoots:     1,
		AvgLatencyNs:      12345,
		LatencyP50Ns:      1000,
		LatencyP99Ns:      9000,
		LatencyP999Ns:     15000,
		QueueDepth:        []uint32{2, 0, 5},
		QueueDepthPeak:    []uint32{4, 1, 6},
	}}

	h := Handler(NewCollector(src))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	h.ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"dispatchd_requests_completed_total 42",
		"dispatchd_requests_dropped_total 3",
		"dispatchd_preempts_sent_total 7",
		"dispatchd_slo_overshoots_total 1",
		`dispatchd_latency_ns{quantile="0.99"} 9000`,
		`dispatchd_queue_depth{port="2"} 5`,
		`dispatchd_queue_depth_peak{port="0"} 4`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestPortLabelHandlesMultiDigitPorts(t *testing.T) {
	if got := portLabel(12); got != "12" {
		t.Errorf("expected \"12\", got %q", got)
	}
	if got := portLabel(0); got != "0" {
		t.Errorf("expected \"0\", got %q", got)
	}
}
