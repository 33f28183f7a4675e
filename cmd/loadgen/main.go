// Command loadgen drives synthetic RPC traffic through a dispatchd
// Scheduler over an in-memory loopback NIC, for local experimentation
// without a real network stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	dispatchd "github.com/nanodispatch/dispatchd"
	"github.com/nanodispatch/dispatchd/internal/logging"
	"github.com/nanodispatch/dispatchd/internal/nic"
	"github.com/nanodispatch/dispatchd/internal/uapi"
)

func main() {
	var (
		numWorkers = flag.Int("workers", 4, "scheduler worker count")
		numPorts   = flag.Int("ports", 2, "scheduler port count")
		rate       = flag.Int("rate", 1000, "requests per second to generate")
		duration   = flag.Duration("duration", 5*time.Second, "how long to run")
	)
	flag.Parse()

	logger := logging.Default()

	cfg := dispatchd.DefaultConfig()
	cfg.NumWorkers = *numWorkers
	cfg.NumPorts = *numPorts
	cfg.SLO = make([]time.Duration, *numPorts)
	cfg.QueueSettings = make([]bool, *numPorts)
	for i := range cfg.SLO {
		cfg.SLO[i] = 10 * time.Millisecond
	}

	schedNIC, genNIC := nic.NewLoopbackPair()

	ctx, cancel := context.WithTimeout(context.Background(), *duration+time.Second)
	defer cancel()

	sched, err := dispatchd.NewAndServe(cfg, &dispatchd.SchedulerOptions{
		Context: ctx,
		Logger:  logger,
		NIC:     schedNIC,
	})
	if err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	interval := time.Second / time.Duration(*rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.Now().Add(*duration)
	sent := 0
	for time.Now().Before(deadline) {
		<-ticker.C
		if err := sendOne(genNIC, uint16(rand.Intn(*numPorts))); err != nil {
			logger.Warn("send failed after retries", "error", err)
			continue
		}
		sent++
	}

	time.Sleep(100 * time.Millisecond)
	snap := sched.MetricsSnapshot()
	fmt.Printf("sent=%d completed=%d dropped=%d avg_latency_ns=%d p99_latency_ns=%d\n",
		sent, snap.RequestsCompleted, snap.RequestsDropped, snap.AvgLatencyNs, snap.LatencyP99Ns)
}

// sendOne builds a single-fragment request tagged with a fresh
// correlation ID and transmits it, retrying transient NIC errors with
// exponential backoff.
func sendOne(n nic.Transmitter, port uint16) error {
	id := uuid.New()
	clientID := uint16(id[0])<<8 | uint16(id[1])
	reqID := uint32(id[2])<<24 | uint32(id[3])<<16 | uint32(id[4])<<8 | uint32(id[5])

	h := uapi.Header{
		Type:       port,
		ClientID:   clientID,
		ReqID:      reqID,
		PktsLength: 1,
		RunNs:      uint64(1000 + rand.Intn(5000)),
	}
	buf := make([]byte, uapi.HeaderSize)
	uapi.PutHeader(buf, &h)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 50 * time.Millisecond
	return backoff.Retry(func() error { return n.Send(buf) }, bo)
}
