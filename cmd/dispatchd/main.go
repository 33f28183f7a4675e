// Command dispatchd runs a standalone nanodispatch scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	dispatchd "github.com/nanodispatch/dispatchd"
	"github.com/nanodispatch/dispatchd/internal/logging"
	"github.com/nanodispatch/dispatchd/internal/nic"
	"github.com/nanodispatch/dispatchd/internal/promexport"
)

func main() {
	var (
		numWorkers  = flag.Int("workers", 4, "number of worker goroutines")
		numPorts    = flag.Int("ports", dispatchd.DefaultNumPorts, "number of request-type ports")
		batch       = flag.Int("batch", dispatchd.DefaultBatch, "networker/dispatcher batch size")
		sloStr      = flag.String("slo", "", "comma-separated per-port SLO durations, e.g. \"1ms,10ms\" (default: 10ms per port)")
		preemptStr  = flag.String("preempt-delay", "0", "preemption delay, e.g. \"500us\" (0 disables preemption)")
		loopback    = flag.Bool("loopback", true, "use an in-memory loopback NIC instead of a real network device")
		metricsAddr = flag.String("metrics-addr", ":9090", "address to serve /metrics on; empty disables it")
		verbose     = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	cfg := dispatchd.DefaultConfig()
	cfg.NumWorkers = *numWorkers
	cfg.NumPorts = *numPorts
	cfg.Batch = *batch

	if *sloStr != "" {
		slo, err := parseSLOList(*sloStr, cfg.NumPorts)
		if err != nil {
			logger.Error("invalid -slo", "error", err)
			os.Exit(1)
		}
		cfg.SLO = slo
	} else {
		cfg.SLO = make([]time.Duration, cfg.NumPorts)
		for i := range cfg.SLO {
			cfg.SLO[i] = 10 * time.Millisecond
		}
	}
	cfg.QueueSettings = make([]bool, cfg.NumPorts)

	preemptDelay, err := time.ParseDuration(*preemptStr)
	if err != nil {
		logger.Error("invalid -preempt-delay", "error", err)
		os.Exit(1)
	}
	cfg.PreemptionDelay = preemptDelay

	if !*loopback {
		logger.Error("only -loopback=true is supported; no real NIC driver is wired yet")
		os.Exit(1)
	}
	self, _ := nic.NewLoopbackPair()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched, err := dispatchd.NewAndServe(cfg, &dispatchd.SchedulerOptions{
		Context: ctx,
		Logger:  logger,
		NIC:     self,
	})
	if err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	logger.Info("scheduler started", "workers", cfg.NumWorkers, "ports", cfg.NumPorts)

	if *metricsAddr != "" {
		collector := promexport.NewCollector(schedulerSnapshotter{sched})
		mux := http.NewServeMux()
		mux.Handle("/metrics", promexport.Handler(collector))
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
		logger.Info("metrics listening", "addr", *metricsAddr)
	}

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")
	sched.Stop()
	cancel()
}

// parseSLOList parses a comma-separated duration list into exactly n
// entries.
func parseSLOList(s string, n int) ([]time.Duration, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d SLO entries, got %d", n, len(parts))
	}
	out := make([]time.Duration, n)
	for i, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("entry %d (%q): %w", i, p, err)
		}
		out[i] = d
	}
	return out, nil
}

// schedulerSnapshotter adapts *dispatchd.Scheduler to
// promexport.Snapshotter.
type schedulerSnapshotter struct {
	s *dispatchd.Scheduler
}

func (a schedulerSnapshotter) MetricsSnapshot() promexport.Snapshot {
	snap := a.s.MetricsSnapshot()
	return promexport.Snapshot{
		RequestsCompleted: snap.RequestsCompleted,
		RequestsDropped:   snap.RequestsDropped,
		PreemptsSent:      snap.PreemptsSent,
		SLOOvershoots:     snap.SLOOvershoots,
		AvgLatencyNs:      snap.AvgLatencyNs,
		LatencyP50Ns:      snap.LatencyP50Ns,
		LatencyP99Ns:      snap.LatencyP99Ns,
		LatencyP999Ns:     snap.LatencyP999Ns,
		QueueDepth:        snap.QueueDepth,
		QueueDepthPeak:    snap.QueueDepthPeak,
	}
}
