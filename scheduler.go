package dispatchd

import (
	"context"
	"runtime"
	"time"

	"github.com/nanodispatch/dispatchd/internal/dispatcher"
	"github.com/nanodispatch/dispatchd/internal/logging"
	"github.com/nanodispatch/dispatchd/internal/mailbox"
	"github.com/nanodispatch/dispatchd/internal/mempool"
	"github.com/nanodispatch/dispatchd/internal/networker"
	"github.com/nanodispatch/dispatchd/internal/nic"
	"github.com/nanodispatch/dispatchd/internal/taskqueue"
	"github.com/nanodispatch/dispatchd/internal/uapi"
	"github.com/nanodispatch/dispatchd/internal/worker"
	"golang.org/x/sys/unix"
)

// State reports a Scheduler's lifecycle phase.
type State string

const (
	StateCreated State = "created"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// SchedulerOptions are additional dependencies for a Scheduler, separate
// from Config's tunables because they carry behavior, not values.
type SchedulerOptions struct {
	// Context is the parent of the Scheduler's context; if nil,
	// context.Background() is used. Cancelling it makes State report
	// StateStopped, but the loop goroutines keep running until Stop.
	Context context.Context

	// Logger receives structured lifecycle and error messages. If nil,
	// logging.Default() is used.
	Logger *logging.Logger

	// Observer receives scheduling events. If nil, a Metrics-backed
	// Observer is installed so Scheduler.Metrics always has data.
	Observer Observer

	// NIC is the network transport the networker polls and the worker
	// transmit path sends replies through. Required.
	NIC nic.NIC
}

// Scheduler is a running nanodispatch dataplane: one networker, one
// dispatcher, and Config.NumWorkers worker goroutines, each pinned to
// its own OS thread and wired through lock-free mailboxes.
type Scheduler struct {
	cfg     Config
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *logging.Logger
	metrics *Metrics

	stop chan struct{}
	done chan struct{}

	started bool
}

// NewAndServe builds a Scheduler from cfg and opts and starts every
// loop goroutine, mirroring the teacher's CreateAndServe entry point:
// construction and startup are one call because a Scheduler with
// goroutines not yet running has no useful state to expose.
func NewAndServe(cfg Config, opts *SchedulerOptions) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &SchedulerOptions{}
	}
	if opts.NIC == nil {
		return nil, NewError("NewAndServe", ErrInitFailure, "SchedulerOptions.NIC is required")
	}

	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	metrics := NewMetrics()
	var observer Observer = NewMetricsObserver(metrics)
	if opts.Observer != nil {
		observer = opts.Observer
	}

	s := &Scheduler{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	netMB := mailbox.NewNetworkerMailbox(cfg.Batch)
	pktPool := mempool.CreateDatastore(2048, cfg.MempoolCapacity)
	respPool := mempool.CreateDatastore(uapi.HeaderSize, cfg.MempoolCapacity)

	nw := networker.New(opts.NIC, netMB, pktPool, networker.Config{
		Batch:      cfg.Batch,
		PacketSize: 2048,
		RQConfig:   cfg.Reassembly,
	})

	reqs := make([]*mailbox.DispatcherRequest, cfg.NumWorkers)
	resps := make([]*mailbox.WorkerResponse, cfg.NumWorkers)
	workers := make([]*worker.Worker, cfg.NumWorkers)
	preempters := make([]dispatcher.Preempter, cfg.NumWorkers)

	workerObs := &workerObserverAdapter{observer: observer}
	for i := 0; i < cfg.NumWorkers; i++ {
		reqs[i] = &mailbox.DispatcherRequest{}
		resps[i] = &mailbox.WorkerResponse{}
		w := worker.New(reqs[i], resps[i], worker.Config{
			Index:              i,
			CyclesPerIteration: cfg.CyclesPerIteration,
			Transmitter:        opts.NIC,
			ResponsePool:       respPool.Attach(mempool.PerCPU),
			Observer:           workerObs,
		})
		workers[i] = w
		preempters[i] = w
	}

	tskq := taskqueue.New(cfg.NumPorts, cfg.SLO)
	dispObs := &dispatcherObserverAdapter{observer: observer}
	disp := dispatcher.New(reqs, resps, preempters, tskq, netMB, dispatcher.Config{
		QueueSettings:   cfg.QueueSettings,
		PreemptionDelay: cfg.PreemptionDelay,
		Observer:        dispObs,
	})

	s.started = true
	metrics.StartTime.Store(time.Now().UnixNano())

	go s.runDispatcherLoop(disp)
	go s.runNetworkerLoop(nw)
	for i := range workers {
		go s.runWorkerLoop(workers[i], i)
	}

	logger.Info("scheduler started", "num_workers", cfg.NumWorkers, "num_ports", cfg.NumPorts)
	return s, nil
}

func (s *Scheduler) runDispatcherLoop(d *dispatcher.Dispatcher) {
	pinCurrentThread(s.cfg.CPUAffinity, 0)
	for {
		select {
		case <-s.stop:
			return
		default:
			d.RunOnce()
		}
	}
}

func (s *Scheduler) runNetworkerLoop(nw *networker.Networker) {
	pinCurrentThread(s.cfg.CPUAffinity, 1)
	nw.Loop(s.stop)
}

func (s *Scheduler) runWorkerLoop(w *worker.Worker, index int) {
	pinCurrentThread(s.cfg.CPUAffinity, 2+index)
	w.Loop(s.stop)
}

// pinCurrentThread locks the calling goroutine to its OS thread and, if
// affinity names a CPU for slot, restricts that thread to it. slot 0 is
// the dispatcher, 1 the networker, 2+i worker i — matching the order
// Config.CPUAffinity documents.
func pinCurrentThread(affinity []int, slot int) {
	runtime.LockOSThread()
	if slot >= len(affinity) {
		return
	}
	cpu := affinity[slot]
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	_ = unix.SchedSetaffinity(0, &set)
}

// Stop halts every loop goroutine and marks metrics stopped. Idempotent
// after the first call.
func (s *Scheduler) Stop() {
	if !s.started {
		return
	}
	s.cancel()
	close(s.stop)
	s.metrics.Stop()
	s.started = false
	s.logger.Info("scheduler stopped")
}

// State reports the Scheduler's current lifecycle phase.
func (s *Scheduler) State() State {
	if s == nil {
		return StateStopped
	}
	if !s.started {
		return StateStopped
	}
	select {
	case <-s.ctx.Done():
		return StateStopped
	default:
		return StateRunning
	}
}

// Metrics returns the Scheduler's live Metrics instance.
func (s *Scheduler) Metrics() *Metrics { return s.metrics }

// MetricsSnapshot returns a point-in-time snapshot of Scheduler metrics.
func (s *Scheduler) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{}
	}
	return s.metrics.Snapshot()
}

// Info summarizes a Scheduler's configuration and state for a status
// endpoint or CLI subcommand.
type Info struct {
	State      State
	NumWorkers int
	NumPorts   int
	Batch      int
}

func (s *Scheduler) Info() Info {
	return Info{
		State:      s.State(),
		NumWorkers: s.cfg.NumWorkers,
		NumPorts:   s.cfg.NumPorts,
		Batch:      s.cfg.Batch,
	}
}

// dispatcherObserverAdapter narrows the root Observer to the shape
// internal/dispatcher depends on, so that package never imports the
// root package (which would form an import cycle, since the root
// package imports internal/dispatcher).
type dispatcherObserverAdapter struct {
	observer Observer
}

func (a *dispatcherObserverAdapter) ObserveCompletion(typ uint16, latencyNs uint64, success bool) {
	a.observer.ObserveCompletion(typ, latencyNs, success)
}

func (a *dispatcherObserverAdapter) ObserveDrop() {
	a.observer.ObserveDrop(ErrTransientAlloc)
}

func (a *dispatcherObserverAdapter) ObservePreempt(i int) {
	a.observer.ObservePreempt(i)
}

func (a *dispatcherObserverAdapter) ObserveSLOOvershoot(typ uint16) {
	a.observer.ObserveSLOOvershoot(typ)
}

func (a *dispatcherObserverAdapter) ObserveQueueDepth(typ uint16, depth uint32) {
	a.observer.ObserveQueueDepth(typ, depth)
}

// workerObserverAdapter narrows the root Observer to the shape
// internal/worker depends on, same rationale as dispatcherObserverAdapter.
type workerObserverAdapter struct {
	observer Observer
}

func (a *workerObserverAdapter) ObserveDrop() {
	a.observer.ObserveDrop(ErrInvariantViolation)
}

func (s State) String() string { return string(s) }
