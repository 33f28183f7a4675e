// Package dispatcher implements the scheduler's single-threaded
// scheduling brain: it drains completed requests from the networker's
// mailbox into per-type task queues, and hands each worker its next
// task the instant the worker goes idle or is due for preemption.
package dispatcher

import (
	"time"

	"github.com/nanodispatch/dispatchd/internal/mailbox"
	"github.com/nanodispatch/dispatchd/internal/taskqueue"
)

// Clock abstracts time.Now for deterministic preemption-timing tests.
type Clock interface{ Now() time.Time }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Observer is notified of scheduling events; satisfied by the root
// package's Metrics-backed Observer or a test double.
type Observer interface {
	ObserveCompletion(typ uint16, latencyNs uint64, success bool)
	ObserveDrop()
	ObservePreempt(worker int)
	ObserveSLOOvershoot(typ uint16)
	ObserveQueueDepth(typ uint16, depth uint32)
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCompletion(uint16, uint64, bool) {}
func (NoOpObserver) ObserveDrop()                           {}
func (NoOpObserver) ObservePreempt(int)                     {}
func (NoOpObserver) ObserveSLOOvershoot(uint16)             {}
func (NoOpObserver) ObserveQueueDepth(uint16, uint32)       {}

// workerState is the dispatcher's bookkeeping for one worker, mirroring
// the distilled spec's timestamps[i]/preemptCheck[i] pair.
type workerState struct {
	req          *mailbox.DispatcherRequest
	resp         *mailbox.WorkerResponse
	dispatchedAt time.Time
	preemptCheck bool
}

// Preempter is implemented by the worker package's Worker; kept as an
// interface so Dispatcher never imports worker (which would import
// dispatcher's sibling packages right back), and so tests can use a
// trivial fake.
type Preempter interface {
	Preempt()
}

// Config configures a Dispatcher.
type Config struct {
	QueueSettings   []bool // per-type: true = preempted task re-enters at queue head
	PreemptionDelay time.Duration
	Clock           Clock
	Observer        Observer
}

// Dispatcher runs the single scheduling loop described in the
// component design: handleWorker for every worker, then
// handleNetworker, every iteration, forever.
type Dispatcher struct {
	workers   []workerState
	preempter []Preempter
	tskq      *taskqueue.TSKQ
	netMB     *mailbox.NetworkerMailbox

	queueSettings   []bool
	preemptionDelay time.Duration
	clock           Clock
	observer        Observer

	freedCount int32
}

// New builds a Dispatcher. reqs/resps/preempters must all have the
// same length (one entry per worker), and tskq.NumTypes() must equal
// len(cfg.QueueSettings).
func New(reqs []*mailbox.DispatcherRequest, resps []*mailbox.WorkerResponse, preempters []Preempter, tskq *taskqueue.TSKQ, netMB *mailbox.NetworkerMailbox, cfg Config) *Dispatcher {
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	obs := cfg.Observer
	if obs == nil {
		obs = NoOpObserver{}
	}

	workers := make([]workerState, len(reqs))
	for i := range workers {
		workers[i] = workerState{req: reqs[i], resp: resps[i]}
	}

	return &Dispatcher{
		workers:         workers,
		preempter:       preempters,
		tskq:            tskq,
		netMB:           netMB,
		queueSettings:   cfg.QueueSettings,
		preemptionDelay: cfg.PreemptionDelay,
		clock:           clock,
		observer:        obs,
	}
}

// FreedCount reports how many FINISHED requests this Dispatcher has
// retired since construction.
func (d *Dispatcher) FreedCount() int32 { return d.freedCount }

// RunOnce executes one full scheduling iteration: handleWorker for
// every worker, then handleNetworker.
func (d *Dispatcher) RunOnce() {
	curTime := d.clock.Now()
	for i := range d.workers {
		d.handleWorker(i, curTime)
	}
	d.handleNetworker(curTime)
}

func (d *Dispatcher) handleWorker(i int, t time.Time) {
	w := &d.workers[i]
	switch w.resp.LoadFlag() {
	case mailbox.Running:
		if w.preemptCheck && d.preemptionDelay > 0 && t.Sub(w.dispatchedAt) > d.preemptionDelay {
			w.preemptCheck = false
			d.preempter[i].Preempt()
			d.observer.ObservePreempt(i)
		}
		return

	case mailbox.Finished:
		latencyNs := uint64(w.resp.Timestamp.Sub(w.dispatchedAt))
		d.observer.ObserveCompletion(w.resp.Type, latencyNs, true)
		d.freedCount++
		w.resp.SetFlag(mailbox.Processed)

	case mailbox.Preempted:
		typ := w.resp.Type
		head := d.queueSettings != nil && int(typ) < len(d.queueSettings) && d.queueSettings[typ]
		if head {
			d.tskq.EnqueueHead(typ, w.resp.Runnable, w.resp.Request, taskqueue.CategoryContext, t)
		} else {
			d.tskq.EnqueueTail(typ, w.resp.Runnable, w.resp.Request, taskqueue.CategoryContext, t)
		}
		w.resp.SetFlag(mailbox.Processed)

	case mailbox.Processed:
		// already idle, fall through to dispatch

	default:
		return
	}

	d.dispatch(i, t)
}

// dispatch hands worker i its next task via SmartDequeue, if any queue
// is non-empty (a lone queued task is taken even at score 0); otherwise
// the worker is left idle.
func (d *Dispatcher) dispatch(i int, t time.Time) {
	task, ok := d.tskq.SmartDequeue(t)
	if !ok {
		return
	}
	w := &d.workers[i]
	w.req.Runnable = task.Runnable
	w.req.Request = task.Request
	w.req.Type = task.Type
	w.req.Category = task.Category
	w.req.EnqueuedAt = task.EnqueuedAt
	w.dispatchedAt = t
	w.preemptCheck = true
	w.resp.SetFlag(mailbox.Running)
	w.req.SetFlag(mailbox.Active)
}

// handleNetworker drains the networker's mailbox, enqueuing every
// reassembled request onto its type's TSKQ tail, then publishes
// FreeCnt and clears Cnt so the networker can reuse the slots.
func (d *Dispatcher) handleNetworker(curTime time.Time) {
	cnt := d.netMB.Cnt.Load()
	if cnt == 0 {
		return
	}

	for i := int32(0); i < cnt; i++ {
		req := d.netMB.Pkts[i]
		if req == nil {
			continue
		}
		typ := d.netMB.Types[i]
		if int(typ) >= d.tskq.NumTypes() {
			d.netMB.Pkts[i] = nil // type outside [0, numPorts): malformed, dropped
			continue
		}
		d.tskq.EnqueueTail(typ, nil, req, taskqueue.CategoryPacket, curTime)
		d.netMB.Pkts[i] = nil
		d.observer.ObserveQueueDepth(typ, uint32(d.tskq.Len(typ)))
	}

	d.netMB.FreeCnt.Store(cnt)
	d.netMB.Cnt.Store(0)
}
