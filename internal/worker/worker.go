// Package worker implements the worker loop: a busy-wait on its inbox,
// running or resuming a request body inside a workctx.Context, and
// publishing the outcome to its outbox.
package worker

import (
	"runtime"
	"sync"
	"time"

	"github.com/nanodispatch/dispatchd/internal/mailbox"
	"github.com/nanodispatch/dispatchd/internal/mempool"
	"github.com/nanodispatch/dispatchd/internal/nic"
	"github.com/nanodispatch/dispatchd/internal/reassembly"
	"github.com/nanodispatch/dispatchd/internal/taskqueue"
	"github.com/nanodispatch/dispatchd/internal/uapi"
	"github.com/nanodispatch/dispatchd/internal/workctx"
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface{ Now() time.Time }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Observer is notified when a request body panics instead of
// returning; satisfied by the root package's Metrics-backed Observer or
// a test double. Kept as a narrow local interface, the same way
// internal/dispatcher defines its own Observer, so this package never
// imports the root package (which imports this one).
type Observer interface {
	ObserveDrop()
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveDrop() {}

// RequestBody builds the Body a Context runs for one request, given the
// calibrated iteration count. Exposed as a var so tests can substitute
// a cheap, deterministically-preemptible body.
var RequestBody = func(numIter uint64) workctx.Body {
	return func(yield func()) {
		for i := uint64(0); i < numIter; i++ {
			yield()
		}
	}
}

// Config configures a Worker.
type Config struct {
	Index              int
	CyclesPerIteration uint64
	Clock              Clock

	// Transmitter is the NIC's send side, used to reply to a finished
	// request per the transmit path. A nil Transmitter (e.g. in unit
	// tests exercising RunOnce in isolation) makes sendReply a no-op.
	Transmitter nic.Transmitter
	// ResponsePool supplies the fixed-size reply buffers sendReply
	// fills and hands to Transmitter. A nil pool falls back to a plain
	// make([]byte, ...) allocation per reply.
	ResponsePool mempool.Allocator

	// Observer is notified when a request body panics. If nil,
	// NoOpObserver is used.
	Observer Observer
}

// Worker runs one pinned worker loop against a dispatcher<->worker
// mailbox pair.
type Worker struct {
	index         int
	req           *mailbox.DispatcherRequest
	resp          *mailbox.WorkerResponse
	pool          *workctx.Pool
	cyclesPerIter uint64
	clock         Clock
	tx            nic.Transmitter
	respPool      mempool.Allocator
	observer      Observer

	mu      sync.Mutex
	current *workctx.Context // the Context mid-Resume, if any; nil when idle
}

// New builds a Worker bound to the given mailbox pair. req is the
// dispatcher's outbox to this worker (this worker's inbox); resp is
// this worker's outbox.
func New(req *mailbox.DispatcherRequest, resp *mailbox.WorkerResponse, cfg Config) *Worker {
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}
	cycles := cfg.CyclesPerIteration
	if cycles == 0 {
		cycles = 1000
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NoOpObserver{}
	}
	return &Worker{
		index:         cfg.Index,
		req:           req,
		resp:          resp,
		pool:          workctx.NewPool(),
		cyclesPerIter: cycles,
		clock:         clock,
		tx:            cfg.Transmitter,
		respPool:      cfg.ResponsePool,
		observer:      observer,
	}
}

// Ready marks this worker's outbox PROCESSED, signaling the dispatcher
// it may start assigning work. Call once before the first RunOnce.
func (w *Worker) Ready() {
	w.resp.SetFlag(mailbox.Processed)
}

// RunOnce busy-waits for one task and runs it to completion or to its
// next preempt point, then publishes the outcome. Returns false if no
// task was waiting (callers looping should spin, not sleep, to match
// the dataplane's latency budget).
func (w *Worker) RunOnce() bool {
	if w.req.LoadFlag() != mailbox.Active {
		return false
	}
	w.req.SetFlag(mailbox.Waiting)

	typ := w.req.Type
	request := w.req.Request
	category := w.req.Category
	runnable := w.req.Runnable

	var ctx *workctx.Context
	var outcome workctx.Outcome

	switch category {
	case taskqueue.CategoryPacket:
		ctx = w.pool.Get()
		numIter := numIterations(request, w.cyclesPerIter)
		w.setCurrent(ctx)
		outcome = ctx.Resume(RequestBody(numIter))
	case taskqueue.CategoryContext:
		ctx = runnable.(*workctx.Context)
		w.setCurrent(ctx)
		outcome = ctx.Resume(nil)
	}
	w.setCurrent(nil)

	now := w.clock.Now()
	w.resp.Request = request
	w.resp.Type = typ
	w.resp.Timestamp = now

	switch outcome {
	case workctx.Returned:
		w.pool.Put(ctx)
		w.resp.Runnable = nil
		w.resp.SetFlag(mailbox.Finished)
		w.sendReply(request, typ)
	case workctx.Panicked:
		// A request body broke the no-panics-on-the-hot-path invariant.
		// It already ran to its (abnormal) end, so it's handled like
		// Returned except no reply is sent for a body that never
		// produced a result, and the panic is reported instead.
		w.pool.Put(ctx)
		w.resp.Runnable = nil
		w.resp.SetFlag(mailbox.Finished)
		w.observer.ObserveDrop()
	default:
		w.resp.Runnable = ctx
		w.resp.SetFlag(mailbox.Preempted)
	}
	return true
}

// sendReply implements the transmit path (§4.7): on completion, build a
// fixed-size reply header identifying the finished request and hand it
// to the NIC's transmit side. A nil request or a nil Transmitter is a
// no-op; a resumed CategoryContext task still carries its originating
// Request and is answered like any other.
func (w *Worker) sendReply(req *reassembly.Request, typ uint16) {
	if w.tx == nil || req == nil {
		return
	}

	var cell []byte
	if w.respPool != nil {
		buf, ok := w.respPool.Alloc()
		if !ok {
			return // response pool exhausted: drop the reply rather than block
		}
		cell = buf
	} else {
		cell = make([]byte, uapi.HeaderSize)
	}
	if len(cell) < uapi.HeaderSize {
		return
	}

	h := uapi.Header{
		Type:       typ,
		ClientID:   req.ClientID,
		ReqID:      req.ReqID,
		PktsLength: 1,
		RunNs:      req.RunNs,
		GenNs:      req.GenNs,
	}
	uapi.PutHeader(cell, &h)

	if err := w.tx.Send(cell[:uapi.HeaderSize]); err != nil && w.respPool != nil {
		w.respPool.Free(cell)
	}
}

func (w *Worker) setCurrent(ctx *workctx.Context) {
	w.mu.Lock()
	w.current = ctx
	w.mu.Unlock()
}

// Preempt requests whatever task this worker is currently running
// suspend at its next safe point; a no-op if the worker is idle. Safe
// to call from the dispatcher goroutine while this worker's RunOnce is
// concurrently executing.
func (w *Worker) Preempt() {
	w.mu.Lock()
	ctx := w.current
	w.mu.Unlock()
	if ctx != nil {
		ctx.Preempt()
	}
}

// Loop runs RunOnce forever, spinning when idle, until stop is closed.
func (w *Worker) Loop(stop <-chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	w.Ready()
	for {
		select {
		case <-stop:
			return
		default:
			w.RunOnce()
		}
	}
}

// numIterations converts the request's RunNs hint into an iteration
// count via the calibrated cycles-per-iteration constant. A request
// with no RunNs hint (or cyclesPerIter == 0) runs a single iteration
// rather than spinning forever.
func numIterations(req *reassembly.Request, cyclesPerIter uint64) uint64 {
	if req == nil || cyclesPerIter == 0 || req.RunNs == 0 {
		return 1
	}
	n := req.RunNs / cyclesPerIter
	if n == 0 {
		n = 1
	}
	return n
}
