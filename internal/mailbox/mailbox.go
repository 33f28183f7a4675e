// Package mailbox defines the fixed records the dispatcher, workers,
// and networker hand work through. Each record type has exactly one
// writer and one reader at any moment (the dispatcher and one worker
// for a DispatcherRequest/WorkerResponse pair; the networker and the
// dispatcher for the NetworkerMailbox) — a single-writer/single-reader
// discipline enforced by construction, not by a mutex. The "flag" field
// of each record is the handoff signal: the writer sets it last with an
// atomic Store (release), the reader checks it first with an atomic
// Load (acquire), and the Go memory model guarantees every plain field
// written before the Store is visible once the Load observes it. That
// replaces the explicit sfence/mfence barriers the original C dataplane
// needs; Go's atomics already carry the acquire/release semantics.
package mailbox

import (
	"sync/atomic"
	"time"

	"github.com/nanodispatch/dispatchd/internal/reassembly"
	"github.com/nanodispatch/dispatchd/internal/taskqueue"
)

// cacheLinePad is sized so a mailbox record, plus this padding, spans at
// least one full cache line on common 64-bit architectures, keeping
// neighboring workers' records from sharing a line.
const cacheLinePad = 64

// RequestFlag is the dispatcher->worker handoff state.
type RequestFlag int32

const (
	Waiting RequestFlag = iota
	Active
)

// ResponseFlag is the worker->dispatcher handoff state.
type ResponseFlag int32

const (
	Running ResponseFlag = iota
	Processed
	Finished
	Preempted
)

// DispatcherRequest is worker i's inbox: the dispatcher publishes a task
// into it and flips Flag to Active; the worker loop busy-waits on Flag
// and clears it back to Waiting once claimed.
type DispatcherRequest struct {
	Flag       atomic.Int32 // RequestFlag
	Runnable   any
	Request    *reassembly.Request
	Type       uint16
	Category   taskqueue.Category
	EnqueuedAt time.Time

	_ [cacheLinePad]byte
}

// SetFlag stores flag with release semantics.
func (r *DispatcherRequest) SetFlag(flag RequestFlag) { r.Flag.Store(int32(flag)) }

// LoadFlag loads the flag with acquire semantics.
func (r *DispatcherRequest) LoadFlag() RequestFlag { return RequestFlag(r.Flag.Load()) }

// WorkerResponse is worker i's outbox: the worker publishes the outcome
// of the task it was handed and flips Flag to Finished or Preempted;
// the dispatcher polls Flag each iteration of handleWorker.
type WorkerResponse struct {
	Flag      atomic.Int32 // ResponseFlag
	Runnable  any
	Request   *reassembly.Request
	Type      uint16
	Category  taskqueue.Category
	Timestamp time.Time

	_ [cacheLinePad]byte
}

func (r *WorkerResponse) SetFlag(flag ResponseFlag) { r.Flag.Store(int32(flag)) }
func (r *WorkerResponse) LoadFlag() ResponseFlag    { return ResponseFlag(r.Flag.Load()) }

// NetworkerMailbox is the single shared handoff record between the
// networker and the dispatcher. The networker fills the Pkts/Types
// arrays and publishes Cnt; the dispatcher clears Cnt back to zero once
// it has drained them. The dispatcher publishes FreeCnt and the
// networker resets it to zero once observed. Both fields use atomic
// Store/Load for the release/acquire pairing described in the package doc.
type NetworkerMailbox struct {
	Cnt     atomic.Int32
	FreeCnt atomic.Int32
	Pkts    []*reassembly.Request
	Types   []uint16
}

// NewNetworkerMailbox allocates a mailbox whose Pkts/Types arrays can
// hold up to batch entries.
func NewNetworkerMailbox(batch int) *NetworkerMailbox {
	return &NetworkerMailbox{
		Pkts:  make([]*reassembly.Request, batch),
		Types: make([]uint16, batch),
	}
}
