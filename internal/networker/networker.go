// Package networker implements the dataplane's network-facing loop: it
// pulls raw packets off a NIC, reassembles them into Requests, and
// hands finished Requests to the dispatcher through a shared mailbox.
// It only receives: replies are sent by the workers, not by the networker.
package networker

import (
	"runtime"
	"time"

	"github.com/nanodispatch/dispatchd/internal/mailbox"
	"github.com/nanodispatch/dispatchd/internal/mempool"
	"github.com/nanodispatch/dispatchd/internal/nic"
	"github.com/nanodispatch/dispatchd/internal/reassembly"
)

// Clock abstracts time.Now for deterministic tests.
type Clock interface{ Now() time.Time }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config configures a Networker.
type Config struct {
	Batch        int
	PacketSize   uint32
	RQConfig     reassembly.Config
	Clock        Clock
	CPU          int  // not read by the networker; Loop locks its goroutine to an OS thread without choosing a CPU
	Pin          bool // not read by the networker
}

// Networker owns the RQ and the NIC, and publishes reassembled Requests
// into a NetworkerMailbox for the dispatcher to drain.
type Networker struct {
	nic     nic.NIC
	rq      *reassembly.RQ
	mailbox *mailbox.NetworkerMailbox
	pktPool mempool.Allocator
	batch   int
	clock   Clock

	recvBufs [][]byte
}

// New builds a Networker. Received packets are read into Batch buffers of
// PacketSize bytes allocated here with make; pktDatastore is attached as
// pktPool, but RunOnce takes no buffers from it.
func New(n nic.NIC, mb *mailbox.NetworkerMailbox, pktDatastore *mempool.Datastore, cfg Config) *Networker {
	if cfg.Batch <= 0 {
		cfg.Batch = 32
	}
	clock := cfg.Clock
	if clock == nil {
		clock = systemClock{}
	}

	recvBufs := make([][]byte, cfg.Batch)
	for i := range recvBufs {
		recvBufs[i] = make([]byte, cfg.PacketSize)
	}

	return &Networker{
		nic:      n,
		rq:       reassembly.New(cfg.RQConfig),
		mailbox:  mb,
		pktPool:  pktDatastore.Attach(mempool.PerCPU),
		batch:    cfg.Batch,
		clock:    clock,
		recvBufs: recvBufs,
	}
}

// RunOnce executes one iteration of the networker's loop, described in
// the component design: wait for the dispatcher to drain the previous
// batch, free the dispatcher's processed requests, pull a batch of
// packets off the NIC, reassemble them, and publish any completed
// Requests to the mailbox.
//
//  1. Busy-wait while mailbox.Cnt != 0 — the dispatcher hasn't consumed
//     the last published batch yet, and since the networker and
//     dispatcher loops run as genuinely concurrent goroutines (not
//     serialized calls), publishing a new batch now would overwrite
//     Pkts/Types entries the dispatcher hasn't read, losing completed
//     Requests outright.
//  2. If mailbox.FreeCnt != 0, reclaim that many free-list slots (the
//     dispatcher already moved freed Requests there) and reset FreeCnt.
//  3. Poll the NIC for up to batch packets.
//  4. For each received packet, call RQ.Update.
//  5. Append any completed Request (with its type) to the mailbox.
//  6. Publish cnt with release semantics.
func (nw *Networker) RunOnce() {
	if nw.mailbox.Cnt.Load() != 0 {
		return // previous batch not yet drained; retry next iteration
	}

	nw.reclaimFreed()
	nw.rq.EvictExpired(nw.clock.Now())

	// Each packet completes at most one Request, so a batch no larger
	// than the mailbox can never complete more Requests than fit in it.
	batch := nw.batch
	if batch > len(nw.mailbox.Pkts) {
		batch = len(nw.mailbox.Pkts)
	}
	n, err := nw.nic.RecvBatch(nw.recvBufs[:batch])
	if err != nil || n == 0 {
		return
	}

	now := nw.clock.Now()
	cnt := 0
	for i := 0; i < n; i++ {
		req, ok := nw.rq.Update(now, nw.recvBufs[i])
		if !ok {
			continue
		}
		if cnt >= len(nw.mailbox.Pkts) {
			break // not reached: the receive batch is capped at the mailbox size
		}
		nw.mailbox.Pkts[cnt] = req
		nw.mailbox.Types[cnt] = req.Type
		cnt++
	}
	if cnt > 0 {
		nw.mailbox.Cnt.Store(int32(cnt))
	}
}

// reclaimFreed drains the dispatcher's free-list count. Requests
// themselves are ordinary Go values collected by the GC once
// unreferenced; FreeCnt only needs to be observed and cleared so the
// dispatcher knows its free-list writes were seen.
func (nw *Networker) reclaimFreed() {
	if nw.mailbox.FreeCnt.Load() == 0 {
		return
	}
	nw.mailbox.FreeCnt.Store(0)
}

// Loop runs RunOnce forever until stop is closed. It locks the calling
// goroutine to its OS thread for its duration (no CPU affinity is set),
// matching the dispatcher/worker convention.
func (nw *Networker) Loop(stop <-chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-stop:
			return
		default:
			nw.RunOnce()
		}
	}
}
