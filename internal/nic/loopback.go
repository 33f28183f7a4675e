package nic

import "sync"

// LoopbackNIC is an in-memory test double for NIC, grounded on the
// teacher's sharded in-memory storage backend: instead of shuttling
// bytes to a device, it shuttles packets between two endpoints of a
// pipe through a mutex-guarded queue. Used by integration tests and the
// cmd/dispatchd demo mode that runs without a real network.
type LoopbackNIC struct {
	mu   sync.Mutex
	recv [][]byte // packets waiting to be RecvBatch'd by this endpoint
	peer *LoopbackNIC
}

// NewLoopbackPair returns two LoopbackNICs wired so that Send on one
// becomes a RecvBatch arrival on the other.
func NewLoopbackPair() (a, b *LoopbackNIC) {
	a = &LoopbackNIC{}
	b = &LoopbackNIC{}
	a.peer = b
	b.peer = a
	return a, b
}

// Send enqueues pkt on the peer endpoint's receive queue. The slice is
// copied so the caller is free to reuse or free its buffer immediately.
func (l *LoopbackNIC) Send(pkt []byte) error {
	cp := make([]byte, len(pkt))
	copy(cp, pkt)

	l.peer.mu.Lock()
	l.peer.recv = append(l.peer.recv, cp)
	l.peer.mu.Unlock()
	return nil
}

// RecvBatch drains up to len(bufs) queued packets, replacing each
// element of bufs with the exact-length packet received (the slices
// passed in are only used to size the batch; real NIC backends would
// instead copy into fixed buffers and report per-packet lengths, but
// loopback has no such constraint).
func (l *LoopbackNIC) RecvBatch(bufs [][]byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for n < len(bufs) && n < len(l.recv) {
		bufs[n] = l.recv[n]
		n++
	}
	l.recv = l.recv[n:]
	return n, nil
}

// Pending reports how many packets are queued but not yet received.
func (l *LoopbackNIC) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recv)
}
