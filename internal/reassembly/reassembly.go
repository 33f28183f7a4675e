// Package reassembly implements the request reassembly queue (RQ): it
// groups wire fragments that share a (client_id, req_id) pair into a
// single Request, handing the Request to its caller the instant the
// last fragment arrives. Single-fragment requests are the common case
// and bypass cell bookkeeping entirely.
package reassembly

import (
	"container/list"
	"time"

	"github.com/nanodispatch/dispatchd/internal/constants"
	"github.com/nanodispatch/dispatchd/internal/uapi"
)

// Request is one fully reassembled logical RPC.
type Request struct {
	ClientID uint16
	ReqID    uint32
	Type     uint16
	RunNs    uint64 // requested service time, converted to an iteration count by the worker
	GenNs    uint64
	Packets  [][]byte // fragments indexed by wire SeqNum, not arrival order
}

// cell tracks an in-progress reassembly for one (ClientID, ReqID).
type cell struct {
	key                key
	fragmentsRemaining uint32
	req                *Request
	insertedAt         time.Time
	elem               *list.Element // this cell's node in RQ.order
}

type key struct {
	clientID uint16
	reqID    uint32
}

// RQ is the request reassembly queue. Zero value is not usable; build
// one with New.
type RQ struct {
	cells             map[key]*cell
	order             *list.List // oldest-first; front is oldest
	maxCells          int
	reassemblyTimeout time.Duration
}

// Config controls eviction behavior, resolving the reassembly-timeout
// open question: by default cells never expire (ReassemblyTimeout == 0)
// and only MaxCells bounds memory, evicting the single oldest cell
// on insert when the new cell would exceed it.
type Config struct {
	MaxCells          int
	ReassemblyTimeout time.Duration
}

// DefaultConfig returns the no-eviction-by-age default.
func DefaultConfig() Config {
	return Config{MaxCells: 4096, ReassemblyTimeout: 0}
}

// New builds an RQ. cfg controls cell-count and age-based eviction; the
// zero Config is invalid, use DefaultConfig as a base.
//
// Cell and Request bookkeeping structs are plain heap allocations: they
// are small, short-lived (microseconds to a few milliseconds), and
// distinct per in-flight request, so pooling them would trade a GC
// allocation for map/slab bookkeeping without a measurable win. Packet
// payload bytes are not copied: each Request's Packets entries are
// subslices of the packet buffers passed to Update.
func New(cfg Config) *RQ {
	if cfg.MaxCells <= 0 {
		cfg.MaxCells = DefaultConfig().MaxCells
	}
	return &RQ{
		cells:             make(map[key]*cell),
		order:             list.New(),
		maxCells:          cfg.MaxCells,
		reassemblyTimeout: cfg.ReassemblyTimeout,
	}
}

// Update parses packet's header and folds it into the reassembly state.
// It returns a completed Request and true the moment the last fragment
// of some (client_id, req_id) arrives; otherwise it returns (nil,
// false), including when the header is malformed, declares more than
// constants.MaxFragmentsPerRequest fragments, or carries a seq_num
// outside its fragment count (the packet is dropped).
//
// Fragments are stored positionally by h.SeqNum, not arrival order —
// grounded on original_source/dp/core/requestqueue.c's
// `rc->req->mbufs[seq_num] = pkt`, the ground truth this wire format
// was distilled from. Arrival order and seq_num order are not
// guaranteed to match (reordering between a client's fragment send and
// the networker's receive is exactly what scenario S2 exercises), so
// appending in arrival order would silently scramble the reassembled
// payload whenever a reorder occurred.
func (rq *RQ) Update(now time.Time, packet []byte) (*Request, bool) {
	h, err := uapi.UnmarshalHeader(packet)
	if err != nil {
		return nil, false
	}
	payload := packet[uapi.HeaderSize:]

	if h.PktsLength <= 1 {
		return &Request{
			ClientID: h.ClientID,
			ReqID:    h.ReqID,
			Type:     h.Type,
			RunNs:    h.RunNs,
			GenNs:    h.GenNs,
			Packets:  [][]byte{payload},
		}, true
	}

	if h.PktsLength > constants.MaxFragmentsPerRequest {
		return nil, false // more fragments than a Request may hold: malformed
	}
	if uint32(h.SeqNum) >= h.PktsLength {
		return nil, false // seq_num outside the declared fragment count: malformed
	}

	k := key{clientID: h.ClientID, reqID: h.ReqID}
	c, found := rq.cells[k]
	if !found {
		// First fragment of a new request: fragmentsRemaining already
		// accounts for the one we're about to store.
		if rq.maxCells > 0 && len(rq.cells) >= rq.maxCells {
			rq.evictOldest()
		}
		c = &cell{
			key:                k,
			fragmentsRemaining: h.PktsLength - 1,
			insertedAt:         now,
			req: &Request{
				ClientID: h.ClientID,
				ReqID:    h.ReqID,
				Type:     h.Type,
				RunNs:    h.RunNs,
				GenNs:    h.GenNs,
				Packets:  make([][]byte, h.PktsLength),
			},
		}
		c.elem = rq.order.PushBack(c)
		rq.cells[k] = c
		c.req.Packets[h.SeqNum] = payload
		return nil, false
	}

	c.req.Packets[h.SeqNum] = payload
	c.fragmentsRemaining--
	if c.fragmentsRemaining == 0 {
		rq.remove(c)
		return c.req, true
	}
	return nil, false
}

// EvictExpired removes and drops every cell older than ReassemblyTimeout
// as of now. It is a no-op when ReassemblyTimeout is 0 (the default:
// reassembly cells never age out). Callers typically invoke this once
// per networker loop iteration.
func (rq *RQ) EvictExpired(now time.Time) int {
	if rq.reassemblyTimeout <= 0 {
		return 0
	}
	evicted := 0
	for e := rq.order.Front(); e != nil; {
		c := e.Value.(*cell)
		if now.Sub(c.insertedAt) < rq.reassemblyTimeout {
			break // front is oldest; nothing behind it is expired yet either
		}
		next := e.Next()
		rq.remove(c)
		evicted++
		e = next
	}
	return evicted
}

// evictOldest drops the single oldest in-progress cell to make room for
// a new one, per the MaxCells bound.
func (rq *RQ) evictOldest() {
	e := rq.order.Front()
	if e == nil {
		return
	}
	rq.remove(e.Value.(*cell))
}

func (rq *RQ) remove(c *cell) {
	rq.order.Remove(c.elem)
	delete(rq.cells, c.key)
}

// Len reports the number of in-progress reassembly cells.
func (rq *RQ) Len() int { return len(rq.cells) }
