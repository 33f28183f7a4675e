package reassembly

import (
	"testing"
	"time"

	"github.com/nanodispatch/dispatchd/internal/uapi"
)

func packet(t *testing.T, h uapi.Header, payload []byte) []byte {
	t.Helper()
	buf := uapi.MarshalHeader(&h)
	return append(buf, payload...)
}

func TestUpdateSingleFragmentRequest(t *testing.T) {
	rq := New(DefaultConfig())
	h := uapi.Header{Type: 1, ClientID: 5, ReqID: 10, PktsLength: 1, GenNs: 42}
	pkt := packet(t, h, []byte("hello"))

	req, ok := rq.Update(time.Now(), pkt)
	if !ok {
		t.Fatal("expected single-fragment request to complete immediately")
	}
	if req.ClientID != 5 || req.ReqID != 10 {
		t.Errorf("unexpected request identity: %+v", req)
	}
	if string(req.Packets[0]) != "hello" {
		t.Errorf("unexpected payload: %q", req.Packets[0])
	}
	if rq.Len() != 0 {
		t.Errorf("expected no cells left over, got %d", rq.Len())
	}
}

func TestUpdateMultiFragmentRequest(t *testing.T) {
	rq := New(DefaultConfig())
	base := uapi.Header{Type: 2, ClientID: 1, ReqID: 99, PktsLength: 3}

	now := time.Now()
	seq := func(n uint16) uapi.Header { h := base; h.SeqNum = n; return h }

	if _, ok := rq.Update(now, packet(t, seq(0), []byte("a"))); ok {
		t.Fatal("first fragment should not complete the request")
	}
	if rq.Len() != 1 {
		t.Fatalf("expected one in-progress cell, got %d", rq.Len())
	}

	if _, ok := rq.Update(now, packet(t, seq(1), []byte("b"))); ok {
		t.Fatal("second fragment should not complete the request")
	}

	req, ok := rq.Update(now, packet(t, seq(2), []byte("c")))
	if !ok {
		t.Fatal("third fragment should complete the request")
	}
	if len(req.Packets) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(req.Packets))
	}
	if string(req.Packets[0]) != "a" || string(req.Packets[1]) != "b" || string(req.Packets[2]) != "c" {
		t.Fatalf("expected fragments positioned by seq_num, got %q %q %q",
			req.Packets[0], req.Packets[1], req.Packets[2])
	}
	if rq.Len() != 0 {
		t.Errorf("expected cell to be cleaned up, got %d cells", rq.Len())
	}
}

// TestUpdateOutOfOrderFragmentsReassembledBySeqNum is scenario S2:
// fragments that arrive in a different order than their seq_num must
// still end up positioned correctly, since delivery order and seq_num
// order are not guaranteed to match.
func TestUpdateOutOfOrderFragmentsReassembledBySeqNum(t *testing.T) {
	rq := New(DefaultConfig())
	base := uapi.Header{Type: 2, ClientID: 1, ReqID: 99, PktsLength: 3}
	now := time.Now()
	seq := func(n uint16) uapi.Header { h := base; h.SeqNum = n; return h }

	// Arrival order is 2, 0, 1 — the reverse-ish of seq_num order.
	rq.Update(now, packet(t, seq(2), []byte("third")))
	rq.Update(now, packet(t, seq(0), []byte("first")))
	req, ok := rq.Update(now, packet(t, seq(1), []byte("second")))
	if !ok {
		t.Fatal("expected the request to complete once all 3 fragments arrived")
	}
	if string(req.Packets[0]) != "first" || string(req.Packets[1]) != "second" || string(req.Packets[2]) != "third" {
		t.Fatalf("expected fragments reassembled in seq_num order regardless of arrival order, got %q %q %q",
			req.Packets[0], req.Packets[1], req.Packets[2])
	}
}

func TestUpdateSeqNumOutOfRangeDropped(t *testing.T) {
	rq := New(DefaultConfig())
	h := uapi.Header{ClientID: 1, ReqID: 1, PktsLength: 2, SeqNum: 2}
	if _, ok := rq.Update(time.Now(), packet(t, h, []byte("x"))); ok {
		t.Fatal("expected a seq_num >= pkts_length to be dropped as malformed")
	}
	if rq.Len() != 0 {
		t.Errorf("expected no cell created for a malformed fragment, got %d", rq.Len())
	}
}

func TestUpdateInterleavedRequests(t *testing.T) {
	rq := New(DefaultConfig())
	reqA := uapi.Header{ClientID: 1, ReqID: 1, PktsLength: 2}
	reqB := uapi.Header{ClientID: 2, ReqID: 1, PktsLength: 2}

	now := time.Now()
	rq.Update(now, packet(t, reqA, []byte("a0")))
	rq.Update(now, packet(t, reqB, []byte("b0")))
	if rq.Len() != 2 {
		t.Fatalf("expected 2 distinct cells, got %d", rq.Len())
	}

	reqA1 := reqA
	reqA1.SeqNum = 1
	req, ok := rq.Update(now, packet(t, reqA1, []byte("a1")))
	if !ok || req.ClientID != 1 {
		t.Fatalf("expected client 1's request to complete, got %+v ok=%v", req, ok)
	}
	if rq.Len() != 1 {
		t.Fatalf("expected client 2's cell to remain, got %d", rq.Len())
	}
}

func TestUpdateMaxCellsEvictsOldest(t *testing.T) {
	rq := New(Config{MaxCells: 2})
	now := time.Now()

	rq.Update(now, packet(t, uapi.Header{ClientID: 1, ReqID: 1, PktsLength: 2}, []byte("x")))
	rq.Update(now, packet(t, uapi.Header{ClientID: 2, ReqID: 1, PktsLength: 2}, []byte("x")))
	// Third distinct in-progress request should evict client 1's cell.
	rq.Update(now, packet(t, uapi.Header{ClientID: 3, ReqID: 1, PktsLength: 2}, []byte("x")))

	if rq.Len() != 2 {
		t.Fatalf("expected cell count capped at 2, got %d", rq.Len())
	}

	// Completing client 1's request should not find a cell (it was evicted).
	if _, ok := rq.Update(now, packet(t, uapi.Header{ClientID: 1, ReqID: 1, PktsLength: 2, SeqNum: 1}, []byte("y"))); ok {
		t.Fatal("did not expect client 1's evicted request to complete")
	}
}

func TestEvictExpiredDisabledByDefault(t *testing.T) {
	rq := New(DefaultConfig())
	now := time.Now()
	rq.Update(now, packet(t, uapi.Header{ClientID: 1, ReqID: 1, PktsLength: 2}, []byte("x")))

	if n := rq.EvictExpired(now.Add(time.Hour)); n != 0 {
		t.Errorf("expected no-op eviction with timeout disabled, evicted %d", n)
	}
	if rq.Len() != 1 {
		t.Errorf("expected cell to survive, got %d cells", rq.Len())
	}
}

func TestEvictExpiredRemovesStaleCells(t *testing.T) {
	rq := New(Config{MaxCells: 10, ReassemblyTimeout: 10 * time.Millisecond})
	now := time.Now()
	rq.Update(now, packet(t, uapi.Header{ClientID: 1, ReqID: 1, PktsLength: 2}, []byte("x")))

	if n := rq.EvictExpired(now.Add(20 * time.Millisecond)); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if rq.Len() != 0 {
		t.Errorf("expected cell removed, got %d cells", rq.Len())
	}
}

func TestUpdateMalformedPacketDropped(t *testing.T) {
	rq := New(DefaultConfig())
	if _, ok := rq.Update(time.Now(), []byte("short")); ok {
		t.Fatal("expected malformed packet to be dropped, not completed")
	}
}
