package nic

import "testing"

func TestLoopbackPairSendRecv(t *testing.T) {
	a, b := NewLoopbackPair()

	if err := a.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := b.Pending(); got != 1 {
		t.Fatalf("expected 1 pending packet on b, got %d", got)
	}

	bufs := [][]byte{make([]byte, 16)}
	n, err := b.RecvBatch(bufs)
	if err != nil {
		t.Fatalf("RecvBatch: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 packet received, got %d", n)
	}
	if string(bufs[0][:5]) != "hello" {
		t.Errorf("expected payload %q, got %q", "hello", bufs[0][:5])
	}
}

func TestLoopbackRecvBatchPartialDrain(t *testing.T) {
	a, b := NewLoopbackPair()
	a.Send([]byte("1"))
	a.Send([]byte("2"))
	a.Send([]byte("3"))

	bufs := [][]byte{make([]byte, 4)}
	n, _ := b.RecvBatch(bufs)
	if n != 1 {
		t.Fatalf("expected to drain 1 packet with a 1-slot batch, got %d", n)
	}
	if b.Pending() != 2 {
		t.Fatalf("expected 2 packets still pending, got %d", b.Pending())
	}
}

func TestLoopbackRecvBatchEmpty(t *testing.T) {
	_, b := NewLoopbackPair()
	bufs := [][]byte{make([]byte, 4)}
	n, err := b.RecvBatch(bufs)
	if err != nil || n != 0 {
		t.Fatalf("expected (0, nil) on empty queue, got (%d, %v)", n, err)
	}
}

func TestLoopbackIsBidirectional(t *testing.T) {
	a, b := NewLoopbackPair()
	b.Send([]byte("reply"))

	bufs := [][]byte{make([]byte, 16)}
	n, _ := a.RecvBatch(bufs)
	if n != 1 || string(bufs[0][:5]) != "reply" {
		t.Fatalf("expected a to receive b's reply, got n=%d buf=%q", n, bufs[0])
	}
}
