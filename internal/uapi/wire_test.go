package uapi

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Type:        3,
		SeqNum:      17,
		QueueLength: [NumQueueLengths]uint32{4, 0, 129},
		ClientID:    99,
		ReqID:       123456,
		PktsLength:  1500,
		RunNs:       9000,
		GenNs:       1234567890,
	}

	buf := MarshalHeader(&h)
	if len(buf) != HeaderSize {
		t.Fatalf("expected %d bytes, got %d", HeaderSize, len(buf))
	}

	got, err := UnmarshalHeader(buf)
	if err != nil {
		t.Fatalf("UnmarshalHeader: %v", err)
	}
	if got != h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestPutHeaderIntoLargerBuffer(t *testing.T) {
	h := Header{Type: 1, SeqNum: 2, ClientID: 3, ReqID: 4, PktsLength: 5}
	buf := make([]byte, HeaderSize+64)
	PutHeader(buf, &h)

	got, err := UnmarshalHeader(buf)
	if err != nil {
		t.Fatalf("UnmarshalHeader: %v", err)
	}
	if got != h {
		t.Errorf("got %+v, want %+v", got, h)
	}
}

func TestUnmarshalHeaderShortBuffer(t *testing.T) {
	_, err := UnmarshalHeader(make([]byte, HeaderSize-1))
	if err != ErrShortBuffer {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
}

func TestUnmarshalHeaderEmptyBuffer(t *testing.T) {
	_, err := UnmarshalHeader(nil)
	if err != ErrShortBuffer {
		t.Errorf("expected ErrShortBuffer, got %v", err)
	}
}
