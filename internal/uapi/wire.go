// Package uapi defines the on-the-wire request header exchanged between
// clients and the dispatcher's networker, and the manual marshaling
// routines that (de)serialize it. The header is fixed-size and
// little-endian so that a networker and a client built for different
// architectures agree on its bytes without relying on Go's struct
// layout, which is compiler- and platform-dependent.
package uapi

import "encoding/binary"

// NumQueueLengths is the number of TSKQ occupancy counters the header
// carries, one per request type the sender currently has queued on its
// side of the wire. The networker and dispatcher carry these values
// but do not read them.
const NumQueueLengths = 3

// HeaderSize is the fixed, wire-exact size of Header in bytes.
const HeaderSize = 2 + 2 + 4*NumQueueLengths + 2 + 4 + 4 + 8 + 8

// Header is the fixed portion of every request/response sent between a
// client and the networker. It precedes the raw packet payload bytes
// of one fragment (one of PktsLength fragments) on the wire.
//
//	type           u16   request type / port number (selects a TSKQ)
//	seq_num        u16   index of this fragment within the request, 0..pkts_length-1
//	queue_length   u32x3 sender-side queue occupancy, one slot per type
//	client_id      u16   identifies the originating connection
//	req_id         u32   identifies the request within the client
//	pkts_length    u32   total fragment count for this request
//	run_ns         u64   requested service time (set by sender; echoed in the reply)
//	gen_ns         u64   timestamp the request was generated (sender clock)
type Header struct {
	Type        uint16
	SeqNum      uint16
	QueueLength [NumQueueLengths]uint32
	ClientID    uint16
	ReqID       uint32
	PktsLength  uint32 // fragment count for this request, not byte length
	RunNs       uint64
	GenNs       uint64
}

// MarshalError is a sentinel error type for (de)serialization failures,
// matching the comparable-string-error idiom used elsewhere in this tree.
type MarshalError string

func (e MarshalError) Error() string { return string(e) }

// ErrShortBuffer is returned by UnmarshalHeader when the supplied slice
// is too small to hold a complete Header.
const ErrShortBuffer MarshalError = "uapi: buffer too short for header"

// MarshalHeader encodes h into a freshly allocated HeaderSize-byte slice.
func MarshalHeader(h *Header) []byte {
	buf := make([]byte, HeaderSize)
	PutHeader(buf, h)
	return buf
}

// PutHeader encodes h into buf, which must be at least HeaderSize bytes.
// It panics if buf is too short, matching binary.LittleEndian's own
// bounds-checking convention for Put* helpers.
func PutHeader(buf []byte, h *Header) {
	_ = buf[HeaderSize-1]

	off := 0
	binary.LittleEndian.PutUint16(buf[off:], h.Type)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:], h.SeqNum)
	off += 2
	for i := range h.QueueLength {
		binary.LittleEndian.PutUint32(buf[off:], h.QueueLength[i])
		off += 4
	}
	binary.LittleEndian.PutUint16(buf[off:], h.ClientID)
	off += 2
	binary.LittleEndian.PutUint32(buf[off:], h.ReqID)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.PktsLength)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.RunNs)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.GenNs)
}

// UnmarshalHeader decodes a Header from the front of buf.
func UnmarshalHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, ErrShortBuffer
	}

	off := 0
	h.Type = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	h.SeqNum = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	for i := range h.QueueLength {
		h.QueueLength[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
	h.ClientID = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	h.ReqID = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.PktsLength = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.RunNs = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.GenNs = binary.LittleEndian.Uint64(buf[off:])

	return h, nil
}
