package dispatchd

import (
	"errors"
	"fmt"
)

// Error represents a structured scheduler error with enough context to
// distinguish a routine, expected failure (mempool exhaustion) from one
// that indicates a broken invariant and should page someone.
type Error struct {
	Op       string    // Operation that failed (e.g., "reassembly.Update", "nic.Send")
	ClientID uint16     // Client ID (0 if not applicable)
	Worker   int        // Worker index (-1 if not applicable)
	Code     ErrorCode  // High-level error category
	Msg      string     // Human-readable message
	Inner    error      // Wrapped error
}

func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.ClientID != 0 {
		parts = append(parts, fmt.Sprintf("client=%d", e.ClientID))
	}
	if e.Worker >= 0 {
		parts = append(parts, fmt.Sprintf("worker=%d", e.Worker))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("dispatchd: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("dispatchd: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is supports errors.Is comparison against a bare ErrorCode or another
// *Error with the same Code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if code, ok := target.(ErrorCode); ok {
		return e.Code == code
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is the scheduler's error taxonomy. Every failure mode
// called out in the component contracts (mempool exhaustion, a
// malformed wire header, a NIC send failure, a setup-time failure, and
// a broken invariant) maps to exactly one of these.
type ErrorCode string

func (c ErrorCode) Error() string { return string(c) }

const (
	// ErrTransientAlloc is mempool exhaustion: the caller should drop
	// the current work item and continue, not retry in a loop.
	ErrTransientAlloc ErrorCode = "transient_alloc"
	// ErrMalformedPacket is a wire header that failed to parse or
	// referenced a request type outside [0, numPorts).
	ErrMalformedPacket ErrorCode = "malformed_packet"
	// ErrNICSendFail is a failure handing a packet to the NIC's
	// Transmitter.
	ErrNICSendFail ErrorCode = "nic_send_fail"
	// ErrInitFailure covers setup-time failures: CPU affinity pinning,
	// listener binding, config validation.
	ErrInitFailure ErrorCode = "init_failure"
	// ErrInvariantViolation marks a broken scheduler invariant (e.g. a
	// Request found in two places at once, a worker response with an
	// unrecognized flag). The coroutine's top-level recovers a panic
	// into this code rather than taking the whole process down.
	ErrInvariantViolation ErrorCode = "invariant_violation"
)

// NewError creates a structured error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Worker: -1, Code: code, Msg: msg}
}

// NewWorkerError creates a structured error attributed to a specific worker.
func NewWorkerError(op string, worker int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Worker: worker, Code: code, Msg: msg}
}

// NewClientError creates a structured error attributed to a specific client.
func NewClientError(op string, clientID uint16, code ErrorCode, msg string) *Error {
	return &Error{Op: op, ClientID: clientID, Worker: -1, Code: code, Msg: msg}
}

// WrapError wraps an existing error with scheduler context. A plain error
// is given code; an *Error keeps its own code, client and worker, and
// code is ignored.
func WrapError(op string, code ErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	if e, ok := inner.(*Error); ok {
		return &Error{Op: op, ClientID: e.ClientID, Worker: e.Worker, Code: e.Code, Msg: e.Msg, Inner: e.Inner}
	}
	return &Error{Op: op, Worker: -1, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err (or any error it wraps) carries code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
