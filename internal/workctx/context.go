// Package workctx implements the Context abstraction a worker hands a
// request body to run in. The original dataplane swaps CPU registers
// and stacks via ucontext/makecontext/swapcontext and preempts a
// running request with a hardware interrupt that forces a register
// swap at an arbitrary instruction. Go offers neither primitive: it
// cannot safely suspend a goroutine at an arbitrary point or swap its
// stack into another goroutine.
//
// The portable equivalent built here is a goroutine that lives for the
// Context's entire lifetime, handed a new Body each time it is resumed
// after finishing a previous one, and paused mid-stack — blocked inside
// its own call to yield, not returned — when a preempt is requested.
// Blocking inside the call preserves every local variable and the
// in-progress iteration exactly where the Body left off, which is what
// lets Resume continue it later without any saved registers: the Go
// runtime is already doing that bookkeeping for an ordinary blocked
// goroutine.
package workctx

import "sync/atomic"

// Outcome reports why Resume returned control to its caller.
type Outcome int

const (
	// Returned means the Body ran to completion.
	Returned Outcome = iota
	// Yielded means the Body called yield while a preempt was pending
	// and is now parked; Resume(nil) continues it from that point.
	Yielded
	// Panicked means the Body panicked; runBody's top-level recover caught
	// it before it could escape the goroutine and take the process
	// down with it. The recovered value is available from PanicValue.
	// The Context is left in the same finished state Returned leaves it
	// in — a panicked Body cannot be meaningfully resumed.
	Panicked
)

// Body is the request-execution kernel a Context runs. It must call
// yield periodically — at the same "safe points" the original request
// body already passed through once per loop iteration. yield blocks
// until the next Resume if (and only if) a preempt was pending.
type Body func(yield func())

// Context is a resumable, single-owner execution state: a goroutine
// plus the three channels used to hand it work, let it continue after a
// yield, and learn why it stopped.
// The zero value is not usable; construct one with New.
type Context struct {
	startCh    chan Body
	continueCh chan struct{}
	yieldCh    chan Outcome

	preempt atomic.Bool
	started bool
	done    bool

	panicValue any // set when the last Resume's Body panicked
}

// New creates a Context and starts its backing goroutine, parked
// waiting for the first Resume. There is no explicit shutdown: the
// goroutine stays parked on its channels for the life of the process,
// even after the Context itself is no longer referenced, and a Context
// is recycled through a Pool rather than discarded.
func New() *Context {
	c := &Context{
		startCh:    make(chan Body),
		continueCh: make(chan struct{}),
		yieldCh:    make(chan Outcome),
	}
	go c.loop()
	return c
}

func (c *Context) loop() {
	for body := range c.startCh {
		c.runBody(body)
	}
}

// runBody invokes body with its top-level recover: a request body that
// panics must not take the whole process down with it. A caught panic
// is reported to Resume as Panicked instead of propagating.
func (c *Context) runBody(body Body) {
	defer func() {
		if r := recover(); r != nil {
			c.panicValue = r
			c.yieldCh <- Panicked
		}
	}()
	body(c.yieldPoint)
	c.yieldCh <- Returned
}

// yieldPoint is the function passed to a running Body as its safe
// point. If a preempt is pending it reports Yielded to whoever is
// blocked in Resume and then parks until the next Resume call.
func (c *Context) yieldPoint() {
	if !c.preempt.Load() {
		return
	}
	c.preempt.Store(false)
	c.yieldCh <- Yielded
	<-c.continueCh
}

// Resume starts body running (the first call, or any call after the
// Context finished a previous Body and was Reset) or continues a
// previously yielded Body when body is nil. It blocks until the Body
// either returns or yields again.
//
// A Context must not be resumed concurrently from more than one
// goroutine; at most one worker holds a given Context at any instant.
func (c *Context) Resume(body Body) Outcome {
	if c.done {
		return Returned
	}
	if !c.started {
		c.started = true
		c.startCh <- body
	} else {
		c.continueCh <- struct{}{}
	}
	outcome := <-c.yieldCh
	if outcome == Returned || outcome == Panicked {
		c.done = true
	}
	return outcome
}

// PanicValue returns the value recovered from the last Body that
// panicked, or nil if the most recent Resume did not return Panicked.
func (c *Context) PanicValue() any { return c.panicValue }

// Preempt requests that this Context suspend at its next safe point.
// Safe to call from the dispatcher goroutine while the Context is
// running; a no-op once the Context has finished.
func (c *Context) Preempt() {
	c.preempt.Store(true)
}

// Reset clears a finished Context so it can be handed a new Body,
// recycling the same backing goroutine instead of starting another.
func (c *Context) Reset() {
	c.started = false
	c.done = false
	c.preempt.Store(false)
	c.panicValue = nil
}

// Done reports whether the Context's Body has run to completion (as
// opposed to having yielded and being resumable).
func (c *Context) Done() bool { return c.done }
