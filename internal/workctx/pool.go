package workctx

import "sync"

// Pool recycles finished Contexts so a worker never starts a fresh
// backing goroutine per request. Safe for concurrent use, though in
// practice each worker owns a private Pool.
type Pool struct {
	mu   sync.Mutex
	free []*Context
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{}
}

// Get returns a Context ready for its first Resume: either a recycled
// one (Reset already called) or a newly constructed one.
func (p *Pool) Get() *Context {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return New()
	}
	c := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()
	return c
}

// Put returns a finished Context to the pool, resetting it so the next
// Get hands out a clean slate. Putting back a Context that is still
// mid-yield (not Done) is a caller error; Put resets it regardless,
// which would abandon its backing goroutine mid-body, so callers must
// only Put Contexts whose last Resume returned Returned or Panicked.
func (p *Pool) Put(c *Context) {
	c.Reset()
	p.mu.Lock()
	p.free = append(p.free, c)
	p.mu.Unlock()
}
