package workctx

import "testing"

func TestPoolGetReturnsUsableContext(t *testing.T) {
	p := NewPool()
	c := p.Get()
	ran := false
	outcome := c.Resume(func(yield func()) { ran = true })
	if outcome != Returned || !ran {
		t.Fatalf("expected body to run to completion, got outcome=%v ran=%v", outcome, ran)
	}
}

func TestPoolRecyclesPutContexts(t *testing.T) {
	p := NewPool()
	c1 := p.Get()
	c1.Resume(func(yield func()) {})
	p.Put(c1)

	c2 := p.Get()
	if c2 != c1 {
		t.Fatal("expected Get to return the recycled Context")
	}
	ran := false
	outcome := c2.Resume(func(yield func()) { ran = true })
	if outcome != Returned || !ran {
		t.Fatalf("expected recycled context to run a new body, got outcome=%v ran=%v", outcome, ran)
	}
}

func TestPoolGetOnEmptyPoolAllocatesNew(t *testing.T) {
	p := NewPool()
	c := p.Get()
	if c == nil {
		t.Fatal("expected a non-nil Context from an empty pool")
	}
}
