package workctx

import (
	"testing"
	"time"
)

func TestResumeRunsToCompletionWithoutPreempt(t *testing.T) {
	c := New()
	ran := false
	outcome := c.Resume(func(yield func()) {
		for i := 0; i < 3; i++ {
			yield()
		}
		ran = true
	})
	if outcome != Returned {
		t.Fatalf("expected Returned, got %v", outcome)
	}
	if !ran {
		t.Fatal("expected body to run to completion")
	}
	if !c.Done() {
		t.Fatal("expected Done() to report true")
	}
}

func TestPreemptYieldsAtNextSafePoint(t *testing.T) {
	c := New()
	iterations := 0

	done := make(chan struct{})
	go func() {
		outcome := c.Resume(func(yield func()) {
			for iterations < 1000 {
				iterations++
				yield()
			}
		})
		if outcome != Yielded {
			t.Errorf("expected Yielded, got %v", outcome)
		}
		close(done)
	}()

	c.Preempt()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for yield")
	}

	if iterations >= 1000 {
		t.Fatal("expected body to stop well before completing all iterations")
	}
	if c.Done() {
		t.Fatal("expected Context to still be resumable, not done")
	}
}

func TestResumeContinuesAfterYield(t *testing.T) {
	c := New()
	var phase int

	first := c.Resume(func(yield func()) {
		phase = 1
		yield() // no preempt pending yet, passes straight through
		c.Preempt()
		yield() // now a preempt is pending: suspends here
		phase = 2
	})
	if first != Yielded {
		t.Fatalf("expected first Resume to yield, got %v", first)
	}
	if phase != 1 {
		t.Fatalf("expected phase 1 before suspension, got %d", phase)
	}

	second := c.Resume(nil)
	if second != Returned {
		t.Fatalf("expected second Resume to complete the body, got %v", second)
	}
	if phase != 2 {
		t.Fatalf("expected phase 2 after resuming, got %d", phase)
	}
}

func TestResumeRecoversPanicInsteadOfCrashing(t *testing.T) {
	c := New()
	outcome := c.Resume(func(yield func()) {
		yield()
		panic("request body blew up")
	})
	if outcome != Panicked {
		t.Fatalf("expected Panicked, got %v", outcome)
	}
	if !c.Done() {
		t.Fatal("expected a panicked Context to report Done, it cannot be resumed")
	}
	if c.PanicValue() != "request body blew up" {
		t.Fatalf("expected PanicValue to carry the recovered value, got %v", c.PanicValue())
	}
}

func TestResetAllowsReuse(t *testing.T) {
	c := New()
	c.Resume(func(yield func()) {})
	if !c.Done() {
		t.Fatal("expected Done after first body completes")
	}

	c.Reset()
	ranSecond := false
	outcome := c.Resume(func(yield func()) { ranSecond = true })
	if outcome != Returned || !ranSecond {
		t.Fatal("expected Context to run a second body after Reset")
	}
}
