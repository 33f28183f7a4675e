// Package taskqueue implements TSKQ, the dispatcher's per-type set of
// FIFO task queues and the SLO-aware dequeue policy that picks which
// type to service next.
package taskqueue

import (
	"time"

	"github.com/nanodispatch/dispatchd/internal/reassembly"
)

// Category distinguishes a task that has never run (its request body
// starts from the top) from one resuming after preemption.
type Category int

const (
	// CategoryPacket means "never started".
	CategoryPacket Category = iota
	// CategoryContext means "resuming after preemption".
	CategoryContext
)

func (c Category) String() string {
	if c == CategoryContext {
		return "context"
	}
	return "packet"
}

// Task is one scheduling unit. Runnable holds the suspended execution
// state for a CategoryContext task (an opaque handle owned by the
// worker package; nil for CategoryPacket); the taskqueue package never
// dereferences it.
type Task struct {
	Runnable  any
	Request   *reassembly.Request
	Type      uint16
	Category  Category
	EnqueuedAt time.Time

	next *Task // intrusive singly-linked list pointer, owned by TSKQ
}

// TSKQ is the fixed-size array of per-type FIFO queues, plus the SLO
// table used by SmartDequeue.
type TSKQ struct {
	queues []fifo
	slo    []time.Duration
}

type fifo struct {
	head, tail *Task
	len        int
}

// New builds a TSKQ with numTypes queues. slo[i] is the target latency
// for type i; a zero entry is treated as "no SLO" (SmartDequeue never
// selects it ahead of a type with a real SLO unless every other queue
// is empty — see scoring note on SmartDequeue).
func New(numTypes int, slo []time.Duration) *TSKQ {
	t := &TSKQ{
		queues: make([]fifo, numTypes),
		slo:    make([]time.Duration, numTypes),
	}
	copy(t.slo, slo)
	return t
}

// NumTypes returns the number of type queues this TSKQ manages.
func (t *TSKQ) NumTypes() int { return len(t.queues) }

// EnqueueTail appends a new task to the back of type's queue (normal
// arrival order).
func (t *TSKQ) EnqueueTail(typ uint16, runnable any, req *reassembly.Request, cat Category, ts time.Time) {
	task := &Task{Runnable: runnable, Request: req, Type: typ, Category: cat, EnqueuedAt: ts}
	q := &t.queues[typ]
	if q.tail == nil {
		q.head, q.tail = task, task
	} else {
		q.tail.next = task
		q.tail = task
	}
	q.len++
}

// EnqueueHead pushes a task to the front of type's queue, used to
// re-admit a preempted task ahead of newer arrivals of the same type.
func (t *TSKQ) EnqueueHead(typ uint16, runnable any, req *reassembly.Request, cat Category, ts time.Time) {
	task := &Task{Runnable: runnable, Request: req, Type: typ, Category: cat, EnqueuedAt: ts, next: t.queues[typ].head}
	q := &t.queues[typ]
	q.head = task
	if q.tail == nil {
		q.tail = task
	}
	q.len++
}

// Dequeue pops the task at the front of type's queue.
func (t *TSKQ) Dequeue(typ uint16) (*Task, bool) {
	q := &t.queues[typ]
	if q.head == nil {
		return nil, false
	}
	task := q.head
	q.head = task.next
	if q.head == nil {
		q.tail = nil
	}
	task.next = nil
	q.len--
	return task, true
}

// PeekHeadTimestamp returns the enqueue timestamp of the oldest
// outstanding task for type, if any.
func (t *TSKQ) PeekHeadTimestamp(typ uint16) (time.Time, bool) {
	q := &t.queues[typ]
	if q.head == nil {
		return time.Time{}, false
	}
	return q.head.EnqueuedAt, true
}

// Len reports the number of tasks queued for type.
func (t *TSKQ) Len(typ uint16) int { return t.queues[typ].len }

// SmartDequeue picks the type whose head task is furthest behind its
// SLO — the largest (waited / slo[type]) — and dequeues it. Ties favor
// the lowest type index, since strict-greater-than is required to
// displace the current best. A type with slo <= 0 never contributes a
// positive score (treated as having no deadline pressure), so it is
// only ever picked when it is the single non-empty queue and every
// other candidate also scored zero.
func (t *TSKQ) SmartDequeue(curTime time.Time) (*Task, bool) {
	bestIndex := -1
	var bestScore float64

	for i := range t.queues {
		ts, ok := t.PeekHeadTimestamp(uint16(i))
		if !ok {
			continue
		}
		var score float64
		if t.slo[i] > 0 {
			score = float64(curTime.Sub(ts)) / float64(t.slo[i])
		}
		if bestIndex < 0 || score > bestScore {
			bestScore = score
			bestIndex = i
		}
	}
	if bestIndex < 0 {
		return nil, false
	}
	return t.Dequeue(uint16(bestIndex))
}

// NaiveDequeue scans types in order and dequeues from the first
// non-empty one. Kept for debugging and as a baseline to compare
// against SmartDequeue's SLO-aware choice.
func (t *TSKQ) NaiveDequeue() (*Task, bool) {
	for i := range t.queues {
		if task, ok := t.Dequeue(uint16(i)); ok {
			return task, true
		}
	}
	return nil, false
}
