// Package timerheap implements the scheduler's ordered timeout facility
// (spec component C1): a min-heap of trigger times that supports
// cancellation and reports "next due in Δ" to a poller.
//
// Grounded on two corpus references: fengberlin-talks' schedgroup.Group
// (container/heap-backed deadline scheduling with a monitor goroutine) and
// xtaci/kcptun's TimedSched (container/heap of timedFunc entries, reset on
// Push/Pop). This package keeps schedgroup's heap shape (a slice satisfying
// heap.Interface) but drops its own goroutine: the scheduler's dispatch loop
// owns ticking, so Heap is a passive data structure plus a handle type.
package timerheap

import (
	"container/heap"
	"time"
)

// entry is one scheduled callback.
type entry struct {
	trigger time.Time
	seq     uint64 // insertion order, breaks trigger-time ties
	fn      func()
	index   int // position in the heap slice, maintained by container/heap
	stopped bool
}

type entries []*entry

func (e entries) Len() int { return len(e) }

func (e entries) Less(i, j int) bool {
	if e[i].trigger.Equal(e[j].trigger) {
		return e[i].seq < e[j].seq
	}
	return e[i].trigger.Before(e[j].trigger)
}

func (e entries) Swap(i, j int) {
	e[i], e[j] = e[j], e[i]
	e[i].index = i
	e[j].index = j
}

func (e *entries) Push(x interface{}) {
	en := x.(*entry)
	en.index = len(*e)
	*e = append(*e, en)
}

func (e *entries) Pop() interface{} {
	old := *e
	n := len(old)
	en := old[n-1]
	old[n-1] = nil
	en.index = -1
	*e = old[:n-1]
	return en
}

// Handle cancels a single scheduled callback. Cancelling a handle whose
// callback has already fired, or cancelling twice, is a no-op.
type Handle struct {
	h *Heap
	e *entry
}

// Stop cancels the timer. It returns true if the callback had not yet
// fired and was prevented from firing.
func (h Handle) Stop() bool {
	if h.h == nil || h.e == nil {
		return false
	}
	return h.h.remove(h.e)
}

// Heap is a min-heap of pending timeouts ordered by trigger time, ties
// broken by insertion order (spec.md §4.1 "Timers fire in non-decreasing
// trigger order; a tie is broken by insertion order").
//
// Heap is not safe for concurrent use; callers (the scheduler's single
// dispatch loop) must serialize access, matching spec.md §5's single-loop
// ownership of all registries.
type Heap struct {
	es   entries
	next uint64
}

// New returns an empty timer heap.
func New() *Heap {
	return &Heap{}
}

// Insert schedules fn to run at trigger and returns a Handle that can
// cancel it before it fires.
func (h *Heap) Insert(trigger time.Time, fn func()) Handle {
	e := &entry{trigger: trigger, seq: h.next, fn: fn}
	h.next++
	heap.Push(&h.es, e)
	return Handle{h: h, e: e}
}

// remove deletes e from the heap if still present. Safe to call once an
// entry has already fired (returns false in that case).
func (h *Heap) remove(e *entry) bool {
	if e.stopped || e.index < 0 || e.index >= len(h.es) || h.es[e.index] != e {
		return false
	}
	e.stopped = true
	heap.Remove(&h.es, e.index)
	return true
}

// Len reports the number of pending (unfired) timers.
func (h *Heap) Len() int { return len(h.es) }

// NextDue reports the duration until the earliest pending timer fires,
// relative to now. The second return is false when the heap is empty.
func (h *Heap) NextDue(now time.Time) (time.Duration, bool) {
	if len(h.es) == 0 {
		return 0, false
	}
	d := h.es[0].trigger.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Tick pops and runs every timer due at or before now, earliest first.
// Callbacks are invoked synchronously on the caller's goroutine (the
// scheduler's dispatch loop), so a callback must not block.
func (h *Heap) Tick(now time.Time) {
	for len(h.es) > 0 {
		top := h.es[0]
		if top.trigger.After(now) {
			return
		}
		heap.Pop(&h.es)
		top.stopped = true
		top.fn()
	}
}
