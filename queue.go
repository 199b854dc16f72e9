package coop

// queueCore is the non-generic engine behind Queue[T]; kernel primitives
// operate on it directly (a Primitive's invoke cannot itself be generic),
// and Queue[T] is a thin type-asserting wrapper around it (SPEC_FULL §13
// supplement: "a Queue class built on top provides bounded FIFO").
type queueCore struct {
	capacity int
	buf      []any

	getters []int64      // task ids blocked in Get with an empty queue
	putters []putWaiter  // task ids blocked in Put with a full queue

	unfinished int
	joiners    []int64 // task ids blocked in Join until unfinished reaches 0
}

type putWaiter struct {
	taskID int64
	val    any
}

func (c *queueCore) wakeOnePutter(s *Scheduler) {
	if len(c.putters) == 0 {
		return
	}
	pw := c.putters[0]
	c.putters = c.putters[1:]
	c.buf = append(c.buf, pw.val)
	s.scheduleValue(pw.taskID, nil)
}

// reportQueueDepth emits the net change in buffered depth since before, via
// s.metrics' queue.depth UpDownCounter (SPEC_FULL §13 supplement).
func reportQueueDepth(s *Scheduler, c *queueCore, before int) {
	if d := len(c.buf) - before; d != 0 {
		s.metrics.UpDownCounter("queue.depth").Add(int64(d))
	}
}

func (c *queueCore) markDone(s *Scheduler) error {
	if c.unfinished == 0 {
		return &LengthError{Got: 1, Limit: 0}
	}
	c.unfinished--
	if c.unfinished == 0 {
		for _, id := range c.joiners {
			s.scheduleValue(id, nil)
		}
		c.joiners = nil
	}
	return nil
}

// QueuePut is the blocking-Put kernel primitive.
type QueuePut struct {
	Core *queueCore
	Val  any
}

func (p QueuePut) invoke(t *Task, s *Scheduler) {
	c := p.Core
	before := len(c.buf)
	defer reportQueueDepth(s, c, before)
	if len(c.getters) > 0 {
		getterID := c.getters[0]
		c.getters = c.getters[1:]
		c.unfinished++
		s.scheduleValue(getterID, p.Val)
		s.scheduleValue(t.id, nil)
		return
	}
	if c.capacity <= 0 || len(c.buf) < c.capacity {
		c.buf = append(c.buf, p.Val)
		c.unfinished++
		s.scheduleValue(t.id, nil)
		return
	}
	c.putters = append(c.putters, putWaiter{taskID: t.id, val: p.Val})
}

// QueueGet is the blocking-Get kernel primitive.
type QueueGet struct {
	Core *queueCore
}

func (p QueueGet) invoke(t *Task, s *Scheduler) {
	c := p.Core
	before := len(c.buf)
	defer reportQueueDepth(s, c, before)
	if len(c.buf) > 0 {
		v := c.buf[0]
		c.buf = c.buf[1:]
		c.wakeOnePutter(s)
		s.scheduleValue(t.id, v)
		return
	}
	if len(c.putters) > 0 {
		pw := c.putters[0]
		c.putters = c.putters[1:]
		c.unfinished++
		s.scheduleValue(t.id, pw.val)
		s.scheduleValue(pw.taskID, nil)
		return
	}
	c.getters = append(c.getters, t.id)
}

// QueueJoin is the blocking-Join kernel primitive.
type QueueJoin struct {
	Core *queueCore
}

func (p QueueJoin) invoke(t *Task, s *Scheduler) {
	if p.Core.unfinished == 0 {
		s.scheduleValue(t.id, nil)
		return
	}
	p.Core.joiners = append(p.Core.joiners, t.id)
}

// Queue is a bounded (or, with capacity <= 0, unbounded) FIFO built on top
// of the suspension-point primitives above, per spec §4.7's "a separate
// bounded Queue builds on suspension points for producer/consumer FIFO with
// capacity".
type Queue[T any] struct {
	core *queueCore
	s    *Scheduler
}

// NewQueue returns a Queue with the given capacity. capacity <= 0 means
// unbounded.
func NewQueue[T any](s *Scheduler, capacity int) *Queue[T] {
	return &Queue[T]{core: &queueCore{capacity: capacity}, s: s}
}

// PutNowait enqueues v without suspending, returning ErrQueueFull if the
// queue is at capacity.
func (q *Queue[T]) PutNowait(v T) error {
	c := q.core
	before := len(c.buf)
	defer reportQueueDepth(q.s, c, before)
	if len(c.getters) > 0 {
		getterID := c.getters[0]
		c.getters = c.getters[1:]
		c.unfinished++
		q.s.scheduleValue(getterID, v)
		return nil
	}
	if c.capacity > 0 && len(c.buf) >= c.capacity {
		return ErrQueueFull
	}
	c.buf = append(c.buf, v)
	c.unfinished++
	return nil
}

// GetNowait dequeues without suspending, returning ErrQueueEmpty if the
// queue has nothing buffered.
func (q *Queue[T]) GetNowait() (T, error) {
	var zero T
	c := q.core
	if len(c.buf) == 0 {
		return zero, ErrQueueEmpty
	}
	before := len(c.buf)
	v := c.buf[0]
	c.buf = c.buf[1:]
	c.wakeOnePutter(q.s)
	reportQueueDepth(q.s, c, before)
	return v.(T), nil
}

// Put suspends the caller until v has been accepted, blocking while the
// queue is at capacity.
func (q *Queue[T]) Put(y *Yield, v T) error {
	_, err := y.Send(QueuePut{Core: q.core, Val: v})
	return err
}

// Get suspends the caller until a value is available.
func (q *Queue[T]) Get(y *Yield) (T, error) {
	var zero T
	v, err := y.Send(QueueGet{Core: q.core})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Done marks one previously put item as processed. It returns a
// LengthError if called more times than items have been put (spec
// §4.7's task_done/put_nowait pairing).
func (q *Queue[T]) Done() error { return q.core.markDone(q.s) }

// Join suspends the caller until every put item has a matching Done.
func (q *Queue[T]) Join(y *Yield) error {
	_, err := y.Send(QueueJoin{Core: q.core})
	return err
}
