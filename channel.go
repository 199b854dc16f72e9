package coop

// Channel is a zero-capacity rendezvous between two tasks (spec C5, §4.7).
// There is no buffering: a send delivers its value at once, to an explicit
// target, the registered receiver, or (with neither) back to the sender,
// and delivering a value to another task schedules both sides.
//
// The source's receiver/receive split (register interest, then suspend) is
// collapsed here into one beginReceive step — this implementation has no
// separate "registered but not yet waiting" state to observe from outside a
// suspend point, so the two spec operations reduce to one.
type Channel struct {
	receiverID  int64
	hasReceiver bool
}

func newChannel(_ *Scheduler) *Channel { return &Channel{} }

// beginReceive registers t as Ch's receiver and suspends it; it is woken by
// a later beginSend targeting it.
func (c *Channel) beginReceive(t *Task, _ *Scheduler) {
	c.receiverID = t.id
	c.hasReceiver = true
}

// beginSend delivers msg to targetID if non-zero, else to the registered
// receiver, else back to the sender itself (spec §4.7). Both sides are
// scheduled; the receiver is enqueued first so it observes the value
// before the sender's next resume (spec §5 ordering guarantee).
func (c *Channel) beginSend(t *Task, s *Scheduler, msg any, targetID int64) {
	target := targetID
	switch {
	case target != 0:
	case c.hasReceiver:
		target = c.receiverID
	default:
		target = t.id
	}

	if c.hasReceiver && target == c.receiverID {
		c.hasReceiver = false
	}

	if target == t.id {
		s.scheduleValue(t.id, msg)
		return
	}

	if recv, ok := s.tasks[target]; ok && !recv.IsDone() {
		s.scheduleValue(target, msg)
	}
	s.scheduleValue(t.id, nil)
}
