package coop

import (
	"time"

	"github.com/ygrebnov/coop/timerheap"
)

// waitForWait tracks one in-flight wait_for/timeout_after scope (spec
// §4.8): a child coroutine racing a timer. Whichever finishes first
// resolves the caller; the loser is cleaned up (the timer is stopped, or
// the child is cancelled).
type waitForWait struct {
	childID        int64
	timer          *timerheap.Handle
	timeoutAfter   bool // true: inject TaskTimeout (timeout_after); false: TimeoutError (wait_for)
	timeoutSeconds float64
}

func (s *Scheduler) beginWaitFor(t *Task, p WaitFor) {
	s.startWaitForScope(t, p.Fn, p.Timeout, false)
}

func (s *Scheduler) beginTimeoutAfter(t *Task, p TimeoutAfter) {
	s.startWaitForScope(t, p.Fn, p.Timeout, true)
}

func (s *Scheduler) startWaitForScope(t *Task, fn CoroutineFunc, timeout time.Duration, isTimeoutAfter bool) {
	child := s.newTask(fn, TypeAwaited, "")
	s.schedule(child.id)

	callerID := t.id
	w := &waitForWait{
		childID:        child.id,
		timeoutAfter:   isTimeoutAfter,
		timeoutSeconds: timeout.Seconds(),
	}
	s.waitFors[callerID] = w
	s.waitForByChild[child.id] = callerID

	w.timer = timerHandle(s.timers.Insert(time.Now().Add(timeout), func() {
		s.fireWaitForTimeout(callerID)
	}))
}

// settleWaitFor is invoked from finish() when the child task of a pending
// wait scope terminates before its timer fires.
func (s *Scheduler) settleWaitFor(callerID int64, child *Task) {
	w, ok := s.waitFors[callerID]
	if !ok || w.childID != child.id {
		return
	}
	delete(s.waitFors, callerID)
	delete(s.waitForByChild, child.id)
	if w.timer != nil {
		w.timer.Stop()
	}

	caller, ok := s.tasks[callerID]
	if !ok {
		return
	}
	if child.err != nil {
		caller.injectPending(child.err)
		s.scheduleValue(callerID, nil)
		return
	}
	s.scheduleValue(callerID, child.result)
}

// fireWaitForTimeout is the timer-heap callback: the child lost the race,
// gets cancelled, and the caller observes a timeout error instead of a
// result.
func (s *Scheduler) fireWaitForTimeout(callerID int64) {
	w, ok := s.waitFors[callerID]
	if !ok {
		return
	}
	delete(s.waitFors, callerID)
	delete(s.waitForByChild, w.childID)

	_ = s.cancelTask(w.childID, nil)

	caller, ok := s.tasks[callerID]
	if !ok {
		return
	}

	var err error
	if w.timeoutAfter {
		err = &TaskTimeout{Seconds: w.timeoutSeconds}
	} else {
		err = &TimeoutError{Seconds: w.timeoutSeconds}
	}
	caller.injectPending(err)
	s.scheduleValue(callerID, nil)
}
