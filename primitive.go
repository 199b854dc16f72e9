package coop

import (
	"os"
	"time"
)

// Primitive is the sole vocabulary a coroutine uses to suspend itself: the
// scheduler dispatches every value sent through Yield.Send that implements
// Primitive on its concrete type rather than via reflection; any other value
// is handed straight back to the coroutine at its next resume (spec §4.8, SPEC_FULL §12.2 "kernel primitives as a tagged
// interface"). invoke runs on the scheduler's single dispatch-loop goroutine
// and either reschedules t immediately (via s.scheduleValue) or leaves it
// blocked, registered against whatever registry will later reschedule it.
type Primitive interface {
	invoke(t *Task, s *Scheduler)
}

// CurrentTask returns the calling task's own id.
type CurrentTask struct{}

func (CurrentTask) invoke(t *Task, s *Scheduler) {
	s.scheduleValue(t.id, t.id)
}

// SleepFor suspends the caller for Delay, then resumes it with Result.
type SleepFor struct {
	Delay  time.Duration
	Result any
}

func (p SleepFor) invoke(t *Task, s *Scheduler) {
	id := t.id
	t.timer = timerHandle(s.timers.Insert(time.Now().Add(p.Delay), func() {
		t.timer = nil
		s.scheduleValue(id, p.Result)
	}))
}

// ReadWait suspends the caller until FD becomes readable.
type ReadWait struct{ FD int }

func (p ReadWait) invoke(t *Task, s *Scheduler) {
	s.addWaiter(p.FD, readDir, t.id)
}

// WriteWait suspends the caller until FD becomes writable.
type WriteWait struct{ FD int }

func (p WriteWait) invoke(t *Task, s *Scheduler) {
	s.addWaiter(p.FD, writeDir, t.id)
}

// GatherWait suspends the caller until the gather algorithm (spec §4.9)
// over IDs completes, according to Race/Exception/Clear.
type GatherWait struct {
	IDs       []int64
	Race      int  // 0 means "all"
	Exception bool // propagate the first exception instead of collecting it
	Clear     bool // cancel members still pending once the gather resolves
}

func (p GatherWait) invoke(t *Task, s *Scheduler) {
	s.beginGather(t, p)
}

// WaitFor runs Fn as a child coroutine and suspends the caller until it
// finishes or Timeout elapses, whichever is first.
type WaitFor struct {
	Fn      CoroutineFunc
	Timeout time.Duration
}

func (p WaitFor) invoke(t *Task, s *Scheduler) {
	s.beginWaitFor(t, p)
}

// TimeoutAfter runs Fn as a child coroutine; if it has not finished within
// Timeout, the child is cancelled and the caller resumes with a TaskTimeout
// (ErrTaskTimeout).
type TimeoutAfter struct {
	Fn      CoroutineFunc
	Timeout time.Duration
}

func (p TimeoutAfter) invoke(t *Task, s *Scheduler) {
	s.beginTimeoutAfter(t, p)
}

// CreateTask spawns a new, independently scheduled coroutine and resumes the
// caller immediately with the new task's id (spec §4.2 "create_task").
type CreateTask struct {
	Fn    CoroutineFunc
	Async bool
	Name  string
}

func (p CreateTask) invoke(t *Task, s *Scheduler) {
	typ := TypeAwaited
	if p.Async {
		typ = TypeAsync
	}
	child := s.newTask(p.Fn, typ, p.Name)
	s.schedule(child.id)
	s.scheduleValue(t.id, child.id)
}

// JoinTask suspends the caller until the task identified by ID terminates,
// resuming with its stored result or terminal error.
type JoinTask struct{ ID int64 }

func (p JoinTask) invoke(t *Task, s *Scheduler) {
	target, ok := s.tasks[p.ID]
	if !ok {
		t.injectPending(&InvalidArgumentError{Reason: "join: unknown task id"})
		s.scheduleValue(t.id, nil)
		return
	}
	if target.IsDone() {
		s.resumeWithResult(t, target)
		return
	}
	s.addJoiner(p.ID, t.id)
}

// CancelTaskPrimitive requests cancellation of the task identified by ID.
// CustomState is stashed on the target task for an observer to inspect.
type CancelTaskPrimitive struct {
	ID          int64
	CustomState any
}

func (p CancelTaskPrimitive) invoke(t *Task, s *Scheduler) {
	if err := s.cancelTask(p.ID, p.CustomState); err != nil {
		t.injectPending(err)
	}
	s.scheduleValue(t.id, nil)
}

// SpawnTask starts a subprocess-backed or callable-backed Future and
// suspends the caller until it settles, resuming with its result or
// terminal error (spec §4.6 "spawn_task ... creates a task that adds a
// future and waits for its result").
type SpawnTask struct {
	Future *Future
}

func (p SpawnTask) invoke(t *Task, s *Scheduler) {
	s.awaitFuture(t, p.Future)
}

// AddFuture suspends the caller until Future settles (spec §4.6).
type AddFuture struct {
	Future *Future
}

func (p AddFuture) invoke(t *Task, s *Scheduler) {
	s.awaitFuture(t, p.Future)
}

// SpawnKill stops a running Future, delivering Signal to its subprocess, or
// killing the subprocess outright when Signal is nil.
type SpawnKill struct {
	Future *Future
	Signal os.Signal
}

func (p SpawnKill) invoke(t *Task, s *Scheduler) {
	p.Future.stop(p.Signal)
	s.scheduleValue(t.id, nil)
}

// SignalTask registers Handler for Sig; the first registration for a given
// signal installs the OS-level handler (spec §4.5).
type SignalTask struct {
	Sig     os.Signal
	Handler func(os.Signal)
}

func (p SignalTask) invoke(t *Task, s *Scheduler) {
	s.signals.Add(p.Sig, p.Handler)
	s.scheduleValue(t.id, nil)
}

// ProgressTask attaches Handler as a Future's progress callback.
type ProgressTask struct {
	Future  *Future
	Handler func(any)
}

func (p ProgressTask) invoke(t *Task, s *Scheduler) {
	p.Future.onProgress(p.Handler)
	s.scheduleValue(t.id, nil)
}

// MonitorTask attaches Handler as a task group's membership-change callback
// (spec §13 supplement, TaskGroup monitoring).
type MonitorTask struct {
	Group   *TaskGroup
	Handler func(any)
}

func (p MonitorTask) invoke(t *Task, s *Scheduler) {
	p.Group.onChange(p.Handler)
	s.scheduleValue(t.id, nil)
}

// ChanMake creates a new rendezvous Channel (spec C5) and resumes the caller
// with it.
type ChanMake struct{}

func (ChanMake) invoke(t *Task, s *Scheduler) {
	s.scheduleValue(t.id, newChannel(s))
}

// ChanReceiver registers the caller as Ch's receiver and suspends it until a
// send delivers a value to it. It behaves exactly like ChanReceive: the
// register and receive steps are one operation here.
type ChanReceiver struct{ Ch *Channel }

func (p ChanReceiver) invoke(t *Task, s *Scheduler) {
	p.Ch.beginReceive(t, s)
}

// ChanReceive suspends the caller until a value is available on Ch.
type ChanReceive struct{ Ch *Channel }

func (p ChanReceive) invoke(t *Task, s *Scheduler) {
	p.Ch.beginReceive(t, s)
}

// ChanSend delivers Msg and reschedules the caller at once, after the
// receiving task; with no target and no registered receiver, the caller
// itself resumes with Msg. TargetID, if non-zero, delivers to that specific task instead
// of whichever task is currently registered as Ch's receiver (spec §4.7
// "sender(channel, msg, targetId=0)").
type ChanSend struct {
	Ch       *Channel
	Msg      any
	TargetID int64
}

func (p ChanSend) invoke(t *Task, s *Scheduler) {
	p.Ch.beginSend(t, s, p.Msg, p.TargetID)
}

// Shutdown requests that the scheduler stop dispatching once only SkipID (or
// no tasks, if SkipID == 0) remains ready (spec §4.10 "graceful shutdown").
type Shutdown struct{ SkipID int64 }

func (p Shutdown) invoke(t *Task, s *Scheduler) {
	if err := s.beginShutdown(p.SkipID); err != nil {
		t.injectPending(err)
	}
	s.scheduleValue(t.id, nil)
}

// StatelessTask marks the calling task as stateless: its result/exception
// is discarded immediately at termination rather than retained for a later
// Join (spec §3 "Custom state/data", SPEC_FULL §13).
type StatelessTask struct{}

func (StatelessTask) invoke(t *Task, s *Scheduler) {
	t.typ = TypeStateless
	s.scheduleValue(t.id, nil)
}
