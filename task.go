package coop

import (
	"time"

	"github.com/ygrebnov/coop/timerheap"
)

// State is one of a Task's mutually exclusive lifecycle states (spec §3).
type State int

const (
	StatePending State = iota
	StateRunning
	StateRescheduled
	StateProcess // blocked on a future
	StateCompleted
	StateErred
	StateCancelled
	StateSignaled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateRescheduled:
		return "rescheduled"
	case StateProcess:
		return "process"
	case StateCompleted:
		return "completed"
	case StateErred:
		return "erred"
	case StateCancelled:
		return "cancelled"
	case StateSignaled:
		return "signaled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the four terminal states.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateErred, StateCancelled, StateSignaled:
		return true
	default:
		return false
	}
}

// Type tags a Task by how it was created (spec §3).
type Type int

const (
	TypeAwaited Type = iota // default
	TypeAsync
	TypeParalleled // tied to a future
	TypeStateless  // result/exception not retained at termination
	TypeNetworked
	TypeCancellation
)

func (t Type) String() string {
	switch t {
	case TypeAwaited:
		return "awaited"
	case TypeAsync:
		return "async"
	case TypeParalleled:
		return "paralleled"
	case TypeStateless:
		return "stateless"
	case TypeNetworked:
		return "networked"
	case TypeCancellation:
		return "cancellation"
	default:
		return "unknown"
	}
}

// Task is the fundamental scheduler-visible unit of cooperative work
// (spec §3, C6). A Task is owned by exactly one Scheduler; Scheduler.tasks
// indexes Tasks by id rather than callers holding pointers directly across
// group/caller back-references, per the arena-style id-table redesign
// (spec §9, SPEC_FULL §12.3).
type Task struct {
	id   int64
	name string

	y     *Yield
	state State
	typ   Type

	cycles int

	result any
	err    error // terminal exception, meaningful only in a terminal state

	pendingErr error // one-shot pending exception injected by a primitive

	callerID  int64
	hasCaller bool

	groupID  int64
	hasGroup bool

	timer *timerheap.Handle

	// custom is an opaque slot adapters use to stash e.g. an attached
	// *Future or *Channel half, per spec §3 "Custom state/data".
	custom any

	// hasTerminalHint/terminalHint let cancelTask/signal delivery force a
	// specific terminal state (Cancelled/Signaled) instead of the Erred
	// state finish() would otherwise derive from a non-nil coroutine error.
	hasTerminalHint bool
	terminalHint    State
}

// requestTerminal arranges for t to terminate in state hint the next time
// its coroutine observes err (typically via a pending-exception injection).
func (t *Task) requestTerminal(hint State, err error) {
	t.hasTerminalHint = true
	t.terminalHint = hint
	t.injectPending(err)
}

// ID returns the task's scheduler-unique identity.
func (t *Task) ID() int64 { return t.id }

// Name returns the task's optional display label (SPEC_FULL §13 supplement).
func (t *Task) Name() string { return t.name }

// State returns the task's current lifecycle state.
func (t *Task) State() State { return t.state }

// Type returns the task's type tag.
func (t *Task) Type() Type { return t.typ }

// Cycles returns how many times the task has been resumed.
func (t *Task) Cycles() int { return t.cycles }

// IsDone reports whether the task has reached a terminal state.
func (t *Task) IsDone() bool { return t.state.IsTerminal() }

// Result returns the task's stored result and terminal error. It returns
// InvalidStateError if the task is a non-stateless task queried before
// reaching a terminal state.
func (t *Task) Result() (any, error) {
	if !t.IsDone() && t.typ != TypeStateless {
		return nil, &InvalidStateError{TaskID: t.id, State: t.state}
	}
	return t.result, t.err
}

// Join suspends the calling coroutine until t finishes, then returns its
// result or terminal error. If t has already terminated, Join returns
// immediately without suspending (spec §8 "Join on a task that has already
// terminated").
func (t *Task) Join(y *Yield) (any, error) {
	if t.IsDone() {
		return t.result, t.err
	}
	return y.Send(JoinTask{ID: t.id})
}

// Wait suspends the calling coroutine until t finishes, discarding the
// result.
func (t *Task) Wait(y *Yield) error {
	_, err := t.Join(y)
	return err
}

func newTask(id int64, fn CoroutineFunc, typ Type, name string) *Task {
	return &Task{
		id:    id,
		name:  name,
		y:     runCoroutine(fn),
		state: StatePending,
		typ:   typ,
	}
}

// injectPending sets a one-shot pending exception the task observes at its
// next resume instead of the scheduler's sent value (spec §9 "pending
// exception frame").
func (t *Task) injectPending(err error) {
	t.pendingErr = err
}

// resume sends either the pending exception (cleared after use) or val
// into the coroutine, and blocks until it yields or finishes.
func (t *Task) resume(val any) any {
	t.cycles++

	var msg resumeMsg
	if t.pendingErr != nil {
		msg.thrown = t.pendingErr
		t.pendingErr = nil
	} else {
		msg.val = val
	}

	t.y.in <- msg
	return <-t.y.out
}

// secondsSince is a small seam so timeout-related errors can be built
// consistently across the package.
func secondsSince(start time.Time) float64 { return time.Since(start).Seconds() }
