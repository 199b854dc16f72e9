package coop

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Namespace prefixes every sentinel error string, matching the teacher's
// workers.Namespace convention.
const Namespace = "coop"

var (
	// ErrCancelled is injected into a coroutine when its task is cancelled.
	ErrCancelled = errors.New(Namespace + ": task cancelled")

	// ErrTimeout is raised at a wait_for caller when its timeout elapses.
	ErrTimeout = errors.New(Namespace + ": operation timed out")

	// ErrTaskTimeout is thrown into a timeout_after scope when it expires.
	ErrTaskTimeout = errors.New(Namespace + ": timeout scope expired")

	// ErrInvalidState is returned when a result or exception is queried
	// before a terminal transition on a non-stateless task, or when a
	// TaskGroup is joined twice.
	ErrInvalidState = errors.New(Namespace + ": invalid state")

	// ErrInvalidArgument covers malformed ids, unknown tasks, and illegal
	// option combinations.
	ErrInvalidArgument = errors.New(Namespace + ": invalid argument")

	// ErrLength is returned when gather's race exceeds the input set, or
	// Queue.Done is called more often than items were put.
	ErrLength = errors.New(Namespace + ": length mismatch")

	// ErrQueueFull is returned by Queue.PutNowait when the queue is at
	// capacity.
	ErrQueueFull = errors.New(Namespace + ": queue full")

	// ErrQueueEmpty is returned by Queue.GetNowait when the queue is empty.
	ErrQueueEmpty = errors.New(Namespace + ": queue empty")
)

// CancelledError wraps ErrCancelled with the cancelled task's id.
type CancelledError struct {
	TaskID int64
}

func (e *CancelledError) Error() string { return fmt.Sprintf("%s: task %d cancelled", Namespace, e.TaskID) }
func (e *CancelledError) Unwrap() error  { return ErrCancelled }

// TimeoutError wraps ErrTimeout with the elapsed duration, in seconds, that
// triggered it.
type TimeoutError struct {
	Seconds float64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %.3fs", Namespace, e.Seconds)
}
func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// TaskTimeout wraps ErrTaskTimeout with the scope's configured duration.
type TaskTimeout struct {
	Seconds float64
}

func (e *TaskTimeout) Error() string {
	return fmt.Sprintf("%s: timeout scope of %.3fs expired", Namespace, e.Seconds)
}
func (e *TaskTimeout) Unwrap() error { return ErrTaskTimeout }

// InvalidStateError names the task id and the state it was found in.
type InvalidStateError struct {
	TaskID int64
	State  State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: task %d in invalid state %s", Namespace, e.TaskID, e.State)
}
func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// InvalidArgumentError carries a human-readable reason.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: %s", Namespace, e.Reason)
}
func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// LengthError carries the offending count and limit.
type LengthError struct {
	Got, Limit int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%s: length %d exceeds limit %d", Namespace, e.Got, e.Limit)
}
func (e *LengthError) Unwrap() error { return ErrLength }

// Panic wraps a non-error value that a coroutine body panicked with. The
// panic is recovered on the coroutine's goroutine and the Panic becomes the
// task's terminal error; a body that panics with an error value keeps that
// error unwrapped. Nothing in the package raises Panic itself.
type Panic struct {
	Reason string
}

func (p *Panic) Error() string { return fmt.Sprintf("%s: panic: %s", Namespace, p.Reason) }

// TaskMetaError exposes correlation metadata for a task failure, mirroring
// the adapted workers package's error_tagging.go.
type TaskMetaError interface {
	error
	Unwrap() error
	TaskID() (int64, bool)
	Cycle() (int, bool)
}

type taskTaggedError struct {
	err   error
	id    int64
	cycle int
}

func newTaskTaggedError(err error, id int64, cycle int) error {
	if err == nil {
		return nil
	}
	return &taskTaggedError{err: err, id: id, cycle: cycle}
}

func (e *taskTaggedError) Error() string { return e.err.Error() }
func (e *taskTaggedError) Unwrap() error { return e.err }
func (e *taskTaggedError) TaskID() (int64, bool) { return e.id, true }
func (e *taskTaggedError) Cycle() (int, bool)    { return e.cycle, true }

// ExtractTaskID returns the task id carried by err, if any.
func ExtractTaskID(err error) (int64, bool) {
	var tme TaskMetaError
	if errors.As(err, &tme) {
		return tme.TaskID()
	}
	return 0, false
}

// ExtractCycle returns the cycle count carried by err, if any.
func ExtractCycle(err error) (int, bool) {
	var tme TaskMetaError
	if errors.As(err, &tme) {
		return tme.Cycle()
	}
	return 0, false
}

// AggregateErrors folds zero or more per-member errors into one via
// go-multierror, the shared aggregation behind TaskGroup.CancelRemaining and
// shutdown's mass-cancel sweep. Nil arguments are skipped; it returns nil if
// nothing was collected.
func AggregateErrors(errs ...error) error {
	var merr error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr
}
