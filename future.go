package coop

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// FutureState is one of a Future's mutually exclusive lifecycle states
// (spec §3 "Future"). Terminal states are reached exactly once.
type FutureState int

const (
	FutureInitialized FutureState = iota
	FutureRunning
	FutureCompleted
	FutureErred
	FutureSignaled
	FutureTimedOut
	FutureKilled
)

func (s FutureState) String() string {
	switch s {
	case FutureInitialized:
		return "initialized"
	case FutureRunning:
		return "running"
	case FutureCompleted:
		return "completed"
	case FutureErred:
		return "erred"
	case FutureSignaled:
		return "signaled"
	case FutureTimedOut:
		return "timed-out"
	case FutureKilled:
		return "killed"
	default:
		return "unknown"
	}
}

func (s FutureState) isTerminal() bool {
	switch s {
	case FutureCompleted, FutureErred, FutureSignaled, FutureTimedOut, FutureKilled:
		return true
	default:
		return false
	}
}

type futureKind int

const (
	futureKindSubprocess futureKind = iota
	futureKindWorker
)

// Future is a handle to an external computation — a subprocess or a
// worker-pool callable — backing spec §4.6 (C4). Only the scheduler's
// single dispatch-loop goroutine ever reads or writes a Future's state,
// result and err fields; the backing goroutine launched by start()
// communicates its outcome exclusively through Scheduler.futureDone, whose
// channel send/receive pair is the only cross-goroutine synchronization
// point (no mutex is needed as a result).
type Future struct {
	id      uuid.UUID
	kind    futureKind
	display string

	s *Scheduler

	cmd    *exec.Cmd
	stdout bytes.Buffer

	workerFn    func(context.Context) (any, error)
	retry       *backoff.ExponentialBackOff
	maxRetries  int
	isRetryable func(error) bool

	state  FutureState
	result any
	err    error

	ownerTaskID int64
	hasOwner    bool

	thenCB     func(any)
	catchCB    func(error)
	timeoutCB  func()
	progressCB func(any)

	signalHandlers map[os.Signal]func(os.Signal)

	timeout    time.Duration
	hasTimeout bool
	timer      interface{ Stop() bool }

	runCtx    context.Context
	runCancel context.CancelFunc
}

// FutureOption configures a Future at construction time.
type FutureOption func(*Future)

// WithFutureTimeout fails the future with TimeoutError if it has not
// settled within d.
func WithFutureTimeout(d time.Duration) FutureOption {
	return func(f *Future) { f.timeout = d; f.hasTimeout = true }
}

// WithRetry retries a worker-kind future's callable up to maxAttempts times
// total, backing off exponentially between attempts (grounded on the same
// cenkalti/backoff/v5 NextBackOff/Reset pattern the migration-agent console
// service uses for its own transient-error retries). pred selects which
// errors are worth retrying; nil retries every error.
func WithRetry(maxAttempts int, pred func(error) bool) FutureOption {
	return func(f *Future) {
		f.maxRetries = maxAttempts
		f.isRetryable = pred
		f.retry = backoff.NewExponentialBackOff()
	}
}

// WithProgress installs the progress callback at construction time
// (equivalent to a later call to onProgress).
func WithProgress(cb func(any)) FutureOption {
	return func(f *Future) { f.progressCB = cb }
}

// NewSubprocessFuture builds a Future backed by an OS subprocess.
func NewSubprocessFuture(s *Scheduler, display, name string, args []string, opts ...FutureOption) *Future {
	f := &Future{
		id:             uuid.New(),
		kind:           futureKindSubprocess,
		display:        display,
		s:              s,
		signalHandlers: make(map[os.Signal]func(os.Signal)),
	}
	f.cmd = exec.Command(name, args...)
	f.cmd.Stdout = &f.stdout
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewWorkerFuture builds a Future backed by a callable dispatched onto the
// adapted workers package's worker pool (spec's "worker thread" backing).
func NewWorkerFuture(s *Scheduler, display string, fn func(context.Context) (any, error), opts ...FutureOption) *Future {
	f := &Future{
		id:             uuid.New(),
		kind:           futureKindWorker,
		display:        display,
		s:              s,
		workerFn:       fn,
		signalHandlers: make(map[os.Signal]func(os.Signal)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ID returns the future's correlation id.
func (f *Future) ID() uuid.UUID { return f.id }

// Then attaches cb, invoked exactly once on successful completion.
func (f *Future) Then(cb func(any)) *Future { f.thenCB = cb; return f }

// Catch attaches cb, invoked exactly once on error.
func (f *Future) Catch(cb func(error)) *Future { f.catchCB = cb; return f }

// Timeout attaches cb, invoked exactly once if the future times out.
func (f *Future) Timeout(cb func()) *Future { f.timeoutCB = cb; return f }

// onProgress attaches the progress callback (spec §4.6 "progress(cb)").
func (f *Future) onProgress(cb func(any)) { f.progressCB = cb }

// Signal attaches a handler invoked if sig is later delivered via stop.
func (f *Future) Signal(sig os.Signal, cb func(os.Signal)) *Future {
	f.signalHandlers[sig] = cb
	return f
}

// IsRunning reports whether the future has started but not yet settled.
func (f *Future) IsRunning() bool { return f.state == FutureRunning }

// IsKilled reports whether the future was stopped or timed out.
func (f *Future) IsKilled() bool {
	return f.state == FutureSignaled || f.state == FutureTimedOut || f.state == FutureKilled
}

// IsSuccessful reports whether the future completed without error.
func (f *Future) IsSuccessful() bool { return f.state == FutureCompleted }

// State returns the future's current lifecycle state.
func (f *Future) State() FutureState { return f.state }

// ReportProgress is called by a worker-kind future's callable (via its
// captured *Future) to forward an intermediate value to the progress
// callback. Safe to call from the backing goroutine.
func (f *Future) ReportProgress(v any) {
	if f.s.futureProgress == nil {
		return
	}
	f.s.futureProgress <- futureProgressMsg{f: f, val: v}
}

// start launches the future's backing computation. Must be called from the
// scheduler's dispatch-loop goroutine.
func (f *Future) start(s *Scheduler) {
	if f.state != FutureInitialized {
		return
	}
	f.state = FutureRunning
	s.activeFutures++

	ctx, cancel := context.WithCancel(context.Background())
	f.runCtx, f.runCancel = ctx, cancel

	if f.hasTimeout {
		ff := f
		f.timer = timerHandle(s.timers.Insert(time.Now().Add(f.timeout), func() {
			s.handleFutureTimeout(ff)
		}))
	}

	go f.run()
}

func (f *Future) run() {
	var result any
	var err error

	switch f.kind {
	case futureKindSubprocess:
		err = f.cmd.Run()
		if err == nil {
			result = strings.TrimSpace(f.stdout.String())
		}
	case futureKindWorker:
		w := f.s.futurePool.Get()
		result, err = f.runWorker()
		f.s.futurePool.Put(w)
	}

	f.s.futureDone <- futureOutcome{f: f, result: result, err: err}
}

func (f *Future) runWorker() (any, error) {
	if f.retry == nil {
		return f.workerFn(f.runCtx)
	}

	var result any
	var err error
	for attempt := 0; ; attempt++ {
		result, err = f.workerFn(f.runCtx)
		if err == nil {
			return result, nil
		}
		if attempt+1 >= f.maxRetries {
			return result, err
		}
		if f.isRetryable != nil && !f.isRetryable(err) {
			return result, err
		}
		select {
		case <-f.runCtx.Done():
			return result, f.runCtx.Err()
		case <-time.After(f.retry.NextBackOff()):
		}
	}
}

// stop terminates a running future: a subprocess is signalled (or killed if
// sig is nil), a worker's context is cancelled. Must be called from the
// scheduler's dispatch-loop goroutine.
func (f *Future) stop(sig os.Signal) {
	if f.state != FutureRunning {
		return
	}
	f.state = FutureSignaled
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}

	switch f.kind {
	case futureKindSubprocess:
		if f.cmd.Process != nil {
			if sig != nil {
				_ = f.cmd.Process.Signal(sig)
			} else {
				_ = f.cmd.Process.Kill()
			}
		}
	case futureKindWorker:
		if f.runCancel != nil {
			f.runCancel()
		}
	}

	if sig != nil {
		if h, ok := f.signalHandlers[sig]; ok && h != nil {
			h(sig)
		}
	}

	f.s.activeFutures--
	if f.hasOwner {
		if owner, ok := f.s.tasks[f.ownerTaskID]; ok && !owner.IsDone() {
			owner.requestTerminal(StateSignaled, &CancelledError{TaskID: owner.id})
			f.s.schedule(owner.id)
		}
	}
}

// futureOutcome is what a Future's backing goroutine sends on
// Scheduler.futureDone once its computation returns.
type futureOutcome struct {
	f      *Future
	result any
	err    error
}

type futureProgressMsg struct {
	f   *Future
	val any
}

// handleFutureSettled processes one futureOutcome on the dispatch-loop
// goroutine: records the result, fires then/catch, and resolves the
// owning task if add_future/spawn_task is waiting on it.
func (s *Scheduler) handleFutureSettled(out futureOutcome) {
	f := out.f
	if f.state != FutureRunning {
		return
	}
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}

	f.result, f.err = out.result, out.err
	if out.err != nil {
		f.state = FutureErred
		if f.catchCB != nil {
			f.catchCB(out.err)
		}
	} else {
		f.state = FutureCompleted
		if f.thenCB != nil {
			f.thenCB(out.result)
		}
	}
	s.activeFutures--

	if f.hasOwner {
		if owner, ok := s.tasks[f.ownerTaskID]; ok && !owner.IsDone() {
			s.resumeWithFuture(owner, f)
		}
	}
}

// dispatchFutureProgress forwards a ReportProgress value to its future's
// progress callback on the dispatch-loop goroutine.
func (s *Scheduler) dispatchFutureProgress(msg futureProgressMsg) {
	if msg.f.progressCB != nil {
		msg.f.progressCB(msg.val)
	}
}

func (s *Scheduler) handleFutureTimeout(f *Future) {
	if f.state != FutureRunning {
		return
	}
	f.state = FutureTimedOut
	f.timer = nil
	if f.runCancel != nil {
		f.runCancel()
	}
	if f.kind == futureKindSubprocess && f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
	}
	if f.timeoutCB != nil {
		f.timeoutCB()
	}
	s.activeFutures--

	if f.hasOwner {
		if owner, ok := s.tasks[f.ownerTaskID]; ok && !owner.IsDone() {
			owner.injectPending(&TimeoutError{Seconds: f.timeout.Seconds()})
			s.scheduleValue(owner.id, nil)
		}
	}
}

func (s *Scheduler) resumeWithFuture(t *Task, f *Future) {
	if f.err != nil {
		t.injectPending(f.err)
		s.scheduleValue(t.id, nil)
		return
	}
	s.scheduleValue(t.id, f.result)
}

// awaitFuture binds f to t (spec §4.6 add_future / Kernel::addFuture): t's
// type becomes paralleled, its state becomes process, and its custom slot
// holds f. t stays suspended until f settles — either immediately below, if
// f had already terminated before this call, or later via
// handleFutureSettled/handleFutureTimeout/Future.stop reaching back into t.
func (s *Scheduler) awaitFuture(t *Task, f *Future) {
	f.ownerTaskID = t.id
	f.hasOwner = true
	s.futures[t.id] = f

	t.typ = TypeParalleled
	t.state = StateProcess
	t.custom = f

	if f.state == FutureInitialized {
		f.start(s)
		return
	}
	if f.state.isTerminal() {
		s.resumeWithFuture(t, f)
	}
}
