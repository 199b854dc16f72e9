package coop

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ygrebnov/coop/netpoll"
	"github.com/ygrebnov/coop/signals"
	"github.com/ygrebnov/coop/timerheap"
	"github.com/ygrebnov/coop/workers/metrics"
	"github.com/ygrebnov/coop/workers/pool"
)

const (
	readDir  = netpoll.Read
	writeDir = netpoll.Write
)

// readyItem is one entry in the ready queue: a task id paired with the
// value (or nil) it should be resumed with next.
type readyItem struct {
	id  int64
	val any
}

// Scheduler is the single-threaded cooperative dispatch loop (spec C9). It
// owns every registry a kernel primitive touches — the ready queue, task
// table, fd waiters, timer heap, joiners, gather waits, and the future
// worker pool — and is the only goroutine that ever mutates them, matching
// spec.md §5's single-loop ownership rule.
type Scheduler struct {
	cfg     Config
	logger  Logger
	metrics metrics.Provider

	nextID int64
	tasks  map[int64]*Task
	ready  []readyItem

	readers map[int][]int64
	writers map[int][]int64

	timers *timerheap.Heap
	poller netpoll.Poller

	signals *signals.Router

	joiners map[int64][]int64 // task id -> ids of tasks Join()ing it

	gathers        map[int64]*gatherWait // caller task id -> its pending gather
	gatherByTarget map[int64][]int64     // target task id -> caller ids gathering on it

	waitFors       map[int64]*waitForWait // caller task id -> its pending wait_for/timeout_after
	waitForByChild map[int64]int64        // child task id -> caller task id

	groups      map[int64]*TaskGroup
	groupNextID int64

	futures       map[int64]*Future // owning task id -> future
	futurePool    pool.Pool
	activeFutures int

	futureDone     chan futureOutcome
	futureProgress chan futureProgressMsg

	shuttingDown bool
	skipID       int64
	hasSkipID    bool
}

// NewScheduler builds a Scheduler from cfg. A nil cfg is equivalent to
// &Config{}, matching the adapted workers package's "zero value is suitable
// for the majority of cases" convention.
func NewScheduler(cfg *Config) (*Scheduler, error) {
	c := defaultConfig()
	if cfg != nil {
		if cfg.MaxWorkers != 0 {
			c.MaxWorkers = cfg.MaxWorkers
		}
		if cfg.TimerHeapHint != 0 {
			c.TimerHeapHint = cfg.TimerHeapHint
		}
		c.EnableNativePoller = cfg.EnableNativePoller
		c.AutoGOMAXPROCS = cfg.AutoGOMAXPROCS
		if cfg.MetricsProvider != nil {
			c.MetricsProvider = cfg.MetricsProvider
		}
		if cfg.Logger != nil {
			c.Logger = cfg.Logger
		}
	}
	if err := validateConfig(&c); err != nil {
		return nil, err
	}
	if c.AutoGOMAXPROCS {
		if err := applyAutoGOMAXPROCS(); err != nil {
			return nil, err
		}
	}

	var poller netpoll.Poller
	var err error
	if c.EnableNativePoller {
		poller, err = netpoll.NewNative()
	}
	if poller == nil {
		poller, err = netpoll.NewPortable()
	}
	if err != nil {
		c.Logger.Warn("coop: readiness poller unavailable, fd waits will hang", zap.Error(err))
		poller = nil
	}

	var futurePool pool.Pool
	newWorkerFn := func() interface{} { return new(struct{}) }
	if c.MaxWorkers > 0 {
		futurePool = pool.NewFixed(c.MaxWorkers, newWorkerFn)
	} else {
		futurePool = pool.NewDynamic(newWorkerFn)
	}

	return &Scheduler{
		cfg:        c,
		logger:     c.Logger,
		metrics:    c.MetricsProvider,
		tasks:      make(map[int64]*Task),
		readers:    make(map[int][]int64),
		writers:    make(map[int][]int64),
		timers:     timerheap.New(),
		poller:     poller,
		signals:    signals.NewRouter(),
		joiners:        make(map[int64][]int64),
		gathers:        make(map[int64]*gatherWait),
		gatherByTarget: make(map[int64][]int64),
		waitFors:       make(map[int64]*waitForWait),
		waitForByChild: make(map[int64]int64),
		groups:         make(map[int64]*TaskGroup),
		futures:        make(map[int64]*Future),
		futurePool:     futurePool,
		futureDone:     make(chan futureOutcome, 8),
		futureProgress: make(chan futureProgressMsg, 8),
	}, nil
}

// NewSchedulerOptions builds a Scheduler via functional options.
func NewSchedulerOptions(opts ...Option) (*Scheduler, error) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return NewScheduler(&c)
}

// CreateTask registers fn as a new top-level coroutine and marks it ready
// to run on the next dispatch cycle, returning its id.
func (s *Scheduler) CreateTask(fn CoroutineFunc) int64 {
	t := s.newTask(fn, TypeAwaited, "")
	s.schedule(t.id)
	return t.id
}

// CreateNamedTask is CreateTask with an explicit display name (SPEC_FULL
// §13 supplement).
func (s *Scheduler) CreateNamedTask(name string, fn CoroutineFunc) int64 {
	t := s.newTask(fn, TypeAwaited, name)
	s.schedule(t.id)
	return t.id
}

// Task looks up a task by id.
func (s *Scheduler) Task(id int64) (*Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// CancelTask requests cancellation of the task identified by id, injecting
// ErrCancelled at its next resume point. customState, if non-nil, is stashed
// on the task for an observer to inspect.
func (s *Scheduler) CancelTask(id int64, customState any) error {
	return s.cancelTask(id, customState)
}

// Shutdown stops every future and cancels every task except skipID (and
// skipID itself, if 0 means "none"), then lets the dispatch loop drain until
// only the survivor remains, per spec §4.10 "shutdown cancels all tasks
// except a designated survivor". Errors cancelling individual tasks are
// aggregated with go-multierror rather than discarded.
func (s *Scheduler) Shutdown(skipID int64) error {
	return s.beginShutdown(skipID)
}

// Metrics returns the scheduler's metrics.Provider.
func (s *Scheduler) Metrics() metrics.Provider { return s.metrics }

func (s *Scheduler) newTask(fn CoroutineFunc, typ Type, name string) *Task {
	s.nextID++
	t := newTask(s.nextID, fn, typ, name)
	s.tasks[t.id] = t
	s.metrics.Counter("tasks.created").Add(1)
	return t
}

func (s *Scheduler) schedule(id int64) { s.scheduleValue(id, nil) }

func (s *Scheduler) scheduleValue(id int64, val any) {
	s.ready = append(s.ready, readyItem{id: id, val: val})
}

func (s *Scheduler) addWaiter(fd int, dir netpoll.Direction, id int64) {
	if s.poller == nil {
		return
	}
	m := s.readers
	if dir == writeDir {
		m = s.writers
	}
	if len(m[fd]) == 0 {
		_ = s.poller.Add(fd, dir)
	}
	m[fd] = append(m[fd], id)
}

// timerHandle adapts timerheap.Heap.Insert's by-value Handle to the
// pointer Task.timer expects, so a later Stop() call can cancel it.
func timerHandle(h timerheap.Handle) *timerheap.Handle { return &h }

func (s *Scheduler) addJoiner(targetID, joinerID int64) {
	s.joiners[targetID] = append(s.joiners[targetID], joinerID)
}

func (s *Scheduler) resumeWithResult(caller, target *Task) {
	if target.err != nil {
		caller.injectPending(target.err)
		s.scheduleValue(caller.id, nil)
		return
	}
	s.scheduleValue(caller.id, target.result)
}

func (s *Scheduler) cancelTask(id int64, customState any) error {
	t, ok := s.tasks[id]
	if !ok {
		return &InvalidArgumentError{Reason: "cancel: unknown task id"}
	}
	if t.IsDone() {
		return nil
	}
	if customState != nil {
		t.custom = customState
	}
	t.requestTerminal(StateCancelled, &CancelledError{TaskID: id})
	s.schedule(id)
	return nil
}

func (s *Scheduler) beginShutdown(skipID int64) error {
	s.shuttingDown = true
	s.skipID = skipID
	s.hasSkipID = skipID != 0

	var errs []error
	for _, f := range s.futures {
		if f.IsRunning() {
			f.stop(nil)
		}
	}
	for id, t := range s.tasks {
		if t.IsDone() || (s.hasSkipID && id == s.skipID) {
			continue
		}
		if err := s.cancelTask(id, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return AggregateErrors(errs...)
}

// shouldStop reports whether a shutdown is in progress and only the skipped
// task (if any) remains registered.
func (s *Scheduler) shouldStop() bool {
	if !s.shuttingDown {
		return false
	}
	for id, t := range s.tasks {
		if t.IsDone() {
			continue
		}
		if s.hasSkipID && id == s.skipID {
			continue
		}
		return false
	}
	return true
}

// Run drives the dispatch loop until every task has terminated, ctx is
// cancelled, or Shutdown's condition is met. It returns ctx.Err() if ctx
// ended the run early.
func (s *Scheduler) Run(ctx context.Context) error {
	sigCh := s.signals.Pending()

	for {
		if s.shouldStop() {
			return nil
		}

		if len(s.ready) > 0 {
			item := s.ready[0]
			s.ready = s.ready[1:]
			s.step(item)
			continue
		}

		if s.allDone() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig := <-sigCh:
			s.signals.Dispatch(sig)
			continue
		case out := <-s.futureDone:
			s.handleFutureSettled(out)
			continue
		case msg := <-s.futureProgress:
			s.dispatchFutureProgress(msg)
			continue
		default:
		}

		if waited := s.waitForWork(ctx, sigCh); !waited {
			return ctx.Err()
		}
	}
}

func (s *Scheduler) allDone() bool {
	if len(s.readers) > 0 || len(s.writers) > 0 || s.timers.Len() > 0 {
		return false
	}
	if s.activeFutures > 0 || s.signals.Active() {
		return false
	}
	for _, t := range s.tasks {
		if !t.IsDone() {
			return false
		}
	}
	return true
}

// waitForWork blocks on timers, fd readiness and signals until something
// becomes ready, ctx is cancelled, or there is nothing left to wait for.
// It returns false when the caller should stop (ctx cancelled with nothing
// resolvable).
func (s *Scheduler) waitForWork(ctx context.Context, sigCh <-chan os.Signal) bool {
	var timeout *time.Duration
	if d, ok := s.timers.NextDue(time.Now()); ok {
		timeout = &d
	}

	if s.poller != nil && (len(s.readers) > 0 || len(s.writers) > 0 || timeout != nil) {
		type pollResult struct {
			ready []netpoll.Ready
			err   error
		}
		resCh := make(chan pollResult, 1)
		go func() {
			ready, err := s.poller.Wait(timeout)
			resCh <- pollResult{ready, err}
		}()

		select {
		case <-ctx.Done():
			return false
		case sig := <-sigCh:
			s.signals.Dispatch(sig)
			return true
		case out := <-s.futureDone:
			s.handleFutureSettled(out)
			return true
		case msg := <-s.futureProgress:
			s.dispatchFutureProgress(msg)
			return true
		case r := <-resCh:
			s.timers.Tick(time.Now())
			if r.err == nil {
				s.wakeReady(r.ready)
			}
			return true
		}
	}

	if timeout != nil {
		t := time.NewTimer(*timeout)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case sig := <-sigCh:
			s.signals.Dispatch(sig)
			return true
		case out := <-s.futureDone:
			s.handleFutureSettled(out)
			return true
		case msg := <-s.futureProgress:
			s.dispatchFutureProgress(msg)
			return true
		case <-t.C:
			s.timers.Tick(time.Now())
			return true
		}
	}

	select {
	case <-ctx.Done():
		return false
	case sig := <-sigCh:
		s.signals.Dispatch(sig)
		return true
	case out := <-s.futureDone:
		s.handleFutureSettled(out)
		return true
	case msg := <-s.futureProgress:
		s.dispatchFutureProgress(msg)
		return true
	}
}

func (s *Scheduler) wakeReady(ready []netpoll.Ready) {
	for _, r := range ready {
		m := s.readers
		if r.Dir == writeDir {
			m = s.writers
		}
		ids := m[r.FD]
		delete(m, r.FD)
		_ = s.poller.Remove(r.FD, r.Dir)
		for _, id := range ids {
			s.scheduleValue(id, nil)
		}
	}
}

// step resumes exactly one ready task and processes what it yields.
func (s *Scheduler) step(item readyItem) {
	t, ok := s.tasks[item.id]
	if !ok || t.IsDone() {
		return
	}
	s.metrics.Counter("dispatch.cycles").Add(1)
	t.state = StateRunning
	out := t.resume(item.val)

	switch v := out.(type) {
	case coroutineDone:
		s.finish(t, v)
	case Primitive:
		v.invoke(t, s)
	default:
		t.state = StateRescheduled
		s.scheduleValue(t.id, v)
	}
}

func (s *Scheduler) finish(t *Task, done coroutineDone) {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}

	switch {
	case t.hasTerminalHint && done.err != nil:
		t.state = t.terminalHint
		t.err = done.err
	case done.err != nil:
		t.state = StateErred
		t.err = done.err
	default:
		t.state = StateCompleted
		t.result = done.result
	}

	if t.typ == TypeStateless {
		t.result, t.err = nil, nil
	}

	switch t.state {
	case StateCompleted:
		s.metrics.Counter("tasks.completed").Add(1)
	case StateCancelled:
		s.metrics.Counter("tasks.cancelled").Add(1)
	default:
		s.metrics.Counter("tasks.erred").Add(1)
	}

	for _, joinerID := range s.joiners[t.id] {
		if joiner, ok := s.tasks[joinerID]; ok && !joiner.IsDone() {
			s.resumeWithResult(joiner, t)
		}
	}
	delete(s.joiners, t.id)

	s.settleGathers(t)

	if callerID, ok := s.waitForByChild[t.id]; ok {
		s.settleWaitFor(callerID, t)
	}

	if t.hasGroup {
		if g, ok := s.groups[t.groupID]; ok {
			g.onMemberDone(t)
		}
	}
}
