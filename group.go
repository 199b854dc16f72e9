package coop

// GroupPolicy selects what TaskGroup.Join waits for (spec §4.10).
type GroupPolicy int

const (
	// GroupAll waits for every member to terminate.
	GroupAll GroupPolicy = iota
	// GroupAny waits for the first member to terminate.
	GroupAny
	// GroupObject waits for the first member that terminates with a
	// non-nil result (errors and nil results are skipped over); if no
	// member produces one, it waits for every member to terminate.
	GroupObject
	// GroupNone cancels every running member immediately instead of
	// waiting.
	GroupNone
)

type groupOutcome struct {
	result any
	err    error
}

// TaskGroup supervises a set of tasks under a single wait policy (spec C7).
// Members are tracked by id rather than by strong reference — a task holds
// its group's id on Task.groupID, and the group holds member ids in running
// and finished — matching the arena/id-table redesign note (spec §9) that
// also shapes Task's own caller/group back-references.
type TaskGroup struct {
	id     int64
	s      *Scheduler
	policy GroupPolicy

	running  map[int64]bool
	finished map[int64]groupOutcome

	doneOrder     []int64 // member ids in the order they terminated
	deliverCursor int     // how many of doneOrder NextDone has delivered

	hasFirstDone bool

	joined      bool
	joinWaiters []int64

	nextDoneWaiters []int64

	onChangeHandler func(any)
}

// NewTaskGroup creates an empty group bound to s.
func NewTaskGroup(s *Scheduler, policy GroupPolicy) *TaskGroup {
	s.groupNextID++
	g := &TaskGroup{
		id:       s.groupNextID,
		s:        s,
		policy:   policy,
		running:  make(map[int64]bool),
		finished: make(map[int64]groupOutcome),
	}
	s.groups[g.id] = g
	return g
}

// Spawn creates a new task running fn and adopts it into the group.
func (g *TaskGroup) Spawn(fn CoroutineFunc) (int64, error) {
	if g.joined {
		return 0, ErrInvalidState
	}
	t := g.s.newTask(fn, TypeAwaited, "")
	g.adopt(t)
	g.s.schedule(t.id)
	return t.id, nil
}

// AddTask adopts an already-created task into the group. It errors if the
// task is unknown, already belongs to a group, or this group has joined.
func (g *TaskGroup) AddTask(id int64) error {
	if g.joined {
		return ErrInvalidState
	}
	t, ok := g.s.tasks[id]
	if !ok {
		return &InvalidArgumentError{Reason: "add_task: unknown task id"}
	}
	if t.hasGroup {
		return &InvalidArgumentError{Reason: "add_task: task already belongs to a group"}
	}
	g.adopt(t)
	return nil
}

func (g *TaskGroup) adopt(t *Task) {
	t.groupID = g.id
	t.hasGroup = true
	g.running[t.id] = true
}

// onChange installs a callback invoked with a member's id each time it
// terminates (backs the monitor_task primitive).
func (g *TaskGroup) onChange(h func(any)) { g.onChangeHandler = h }

// onMemberDone is called by the scheduler's finish() when one of the
// group's members reaches a terminal state.
func (g *TaskGroup) onMemberDone(t *Task) {
	delete(g.running, t.id)
	g.finished[t.id] = groupOutcome{result: t.result, err: t.err}
	g.doneOrder = append(g.doneOrder, t.id)
	g.hasFirstDone = true

	if g.onChangeHandler != nil {
		g.onChangeHandler(t.id)
	}

	if len(g.nextDoneWaiters) > 0 && g.deliverCursor < len(g.doneOrder) {
		waiterID := g.nextDoneWaiters[0]
		g.nextDoneWaiters = g.nextDoneWaiters[1:]
		id := g.doneOrder[g.deliverCursor]
		g.deliverCursor++
		g.s.scheduleValue(waiterID, id)
	}

	g.wakeJoinWaiters()
}

func (g *TaskGroup) firstObjectResult() (int64, bool) {
	for _, id := range g.doneOrder {
		o := g.finished[id]
		if o.err == nil && o.result != nil {
			return id, true
		}
	}
	return 0, false
}

func (g *TaskGroup) joinSatisfied() bool {
	switch g.policy {
	case GroupAny:
		return g.hasFirstDone
	case GroupObject:
		if _, ok := g.firstObjectResult(); ok {
			return true
		}
		return len(g.running) == 0
	default: // GroupAll
		return len(g.running) == 0
	}
}

func (g *TaskGroup) wakeJoinWaiters() {
	if len(g.joinWaiters) == 0 || !g.joinSatisfied() {
		return
	}
	waiters := g.joinWaiters
	g.joinWaiters = nil
	g.joined = true
	for _, id := range waiters {
		g.s.scheduleValue(id, nil)
	}
}

// CancelRemaining cancels every still-running member, aggregating any
// per-member cancellation errors with go-multierror instead of discarding
// them.
func (g *TaskGroup) CancelRemaining() error {
	var errs []error
	for id := range g.running {
		if err := g.s.cancelTask(id, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return AggregateErrors(errs...)
}

// GroupNextDone is the next_done() kernel primitive.
type GroupNextDone struct{ Group *TaskGroup }

func (p GroupNextDone) invoke(t *Task, s *Scheduler) {
	g := p.Group
	if g.deliverCursor < len(g.doneOrder) {
		id := g.doneOrder[g.deliverCursor]
		g.deliverCursor++
		s.scheduleValue(t.id, id)
		return
	}
	if len(g.running) == 0 {
		s.scheduleValue(t.id, int64(0))
		return
	}
	g.nextDoneWaiters = append(g.nextDoneWaiters, t.id)
}

// NextDone suspends until the next member terminates, returning its id, or
// 0 once every member has been reported.
func (g *TaskGroup) NextDone(y *Yield) (int64, error) {
	v, err := y.Send(GroupNextDone{Group: g})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// NextResult is NextDone followed by a lookup of the finished member's
// stored outcome.
func (g *TaskGroup) NextResult(y *Yield) (any, error) {
	id, err := g.NextDone(y)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, nil
	}
	out := g.finished[id]
	return out.result, out.err
}

// GroupJoin is the join() kernel primitive.
type GroupJoin struct{ Group *TaskGroup }

func (p GroupJoin) invoke(t *Task, s *Scheduler) {
	g := p.Group

	if g.joined {
		t.injectPending(ErrInvalidState)
		s.scheduleValue(t.id, nil)
		return
	}

	if g.policy == GroupNone {
		if err := g.CancelRemaining(); err != nil {
			t.injectPending(err)
		}
		g.joined = true
		s.scheduleValue(t.id, nil)
		return
	}

	if g.joinSatisfied() {
		g.joined = true
		s.scheduleValue(t.id, nil)
		return
	}
	g.joinWaiters = append(g.joinWaiters, t.id)
}

// Join suspends the caller according to the group's wait policy.
func (g *TaskGroup) Join(y *Yield) error {
	_, err := y.Send(GroupJoin{Group: g})
	return err
}
