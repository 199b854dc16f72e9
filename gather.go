package coop

import (
	"time"

	"github.com/hashicorp/go-multierror"
)

// GatherOption configures a Gather call (spec §4.8 "gather_wait(ids,
// race=0, exception=true, clear=false)").
type GatherOption func(*gatherConfig)

type gatherConfig struct {
	race      int
	exception bool
	clear     bool
}

// WithGatherRace resolves as soon as n members have settled instead of
// waiting for all of them.
func WithGatherRace(n int) GatherOption { return func(c *gatherConfig) { c.race = n } }

// WithGatherAllowErrors disables "propagate the first exception": every
// member's outcome (result or error) is collected instead, and any errors
// are aggregated into the returned error via go-multierror rather than
// thrown into the caller.
func WithGatherAllowErrors() GatherOption { return func(c *gatherConfig) { c.exception = false } }

// WithGatherClear cancels any members still pending once the race
// condition above is satisfied.
func WithGatherClear() GatherOption { return func(c *gatherConfig) { c.clear = true } }

// Gather suspends the caller until every task in ids (or, with
// WithGatherRace, the first n of them) has terminated, per spec §4.9.
// With the default exception=true, the first member error observed is
// thrown into the caller and values is nil. With WithGatherAllowErrors,
// every member's result lands in values and every member's error is
// aggregated into the returned error.
func Gather(y *Yield, ids []int64, opts ...GatherOption) (values map[int64]any, err error) {
	cfg := gatherConfig{exception: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	raw, thrown := y.Send(GatherWait{IDs: ids, Race: cfg.race, Exception: cfg.exception, Clear: cfg.clear})
	if thrown != nil {
		return nil, thrown
	}
	m, _ := raw.(map[int64]any)
	if cfg.exception {
		return m, nil
	}

	values = make(map[int64]any, len(m))
	var merr error
	for id, v := range m {
		if e, ok := v.(error); ok {
			merr = multierror.Append(merr, e)
			continue
		}
		values[id] = v
	}
	return values, merr
}

// gatherWait tracks one in-flight gather_wait(ids, race, exception, clear)
// call (spec §4.9). Unlike the original's reentrant "drive the event loop
// until satisfied" interpreter, the scheduler's single Run loop already
// drives every task to completion; a gather only needs to record results as
// they arrive via the normal finish() path and resolve once its condition
// is met (spec §9 "dynamic dispatch... tagged variant").
type gatherWait struct {
	callerID int64

	race      int
	exception bool
	clear     bool

	results map[int64]any
	errs    map[int64]error
	// errOrder records the order errors were observed in, so exception=true
	// propagates a deterministic "first" exception rather than an arbitrary
	// one from Go's unordered map iteration.
	errOrder []int64
	pending  map[int64]bool

	startedAt time.Time
}

func (gw *gatherWait) settledCount() int { return len(gw.results) + len(gw.errs) }

// beginGather implements GatherWait.invoke: normalise the id list, survey
// already-terminated members, and either resolve immediately or register
// the caller to be woken as the remaining members finish.
func (s *Scheduler) beginGather(t *Task, p GatherWait) {
	if len(p.IDs) == 0 {
		s.scheduleValue(t.id, map[int64]any{})
		return
	}
	if p.Race > len(p.IDs) {
		t.injectPending(&LengthError{Got: p.Race, Limit: len(p.IDs)})
		s.scheduleValue(t.id, nil)
		return
	}

	gw := &gatherWait{
		callerID:  t.id,
		race:      p.Race,
		exception: p.Exception,
		clear:     p.Clear,
		results:   make(map[int64]any),
		errs:      make(map[int64]error),
		pending:   make(map[int64]bool),
		startedAt: time.Now(),
	}

	for _, id := range p.IDs {
		target, ok := s.tasks[id]
		switch {
		case !ok:
			gw.errs[id] = &InvalidArgumentError{Reason: "gather: unknown task id"}
			gw.errOrder = append(gw.errOrder, id)
		case target.typ == TypeStateless:
			gw.results[id] = nil
		case target.IsDone():
			if target.err != nil {
				gw.errs[id] = target.err
				gw.errOrder = append(gw.errOrder, id)
			} else {
				gw.results[id] = target.result
			}
		default:
			gw.pending[id] = true
		}
	}

	if s.gatherSatisfied(gw) {
		s.resolveGather(gw)
		return
	}

	s.gathers[t.id] = gw
	for id := range gw.pending {
		s.gatherByTarget[id] = append(s.gatherByTarget[id], t.id)
	}
}

func (s *Scheduler) gatherSatisfied(gw *gatherWait) bool {
	if gw.exception && len(gw.errOrder) > 0 {
		return true
	}
	if gw.race > 0 {
		return gw.settledCount() >= gw.race
	}
	return len(gw.pending) == 0
}

// settleGathers notifies every in-flight gather waiting on t, records t's
// outcome, and resolves any that have become satisfied.
func (s *Scheduler) settleGathers(t *Task) {
	callerIDs := s.gatherByTarget[t.id]
	if len(callerIDs) == 0 {
		return
	}
	delete(s.gatherByTarget, t.id)

	for _, callerID := range callerIDs {
		gw, ok := s.gathers[callerID]
		if !ok {
			continue
		}
		if !gw.pending[t.id] {
			continue
		}
		delete(gw.pending, t.id)
		if t.err != nil {
			gw.errs[t.id] = t.err
			gw.errOrder = append(gw.errOrder, t.id)
		} else {
			gw.results[t.id] = t.result
		}
		if s.gatherSatisfied(gw) {
			s.resolveGather(gw)
		}
	}
}

// resolveGather finalises gw: unregisters remaining waiters, optionally
// clears (cancels) un-picked members, then resumes the caller with either
// the aggregated result map or the first propagated exception.
func (s *Scheduler) resolveGather(gw *gatherWait) {
	delete(s.gathers, gw.callerID)
	for id := range gw.pending {
		s.removeGatherWaiter(id, gw.callerID)
	}
	s.metrics.Histogram("gather.wait_seconds").Record(time.Since(gw.startedAt).Seconds())

	caller, ok := s.tasks[gw.callerID]
	if !ok {
		return
	}

	if gw.clear {
		for id := range gw.pending {
			_ = s.cancelTask(id, nil)
		}
	}

	if gw.exception && len(gw.errOrder) > 0 {
		caller.injectPending(gw.errs[gw.errOrder[0]])
		s.scheduleValue(gw.callerID, nil)
		return
	}

	result := make(map[int64]any, len(gw.results)+len(gw.errs))
	for id, v := range gw.results {
		result[id] = v
	}
	for id, e := range gw.errs {
		result[id] = e
	}
	s.scheduleValue(gw.callerID, result)
}

func (s *Scheduler) removeGatherWaiter(targetID, callerID int64) {
	ids := s.gatherByTarget[targetID]
	for i, id := range ids {
		if id == callerID {
			s.gatherByTarget[targetID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.gatherByTarget[targetID]) == 0 {
		delete(s.gatherByTarget, targetID)
	}
}
