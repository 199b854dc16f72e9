// Package signals implements the scheduler's signal router (spec component
// C3): the first registration for a signal installs an OS-level handler via
// os/signal, and the router dispatches each registered handler at the next
// safe point. Removing the last handler for a signal restores the default
// disposition.
package signals

import (
	"os"
	"os/signal"
	"sync"
)

// Handler is invoked when its registered signal arrives. Handlers run on
// the goroutine that calls Router.Dispatch (the scheduler's dispatch loop),
// matching spec.md §4.5's "schedules each registered handler as a task (or
// invokes its callback)".
type Handler func(os.Signal)

// Router multiplexes OS signal delivery to per-signal handler lists.
//
// Router is not safe for concurrent use except where documented (Notify
// delivery itself happens on a dedicated internal channel fed by
// os/signal, which is safe to receive from concurrently with registration
// changes guarded by mu).
type Router struct {
	mu       sync.Mutex
	handlers map[os.Signal][]Handler
	ch       chan os.Signal
}

// NewRouter returns an empty signal router.
func NewRouter() *Router {
	return &Router{
		handlers: make(map[os.Signal][]Handler),
		ch:       make(chan os.Signal, 16),
	}
}

// Add registers handler for sig. The first registration for a given signal
// installs the OS-level handler (signal.Notify); subsequent registrations
// for the same signal reuse it.
func (r *Router) Add(sig os.Signal, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	first := len(r.handlers[sig]) == 0
	r.handlers[sig] = append(r.handlers[sig], handler)
	if first {
		signal.Notify(r.ch, sig)
	}
}

// Remove unregisters handler for sig (by pointer identity is not possible
// for funcs, so Remove drops the most recently added handler for sig when
// count > 0; callers that need precise removal should wrap handler in a
// closure carrying an id and filter inside it). Removing the last handler
// for sig restores the default disposition.
func (r *Router) Remove(sig os.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hs := r.handlers[sig]
	if len(hs) == 0 {
		return
	}
	hs = hs[:len(hs)-1]
	if len(hs) == 0 {
		delete(r.handlers, sig)
		signal.Stop(r.ch)
		// Re-arm for any other signal still registered on the shared channel.
		for s := range r.handlers {
			signal.Notify(r.ch, s)
		}
	} else {
		r.handlers[sig] = hs
	}
}

// Pending returns a channel of raw OS signals the scheduler's supervisor
// should select on. Received signals must be passed to Dispatch.
func (r *Router) Pending() <-chan os.Signal { return r.ch }

// Dispatch invokes every handler registered for sig. Safe to call from the
// scheduler's single dispatch loop goroutine.
func (r *Router) Dispatch(sig os.Signal) {
	r.mu.Lock()
	hs := append([]Handler(nil), r.handlers[sig]...)
	r.mu.Unlock()

	for _, h := range hs {
		h(sig)
	}
}

// Active reports whether any signal has a registered handler.
func (r *Router) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers) > 0
}

// Close stops all OS signal delivery.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	signal.Stop(r.ch)
	r.handlers = make(map[os.Signal][]Handler)
}
