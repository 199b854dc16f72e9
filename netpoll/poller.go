// Package netpoll implements the scheduler's readiness multiplexer (spec
// component C2): register fd read/write interest, then block up to a
// timeout and report which fds became ready.
//
// Two implementations satisfy Poller, mirroring spec.md §4.4 and the
// "optional native event-loop backend" redesign note in §9:
//
//   - Portable: a synchronous poll(2) sweep over the registered fd sets on
//     every call (NewPortable).
//   - Native: a persistent, level-triggered epoll instance on Linux,
//     re-armed after each drain (NewNative, linux-only build tag).
//
// Both are grounded on golang.org/x/sys/unix, an indirect dependency shared
// by four corpus repositories (noisefs, cue-lang/cue, the migration agent,
// and go-utilpkg), promoted here to a direct dependency.
package netpoll

import "time"

// Direction distinguishes read-readiness from write-readiness interest.
type Direction int

const (
	Read Direction = iota
	Write
)

// Poller multiplexes readiness across many fds for a single-threaded
// dispatch loop. Implementations are not safe for concurrent use; the
// scheduler's single loop goroutine owns the Poller exclusively.
type Poller interface {
	// Add registers fd for the given direction. Re-registering the same
	// (fd, dir) pair is a no-op.
	Add(fd int, dir Direction) error

	// Remove unregisters fd for the given direction. Removing an
	// unregistered (fd, dir) pair is a no-op.
	Remove(fd int, dir Direction) error

	// Wait blocks until at least one registered fd is ready, the timeout
	// elapses, or Close is called from another goroutine. timeout == nil
	// means block indefinitely (spec.md §4.4's "timeout... seconds or
	// null=forever"). It returns the set of (fd, direction) pairs that
	// became ready.
	Wait(timeout *time.Duration) ([]Ready, error)

	// Close releases OS resources. Wait returns after a pending Close.
	Close() error
}

// Ready identifies one fd that became ready in a direction.
type Ready struct {
	FD  int
	Dir Direction
}
