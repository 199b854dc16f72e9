//go:build unix

package netpoll

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// portable implements Poller with a fresh unix.Poll(2) call per Wait,
// rebuilding the pollfd slice from the registered sets each time. This is
// the "portable path" of spec.md §4.4: correct on every unix GOOS the
// corpus targets, at the cost of O(fds) setup per call rather than the
// native path's persistent per-fd registration.
type portable struct {
	mu  sync.Mutex
	r   map[int]struct{}
	w   map[int]struct{}
	brk [2]int // self-pipe, wakes Wait() on Close or registration change
}

// NewPortable returns a Poller backed by a per-call poll(2) sweep.
func NewPortable() (Poller, error) {
	fds, err := selfPipe()
	if err != nil {
		return nil, err
	}
	return &portable{
		r:   make(map[int]struct{}),
		w:   make(map[int]struct{}),
		brk: fds,
	}, nil
}

func selfPipe() ([2]int, error) {
	var fds [2]int
	p := make([]int, 2)
	if err := unix.Pipe2(p, unix.O_NONBLOCK); err != nil {
		return fds, err
	}
	fds[0], fds[1] = p[0], p[1]
	return fds, nil
}

func (p *portable) Add(fd int, dir Direction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch dir {
	case Read:
		p.r[fd] = struct{}{}
	case Write:
		p.w[fd] = struct{}{}
	}
	p.wake()
	return nil
}

func (p *portable) Remove(fd int, dir Direction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch dir {
	case Read:
		delete(p.r, fd)
	case Write:
		delete(p.w, fd)
	}
	p.wake()
	return nil
}

// wake nudges a blocked Wait so it rebuilds its pollfd slice after a
// registration change; best-effort, never blocks.
func (p *portable) wake() {
	if p.brk[1] < 0 {
		return
	}
	_, _ = unix.Write(p.brk[1], []byte{0})
}

func (p *portable) Wait(timeout *time.Duration) ([]Ready, error) {
	p.mu.Lock()
	pfds := make([]unix.PollFd, 0, len(p.r)+len(p.w)+1)
	pfds = append(pfds, unix.PollFd{Fd: int32(p.brk[0]), Events: unix.POLLIN})
	idx := make(map[int]*struct{ r, w int })
	for fd := range p.r {
		if idx[fd] == nil {
			idx[fd] = &struct{ r, w int }{-1, -1}
		}
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
		idx[fd].r = len(pfds) - 1
	}
	for fd := range p.w {
		if idx[fd] == nil {
			idx[fd] = &struct{ r, w int }{-1, -1}
		}
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLOUT})
		idx[fd].w = len(pfds) - 1
	}
	p.mu.Unlock()

	ms := -1
	if timeout != nil {
		ms = int(timeout.Milliseconds())
		if ms < 0 {
			ms = 0
		}
	}

	n, err := unix.Poll(pfds, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	var ready []Ready
	if pfds[0].Revents&unix.POLLIN != 0 {
		drainSelfPipe(p.brk[0])
	}
	for fd, pos := range idx {
		if pos.r >= 0 && pfds[pos.r].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			ready = append(ready, Ready{FD: fd, Dir: Read})
		}
		if pos.w >= 0 && pfds[pos.w].Revents&(unix.POLLOUT|unix.POLLHUP|unix.POLLERR) != 0 {
			ready = append(ready, Ready{FD: fd, Dir: Write})
		}
	}
	return ready, nil
}

func drainSelfPipe(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *portable) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.brk[1] >= 0 {
		_ = unix.Close(p.brk[1])
		_ = unix.Close(p.brk[0])
		p.brk[0], p.brk[1] = -1, -1
	}
	return nil
}
