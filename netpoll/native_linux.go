//go:build linux

package netpoll

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// native implements Poller with a persistent epoll instance: each fd is
// registered once via epoll_ctl and re-armed (level-triggered, so no
// explicit re-arm call is needed, but the registered event mask is updated
// in place) whenever its read/write interest changes. This is the "native
// path" of spec.md §4.4.
type native struct {
	mu   sync.Mutex
	epfd int
	// mask tracks the currently-registered event mask per fd so Add/Remove
	// can EPOLL_CTL_MOD instead of erroring on a duplicate ADD.
	mask map[int]uint32
}

// NewNative returns a Poller backed by epoll(7).
func NewNative() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &native{epfd: fd, mask: make(map[int]uint32)}, nil
}

func eventFor(dir Direction) uint32 {
	if dir == Read {
		return unix.EPOLLIN
	}
	return unix.EPOLLOUT
}

func (n *native) Add(fd int, dir Direction) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	prev, existed := n.mask[fd]
	next := prev | eventFor(dir)
	if existed && next == prev {
		return nil
	}

	ev := unix.EpollEvent{Events: next, Fd: int32(fd)}
	var err error
	if existed {
		err = unix.EpollCtl(n.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	} else {
		err = unix.EpollCtl(n.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	}
	if err != nil {
		return err
	}
	n.mask[fd] = next
	return nil
}

func (n *native) Remove(fd int, dir Direction) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	prev, existed := n.mask[fd]
	if !existed {
		return nil
	}
	next := prev &^ eventFor(dir)
	if next == 0 {
		delete(n.mask, fd)
		return unix.EpollCtl(n.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	ev := unix.EpollEvent{Events: next, Fd: int32(fd)}
	if err := unix.EpollCtl(n.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return err
	}
	n.mask[fd] = next
	return nil
}

func (n *native) Wait(timeout *time.Duration) ([]Ready, error) {
	ms := -1
	if timeout != nil {
		ms = int(timeout.Milliseconds())
		if ms < 0 {
			ms = 0
		}
	}

	events := make([]unix.EpollEvent, 64)
	cnt, err := unix.EpollWait(n.epfd, events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	var ready []Ready
	for i := 0; i < cnt; i++ {
		fd := int(events[i].Fd)
		if events[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			ready = append(ready, Ready{FD: fd, Dir: Read})
		}
		if events[i].Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			ready = append(ready, Ready{FD: fd, Dir: Write})
		}
	}
	return ready, nil
}

func (n *native) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return unix.Close(n.epfd)
}
