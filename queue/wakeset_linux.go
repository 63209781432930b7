//go:build linux

package queue

import (
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// eventfdWakeSet implements WakeSet with one eventfd per lane registered
// on a shared epoll instance, matching spec.md §6's "each lane owns one
// eventfd-like file descriptor" wake-up protocol exactly.
//
// Grounded on eventloop/wakeup_linux.go (unix.Eventfd creation) and
// eventloop/poller_linux.go (unix.EpollCreate1/EpollCtl/EpollWait shape),
// adapted from a callback-dispatching poller to a lane-index-collecting
// one, since the worker loop wants "which lanes woke up", not a callback.
type eventfdWakeSet struct {
	epfd int

	mu     sync.Mutex
	fds    []int
	closed bool
}

// NewWakeSet builds a WakeSet with one eventfd per lane. On Linux this
// uses a real epoll instance; see wakeset_other.go for the fallback used
// on platforms without epoll.
func NewWakeSet(numLanes int) (WakeSet, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	w := &eventfdWakeSet{epfd: epfd, fds: make([]int, numLanes)}
	for lane := 0; lane < numLanes; lane++ {
		fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.fds[lane] = fd
		ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(lane)}
		if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
			w.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *eventfdWakeSet) Signal(lane int) error {
	w.mu.Lock()
	closed := w.closed
	fd := w.fds[lane]
	w.mu.Unlock()
	if closed {
		return nil
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 1)
	_, err := unix.Write(fd, buf)
	return err
}

func (w *eventfdWakeSet) Wait(timeout time.Duration) ([]int, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, nil
	}
	w.mu.Unlock()

	timeoutMs := -1
	if timeout > 0 {
		timeoutMs = int(timeout.Milliseconds())
	}

	var events [64]unix.EpollEvent
	n, err := unix.EpollWait(w.epfd, events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	buf := make([]byte, 8)
	lanes := make([]int, 0, n)
	for i := 0; i < n; i++ {
		lane := int(events[i].Fd)
		w.mu.Lock()
		fd := w.fds[lane]
		w.mu.Unlock()
		// Drain the eventfd counter so it doesn't re-trigger level-style.
		unix.Read(fd, buf)
		lanes = append(lanes, lane)
	}
	return lanes, nil
}

func (w *eventfdWakeSet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	for _, fd := range w.fds {
		unix.Close(fd)
	}
	return unix.Close(w.epfd)
}
