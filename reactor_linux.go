//go:build linux

package asyncio

import (
	"golang.org/x/sys/unix"
)

// epollPoller implements platformPoller using Linux epoll. There is no
// per-fd callback — readiness is reported back to the Reactor as plain
// (fd, direction) tuples and fanned out to waker queues there.
type epollPoller struct {
	epfd     int
	eventBuf [256]unix.EpollEvent
	wakeFd   int // eventfd, read+write end are the same fd
}

func newPlatformPoller() (platformPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	p := &epollPoller{epfd: epfd, wakeFd: wakeFd}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFd),
	}); err != nil {
		_ = unix.Close(epfd)
		_ = unix.Close(wakeFd)
		return nil, err
	}
	return p, nil
}

func eventsToEpoll(readable, writable bool) uint32 {
	var e uint32
	if readable {
		e |= unix.EPOLLIN
	}
	if writable {
		e |= unix.EPOLLOUT
	}
	return e
}

func (p *epollPoller) add(fd int, readable, writable bool) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(readable, writable),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) modify(fd int, readable, writable bool) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: eventsToEpoll(readable, writable),
		Fd:     int32(fd),
	})
}

func (p *epollPoller) del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks in epoll_wait, retrying transparently on EINTR.
func (p *epollPoller) wait(timeoutMs int) ([]readyEvent, error) {
	for {
		n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, &FatalReactorError{Cause: err}
		}

		events := make([]readyEvent, 0, n)
		for i := 0; i < n; i++ {
			fd := int(p.eventBuf[i].Fd)
			if fd == p.wakeFd {
				p.drainWake()
				continue
			}
			flags := p.eventBuf[i].Events
			events = append(events, readyEvent{
				fd:       fd,
				readable: flags&unix.EPOLLIN != 0,
				writable: flags&unix.EPOLLOUT != 0,
				errored:  flags&unix.EPOLLERR != 0,
				hangup:   flags&unix.EPOLLHUP != 0,
			})
		}
		return events, nil
	}
}

func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakeFd, buf[:])
		if err != nil {
			break
		}
	}
}

func (p *epollPoller) notify() error {
	var one uint64 = 1
	buf := [8]byte{}
	for i := 0; i < 8; i++ {
		buf[i] = byte(one >> (8 * i))
	}
	_, err := unix.Write(p.wakeFd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

func (p *epollPoller) close() error {
	_ = unix.Close(p.wakeFd)
	return unix.Close(p.epfd)
}
