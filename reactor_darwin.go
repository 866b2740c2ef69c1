//go:build darwin

package asyncio

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// kqueuePoller implements platformPoller using Darwin kqueue. Cross-thread
// wake uses a self-pipe (kqueue has no portable equivalent of Linux's
// eventfd across the BSD family).
type kqueuePoller struct {
	kq        int
	eventBuf  [256]unix.Kevent_t
	wakeRead  int
	wakeWrite int
}

func newPlatformPoller() (platformPoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)

	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		_ = unix.Close(kq)
		return nil, err
	}
	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])
	if err := syscall.SetNonblock(fds[0], true); err != nil {
		_ = unix.Close(kq)
		_ = syscall.Close(fds[0])
		_ = syscall.Close(fds[1])
		return nil, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		_ = unix.Close(kq)
		_ = syscall.Close(fds[0])
		_ = syscall.Close(fds[1])
		return nil, err
	}

	p := &kqueuePoller{kq: kq, wakeRead: fds[0], wakeWrite: fds[1]}
	_, err = unix.Kevent(kq, []unix.Kevent_t{{
		Ident:  uint64(fds[0]),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}, nil, nil)
	if err != nil {
		_ = p.close()
		return nil, err
	}
	return p, nil
}

func kevents(fd int, readable, writable bool, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if readable {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if writable {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

func (p *kqueuePoller) add(fd int, readable, writable bool) error {
	evs := kevents(fd, readable, writable, unix.EV_ADD|unix.EV_ENABLE)
	if len(evs) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, evs, nil, nil)
	return err
}

func (p *kqueuePoller) modify(fd int, readable, writable bool) error {
	// Darwin kqueue has no "replace interest" call; delete both filters and
	// re-add whichever are now wanted. Deletes on an unregistered filter are
	// tolerated (ENOENT is not a fatal condition here).
	_, _ = unix.Kevent(p.kq, []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}, nil, nil)
	return p.add(fd, readable, writable)
}

func (p *kqueuePoller) del(fd int) error {
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}, nil, nil)
	return err
}

func (p *kqueuePoller) wait(timeoutMs int) ([]readyEvent, error) {
	for {
		var ts *unix.Timespec
		if timeoutMs >= 0 {
			ts = &unix.Timespec{
				Sec:  int64(timeoutMs / 1000),
				Nsec: int64(timeoutMs%1000) * 1_000_000,
			}
		}
		n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, &FatalReactorError{Cause: err}
		}

		events := make([]readyEvent, 0, n)
		for i := 0; i < n; i++ {
			fd := int(p.eventBuf[i].Ident)
			if fd == p.wakeRead {
				p.drainWake()
				continue
			}
			kev := &p.eventBuf[i]
			events = append(events, readyEvent{
				fd:       fd,
				readable: kev.Filter == unix.EVFILT_READ,
				writable: kev.Filter == unix.EVFILT_WRITE,
				errored:  kev.Flags&unix.EV_ERROR != 0,
				hangup:   kev.Flags&unix.EV_EOF != 0,
			})
		}
		return events, nil
	}
}

func (p *kqueuePoller) drainWake() {
	var buf [64]byte
	for {
		_, err := syscall.Read(p.wakeRead, buf[:])
		if err != nil {
			break
		}
	}
}

func (p *kqueuePoller) notify() error {
	_, err := syscall.Write(p.wakeWrite, []byte{0})
	if err != nil && err == syscall.EAGAIN {
		return nil
	}
	return err
}

func (p *kqueuePoller) close() error {
	_ = syscall.Close(p.wakeRead)
	_ = syscall.Close(p.wakeWrite)
	return unix.Close(p.kq)
}
