// Package asyncio: I/O event registration.
//
// The Reactor bridges OS-level readiness notification (epoll on Linux,
// kqueue on Darwin) to the executor's waker protocol. Each registered fd
// tracks independent reader and writer waker queues; readiness for a
// direction wakes every pending waker for that direction and clears it
// (one-shot — a future must re-arm after each wake). See reactor_linux.go /
// reactor_darwin.go for the platform-specific syscall plumbing.
package asyncio

import (
	"sync"
)

// readyEvent is one fd's readiness result from a single PollEvents call.
type readyEvent struct {
	fd                 int
	readable, writable bool
	errored, hangup    bool
}

// platformPoller is implemented once per OS by reactor_linux.go /
// reactor_darwin.go. It owns the raw epoll/kqueue fd and the cross-thread
// wake primitive (eventfd / self-pipe).
type platformPoller interface {
	add(fd int, readable, writable bool) error
	modify(fd int, readable, writable bool) error
	del(fd int) error
	wait(timeoutMs int) ([]readyEvent, error)
	notify() error
	close() error
}

// fdState is the reactor's bookkeeping for one registered fd.
type fdState struct {
	readers    []Waker
	writers    []Waker
	registered bool // true once the fd has ever been given non-empty interest
}

func (s *fdState) mask() (readable, writable bool) {
	return len(s.readers) > 0, len(s.writers) > 0
}

// Reactor owns the OS-level readiness multiplexer and the per-fd waker
// queues it fans events out to.
type Reactor struct {
	mu      sync.Mutex
	waiters map[int]*fdState
	poll    platformPoller
	closed  bool

	pendingMu sync.Mutex
	pending   []readyEvent
}

// NewReactor constructs a Reactor backed by the platform's native
// readiness-notification mechanism.
func NewReactor() (*Reactor, error) {
	p, err := newPlatformPoller()
	if err != nil {
		return nil, err
	}
	return &Reactor{
		waiters: make(map[int]*fdState),
		poll:    p,
	}, nil
}

// Register adds fd to the reactor's interest table with no armed direction.
// ArmReadable/ArmWritable must be called before events are delivered.
func (r *Reactor) Register(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrReactorClosed
	}
	if _, exists := r.waiters[fd]; exists {
		return ErrFDAlreadyRegistered
	}
	r.waiters[fd] = &fdState{}
	return nil
}

// ArmReadable registers w to be woken the next time fd becomes readable.
func (r *Reactor) ArmReadable(fd int, w Waker) error {
	return r.arm(fd, w, true)
}

// ArmWritable registers w to be woken the next time fd becomes writable.
func (r *Reactor) ArmWritable(fd int, w Waker) error {
	return r.arm(fd, w, false)
}

func (r *Reactor) arm(fd int, w Waker, readable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrReactorClosed
	}
	st, ok := r.waiters[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	if readable {
		st.readers = append(st.readers, w)
	} else {
		st.writers = append(st.writers, w)
	}
	return r.syncKernel(fd, st)
}

// syncKernel reconciles the kernel-side interest mask for fd with the
// reader/writer queue lengths we're now tracking. Must be called with mu
// held.
func (r *Reactor) syncKernel(fd int, st *fdState) error {
	readable, writable := st.mask()
	if !st.registered {
		if err := r.poll.add(fd, readable, writable); err != nil {
			return err
		}
		st.registered = true
		return nil
	}
	return r.poll.modify(fd, readable, writable)
}

// HasInterest reports whether fd currently has any armed waiter. Re-arming
// an already-armed direction before it fires does not register twice with
// the kernel — it just appends another waiter to the same queue.
func (r *Reactor) HasInterest(fd int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.waiters[fd]
	if !ok {
		return false
	}
	readable, writable := st.mask()
	return readable || writable
}

// Remove deregisters fd entirely, releasing any still-armed waiters without
// waking them: dropping the I/O source must not leave stale kernel interest
// pinning the fd's readiness slot.
func (r *Reactor) Remove(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.waiters[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	delete(r.waiters, fd)
	if st.registered {
		return r.poll.del(fd)
	}
	return nil
}

// PollEvents blocks until an fd becomes ready, a cross-thread Notify fires,
// or timeoutMs elapses (a negative timeout blocks indefinitely). It does not
// wake any tasks itself; call Harvest afterward to do that.
func (r *Reactor) PollEvents(timeoutMs int) error {
	events, err := r.poll.wait(timeoutMs)
	if err != nil {
		return err
	}
	r.pendingMu.Lock()
	r.pending = append(r.pending, events...)
	r.pendingMu.Unlock()
	return nil
}

// Harvest drains the events collected by the most recent PollEvents calls,
// clears the corresponding one-shot interest, and returns every Waker that
// should now be scheduled for re-poll.
func (r *Reactor) Harvest() []Waker {
	r.pendingMu.Lock()
	events := r.pending
	r.pending = nil
	r.pendingMu.Unlock()

	if len(events) == 0 {
		return nil
	}

	var wakers []Waker
	r.mu.Lock()
	for _, ev := range events {
		st, ok := r.waiters[ev.fd]
		if !ok {
			continue
		}
		fire := ev.readable || ev.errored || ev.hangup
		if fire && len(st.readers) > 0 {
			wakers = append(wakers, st.readers...)
			st.readers = nil
		}
		if (ev.writable || ev.errored || ev.hangup) && len(st.writers) > 0 {
			wakers = append(wakers, st.writers...)
			st.writers = nil
		}
		_ = r.syncKernel(ev.fd, st)
	}
	r.mu.Unlock()
	return wakers
}

// Notify unblocks a concurrent PollEvents call from any goroutine. Without
// it, a waker invoked from outside the runtime's goroutine would have no way
// to interrupt an in-progress blocking poll.
func (r *Reactor) Notify() error {
	return r.poll.notify()
}

// Close releases the reactor's OS resources. Safe to call once.
func (r *Reactor) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.poll.close()
}
