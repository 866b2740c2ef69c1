package asyncio

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// Runtime pairs an executor (ready queue + main poll loop) with a Reactor,
// plus a goroutine-ID-keyed ambient handle for runtime-local state. A
// Runtime is reusable across sequential BlockOn calls: a task still parked
// when one BlockOn returns (waiting on a Waker held outside the reactor)
// stays with the Runtime and is polled by the next BlockOn once woken.
type Runtime struct {
	state   *atomicState
	ready   *readyQueue
	reactor *Reactor

	goroutineID    atomic.Uint64
	threadLockOnce sync.Once

	pollTimeoutMs int
	logger        Logger

	closeOnce sync.Once
}

// NewRuntime constructs a Runtime. The returned Runtime owns OS resources
// (the reactor's epoll/kqueue fd and wake primitive) that must be released
// with Close.
func NewRuntime(opts ...RuntimeOption) (*Runtime, error) {
	cfg := resolveOptions(opts)

	reactor, err := NewReactor()
	if err != nil {
		return nil, err
	}

	return &Runtime{
		state:         newAtomicState(),
		ready:         newReadyQueue(),
		reactor:       reactor,
		pollTimeoutMs: cfg.pollTimeoutMs,
		logger:        cfg.logger,
	}, nil
}

// Reactor exposes the runtime's reactor for I/O adapters (listener.go,
// stream.go) that need to register fds directly.
func (rt *Runtime) Reactor() *Reactor { return rt.reactor }

// schedule pushes t onto the ready queue if it isn't already pending there.
// Safe to call from any goroutine — this is the only mutation Waker.Wake
// performs.
func (rt *Runtime) schedule(t *task) {
	if t.done.Load() {
		return
	}
	if !t.queued.CompareAndSwap(false, true) {
		return // already queued; avoid a redundant poll
	}
	rt.ready.push(t)
	// Cross-thread wake: if the caller is not the runtime's own goroutine
	// (e.g. a background goroutine completed I/O and is invoking the
	// Waker directly), the reactor may be blocked in PollEvents and needs
	// an explicit nudge.
	if !rt.isRuntimeThread() {
		_ = rt.reactor.Notify()
	}
}

func (rt *Runtime) isRuntimeThread() bool {
	id := rt.goroutineID.Load()
	return id != 0 && id == currentGoroutineID()
}

// BlockOn drives fut, and every task spawned on rt, until fut has resolved,
// the ready queue is empty and no reactor interest is armed: drain the
// ready queue, then block in the reactor with a timeout, then harvest woken
// wakers and loop. Only one BlockOn call may be
// active on a Runtime at a
// time; calling it reentrantly (from within the runtime's own goroutine)
// returns ErrReentrantBlockOn.
func BlockOn[T any](rt *Runtime, fut Future[T]) (T, error) {
	var zero T

	if rt.isRuntimeThread() {
		return zero, ErrReentrantBlockOn
	}
	if !rt.state.TryTransition(StateAwake, StateRunning) {
		switch rt.state.Load() {
		case StateTerminated, StateTerminating:
			return zero, ErrRuntimeTerminated
		default:
			return zero, ErrRuntimeAlreadyRunning
		}
	}

	rt.goroutineID.Store(currentGoroutineID())
	registerAmbient(rt)
	defer func() {
		unregisterAmbient(rt)
		rt.goroutineID.Store(0)
	}()

	// The OS thread is locked lazily, on this goroutine, the first time this
	// Runtime actually blocks in the reactor (epoll/kqueue require thread
	// affinity for correctness) — not on every BlockOn call, so a run that
	// never needs to park never pays for it. threadLockOnce ensures the lock
	// happens at most once across the Runtime's lifetime; lockedHere records
	// whether *this* call was the one that took it, so the matching unlock
	// below runs on the same goroutine that locked, rather than whichever
	// goroutine happens to call Close.
	lockedHere := false
	defer func() {
		if lockedHere {
			runtime.UnlockOSThread()
		}
	}()

	resultCh := make(chan taskResult[T], 1)
	seed := newTask(rt, fut, resultCh)
	rt.schedule(seed)

	for {
		for {
			t, ok := rt.ready.pop()
			if !ok {
				break
			}
			rt.pollTask(t)
		}
		if seed.done.Load() {
			armed := false
			rt.reactor.mu.Lock()
			for _, st := range rt.reactor.waiters {
				armed = armed || len(st.readers) > 0 || len(st.writers) > 0
			}
			rt.reactor.mu.Unlock()
			if !armed {
				break
			}
		}
		if rt.state.Load() == StateTerminating {
			break
		}

		rt.threadLockOnce.Do(func() {
			runtime.LockOSThread()
			lockedHere = true
		})

		rt.state.TryTransition(StateRunning, StateSleeping)
		err := rt.reactor.PollEvents(rt.pollTimeoutMs)
		rt.state.TryTransition(StateSleeping, StateRunning)

		if err != nil {
			var fatal *FatalReactorError
			if errors.As(err, &fatal) {
				rt.logger.Errorf("reactor poll failed fatally: %v", err)
				rt.state.Store(StateTerminating)
				break
			}
			continue
		}

		for _, w := range rt.reactor.Harvest() {
			w.Wake()
		}
	}

	if rt.state.Load() == StateTerminating {
		rt.state.Store(StateTerminated)
		if !seed.done.Load() {
			return zero, &FatalReactorError{Cause: errors.New("runtime terminated before future resolved")}
		}
	} else {
		rt.state.TryTransition(StateRunning, StateAwake)
	}

	select {
	case r := <-resultCh:
		return r.value, nil
	default:
		return zero, nil
	}
}

// pollTask polls one task, recovering from (and logging) any panic so a
// single misbehaving future can't take down the whole runtime.
func (rt *Runtime) pollTask(t *task) {
	t.queued.Store(false)

	cx := &Context{rt: rt, task: t, waker: newWaker(rt, t)}

	defer func() {
		if r := recover(); r != nil {
			rt.logger.Errorf("%v", &PanicError{Value: r})
			t.done.Store(true)
		}
	}()

	t.poll(cx)
}

// Spawn schedules fut to run on rt without blocking the caller on its
// result. It may be called from any goroutine, including from inside a
// polled future (fire-and-forget child tasks) or from a goroutine with no
// relationship to rt at all (cross-thread spawn).
func Spawn[T any](rt *Runtime, fut Future[T]) {
	var noResult chan taskResult[T]
	t := newTask(rt, fut, noResult)
	rt.schedule(t)
}

// Close releases the runtime's reactor resources. Safe to call once; safe
// to call whether or not BlockOn ever ran. It does not touch the OS thread
// lock BlockOn may hold — that lock is released by BlockOn itself, on the
// same goroutine that took it, since UnlockOSThread only affects the
// calling goroutine.
func (rt *Runtime) Close() error {
	var err error
	rt.closeOnce.Do(func() {
		rt.state.Store(StateTerminated)
		err = rt.reactor.Close()
	})
	return err
}

// currentGoroutineID parses runtime.Stack's "goroutine NNN [...]" header —
// Go has no native goroutine-local storage, so this emulates a thread-local
// runtime handle by keying off the calling goroutine's numeric ID.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
