package asyncio

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// selfWaker is a Future[int] that resolves after n self-wakes, re-scheduling
// itself from inside Poll every time it returns pending — the minimal
// no-I/O future for exercising the quiescence property.
type selfWaker struct {
	remaining int
	polls     int
}

func (s *selfWaker) Poll(cx *Context) (int, bool) {
	s.polls++
	if s.remaining == 0 {
		return s.polls, true
	}
	s.remaining--
	cx.Waker().Wake()
	return 0, false
}

// TestQuiescence verifies that a future with no I/O dependency, which
// self-wakes a fixed number of times before completing, causes BlockOn to
// return after exactly that many self-wakes plus the initial poll.
func TestQuiescence(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	defer rt.Close()

	fut := &selfWaker{remaining: 5}
	polls, err := BlockOn[int](rt, fut)
	require.NoError(t, err)
	require.Equal(t, 6, polls) // 1 initial poll + 5 re-polls from self-wakes
}

// pipeWaiter is a Future[Unit] that arms readable interest on a pipe fd and
// resolves the first time it observes readiness, used to verify the "wake
// delivery" and "interest idempotence" properties.
type pipeWaiter struct {
	fd        int
	rearm     bool // arm readable twice per pending return
	armCount  int
	pollCount int
}

func (p *pipeWaiter) Poll(cx *Context) (Unit, bool) {
	p.pollCount++
	buf := make([]byte, 1)
	n, err := unix.Read(p.fd, buf)
	if err == nil && n > 0 {
		return Unit{}, true
	}
	p.armCount++
	_ = cx.Runtime().Reactor().ArmReadable(p.fd, cx.Waker())
	if p.rearm {
		_ = cx.Runtime().Reactor().ArmReadable(p.fd, cx.Waker())
	}
	return Unit{}, false
}

// TestWakeDeliveryAndInterestIdempotence binds a pipe, arms readable
// interest (re-arming it redundantly before any event fires, to exercise
// idempotence), then writes to the other end from a background goroutine
// and verifies the task is re-polled exactly once as a result.
func TestWakeDeliveryAndInterestIdempotence(t *testing.T) {
	r, w := newPipe(t)
	defer unix.Close(r)
	defer unix.Close(w)

	rt, err := NewRuntime()
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.Reactor().Register(r))

	fut := &pipeWaiter{fd: r, rearm: true}

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = unix.Write(w, []byte("x"))
	}()

	_, err = BlockOn[Unit](rt, fut)
	require.NoError(t, err)
	require.Equal(t, 1, fut.armCount)
	require.Equal(t, 2, fut.pollCount)
}

// TestInterestIdempotence verifies that arming the same direction on the
// same fd multiple times before any event fires appends to one waiter queue
// rather than registering duplicate kernel interest, and that a single OS
// event fires every armed waiter exactly once.
func TestInterestIdempotence(t *testing.T) {
	r, w := newPipe(t)
	defer unix.Close(r)
	defer unix.Close(w)

	rt, err := NewRuntime()
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.Reactor().Register(r))

	var wakes int32
	countingWaker := func() Waker {
		tk := &task{rt: rt, poll: func(cx *Context) bool {
			atomic.AddInt32(&wakes, 1)
			return true
		}}
		return newWaker(rt, tk)
	}

	require.NoError(t, rt.Reactor().ArmReadable(r, countingWaker()))
	require.NoError(t, rt.Reactor().ArmReadable(r, countingWaker()))
	require.NoError(t, rt.Reactor().ArmReadable(r, countingWaker()))
	require.True(t, rt.Reactor().HasInterest(r))

	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, rt.Reactor().PollEvents(1000))
	wakers := rt.Reactor().Harvest()
	require.Len(t, wakers, 3, "one OS event must fire every armed waiter exactly once")

	// Interest is one-shot: after harvest, nothing remains armed.
	require.False(t, rt.Reactor().HasInterest(r))
}

// TestNoBusySpin verifies that once a future has parked on I/O interest,
// the executor goroutine makes no further progress (no additional polls)
// until the event is injected — i.e. it is blocked in PollEvents rather
// than spinning.
func TestNoBusySpin(t *testing.T) {
	r, w := newPipe(t)
	defer unix.Close(r)
	defer unix.Close(w)

	rt, err := NewRuntime()
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.Reactor().Register(r))

	fut := &pipeWaiter{fd: r}

	released := make(chan struct{})
	go func() {
		<-released
		time.Sleep(30 * time.Millisecond)
		_, _ = unix.Write(w, []byte("x"))
	}()

	done := make(chan struct{})
	var pollsAtRelease int
	go func() {
		_, _ = BlockOn[Unit](rt, fut)
		close(done)
	}()

	// Give the executor a moment to park, then sample poll count twice
	// across a window with nothing injected: it must not move.
	time.Sleep(25 * time.Millisecond)
	pollsAtRelease = fut.pollCount
	time.Sleep(25 * time.Millisecond)
	require.Equal(t, pollsAtRelease, fut.pollCount, "poll count advanced without any injected event")
	close(released)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("BlockOn did not return after event injection")
	}
}

// TestTermination verifies that once all spawned tasks complete and no
// interest remains, BlockOn returns.
func TestTermination(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	defer rt.Close()

	var spawnedDone atomic.Bool
	Spawn(rt, FutureFunc[Unit](func(cx *Context) (Unit, bool) {
		spawnedDone.Store(true)
		return Unit{}, true
	}))

	_, err = BlockOn[Unit](rt, FutureFunc[Unit](func(cx *Context) (Unit, bool) {
		return Unit{}, true
	}))
	require.NoError(t, err)
	require.True(t, spawnedDone.Load())
}

// TestDropReleasesInterest verifies that removing an I/O source's fd from
// the reactor clears its interest without disturbing another fd's.
func TestDropReleasesInterest(t *testing.T) {
	r1, w1 := newPipe(t)
	defer unix.Close(r1)
	defer unix.Close(w1)
	r2, w2 := newPipe(t)
	defer unix.Close(r2)
	defer unix.Close(w2)

	rt, err := NewRuntime()
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.Reactor().Register(r1))
	require.NoError(t, rt.Reactor().Register(r2))

	require.NoError(t, rt.Reactor().ArmReadable(r1, dummyWaker(rt)))
	require.NoError(t, rt.Reactor().ArmReadable(r2, dummyWaker(rt)))

	require.True(t, rt.Reactor().HasInterest(r1))
	require.True(t, rt.Reactor().HasInterest(r2))

	require.NoError(t, rt.Reactor().Remove(r1))

	require.False(t, rt.Reactor().HasInterest(r1))
	require.True(t, rt.Reactor().HasInterest(r2))
}

// TestParkedTaskSurvivesGC verifies that a task parked on armed I/O interest
// is kept alive by its waker's strong reference, not merely by whatever
// local variables happen to still be on some goroutine's stack. The task and
// its waker are constructed inside a closure with no result channel; once
// the closure returns, the only path back to the task is whatever the
// reactor's fdState holds for the armed fd. Several GC cycles run before the
// event is delivered, then the wake is drained exactly like BlockOn's inner
// loop would, proving the task was never collected.
func TestParkedTaskSurvivesGC(t *testing.T) {
	r, w := newPipe(t)
	defer unix.Close(r)
	defer unix.Close(w)

	rt, err := NewRuntime()
	require.NoError(t, err)
	defer rt.Close()

	require.NoError(t, rt.Reactor().Register(r))

	var woke atomic.Bool
	func() {
		tk := &task{rt: rt, poll: func(cx *Context) bool {
			woke.Store(true)
			return true
		}}
		require.NoError(t, rt.Reactor().ArmReadable(r, newWaker(rt, tk)))
	}()

	for i := 0; i < 5; i++ {
		runtime.GC()
	}

	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, rt.Reactor().PollEvents(1000))

	wakers := rt.Reactor().Harvest()
	require.Len(t, wakers, 1)
	for _, wk := range wakers {
		wk.Wake()
	}

	tsk, ok := rt.ready.pop()
	require.True(t, ok, "task must not have been collected while only its waker referenced it")
	rt.pollTask(tsk)
	require.True(t, woke.Load())
}

func dummyWaker(rt *Runtime) Waker {
	tk := &task{rt: rt, poll: func(cx *Context) bool { return true }}
	return newWaker(rt, tk)
}

// newPipe returns a non-blocking pipe's (read fd, write fd). Built on
// unix.Pipe + SetNonblock rather than Pipe2, since Pipe2 isn't available on
// Darwin.
func newPipe(t *testing.T) (int, int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	return fds[0], fds[1]
}
