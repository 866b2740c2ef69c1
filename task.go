package asyncio

import "sync/atomic"

// Future is the poll contract user code implements. Poll is called by the
// runtime's executor goroutine only. It must return promptly: a future that
// blocks stalls the whole runtime.
//
// Poll returns (value, true) when the future has produced its final value.
// It returns (zero, false) when the future cannot make progress yet; before
// returning false the future must have arranged a wake-up, by registering
// cx.Waker() with the Reactor or handing it to another task/goroutine.
// Polling a future again after it has already returned true is undefined
// behavior the caller must avoid.
type Future[T any] interface {
	Poll(cx *Context) (T, bool)
}

// FutureFunc adapts a plain poll function to the Future interface, the way
// most futures in this package are built (listener/stream adapters, and
// user code composing smaller futures).
type FutureFunc[T any] func(cx *Context) (T, bool)

// Poll implements Future.
func (f FutureFunc[T]) Poll(cx *Context) (T, bool) { return f(cx) }

// Unit is the output type of a spawned, fire-and-forget future — the Go
// analogue of Rust's `()`.
type Unit struct{}

// task is the runtime's type-erased handle for a polled future. It is
// heap-allocated on creation and never copied thereafter; the Waker holding
// a strong *task depends on that single allocation's identity never
// changing. A garbage-collected language satisfies the usual "futures must
// not move once polled" pinning requirement for free, simply by never
// moving the object and only ever handing out pointers to it.
//
// done is read from any goroutine holding a Waker (WakeByRef, schedule) but
// only ever written by the executor goroutine, so it's an atomic.Bool
// rather than a plain bool.
type task struct {
	rt     *Runtime
	poll   func(cx *Context) bool // returns true when the future completed
	done   atomic.Bool
	queued atomic.Bool // true while this task has an entry in the ready queue
}

// newTask wraps a Future[T] as a type-erased task. The result, if any, is
// delivered through resultCh so BlockOn can recover a typed value without
// the task struct itself being generic; Spawn passes a nil resultCh and the
// result is discarded.
func newTask[T any](rt *Runtime, fut Future[T], resultCh chan<- taskResult[T]) *task {
	t := &task{rt: rt}
	t.poll = func(cx *Context) bool {
		v, ready := fut.Poll(cx)
		if !ready {
			return false
		}
		t.done.Store(true)
		if resultCh != nil {
			resultCh <- taskResult[T]{value: v}
		}
		return true
	}
	return t
}

type taskResult[T any] struct {
	value T
}
