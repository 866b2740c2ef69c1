// Package asyncio implements a single-threaded, cooperative async I/O
// runtime: an executor that polls user-defined futures to completion, bound
// to a readiness-based reactor (epoll on Linux, kqueue on Darwin) through a
// waker protocol.
//
// # Architecture
//
// A [Future] is polled by the executor's own goroutine ([BlockOn]).
// When a future can't make progress it registers its [Waker] with the
// [Reactor] against an fd and a direction (readable/writable) and reports
// not-ready. The reactor's blocking wait is the runtime's only source of
// parking; when an fd becomes ready, or a [Waker] is invoked from another
// goroutine, the corresponding task is pushed onto the ready queue and
// re-polled on the next turn.
//
// # Platform support
//
// I/O readiness is multiplexed using platform-native mechanisms:
//   - Linux: epoll, eventfd for cross-thread wake
//   - Darwin: kqueue, a self-pipe for cross-thread wake
//
// # Thread safety
//
// [Waker] values are safe to clone and invoke from any goroutine. The
// [Runtime]'s ready queue accepts concurrent pushes; only the goroutine
// executing [BlockOn] ever pops from it or polls a task.
//
// # Usage
//
//	rt, err := asyncio.NewRuntime()
//	ln, err := asyncio.Bind(rt, "127.0.0.1:0")
//	asyncio.Spawn(rt, echoConn(ln))
//	_, err = asyncio.BlockOn(rt, acceptLoop(ln))
//
// # Non-goals
//
// This package does not implement HTTP, a pre-forked or thread-pooled
// server, timers, priority scheduling between ready tasks, or cancellation
// propagation beyond drop.
package asyncio
