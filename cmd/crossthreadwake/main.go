// Command crossthreadwake demonstrates the reactor's mandatory notify()
// path: a background goroutine, unrelated to the runtime's own goroutine,
// completes work and wakes a parked task by invoking its Waker directly,
// without any fd ever becoming ready.
package main

import (
	"fmt"
	"sync"
	"time"

	asyncio "github.com/nyxtom/async-runtime"
)

// backgroundSignal is a Future[string] that stays Pending until a
// background goroutine calls complete(), which stores the waker's owner
// task back onto the ready queue from outside the runtime's goroutine —
// forcing Reactor.Notify to unblock whatever PollEvents call is in flight.
type backgroundSignal struct {
	mu    sync.Mutex
	done  bool
	value string
	waker *asyncio.Waker
}

func (s *backgroundSignal) Poll(cx *asyncio.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.value, true
	}
	w := cx.Waker()
	s.waker = &w
	return "", false
}

func (s *backgroundSignal) complete(value string) {
	s.mu.Lock()
	s.done = true
	s.value = value
	w := s.waker
	s.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

func main() {
	rt, err := asyncio.NewRuntime()
	if err != nil {
		panic(err)
	}
	defer rt.Close()

	sig := &backgroundSignal{}
	go func() {
		time.Sleep(200 * time.Millisecond)
		sig.complete("hello from a background goroutine")
	}()

	result, err := asyncio.BlockOn[string](rt, sig)
	if err != nil {
		panic(err)
	}
	fmt.Println(result)
}
