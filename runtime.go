package asyncio

import "sync"

// ambientRegistry maps the goroutine ID currently executing a Runtime's
// BlockOn call to that Runtime, the same "thread-local handle" emulation
// Runtime.goroutineID uses internally. It lets package-level helpers
// (SpawnAmbient) resolve "the current runtime" for a bare spawn(future) call,
// without requiring every caller to thread a *Runtime through explicitly.
var ambientRegistry sync.Map // goroutineID uint64 -> *Runtime

func registerAmbient(rt *Runtime) {
	ambientRegistry.Store(currentGoroutineID(), rt)
}

func unregisterAmbient(rt *Runtime) {
	ambientRegistry.Delete(currentGoroutineID())
}

func ambientRuntime() (*Runtime, bool) {
	v, ok := ambientRegistry.Load(currentGoroutineID())
	if !ok {
		return nil, false
	}
	return v.(*Runtime), true
}

// SpawnAmbient schedules fut on the runtime currently executing BlockOn on
// the calling goroutine. It returns ErrSpawnOutsideRuntime if the calling
// goroutine isn't inside a BlockOn call — e.g. called from a goroutine
// spawned by ordinary `go`, which must instead hold an explicit *Runtime
// (obtained from a Context, or the value returned by NewRuntime) and call
// Spawn directly.
func SpawnAmbient(fut Future[Unit]) error {
	rt, ok := ambientRuntime()
	if !ok {
		return ErrSpawnOutsideRuntime
	}
	Spawn(rt, fut)
	return nil
}
