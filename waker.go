package asyncio

// Waker is a four-operation waker vtable reduced to what a
// garbage-collected language actually needs:
//
//   - Clone: a Waker is a plain value; copying it is cloning it.
//   - Wake / WakeByRef: both push the task onto its runtime's ready queue;
//     there is no difference in this implementation because Go has no
//     linear-ownership-consuming call convention to distinguish them — both
//     are exposed so call sites can use whichever name fits.
//   - Drop: not exposed. Go's GC reclaims the task once every Waker handed
//     out for it, and its slot in the reactor's interest table and the
//     ready queue, have all been dropped.
//
// A Waker holds a strong *task reference. This is load-bearing: a parked,
// Pending task is reachable only through the Wakers armed against its fd (or
// handed to some other goroutine) — it is no longer on the ready queue and
// no longer referenced by the executor's stack once pollTask returns. If the
// Waker held only a weak reference, a GC cycle between "future returns
// Pending" and "fd becomes ready" could collect the task out from under it,
// silently losing the wake. Waking a task that has already completed is
// still a silent no-op, via the task's own done flag rather than a
// collected-or-not weak pointer.
type Waker struct {
	task *task
	rt   *Runtime
}

func newWaker(rt *Runtime, t *task) Waker {
	return Waker{task: t, rt: rt}
}

// Wake consumes the waker conceptually and schedules the task for re-poll.
// Safe to call from any goroutine, including concurrently and more than
// once (the ready queue dedupes via the task's queued flag).
func (w Waker) Wake() {
	w.WakeByRef()
}

// WakeByRef schedules the task for re-poll without consuming the waker,
// i.e. it remains valid to call again. In this implementation Wake and
// WakeByRef are identical: see the type-level doc comment.
func (w Waker) WakeByRef() {
	if w.task == nil || w.task.done.Load() {
		return // no task, or already-completed task: silent no-op.
	}
	w.rt.schedule(w.task)
}

// IsValid reports whether the underlying task has not yet completed.
func (w Waker) IsValid() bool {
	return w.task != nil && !w.task.done.Load()
}
