package asyncio

import "sync/atomic"

// RuntimeState represents the lifecycle state of a Runtime's BlockOn call.
//
// State machine:
//
//	Awake (0)       --BlockOn()-->        Running (3)
//	Running (3)     --PollEvents() CAS-->  Sleeping (2)
//	Sleeping (2)    --wake, CAS-->         Running (3)
//	Running (3)     --BlockOn returns-->   Awake (0)
//	Running (3)     --fatal poll error-->  Terminating (4)
//	Terminating (4) --BlockOn returns-->   Terminated (1)
//	any state       --Close()-->           Terminated (1)
//
// Transitions among Awake, Running and Sleeping use
// [atomicState.TryTransition] (CAS); Terminating and Terminated are set with
// [atomicState.Store], and Terminated is a one-way terminal state.
type RuntimeState uint32

const (
	// StateAwake is the initial state, and the state a BlockOn call that
	// returns normally leaves behind: no BlockOn is currently executing.
	StateAwake RuntimeState = iota
	// StateTerminated is the terminal state: the runtime has been closed, or
	// a BlockOn ended on a fatal reactor error.
	StateTerminated
	// StateSleeping indicates the executor is parked in the reactor's
	// blocking poll.
	StateSleeping
	// StateRunning indicates the executor is actively draining the ready
	// queue or polling a task.
	StateRunning
	// StateTerminating indicates shutdown has been requested but the final
	// drain has not completed.
	StateTerminating
)

func (s RuntimeState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// atomicState is a lock-free holder for RuntimeState: pure CAS, no
// transition validation at this layer (callers are expected to only attempt
// transitions the state machine above allows).
type atomicState struct {
	v atomic.Uint32
}

func newAtomicState() *atomicState {
	s := &atomicState{}
	s.v.Store(uint32(StateAwake))
	return s
}

func (s *atomicState) Load() RuntimeState {
	return RuntimeState(s.v.Load())
}

func (s *atomicState) Store(state RuntimeState) {
	s.v.Store(uint32(state))
}

func (s *atomicState) TryTransition(from, to RuntimeState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
