package engine

import "sync/atomic"

// SchedulerState represents the lifecycle of a [Scheduler].
//
//	StateAwake -> StateRunning        [Run]
//	StateRunning -> StateTerminating  [Shutdown, or SIGINT]
//	StateRunning -> StateTerminated   [live task count reaches zero]
//	StateTerminating -> StateTerminated
//
// Unlike a multi-producer scheduler, only the run loop itself and the
// signal-delivery goroutine ever observe or mutate this value, so a plain
// atomic (rather than a CAS-heavy lock-free machine) is sufficient; it
// exists mainly so the SIGINT handler and the run loop can agree on
// termination without a mutex.
type SchedulerState uint32

const (
	// StateAwake indicates the scheduler has been constructed but Run has
	// not yet been called.
	StateAwake SchedulerState = iota
	// StateRunning indicates the run loop is actively draining the spawn
	// queue, pumping the back-end, and ticking the timer wheel.
	StateRunning
	// StateTerminating indicates a shutdown has been requested (SIGINT or
	// Shutdown); the run loop finishes the current iteration and exits.
	StateTerminating
	// StateTerminated is the terminal state: the run loop has returned.
	StateTerminated
)

func (s SchedulerState) String() string {
	switch s {
	case StateAwake:
		return "awake"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// lifecycle is an atomically-observed SchedulerState.
type lifecycle struct {
	v atomic.Uint32
}

func (s *lifecycle) load() SchedulerState    { return SchedulerState(s.v.Load()) }
func (s *lifecycle) store(v SchedulerState)  { s.v.Store(uint32(v)) }
func (s *lifecycle) terminating() bool       { return s.load() >= StateTerminating }
func (s *lifecycle) requestShutdown()        { s.v.CompareAndSwap(uint32(StateRunning), uint32(StateTerminating)) }
