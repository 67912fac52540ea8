package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// Scheduler is the single-threaded run loop: it owns a Backend, a
// timerWheel of idle deadlines, and the set of live Task values, and
// drives each Task to completion via a strict resume/yield hand-off that
// guarantees exactly one Task executes application code at a time.
type Scheduler struct {
	backend Backend
	timers  *timerWheel
	log     *logiface.Logger[*islog.Event]

	onOverload func(error)

	spawnQueue []*Task
	live       map[uint64]*Task
	nextID     uint64

	state    lifecycle
	sigint   atomic.Bool
	running  bool
	shutdown chan struct{}

	metrics Metrics
}

// Metrics returns the Scheduler's accumulated run-time counters.
func (s *Scheduler) Metrics() *Metrics { return &s.metrics }

// NewScheduler constructs a Scheduler. If no Backend is supplied via
// WithBackend, OpenBackend is used to probe for io_uring support, falling
// back to the poll backend.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	b := cfg.backend
	if b == nil {
		b, err = OpenBackend(cfg.ringEntries)
		if err != nil {
			return nil, err
		}
	}
	if err := b.Open(); err != nil {
		return nil, err
	}
	logBackend(cfg.logger, b.Name())
	return &Scheduler{
		backend:    b,
		timers:     newTimerWheel(),
		log:        cfg.logger,
		onOverload: cfg.onOverload,
		live:       make(map[uint64]*Task),
		shutdown:   make(chan struct{}),
	}, nil
}

// Backend returns the Scheduler's underlying back-end.
func (s *Scheduler) Backend() Backend { return s.backend }

// Logger returns the Scheduler's configured logger, or nil if none was
// supplied via WithLogger.
func (s *Scheduler) Logger() *logiface.Logger[*islog.Event] { return s.log }

// Timers returns the Scheduler's timer wheel, for connections to arm and
// re-arm their idle timeouts against.
func (s *Scheduler) Timers() *timerWheel { return s.timers }

// State reports the current lifecycle state.
func (s *Scheduler) State() SchedulerState { return s.state.load() }

// Spawn allocates a new Task running entry and enqueues it for its first
// resume at the next drain of the spawn queue, normally on the next
// run-loop iteration; a task spawned while that queue is being drained
// (from another task's first resume) is resumed in the same drain.
// entry's return value becomes the task's final result.
func (s *Scheduler) Spawn(entry func(t *Task) any) *Task {
	s.nextID++
	t := &Task{
		id:        s.nextID,
		sched:     s,
		resumeCh:  make(chan any),
		controlCh: make(chan control),
		live:      true,
	}
	s.live[t.id] = t
	s.spawnQueue = append(s.spawnQueue, t)
	go func() {
		<-t.resumeCh // wait for the scheduler's first resume
		var result any
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.err = fmt.Errorf("engine: task %d panicked: %v", t.id, r)
				}
			}()
			result = entry(t)
		}()
		t.result = result
		t.controlCh <- control{kind: controlFinished, err: t.err}
	}()
	return t
}

// resume hands value to t and blocks until t next yields or finishes.
// This is the only place that crosses the goroutine boundary into a
// Task's stack, and it never returns until that Task has relinquished
// control, which is what keeps exactly one Task executing at a time.
func (s *Scheduler) resume(t *Task, value any) {
	if !t.live {
		return
	}
	t.resumeCh <- value
	msg := <-t.controlCh
	if msg.kind == controlFinished {
		s.finish(t, msg.err)
	}
}

// Resume is the externally-visible form of resume, used by tests that
// drive a Task directly without a Backend. It reports whether the task
// finished, and if so, its result and error.
func (s *Scheduler) Resume(t *Task, value any) (result any, err error, finished bool) {
	s.resume(t, value)
	if t.live {
		return nil, nil, false
	}
	return t.result, t.err, true
}

func (s *Scheduler) finish(t *Task, err error) {
	t.err = err
	t.live = false
	t.runDeferred()
	delete(s.live, t.id)
}

// RequestShutdown asks the run loop to stop at the start of its next
// iteration. Safe to call from any goroutine (in particular, a SIGINT
// handler).
func (s *Scheduler) RequestShutdown() {
	s.sigint.Store(true)
	select {
	case <-s.shutdown:
	default:
		_ = s.backend.Wake()
	}
}

// Run drains the spawn queue, pumps the Backend for completions, and
// ticks the timer wheel, in that order, once per iteration, until no
// live tasks remain or shutdown is requested.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.running {
		return ErrSchedulerClosed
	}
	s.running = true
	s.state.store(StateRunning)
	defer func() {
		s.state.store(StateTerminated)
		close(s.shutdown)
	}()

	for {
		if s.sigint.Load() {
			s.state.requestShutdown()
		}
		if ctx.Err() != nil {
			s.state.requestShutdown()
		}
		if s.state.terminating() {
			break
		}

		s.drainSpawnQueue()

		if len(s.live) == 0 {
			break
		}

		timeout := s.pollTimeout()
		if _, err := s.backend.Pump(timeout); err != nil {
			if s.log != nil {
				s.log.Err().Err(err).Log("backend pump failed")
			}
		}

		s.timers.Tick(time.Now())
	}

	return nil
}

// drainSpawnQueue performs the first resume of every task enqueued by
// Spawn since the last iteration. Resuming may itself call Spawn (a task
// accepting a new connection spawns its handler), so the queue is
// processed by index rather than by range over a snapshot.
func (s *Scheduler) drainSpawnQueue() {
	for i := 0; i < len(s.spawnQueue); i++ {
		t := s.spawnQueue[i]
		s.resume(t, nil)
	}
	if n := len(s.spawnQueue); n > 0 {
		if s.onOverload != nil && n > spawnOverloadThreshold {
			s.onOverload(fmt.Errorf("engine: %d tasks spawned in one tick", n))
		}
		s.spawnQueue = s.spawnQueue[:0]
	}
}

// spawnOverloadThreshold is a soft budget: exceeding it in one tick
// triggers the overload callback but never drops or delays work.
const spawnOverloadThreshold = 4096

// pollTimeout returns how long Pump should block: until the next timer
// deadline, or indefinitely (a negative duration) if none is armed.
func (s *Scheduler) pollTimeout() time.Duration {
	deadline, ok := s.timers.Next()
	if !ok {
		return -1
	}
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	return d
}

// Shutdown stops the run loop cooperatively; Run returns once the
// current iteration completes.
func (s *Scheduler) Shutdown() {
	s.state.requestShutdown()
	_ = s.backend.Wake()
}

// Close releases the Scheduler's Backend. Call after Run has returned.
func (s *Scheduler) Close() error {
	return s.backend.Close()
}

// LiveTasks returns the number of tasks not yet finished.
func (s *Scheduler) LiveTasks() int { return len(s.live) }
