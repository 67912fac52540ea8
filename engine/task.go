package engine

// Task is one cooperatively-scheduled unit of work: in practice, one
// connection's lifetime. A Task is realized as a goroutine paired with a
// strict hand-off protocol (resumeCh/controlCh) that the Scheduler uses to
// guarantee exactly one Task's entry function is ever executing
// application code at a time -- the goroutine supplies a real, growable
// stack in place of the explicit stackful coroutines a single-threaded
// event loop would use in languages with them.
type Task struct {
	id    uint64
	sched *Scheduler

	resumeCh  chan any
	controlCh chan control

	extra    any
	deferred []func()

	result any
	err    error
	live   bool
}

type controlKind uint8

const (
	controlYielded controlKind = iota
	controlFinished
)

type control struct {
	kind controlKind
	err  error
}

// Extra returns the value previously set by SetExtra, or nil.
func (t *Task) Extra() any { return t.extra }

// SetExtra attaches an arbitrary value (conventionally a *Connection) to
// the task, retrievable for the task's lifetime.
func (t *Task) SetExtra(v any) { t.extra = v }

// Defer registers fn to run, in LIFO order with respect to other
// deferred functions, when the task finishes (whether by returning
// normally or by panicking).
func (t *Task) Defer(fn func()) {
	t.deferred = append(t.deferred, fn)
}

// ID returns the task's scheduler-assigned identifier.
func (t *Task) ID() uint64 { return t.id }

// yield suspends the task, handing control back to the Scheduler, and
// blocks until the Scheduler calls resume again. The value passed to
// resume is returned.
func (t *Task) yield() any {
	t.controlCh <- control{kind: controlYielded}
	return <-t.resumeCh
}

// Await suspends the task until op completes, returning its result. If
// op already has a buffered result (the completion raced ahead of the
// await), Await returns immediately without suspending.
func (t *Task) Await(op *Op) OpResult {
	res, ready := op.awaitOrSuspend(func(res OpResult) {
		t.sched.resume(t, res)
	})
	if ready {
		return res
	}
	v := t.yield()
	r, _ := v.(OpResult)
	return r
}

// runDeferred runs the task's deferred functions in LIFO order. Panics
// from an individual deferred function are not recovered: a misbehaving
// cleanup is a programming error, not a runtime condition.
func (t *Task) runDeferred() {
	for i := len(t.deferred) - 1; i >= 0; i-- {
		t.deferred[i]()
	}
}
