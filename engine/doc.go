// Package engine implements Short Circuit's asynchronous I/O core: a
// single-threaded, completion/readiness-driven scheduler that drives
// cooperative per-connection tasks to completion.
//
// # Architecture
//
// A [Scheduler] owns one [Backend] (either the completion-ring back-end on
// a kernel new enough to support it, or the readiness-poll back-end as a
// fallback), a [timerWheel] of idle-connection deadlines, and the set of
// live [Task] values. Every suspension point in application code is an
// awaitable [Op] returned by the Backend; the Scheduler's run loop drains
// newly spawned tasks, polls the back-end for completions, and ticks the
// timer wheel, in that order, once per iteration.
//
// # Concurrency model
//
// The Scheduler is single-threaded and unsynchronized by design: exactly
// one Task runs at a time, and a Task's state may only be touched between
// its own suspension points. The only exception is the SIGINT flag, which
// is set by the Go runtime's signal-delivery goroutine and read with an
// atomic at the top of each run-loop iteration.
//
// # Platform support
//
// Short Circuit targets Linux; the completion back-end requires io_uring
// (kernel 5.6+) and falls back to epoll-based readiness polling when the
// ring cannot be opened or is missing a required feature.
package engine
