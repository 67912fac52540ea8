package engine

import (
	"time"

	"github.com/google/uuid"
)

// ConnState is a connection's position in its lifecycle.
type ConnState uint8

const (
	ConnInit ConnState = iota
	ConnParsedFirstLine
	ConnParsedHeaders
	ConnOpeningFile
	ConnResponding
	ConnClosing
)

func (s ConnState) String() string {
	switch s {
	case ConnInit:
		return "init"
	case ConnParsedFirstLine:
		return "parsed_first_line"
	case ConnParsedHeaders:
		return "parsed_headers"
	case ConnOpeningFile:
		return "opening_file"
	case ConnResponding:
		return "responding"
	case ConnClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Connection is one accepted client socket and its associated Task,
// buffers, and idle timer. Owned entirely by the Task that services it;
// no field is ever touched from outside that Task's resume window.
type Connection struct {
	ID    uuid.UUID
	FD    int
	State ConnState

	sched *Scheduler
	task  *Task

	In  *Buffer
	Out *Buffer

	idle    *Timeout
	pending *Op

	closed bool
}

// BufferSizes carries the initial and maximum capacities for a
// connection's receive and send buffers (the RECV_BUF_*/SEND_BUF_*
// tunables).
type BufferSizes struct {
	RecvInitial, RecvMax int
	SendInitial, SendMax int
}

// NewConnection wraps fd in a Connection, allocating its input/output
// buffers and arming its idle timer against sched's timer wheel.
func NewConnection(sched *Scheduler, task *Task, fd int, sizes BufferSizes, idleTimeout time.Duration) *Connection {
	c := &Connection{
		ID:    uuid.New(),
		FD:    fd,
		State: ConnInit,
		sched: sched,
		task:  task,
		In:    NewBuffer(sizes.RecvInitial, sizes.RecvMax),
		Out:   NewBuffer(sizes.SendInitial, sizes.SendMax),
	}
	if idleTimeout > 0 {
		c.idle = sched.Timers().New(time.Now(), idleTimeout, func(time.Time) {
			c.onIdleTimeout()
		})
	}
	task.SetExtra(c)
	return c
}

// touch re-arms the idle timer for another full period, called after
// every successful read or write.
func (c *Connection) touch() {
	if c.idle != nil {
		c.sched.Timers().Reset(c.idle, time.Now())
	}
}

// onIdleTimeout fires the connection's in-flight operation (if any) with
// ErrTimeout, waking the suspended task through the normal Op completion
// path rather than resuming it directly.
func (c *Connection) onIdleTimeout() {
	if c.closed || c.pending == nil {
		return
	}
	c.pending.complete(OpResult{Err: ErrTimeout})
}

// await tracks op as the connection's in-flight operation for the
// duration of the wait, so the idle timer can fire it on timeout.
func (c *Connection) await(op *Op) OpResult {
	c.pending = op
	res := c.task.Await(op)
	c.pending = nil
	return res
}

// Recv awaits up to len(buf) bytes from the connection, touching the
// idle timer on any non-error result.
func (c *Connection) Recv(buf []byte) OpResult {
	res := c.await(c.sched.Backend().Recv(c.FD, buf))
	if res.Err == nil {
		c.touch()
	}
	return res
}

// Send awaits the transmission of buf.
func (c *Connection) Send(buf []byte) OpResult {
	res := c.await(c.sched.Backend().Send(c.FD, buf))
	if res.Err == nil {
		c.touch()
	}
	return res
}

// Writev awaits the vectored transmission of iovs.
func (c *Connection) Writev(iovs [][]byte) OpResult {
	res := c.await(c.sched.Backend().Writev(c.FD, iovs))
	if res.Err == nil {
		c.touch()
	}
	return res
}

// SendAll re-issues Send until every byte of buf has been transmitted,
// per the contract that the caller (not the back-end) handles short
// writes.
func (c *Connection) SendAll(buf []byte) error {
	for len(buf) > 0 {
		res := c.Send(buf)
		if res.Err != nil {
			return res.Err
		}
		if res.EOF {
			return ErrEOF
		}
		buf = buf[res.N:]
	}
	return nil
}

// WritevAll re-issues Writev until every byte of every iovec has been
// transmitted, advancing the iovec head past fully-sent slices and
// trimming a partially-sent one in place.
func (c *Connection) WritevAll(iovs [][]byte) error {
	for len(iovs) > 0 {
		res := c.Writev(iovs)
		if res.Err != nil {
			return res.Err
		}
		if res.EOF {
			return ErrEOF
		}
		n := res.N
		for len(iovs) > 0 && n >= len(iovs[0]) {
			n -= len(iovs[0])
			iovs = iovs[1:]
		}
		if len(iovs) > 0 && n > 0 {
			iovs[0] = iovs[0][n:]
		}
	}
	return nil
}

// RecvUntil repeats Recv, growing In as needed, until delim appears
// somewhere in In's readable region or In holds maxBytes readable bytes
// without it. It returns the number of bytes newly produced into In; the
// caller re-scans In for delim itself (RecvUntil never consumes
// anything). ErrBufferFull is returned as is, both when maxBytes is
// reached without delim and when In cannot grow any further; an EOF or
// other I/O error propagates as returned by Recv.
func (c *Connection) RecvUntil(delim []byte, maxBytes int) (int, error) {
	produced := 0
	for {
		if c.In.Memmem(delim) >= 0 {
			return produced, nil
		}
		if c.In.Len() >= maxBytes {
			return produced, ErrBufferFull
		}
		if err := c.In.Reserve(minInt(512, maxBytes-c.In.Len())); err != nil {
			return produced, err
		}
		res := c.Recv(c.In.WritePtr())
		if res.Err != nil {
			return produced, res.Err
		}
		if res.EOF {
			return produced, ErrEOF
		}
		c.In.Produced(res.N)
		produced += res.N
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// OpenUnder awaits an escape-resistant openat of path beneath dirFD,
// on the connection's task (so the idle timer can still interrupt it).
func (c *Connection) OpenUnder(dirFD int, path string) OpResult {
	return c.await(c.sched.Backend().OpenUnder(dirFD, path))
}

// StatFD awaits a stat of fd (typically one just returned by OpenUnder).
func (c *Connection) StatFD(fd int) OpResult {
	return c.await(c.sched.Backend().Stat(fd))
}

// ReadFD awaits a regular-file read of fd into buf.
func (c *Connection) ReadFD(fd int, buf []byte) OpResult {
	return c.await(c.sched.Backend().Read(fd, buf))
}

// CloseExtraFD awaits a close of an fd opened via OpenUnder (distinct
// from the connection's own socket, closed only by Close).
func (c *Connection) CloseExtraFD(fd int) OpResult {
	return c.await(c.sched.Backend().CloseFD(fd))
}

// Metrics returns the owning scheduler's run-time counters, for the
// protocol layer to account served requests against.
func (c *Connection) Metrics() *Metrics { return c.sched.Metrics() }

// Close cancels the idle timer and asynchronously closes the socket.
// Idempotent.
func (c *Connection) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.State = ConnClosing
	if c.idle != nil {
		c.sched.Timers().Cancel(c.idle)
	}
	c.await(c.sched.Backend().CloseFD(c.FD))
	c.sched.Metrics().RecordClose()
}
