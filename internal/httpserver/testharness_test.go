//go:build linux

package httpserver

import (
	"context"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/require"

	"github.com/3541/shortcircuit/engine"
)

// socketpairConn builds a connected AF_UNIX SOCK_STREAM pair and wraps one
// end in an *engine.Connection driven by sched; the other end (peerFD) is
// the test's hand to write/read raw bytes with.
func socketpairConn(t *testing.T, sched *engine.Scheduler, task *engine.Task, idleTimeout time.Duration) (conn *engine.Connection, peerFD int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(fds[1]) })
	conn = engine.NewConnection(sched, task, fds[0], engine.BufferSizes{
		RecvInitial: 2048, RecvMax: 1 << 20,
		SendInitial: 2048, SendMax: 1 << 20,
	}, idleTimeout)
	return conn, fds[1]
}

// writeAll writes buf to fd in full, looping past EAGAIN (fd is
// non-blocking but the corpus's test payloads fit well within the
// kernel's socket buffer).
func writeAll(t *testing.T, fd int, buf []byte) {
	t.Helper()
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err == unix.EAGAIN {
			continue
		}
		require.NoError(t, err)
		buf = buf[n:]
	}
}

// shutdownWrite half-closes fd's write side, so the connection under
// test observes EOF after consuming whatever was already written.
func shutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

// readAllFromPeer drains every byte available on fd until EOF or until
// the fd has been quiet past a short grace period, returning what was
// read. Used to capture complete responses after the serving task has
// returned.
func readAllFromPeer(t *testing.T, fd int) []byte {
	t.Helper()
	var out []byte
	buf := make([]byte, 4096)
	quiet := 0
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EAGAIN {
			quiet++
			if quiet > 100 {
				return out
			}
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil || n == 0 {
			return out
		}
		quiet = 0
		out = append(out, buf[:n]...)
	}
}

// runScheduler spawns entry as a Task on a fresh Scheduler, runs the
// scheduler in the background until entry returns (or the deadline
// elapses), and returns entry's result.
func runScheduler(t *testing.T, entry func(sched *engine.Scheduler, t *engine.Task) any) any {
	t.Helper()
	backend, err := engine.NewPollBackend()
	require.NoError(t, err)
	sched, err := engine.NewScheduler(engine.WithBackend(backend))
	require.NoError(t, err)
	t.Cleanup(func() { sched.Close() })

	done := make(chan any, 1)
	sched.Spawn(func(tk *engine.Task) any {
		res := entry(sched, tk)
		done <- res
		return res
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- sched.Run(ctx) }()

	select {
	case res := <-done:
		sched.RequestShutdown()
		<-runErr
		return res
	case <-ctx.Done():
		t.Fatal("scheduler test timed out")
		return nil
	}
}
