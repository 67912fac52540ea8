package engine

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"golang.org/x/sys/unix"
)

// ListenerConfig configures a Listener's behavior.
type ListenerConfig struct {
	Buffers     BufferSizes
	IdleTimeout time.Duration

	// AdmissionRates bounds new-connection acceptance per source (a
	// catrate rate table); nil or empty disables admission control
	// entirely.
	AdmissionRates map[time.Duration]int

	// PoolSize caps concurrent connections (CONNECTION_POOL_SIZE); zero
	// disables the cap.
	PoolSize int

	// Handle services one accepted Connection for the duration of its
	// lifetime. It runs as the body of the Task spawned for that
	// connection.
	Handle func(c *Connection)
}

// Listener owns a bound, listening socket and the multishot Accept Op
// that spawns one Task per inbound connection.
type Listener struct {
	sched     *Scheduler
	fd        int
	cfg       ListenerConfig
	limiter   *catrate.Limiter
	acceptOp  *Op
	liveConns int
}

// Listen creates, binds, and begins listening on an IPv6 dual-stack TCP
// socket at port (IPV6_V6ONLY cleared, so IPv4 clients connect as
// v4-mapped addresses), wiring catrate-based per-source admission
// control when cfg.AdmissionRates is non-empty. backlog <= 0 falls back
// to SOMAXCONN.
func Listen(sched *Scheduler, port int, backlog int, cfg ListenerConfig) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrInet6{Port: port}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, err
	}

	l := &Listener{sched: sched, fd: fd, cfg: cfg}
	if len(cfg.AdmissionRates) > 0 {
		l.limiter = catrate.NewLimiter(cfg.AdmissionRates)
	}
	return l, nil
}

// Serve submits the listener's multishot Accept Op and registers its
// continuation: every inbound connection admitted by the rate limiter
// is wrapped in a Connection and spawned as a new Task running
// cfg.Handle.
func (l *Listener) Serve() {
	l.acceptOp = l.sched.Backend().Accept(l.fd)
	l.drive()
}

// drive spawns the Listener's own Task, which awaits each successive
// accept completion in turn.
func (l *Listener) drive() *Task {
	return l.sched.Spawn(func(t *Task) any {
		for {
			res := t.Await(l.acceptOp)
			if res.Err != nil {
				return res.Err
			}
			l.onAccept(res.FD, res.PeerAddr)
		}
	})
}

func (l *Listener) onAccept(fd int, peerAddr string) {
	if l.limiter != nil {
		// Degrades to one shared bucket when the back-end cannot report
		// a peer address (the io_uring back-end does not yet populate
		// it; see DESIGN.md).
		category := peerAddr
		if category == "" {
			category = "unknown"
		}
		if _, ok := l.limiter.Allow(category); !ok {
			_ = unix.Close(fd)
			return
		}
	}
	// CONNECTION_POOL_SIZE is enforced by rejecting over-capacity
	// accepts outright rather than deferring them (the multishot Accept
	// Op has no pause primitive to hold a completion back); see
	// DESIGN.md for why this stops short of the backlog-absorbs-it
	// behavior the pool-size tunable originally implied.
	if l.cfg.PoolSize > 0 && l.liveConns >= l.cfg.PoolSize {
		_ = unix.Close(fd)
		return
	}
	l.liveConns++
	l.sched.Metrics().RecordAccept()
	l.sched.Spawn(func(t *Task) any {
		c := NewConnection(l.sched, t, fd, l.cfg.Buffers, l.cfg.IdleTimeout)
		logAccept(l.sched.Logger(), c.ID, fd)
		defer func() {
			c.Close()
			l.liveConns--
			logClose(l.sched.Logger(), c.ID, fd, nil)
		}()
		l.cfg.Handle(c)
		return nil
	})
}

// Close stops accepting new connections and closes the listening
// socket.
func (l *Listener) Close() error {
	if l.acceptOp != nil {
		l.sched.Backend().StopAccept(l.acceptOp)
	}
	return unix.Close(l.fd)
}
