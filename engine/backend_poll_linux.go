//go:build linux

package engine

import (
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"
)

// maxFDs bounds direct-indexed per-FD state; file descriptors at or
// beyond it are rejected with ErrFDOutOfRange.
const maxFDs = 65536

// pendingIO is an Op awaiting an epoll readiness notification before its
// syscall can be retried.
type pendingIO struct {
	op     *Op
	send   bool   // true: Send/Writev pending; false: Recv pending
	buf    []byte // Recv/Send
	iovs   [][]byte
	accept bool
}

type fdState struct {
	active   bool
	events   IOEvents // currently registered with epoll
	readOp   *pendingIO
	writeOp  *pendingIO
}

// backendPoll is the portable fallback Backend: epoll readiness polling
// plus eagerly-attempted non-blocking syscalls, grounded on the
// direct-indexed single-owner design of the completion-ring backend's
// sibling, adapted from a concurrent epoll wrapper down to the
// single-threaded case (no locking is required: only the Scheduler's
// goroutine ever touches backendPoll).
type backendPoll struct {
	epfd     int
	wakeFD   int
	fds      [maxFDs]fdState
	eventBuf [256]unix.EpollEvent
}

func newPollBackend() (*backendPoll, error) {
	return &backendPoll{epfd: -1, wakeFD: -1}, nil
}

func (b *backendPoll) Name() string { return "poll" }

func (b *backendPoll) Open() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	wakeFD, err := createWakeFD()
	if err != nil {
		unix.Close(epfd)
		return err
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}); err != nil {
		unix.Close(epfd)
		unix.Close(wakeFD)
		return err
	}
	b.epfd = epfd
	b.wakeFD = wakeFD
	return nil
}

func (b *backendPoll) Close() error {
	if b.wakeFD >= 0 {
		_ = unix.Close(b.wakeFD)
	}
	if b.epfd >= 0 {
		return unix.Close(b.epfd)
	}
	return nil
}

func (b *backendPoll) Wake() error {
	if b.wakeFD < 0 {
		return nil
	}
	return writeWakeFD(b.wakeFD)
}

func (b *backendPoll) state(fd int) (*fdState, error) {
	if fd < 0 || fd >= maxFDs {
		return nil, ErrFDOutOfRange
	}
	s := &b.fds[fd]
	s.active = true
	return s, nil
}

func (b *backendPoll) arm(fd int, want IOEvents) error {
	s := &b.fds[fd]
	op := unix.EPOLL_CTL_ADD
	if s.events != 0 {
		op = unix.EPOLL_CTL_MOD
	}
	if want == s.events {
		return nil
	}
	ev := &unix.EpollEvent{Events: epollBits(want), Fd: int32(fd)}
	if err := unix.EpollCtl(b.epfd, op, fd, ev); err != nil {
		return err
	}
	s.events = want
	return nil
}

func epollBits(want IOEvents) uint32 {
	var bits uint32
	if want&EventRead != 0 {
		bits |= unix.EPOLLIN
	}
	if want&EventWrite != 0 {
		bits |= unix.EPOLLOUT
	}
	return bits
}

// Accept is multishot: every call to Pump that sees the listener become
// readable calls accept(2) in a loop until EAGAIN, completing op once
// per accepted connection.
func (b *backendPoll) Accept(listenFD int) *Op {
	op := newOp(true)
	s, err := b.state(listenFD)
	if err != nil {
		op.complete(OpResult{Err: err})
		return op
	}
	s.readOp = &pendingIO{op: op, accept: true}
	if err := b.arm(listenFD, s.events|EventRead); err != nil {
		op.complete(OpResult{Err: err})
	}
	return op
}

func (b *backendPoll) StopAccept(op *Op) {
	for fd := range b.fds {
		if b.fds[fd].readOp == nil || b.fds[fd].readOp.op != op {
			continue
		}
		b.fds[fd].readOp = nil
		_ = b.arm(fd, b.fds[fd].events &^ EventRead)
		return
	}
}

func (b *backendPoll) Recv(fd int, buf []byte) *Op {
	op := newOp(false)
	n, errno := unix.Read(fd, buf)
	if done, res := translateIO(n, errno); done {
		op.complete(res)
		return op
	}
	s, err := b.state(fd)
	if err != nil {
		op.complete(OpResult{Err: err})
		return op
	}
	s.readOp = &pendingIO{op: op, buf: buf}
	if err := b.arm(fd, s.events|EventRead); err != nil {
		op.complete(OpResult{Err: err})
	}
	return op
}

// Read services a regular-file read. Unlike Recv, it never registers
// epoll interest: regular files are always "ready" under epoll (the
// kernel has no readiness concept for them), so the initial attempt is
// also the only attempt.
func (b *backendPoll) Read(fd int, buf []byte) *Op {
	op := newOp(false)
	n, err := unix.Read(fd, buf)
	if err != nil {
		op.complete(OpResult{Err: translateErrno(err)})
		return op
	}
	if n == 0 {
		op.complete(OpResult{EOF: true})
		return op
	}
	op.complete(OpResult{N: n})
	return op
}

func (b *backendPoll) Send(fd int, buf []byte) *Op {
	op := newOp(false)
	n, errno := unix.Write(fd, buf)
	if done, res := translateIO(n, errno); done {
		op.complete(res)
		return op
	}
	s, err := b.state(fd)
	if err != nil {
		op.complete(OpResult{Err: err})
		return op
	}
	s.writeOp = &pendingIO{op: op, send: true, buf: buf}
	if err := b.arm(fd, s.events|EventWrite); err != nil {
		op.complete(OpResult{Err: err})
	}
	return op
}

func (b *backendPoll) Writev(fd int, iovs [][]byte) *Op {
	op := newOp(false)
	n, errno := writevRaw(fd, iovs)
	if done, res := translateIO(n, errno); done {
		op.complete(res)
		return op
	}
	s, err := b.state(fd)
	if err != nil {
		op.complete(OpResult{Err: err})
		return op
	}
	s.writeOp = &pendingIO{op: op, send: true, iovs: iovs}
	if err := b.arm(fd, s.events|EventWrite); err != nil {
		op.complete(OpResult{Err: err})
	}
	return op
}

// OpenUnder, Stat, CloseFD and Splice have no epoll readiness concept:
// under the poll backend they execute synchronously and complete before
// returning, so Task.Await never actually suspends for them.
//
// OpenUnder resolves path strictly beneath dirFD via
// openat2(RESOLVE_BENEATH): a symlink or ".." that would ascend above
// dirFD fails with EXDEV, reported as ErrFileNotFound so the HTTP layer
// answers 404 without ever opening the target. On kernels without
// openat2 (pre-5.6) the operation is absent (ErrUnsupportedOp).
func (b *backendPoll) OpenUnder(dirFD int, path string) *Op {
	op := newOp(false)
	fd, err := unix.Openat2(dirFD, path, &unix.OpenHow{
		Flags:   unix.O_RDONLY | unix.O_CLOEXEC,
		Resolve: unix.RESOLVE_BENEATH,
	})
	if err != nil {
		if err == unix.ENOSYS {
			op.complete(OpResult{Err: ErrUnsupportedOp})
			return op
		}
		if err == unix.EXDEV {
			op.complete(OpResult{Err: ErrFileNotFound})
			return op
		}
		op.complete(OpResult{Err: translateErrno(err)})
		return op
	}
	op.complete(OpResult{FD: fd})
	return op
}

func (b *backendPoll) Stat(fd int) *Op {
	op := newOp(false)
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		op.complete(OpResult{Err: translateErrno(err)})
		return op
	}
	op.complete(OpResult{Stat: &StatResult{
		Mode:  st.Mode,
		Size:  st.Size,
		Mtime: int64(st.Mtim.Sec),
		Inode: st.Ino,
		IsDir: st.Mode&unix.S_IFMT == unix.S_IFDIR,
	}})
	return op
}

func (b *backendPoll) CloseFD(fd int) *Op {
	op := newOp(false)
	b.fds[fd] = fdState{}
	err := unix.Close(fd)
	op.complete(OpResult{Err: translateErrno(err)})
	return op
}

func (b *backendPoll) Splice(srcFD, dstFD int, n int) *Op {
	op := newOp(false)
	written, err := unix.Splice(srcFD, nil, dstFD, nil, n, unix.SPLICE_F_NONBLOCK|unix.SPLICE_F_MOVE)
	if err != nil {
		op.complete(OpResult{Err: translateErrno(err)})
		return op
	}
	op.complete(OpResult{N: int(written)})
	return op
}

func (b *backendPoll) Pump(timeout time.Duration) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(b.epfd, b.eventBuf[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	dispatched := 0
	for i := 0; i < n; i++ {
		fd := int(b.eventBuf[i].Fd)
		if fd == b.wakeFD {
			drainWakeFD(b.wakeFD)
			continue
		}
		if fd < 0 || fd >= maxFDs {
			continue
		}
		events := eventsFromEpoll(b.eventBuf[i].Events)
		dispatched += b.dispatch(fd, events)
	}
	return dispatched, nil
}

func (b *backendPoll) dispatch(fd int, events IOEvents) int {
	s := &b.fds[fd]
	n := 0
	if events&(EventRead|EventError|EventHangup) != 0 && s.readOp != nil {
		n += b.retryRead(fd, s)
	}
	if events&(EventWrite|EventError) != 0 && s.writeOp != nil {
		n += b.retryWrite(fd, s)
	}
	return n
}

func (b *backendPoll) retryRead(fd int, s *fdState) int {
	p := s.readOp
	if p.accept {
		count := 0
		for {
			connFD, sa, err := unix.Accept4(fd, unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK)
			if err != nil {
				if err != unix.EAGAIN {
					p.op.complete(OpResult{Err: translateErrno(err)})
				}
				return count
			}
			p.op.complete(OpResult{FD: connFD, PeerAddr: peerAddrString(sa)})
			count++
		}
	}
	n, errno := unix.Read(fd, p.buf)
	if done, res := translateIO(n, errno); done {
		s.readOp = nil
		_ = b.arm(fd, s.events&^EventRead)
		p.op.complete(res)
		return 1
	}
	return 0
}

func (b *backendPoll) retryWrite(fd int, s *fdState) int {
	p := s.writeOp
	var n int
	var errno error
	if p.iovs != nil {
		n, errno = writevRaw(fd, p.iovs)
	} else {
		n, errno = unix.Write(fd, p.buf)
	}
	if done, res := translateIO(n, errno); done {
		s.writeOp = nil
		_ = b.arm(fd, s.events&^EventWrite)
		p.op.complete(res)
		return 1
	}
	return 0
}

// translateIO reports whether a non-blocking syscall's (n, err) pair is
// terminal (success, EOF, or a real error) as opposed to EAGAIN (the
// caller must wait for readiness and retry).
func translateIO(n int, err error) (done bool, res OpResult) {
	if err == nil {
		if n == 0 {
			return true, OpResult{EOF: true}
		}
		return true, OpResult{N: n}
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
		return false, OpResult{}
	}
	if err == unix.ECONNRESET || err == unix.EPIPE {
		// A reset peer is indistinguishable, for the HTTP layer's
		// purposes, from one that shut down cleanly: close without a
		// response either way.
		return true, OpResult{EOF: true}
	}
	return true, OpResult{Err: translateErrno(err)}
}

func translateErrno(err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case unix.ENOENT, unix.EACCES:
		return ErrFileNotFound
	case unix.ECONNRESET, unix.EPIPE:
		return ErrEOF
	}
	return err
}

func writevRaw(fd int, iovs [][]byte) (int, error) {
	raw := make([][]byte, len(iovs))
	copy(raw, iovs)
	n, err := unix.Writev(fd, raw)
	return n, err
}

// peerAddrString renders an accepted connection's peer address as
// "ip:port" for admission control and logging. The listener binds a
// dual-stack IPv6 socket, so IPv4 peers surface as v4-mapped
// SockaddrInet6 values; both families render, anything else is empty.
func peerAddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := a.Addr
		return fmt.Sprintf("%d.%d.%d.%d:%d", ip[0], ip[1], ip[2], ip[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("%s:%d", netipString(a.Addr), a.Port)
	default:
		return ""
	}
}

func netipString(addr [16]byte) string {
	return netip.AddrFrom16(addr).Unmap().String()
}

func eventsFromEpoll(bits uint32) IOEvents {
	var e IOEvents
	if bits&unix.EPOLLIN != 0 {
		e |= EventRead
	}
	if bits&unix.EPOLLOUT != 0 {
		e |= EventWrite
	}
	if bits&unix.EPOLLERR != 0 {
		e |= EventError
	}
	if bits&unix.EPOLLHUP != 0 {
		e |= EventHangup
	}
	return e
}
