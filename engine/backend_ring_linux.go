//go:build linux

package engine

import (
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// io_uring opcodes used by this back-end. All are present from the 5.6
// kernel floor onward; construction still confirms each required one
// via IORING_REGISTER_PROBE (see probeRingOps).
const (
	ioOpNop         = 0
	ioOpReadv       = 1
	ioOpWritev      = 2
	ioOpPollAdd     = 6
	ioOpPollRemove  = 7
	ioOpTimeout     = 11
	ioOpAccept      = 13
	ioOpAsyncCancel = 14
	ioOpOpenat      = 18
	ioOpClose       = 19
	ioOpStatx       = 21
	ioOpRead        = 22
	ioOpWrite       = 23
	ioOpSend        = 26
	ioOpRecv        = 27
	ioOpOpenat2     = 28
	ioOpSplice      = 30
)

const (
	// IORING_SETUP_SUBMIT_ALL: keep submitting queued SQEs even if one
	// errors, so a batch flush never silently strands later entries.
	ioSetupSubmitAll = 1 << 7

	ioEnterGetEvents = 1 << 0

	// Ring features this back-end depends on; their absence means the
	// kernel is too old for the ring path and the poll fallback is used
	// instead.
	ioFeatSingleMmap = 1 << 0  // IORING_FEAT_SINGLE_MMAP
	ioFeatCQESkip    = 1 << 11 // IORING_FEAT_CQE_SKIP (skip-success CQEs)
	ioFeatLinkedFile = 1 << 12 // IORING_FEAT_LINKED_FILE (linked-file stability)

	sqeFixedFile = 1 << 0

	// IORING_ACCEPT_MULTISHOT: one submitted accept yields a CQE per
	// inbound connection until the kernel clears IORING_CQE_F_MORE.
	acceptMultishot = 1 << 0

	// IORING_CQE_F_MORE: this multishot submission remains armed.
	cqeFMore = 1 << 1

	// IORING_REGISTER_PROBE and the per-op supported bit it reports.
	ioRegisterProbe    = 8
	ioProbeOpSupported = 1 << 0
)

// openHow mirrors struct open_how for IORING_OP_OPENAT2.
type openHow struct {
	flags   uint64
	mode    uint64
	resolve uint64
}

// resolveBeneath is RESOLVE_BENEATH: reject any path component (or
// symlink target) that would escape the dirfd the open is anchored to.
const resolveBeneath = 0x08

// ioUringParams mirrors struct io_uring_params from the kernel ABI.
type ioUringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFD         uint32
	resv         [3]uint32
	sqOff        ioSqringOffsets
	cqOff        ioCqringOffsets
}

type ioSqringOffsets struct {
	head, tail, ringMask, ringEntries, flags, dropped, array uint32
	resv1                                                    uint32
	resv2                                                    uint64
}

type ioCqringOffsets struct {
	head, tail, ringMask, ringEntries, overflow, cqes, flags uint32
	resv1                                                    uint32
	resv2                                                    uint64
}

// ioUringSQE mirrors struct io_uring_sqe: 64 bytes, ABI-fixed layout.
type ioUringSQE struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opFlags     uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFDIn  int32
	addr3       uint64
	pad         uint64
}

// ioUringCQE mirrors struct io_uring_cqe: 16 bytes.
type ioUringCQE struct {
	userData uint64
	res      int32
	flags    uint32
}

func ioUringSetup(entries uint32, params *ioUringParams) (int, error) {
	r1, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(entries), uintptr(unsafe.Pointer(params)), 0)
	if errno != 0 {
		return -1, errno
	}
	return int(r1), nil
}

func ioUringEnter(fd int, toSubmit, minComplete uint32, flags uint32) (int, error) {
	r1, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(fd), uintptr(toSubmit), uintptr(minComplete), uintptr(flags), 0, 0)
	if errno != 0 {
		return int(r1), errno
	}
	return int(r1), nil
}

func ioUringRegister(fd int, opcode uint32, arg unsafe.Pointer, nrArgs uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_IO_URING_REGISTER, uintptr(fd), uintptr(opcode), uintptr(arg), uintptr(nrArgs), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// ioUringProbeOp mirrors struct io_uring_probe_op.
type ioUringProbeOp struct {
	op    uint8
	resv  uint8
	flags uint16
	resv2 uint32
}

// ioUringProbe mirrors struct io_uring_probe with room for every opcode
// the kernel can report.
type ioUringProbe struct {
	lastOp uint8
	opsLen uint8
	resv   uint16
	resv2  [3]uint32
	ops    [256]ioUringProbeOp
}

// ringRequiredOps is the fixed opcode set the ring back-end submits; a
// kernel missing any of them cannot run it.
var ringRequiredOps = []uint8{
	ioOpAccept,
	ioOpRead,
	ioOpWritev,
	ioOpSend,
	ioOpRecv,
	ioOpClose,
	ioOpOpenat2,
	ioOpStatx,
	ioOpTimeout,
	ioOpAsyncCancel,
	ioOpSplice,
}

// probeRingOps verifies via IORING_REGISTER_PROBE that the kernel
// supports every opcode this back-end will submit.
func probeRingOps(fd int) error {
	probe := new(ioUringProbe)
	if err := ioUringRegister(fd, ioRegisterProbe, unsafe.Pointer(probe), uint32(len(probe.ops))); err != nil {
		return err
	}
	for _, op := range ringRequiredOps {
		if op > probe.lastOp || probe.ops[op].flags&ioProbeOpSupported == 0 {
			return ErrUnsupportedKernel
		}
	}
	return nil
}

// ringOp tracks the awaitable Op and any buffers submitted with it, kept
// alive (referenced from Go) for the duration of the in-flight syscall so
// the GC never moves or frees them out from under the kernel.
type ringOp struct {
	op       *Op
	accept   bool
	listenFD int // accept only: needed to re-arm if the kernel drops multishot
	isOpen   bool
	isClose  bool
	statBuf  *unix.Statx_t
	how      *openHow
	pathBuf  *byte
	buf      []byte // keeps the caller's buffer pinned
	iovs     []unix.Iovec
}

// backendRing is the io_uring completion-queue Backend.
type backendRing struct {
	fd     int
	params ioUringParams

	ringMem []byte
	sqeMem  []byte

	sqHead, sqTail, sqFlags, sqDropped, sqArray *uint32
	sqMask, sqEntries                           uint32
	sqes                                        []ioUringSQE

	cqHead, cqTail, cqOverflow *uint32
	cqMask, cqEntries          uint32
	cqes                       []ioUringCQE

	pending map[uint64]*ringOp
	nextTag uint64

	wakeFD int
}

// ringEntriesFloor is the smallest ring this back-end will settle for
// while halving down from the configured entry count.
const ringEntriesFloor = 512

// kernelAtLeast reports whether the running kernel is >= major.minor.
// The ring back-end's opcode set (openat2, statx, splice, ...) is
// complete from 5.6; older kernels get the poll fallback.
func kernelAtLeast(major, minor int) bool {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return false
	}
	release := uts.Release[:]
	var haveMajor, haveMinor, i int
	for i < len(release) && release[i] >= '0' && release[i] <= '9' {
		haveMajor = haveMajor*10 + int(release[i]-'0')
		i++
	}
	if i < len(release) && release[i] == '.' {
		i++
		for i < len(release) && release[i] >= '0' && release[i] <= '9' {
			haveMinor = haveMinor*10 + int(release[i]-'0')
			i++
		}
	}
	return haveMajor > major || (haveMajor == major && haveMinor >= minor)
}

func newRingBackend(entries uint32) (*backendRing, error) {
	if !kernelAtLeast(5, 6) {
		return nil, ErrUnsupportedKernel
	}
	// Round down to a power of two, then halve on each setup failure
	// until the floor: an over-ambitious ring size (bounded by
	// RLIMIT_MEMLOCK on older kernels) is not a reason to refuse to
	// start.
	want := uint32(1)
	for want<<1 <= entries && want < 1<<16 {
		want <<= 1
	}
	var params ioUringParams
	var fd int
	var err error
	for {
		params = ioUringParams{flags: ioSetupSubmitAll}
		fd, err = ioUringSetup(want, &params)
		if err == nil {
			break
		}
		if want <= ringEntriesFloor {
			return nil, err
		}
		want >>= 1
	}
	// The ring path depends on single-mmap rings, skip-success CQEs, and
	// linked-file stability; a kernel that opened the ring without
	// providing them is too old to run it.
	const requiredFeatures = ioFeatSingleMmap | ioFeatCQESkip | ioFeatLinkedFile
	if params.features&requiredFeatures != requiredFeatures {
		unix.Close(fd)
		return nil, ErrUnsupportedKernel
	}
	if err := probeRingOps(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}

	pageSize := uint32(unix.Getpagesize())
	sqRingSize := params.sqOff.array + params.sqEntries*4
	cqRingSize := params.cqOff.cqes + params.cqEntries*uint32(unsafe.Sizeof(ioUringCQE{}))
	ringSize := sqRingSize
	if cqRingSize > ringSize {
		ringSize = cqRingSize
	}
	ringSize = (ringSize + pageSize - 1) &^ (pageSize - 1)

	ringMem, err := unix.Mmap(fd, 0, int(ringSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	sqeSize := params.sqEntries * uint32(unsafe.Sizeof(ioUringSQE{}))
	sqeMem, err := unix.Mmap(fd, 0x10000000, int(sqeSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		unix.Munmap(ringMem)
		unix.Close(fd)
		return nil, err
	}

	b := &backendRing{
		fd:      fd,
		params:  params,
		ringMem: ringMem,
		sqeMem:  sqeMem,
		pending: make(map[uint64]*ringOp),
		wakeFD:  -1,
	}
	b.sqHead = (*uint32)(unsafe.Pointer(&ringMem[params.sqOff.head]))
	b.sqTail = (*uint32)(unsafe.Pointer(&ringMem[params.sqOff.tail]))
	b.sqMask = *(*uint32)(unsafe.Pointer(&ringMem[params.sqOff.ringMask]))
	b.sqEntries = *(*uint32)(unsafe.Pointer(&ringMem[params.sqOff.ringEntries]))
	b.sqFlags = (*uint32)(unsafe.Pointer(&ringMem[params.sqOff.flags]))
	b.sqDropped = (*uint32)(unsafe.Pointer(&ringMem[params.sqOff.dropped]))
	b.sqArray = (*uint32)(unsafe.Pointer(&ringMem[params.sqOff.array]))
	b.sqes = unsafe.Slice((*ioUringSQE)(unsafe.Pointer(&sqeMem[0])), params.sqEntries)

	b.cqHead = (*uint32)(unsafe.Pointer(&ringMem[params.cqOff.head]))
	b.cqTail = (*uint32)(unsafe.Pointer(&ringMem[params.cqOff.tail]))
	b.cqMask = *(*uint32)(unsafe.Pointer(&ringMem[params.cqOff.ringMask]))
	b.cqEntries = *(*uint32)(unsafe.Pointer(&ringMem[params.cqOff.ringEntries]))
	b.cqOverflow = (*uint32)(unsafe.Pointer(&ringMem[params.cqOff.overflow]))
	b.cqes = unsafe.Slice((*ioUringCQE)(unsafe.Pointer(&ringMem[params.cqOff.cqes])), params.cqEntries)

	return b, nil
}

func (b *backendRing) Name() string { return "io_uring" }

func (b *backendRing) Open() error {
	wfd, err := createWakeFD()
	if err != nil {
		return err
	}
	b.wakeFD = wfd
	return nil
}

func (b *backendRing) Close() error {
	if b.wakeFD >= 0 {
		unix.Close(b.wakeFD)
	}
	if b.ringMem != nil {
		unix.Munmap(b.ringMem)
	}
	if b.sqeMem != nil {
		unix.Munmap(b.sqeMem)
	}
	if b.fd >= 0 {
		return unix.Close(b.fd)
	}
	return nil
}

func (b *backendRing) Wake() error {
	if b.wakeFD < 0 {
		return nil
	}
	return writeWakeFD(b.wakeFD)
}

// submitRetries bounds how many eager flushes reserveSlot attempts when
// the submission queue is full before giving up.
const submitRetries = 3

// reserveSlot reports whether a free SQE slot exists, eagerly flushing
// the queued entries to the kernel (an io_uring_enter with no wait) and
// retrying up to submitRetries times when the queue is full.
func (b *backendRing) reserveSlot() bool {
	for attempt := 0; ; attempt++ {
		tail := atomic.LoadUint32(b.sqTail)
		head := atomic.LoadUint32(b.sqHead)
		if tail-head < b.sqEntries {
			return true
		}
		if attempt >= submitRetries {
			return false
		}
		if _, err := ioUringEnter(b.fd, tail-head, 0, 0); err != nil && err != unix.EINTR {
			return false
		}
	}
}

// submit reserves the next SQE, zeroes it, assigns a fresh tag used as
// user_data to correlate the eventual CQE back to its ringOp, and
// records the ringOp in the pending table before making the SQE visible
// to the kernel. The returned ringOp is nil if the submission queue
// stayed full after the bounded eager-submit retries (the Op then
// already carries ErrSubmitFailed); callers must check it before
// attaching buffers.
func (b *backendRing) submit(fill func(*ioUringSQE), multishot bool) (*Op, *ringOp) {
	op := newOp(multishot)

	if !b.reserveSlot() {
		op.complete(OpResult{Err: ErrSubmitFailed})
		return op, nil
	}

	tail := atomic.LoadUint32(b.sqTail)
	idx := tail & b.sqMask
	sqe := &b.sqes[idx]
	*sqe = ioUringSQE{}
	fill(sqe)

	b.nextTag++
	tag := b.nextTag
	sqe.userData = tag

	arrayPtr := (*uint32)(unsafe.Pointer(uintptr(unsafe.Pointer(b.sqArray)) + uintptr(idx)*4))
	*arrayPtr = idx
	atomic.AddUint32(b.sqTail, 1)

	ro := &ringOp{op: op, accept: sqe.opcode == ioOpAccept}
	b.pending[tag] = ro
	return op, ro
}

func (b *backendRing) Accept(listenFD int) *Op {
	op, ro := b.submit(func(sqe *ioUringSQE) {
		sqe.opcode = ioOpAccept
		sqe.fd = int32(listenFD)
		sqe.ioprio = acceptMultishot
		sqe.opFlags = unix.SOCK_CLOEXEC | unix.SOCK_NONBLOCK
	}, true)
	if ro != nil {
		ro.listenFD = listenFD
	}
	return op
}

// rearmAccept resubmits a multishot accept whose kernel-side arming
// lapsed (the CQE arrived without IORING_CQE_F_MORE), reusing the same
// Op so the Listener's continuation stays registered.
func (b *backendRing) rearmAccept(ro *ringOp) {
	if !b.reserveSlot() {
		ro.op.complete(OpResult{Err: ErrSubmitFailed})
		return
	}
	tail := atomic.LoadUint32(b.sqTail)
	idx := tail & b.sqMask
	sqe := &b.sqes[idx]
	*sqe = ioUringSQE{}
	sqe.opcode = ioOpAccept
	sqe.fd = int32(ro.listenFD)
	sqe.ioprio = acceptMultishot
	sqe.opFlags = unix.SOCK_CLOEXEC | unix.SOCK_NONBLOCK
	b.nextTag++
	sqe.userData = b.nextTag
	arrayPtr := (*uint32)(unsafe.Pointer(uintptr(unsafe.Pointer(b.sqArray)) + uintptr(idx)*4))
	*arrayPtr = idx
	atomic.AddUint32(b.sqTail, 1)
	b.pending[b.nextTag] = ro
}

func (b *backendRing) StopAccept(op *Op) {
	for tag, ro := range b.pending {
		if ro.op != op {
			continue
		}
		b.submit(func(sqe *ioUringSQE) {
			sqe.opcode = ioOpAsyncCancel
			sqe.addr = tag
		}, false)
		return
	}
}

func (b *backendRing) Recv(fd int, buf []byte) *Op {
	return b.submitIO(fd, buf, ioOpRecv)
}

func (b *backendRing) Send(fd int, buf []byte) *Op {
	return b.submitIO(fd, buf, ioOpSend)
}

// Read submits IORING_OP_READ, the regular-file counterpart to Recv's
// IORING_OP_RECV (socket-only).
func (b *backendRing) Read(fd int, buf []byte) *Op {
	return b.submitIO(fd, buf, ioOpRead)
}

func (b *backendRing) submitIO(fd int, buf []byte, opcode uint8) *Op {
	var addr uintptr
	if len(buf) > 0 {
		addr = uintptr(unsafe.Pointer(&buf[0]))
	}
	op, ro := b.submit(func(sqe *ioUringSQE) {
		sqe.opcode = opcode
		sqe.fd = int32(fd)
		sqe.addr = uint64(addr)
		sqe.len = uint32(len(buf))
		if opcode == ioOpRead {
			sqe.off = ^uint64(0) // -1: read from, and advance, the file's current offset
		}
	}, false)
	if ro != nil {
		ro.buf = buf
	}
	return op
}

func (b *backendRing) Writev(fd int, iovs [][]byte) *Op {
	vecs := make([]unix.Iovec, len(iovs))
	for i, v := range iovs {
		if len(v) > 0 {
			vecs[i].Base = &v[0]
		}
		vecs[i].SetLen(len(v))
	}
	var addr uintptr
	if len(vecs) > 0 {
		addr = uintptr(unsafe.Pointer(&vecs[0]))
	}
	op, ro := b.submit(func(sqe *ioUringSQE) {
		sqe.opcode = ioOpWritev
		sqe.fd = int32(fd)
		sqe.addr = uint64(addr)
		sqe.len = uint32(len(vecs))
	}, false)
	if ro != nil {
		ro.iovs = vecs
	}
	return op
}

// OpenUnder submits IORING_OP_OPENAT2 with RESOLVE_BENEATH, so a path
// (or symlink target) escaping dirFD fails inside the kernel's resolver
// (EXDEV, surfaced as ErrFileNotFound) without a window where the file
// was ever open.
func (b *backendRing) OpenUnder(dirFD int, path string) *Op {
	pathBytes, err := unix.BytePtrFromString(path)
	if err != nil {
		op := newOp(false)
		op.complete(OpResult{Err: err})
		return op
	}
	how := &openHow{
		flags:   unix.O_RDONLY | unix.O_CLOEXEC,
		resolve: resolveBeneath,
	}
	op, ro := b.submit(func(sqe *ioUringSQE) {
		sqe.opcode = ioOpOpenat2
		sqe.fd = int32(dirFD)
		sqe.addr = uint64(uintptr(unsafe.Pointer(pathBytes)))
		sqe.off = uint64(uintptr(unsafe.Pointer(how)))
		sqe.len = uint32(unsafe.Sizeof(openHow{}))
	}, false)
	if ro != nil {
		ro.isOpen = true
		ro.how = how
		ro.pathBuf = pathBytes
	}
	return op
}

func (b *backendRing) Stat(fd int) *Op {
	statBuf := new(unix.Statx_t)
	empty, err := unix.BytePtrFromString("")
	if err != nil {
		op := newOp(false)
		op.complete(OpResult{Err: err})
		return op
	}
	op, ro := b.submit(func(sqe *ioUringSQE) {
		sqe.opcode = ioOpStatx
		sqe.fd = int32(fd)
		sqe.addr = uint64(uintptr(unsafe.Pointer(empty)))
		sqe.opFlags = unix.AT_EMPTY_PATH
		sqe.off = uint64(uintptr(unsafe.Pointer(statBuf)))
		sqe.len = unix.STATX_ALL
	}, false)
	if ro != nil {
		ro.statBuf = statBuf
	}
	return op
}

func (b *backendRing) CloseFD(fd int) *Op {
	op, ro := b.submit(func(sqe *ioUringSQE) {
		sqe.opcode = ioOpClose
		sqe.fd = int32(fd)
	}, false)
	if ro != nil {
		ro.isClose = true
	}
	return op
}

func (b *backendRing) Splice(srcFD, dstFD int, n int) *Op {
	op, _ := b.submit(func(sqe *ioUringSQE) {
		sqe.opcode = ioOpSplice
		sqe.fd = int32(dstFD)
		sqe.spliceFDIn = int32(srcFD)
		sqe.off = ^uint64(0) // -1: use the file's current offset
		sqe.len = uint32(n)
	}, false)
	return op
}

func (b *backendRing) Pump(timeout time.Duration) (int, error) {
	toSubmit := atomic.LoadUint32(b.sqTail) - atomic.LoadUint32(b.sqHead)

	if head := atomic.LoadUint32(b.cqHead); head == atomic.LoadUint32(b.cqTail) {
		// Nothing already completed: block for at least one, honoring
		// timeout by submitting an IORING_OP_TIMEOUT when bounded.
		// The kernel copies the timespec while processing the submission,
		// which happens synchronously inside io_uring_enter below, so ts
		// only needs to survive that call.
		var ts unix.Timespec
		if timeout >= 0 {
			ts = unix.NsecToTimespec(timeout.Nanoseconds())
			// The TIMEOUT is left out of the pending table, so dispatch
			// drops its completion as an unknown tag.
			if _, ro := b.submit(func(sqe *ioUringSQE) {
				sqe.opcode = ioOpTimeout
				sqe.addr = uint64(uintptr(unsafe.Pointer(&ts)))
				sqe.len = 1
			}, false); ro != nil {
				delete(b.pending, b.nextTag)
			}
			toSubmit++
		}
		if _, err := ioUringEnter(b.fd, toSubmit, 1, ioEnterGetEvents); err != nil {
			if err == unix.EINTR {
				return 0, nil
			}
			return 0, err
		}
		runtime.KeepAlive(&ts)
	} else if toSubmit > 0 {
		if _, err := ioUringEnter(b.fd, toSubmit, 0, 0); err != nil && err != unix.EINTR {
			return 0, err
		}
	}

	return b.drainCQ(), nil
}

func (b *backendRing) drainCQ() int {
	n := 0
	for {
		head := atomic.LoadUint32(b.cqHead)
		tail := atomic.LoadUint32(b.cqTail)
		if head == tail {
			break
		}
		cqe := b.cqes[head&b.cqMask]
		atomic.AddUint32(b.cqHead, 1)
		b.dispatch(cqe)
		n++
	}
	return n
}

func (b *backendRing) dispatch(cqe ioUringCQE) {
	ro, ok := b.pending[cqe.userData]
	if !ok {
		return // e.g. the TIMEOUT op used purely to bound Pump's wait
	}

	if cqe.res < 0 && unix.Errno(-cqe.res) == unix.ECANCELED {
		// Cancellation completions never reach application handlers;
		// they are reclaimed here.
		delete(b.pending, cqe.userData)
		return
	}

	if !ro.accept {
		delete(b.pending, cqe.userData)
	} else if cqe.flags&cqeFMore == 0 {
		// The kernel retired this multishot accept (e.g. resource
		// pressure); re-arm before delivering so the Listener's loop
		// never observes a gap.
		delete(b.pending, cqe.userData)
		b.rearmAccept(ro)
	}

	if cqe.res < 0 {
		errno := unix.Errno(-cqe.res)
		if ro.isOpen && errno == unix.EXDEV {
			ro.op.complete(OpResult{Err: ErrFileNotFound})
			return
		}
		ro.op.complete(OpResult{Err: translateErrno(errno)})
		return
	}

	switch {
	case ro.statBuf != nil:
		st := ro.statBuf
		ro.op.complete(OpResult{Stat: &StatResult{
			Mode:  uint32(st.Mode),
			Size:  int64(st.Size),
			Mtime: st.Mtime.Sec,
			Inode: st.Ino,
			IsDir: st.Mode&unix.S_IFMT == unix.S_IFDIR,
		}})
	case ro.accept, ro.isOpen:
		ro.op.complete(OpResult{FD: int(cqe.res)})
	case ro.isClose:
		ro.op.complete(OpResult{})
	default:
		if cqe.res == 0 {
			ro.op.complete(OpResult{EOF: true})
		} else {
			ro.op.complete(OpResult{N: int(cqe.res)})
		}
	}

	runtime.KeepAlive(ro.buf)
	runtime.KeepAlive(ro.iovs)
	runtime.KeepAlive(ro.how)
	runtime.KeepAlive(ro.pathBuf)
}
