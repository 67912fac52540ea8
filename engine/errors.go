package engine

import "errors"

// Sentinel errors forming the taxonomy every awaitable operation and the
// HTTP layer speak. Back-ends return them directly as an operation's
// error, not wrapped around the errno that produced them; callers should
// use errors.Is against these sentinels rather than comparing error
// strings.
var (
	// ErrSubmitFailed indicates the back-end's submission queue stayed
	// full after the bounded retry budget was exhausted.
	ErrSubmitFailed = errors.New("engine: submission failed")

	// ErrFileNotFound indicates openat_under (or stat) resolved to
	// ENOENT/EACCES, or a path attempted to escape its directory scope.
	ErrFileNotFound = errors.New("engine: file not found")

	// ErrEOF indicates a recv/read observed a clean peer shutdown (a
	// zero-length read) or ECONNRESET.
	ErrEOF = errors.New("engine: connection closed by peer")

	// ErrTimeout indicates the connection's idle timer fired while an
	// operation was outstanding.
	ErrTimeout = errors.New("engine: operation timed out")

	// ErrUnsupportedOp indicates the selected back-end cannot perform a
	// requested operation (e.g. openat_under without RESOLVE_BENEATH, or
	// splice on a back-end that never implemented it).
	ErrUnsupportedOp = errors.New("engine: operation not supported by back-end")

	// ErrUnsupportedKernel indicates the ring back-end refused to start
	// because the running kernel predates the floor version or is
	// missing a required opcode/feature.
	ErrUnsupportedKernel = errors.New("engine: kernel does not support the completion ring back-end")

	// ErrSchedulerClosed indicates an operation was attempted against a
	// scheduler that has already run its final tick.
	ErrSchedulerClosed = errors.New("engine: scheduler is closed")

	// ErrPollerClosed indicates a back-end call was made after Close.
	ErrPollerClosed = errors.New("engine: back-end is closed")

	// ErrFDOutOfRange indicates a file descriptor exceeds the back-end's
	// direct-indexing table size.
	ErrFDOutOfRange = errors.New("engine: file descriptor out of range")

	// ErrBufferFull indicates a Buffer could not grow enough to satisfy
	// a reservation within its configured max capacity.
	ErrBufferFull = errors.New("engine: buffer at max capacity")
)

// IsFatal reports whether err represents an "other errno": any failing
// syscall outside the named taxonomy is treated as a programmer or kernel
// bug, per the error handling design, and should abort the process rather
// than be mapped to a response.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrFileNotFound),
		errors.Is(err, ErrEOF),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrSubmitFailed),
		errors.Is(err, ErrUnsupportedOp),
		errors.Is(err, ErrBufferFull):
		return false
	default:
		return true
	}
}
