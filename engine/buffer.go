package engine

import "bytes"

// Buffer is a growable ring buffer with a bounded maximum capacity. It is
// owned by exactly one Connection, created lazily on first use and
// destroyed with it.
//
// Invariant: head <= tail <= cap <= maxCap. The readable region is
// data[head:tail]; the writable region is data[tail:cap].
type Buffer struct {
	data   []byte
	head   int
	tail   int
	maxCap int
}

// NewBuffer allocates a Buffer with the given initial capacity, growable up
// to maxCap.
func NewBuffer(initialCap, maxCap int) *Buffer {
	if maxCap < initialCap {
		maxCap = initialCap
	}
	return &Buffer{data: make([]byte, initialCap), maxCap: maxCap}
}

// Len returns the number of readable bytes.
func (b *Buffer) Len() int { return b.tail - b.head }

// Cap returns the buffer's current total capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// MaxCap returns the buffer's configured maximum capacity.
func (b *Buffer) MaxCap() int { return b.maxCap }

// Space returns the number of bytes available for writing before the
// buffer would need to grow.
func (b *Buffer) Space() int { return len(b.data) - b.tail }

// Readable returns the buffer's readable region, data[head:tail]. The
// slice aliases the buffer's storage and is invalidated by the next
// mutating call.
func (b *Buffer) Readable() []byte { return b.data[b.head:b.tail] }

// Reserve ensures at least n bytes are writable at the tail, growing the
// backing array (doubling until sufficient, clamped to maxCap) if needed.
// It reports ErrBufferFull if n cannot be satisfied within maxCap even
// after compacting.
func (b *Buffer) Reserve(n int) error {
	if b.Space() >= n {
		return nil
	}
	// Compacting (sliding the readable region to the front) may free
	// enough room without growing at all.
	if b.head > 0 {
		b.compact()
		if b.Space() >= n {
			return nil
		}
	}
	need := b.tail + n
	if need > b.maxCap {
		return ErrBufferFull
	}
	newCap := len(b.data)
	if newCap == 0 {
		newCap = 1
	}
	for newCap < need {
		newCap *= 2
	}
	if newCap > b.maxCap {
		newCap = b.maxCap
	}
	grown := make([]byte, newCap)
	copy(grown, b.data[:b.tail])
	b.data = grown
	return nil
}

// WritePtr returns the writable region, data[tail:cap]. Callers write into
// it directly (e.g. as the destination of a recv) and then call Produced.
func (b *Buffer) WritePtr() []byte { return b.data[b.tail:] }

// Produced advances tail by n, marking n freshly-written bytes as
// readable. n must not exceed Space().
func (b *Buffer) Produced(n int) {
	if n < 0 || b.tail+n > len(b.data) {
		panic("engine: buffer: Produced out of range")
	}
	b.tail += n
}

// Consume advances head by n, marking n bytes as read. n must not exceed
// Len().
func (b *Buffer) Consume(n int) {
	if n < 0 || b.head+n > b.tail {
		panic("engine: buffer: Consume out of range")
	}
	b.head += n
	b.maybeReset()
}

// Reset collapses head and tail to zero. It only has an effect when the
// buffer is empty (head == tail); callers that want to reclaim space from
// a non-empty buffer should use compact (triggered implicitly by Reserve).
func (b *Buffer) Reset() {
	if b.head == b.tail {
		b.head, b.tail = 0, 0
	}
}

func (b *Buffer) maybeReset() {
	if b.head == b.tail {
		b.head, b.tail = 0, 0
	}
}

// compact shifts the readable region to the front of the backing array,
// reclaiming the space consumed by bytes already read.
func (b *Buffer) compact() {
	if b.head == 0 {
		return
	}
	n := copy(b.data, b.data[b.head:b.tail])
	b.head = 0
	b.tail = n
}

// Memmem returns the offset (relative to head, i.e. into Readable()) of
// the first occurrence of needle in the readable region, or -1 if absent.
func (b *Buffer) Memmem(needle []byte) int {
	return bytes.Index(b.Readable(), needle)
}

// TokenNext scans forward from head for the first byte in delim, returning
// the token preceding it. If preserveEnd is true, head advances to just
// before the delimiter (the delimiter remains in the readable region);
// otherwise it advances past it. Returns ok=false if no delimiter byte is
// present in the readable region.
func (b *Buffer) TokenNext(delim []byte, preserveEnd bool) (token []byte, ok bool) {
	region := b.Readable()
	idx := bytes.IndexAny(region, string(delim))
	if idx < 0 {
		return nil, false
	}
	token = region[:idx]
	if preserveEnd {
		b.head += idx
	} else {
		b.head += idx + 1
	}
	b.maybeReset()
	return token, true
}
