package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferInvariant(t *testing.T) {
	b := NewBuffer(4, 64)

	require.NoError(t, b.Reserve(10))
	assert.GreaterOrEqual(t, b.Cap(), 10)
	assert.LessOrEqual(t, b.Cap(), b.MaxCap())

	copy(b.WritePtr(), "hello world")
	b.Produced(11)
	assert.Equal(t, 11, b.Len())

	b.Consume(6)
	assert.Equal(t, "world", string(b.Readable()))

	// head advanced past zero; Reserve should compact before growing,
	// since compaction alone frees enough room for this request.
	capBefore := b.Cap()
	require.NoError(t, b.Reserve(capBefore-len(b.Readable())))
	assert.Equal(t, capBefore, b.Cap(), "compaction should satisfy this reservation without growth")
}

func TestBufferReserveGrowsAndClampsToMaxCap(t *testing.T) {
	b := NewBuffer(4, 16)

	require.NoError(t, b.Reserve(16))
	assert.Equal(t, 16, b.Cap())

	err := b.Reserve(17)
	assert.ErrorIs(t, err, ErrBufferFull)
}

func TestBufferResetOnlyWhenEmpty(t *testing.T) {
	b := NewBuffer(8, 8)
	copy(b.WritePtr(), "ab")
	b.Produced(2)

	b.Reset()
	assert.Equal(t, 2, b.Len(), "Reset must not discard unread data")

	b.Consume(2)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 8, b.Space(), "consuming everything collapses head/tail back to zero")
}

func TestBufferMemmemAndTokenNext(t *testing.T) {
	b := NewBuffer(32, 32)
	copy(b.WritePtr(), "GET / HTTP/1.1\r\n")
	b.Produced(len("GET / HTTP/1.1\r\n"))

	idx := b.Memmem([]byte("\r\n"))
	require.Equal(t, len("GET / HTTP/1.1"), idx)

	tok, ok := b.TokenNext([]byte(" "), false)
	require.True(t, ok)
	assert.Equal(t, "GET", string(tok))

	tok, ok = b.TokenNext([]byte(" "), true)
	require.True(t, ok)
	assert.Equal(t, "/", string(tok))
}
