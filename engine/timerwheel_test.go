package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerWheelFiresInDeadlineOrder(t *testing.T) {
	w := newTimerWheel()
	base := time.Unix(1000, 0)

	var fired []string
	record := func(name string) func(time.Time) {
		return func(time.Time) { fired = append(fired, name) }
	}

	// Deliberately added out of deadline order.
	w.New(base, 30*time.Millisecond, record("c"))
	w.New(base, 10*time.Millisecond, record("a"))
	w.New(base, 20*time.Millisecond, record("b"))
	require.Equal(t, 3, w.Len())

	deadline, ok := w.Next()
	require.True(t, ok)
	assert.Equal(t, base.Add(10*time.Millisecond), deadline)

	w.Tick(base.Add(25 * time.Millisecond))
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, w.Len())

	w.Tick(base.Add(time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, w.Len())

	_, ok = w.Next()
	assert.False(t, ok)
}

func TestTimerWheelCancelUnlinks(t *testing.T) {
	w := newTimerWheel()
	base := time.Unix(1000, 0)

	fired := 0
	a := w.New(base, 10*time.Millisecond, func(time.Time) { fired++ })
	b := w.New(base, 20*time.Millisecond, func(time.Time) { fired++ })

	require.True(t, a.Live())
	w.Cancel(a)
	assert.False(t, a.Live())
	assert.Equal(t, 1, w.Len())

	// Cancel is idempotent.
	w.Cancel(a)
	assert.Equal(t, 1, w.Len())

	w.Tick(base.Add(time.Second))
	assert.Equal(t, 1, fired, "only the still-linked timeout fires")
	assert.False(t, b.Live())
}

func TestTimerWheelResetMovesDeadlineForward(t *testing.T) {
	w := newTimerWheel()
	base := time.Unix(1000, 0)

	var fired []string
	a := w.New(base, 10*time.Millisecond, func(time.Time) { fired = append(fired, "a") })
	w.New(base, 20*time.Millisecond, func(time.Time) { fired = append(fired, "b") })

	// Re-arm a past b: a's deadline becomes base+15+10, so b now fires
	// first.
	w.Reset(a, base.Add(15*time.Millisecond))

	w.Tick(base.Add(21 * time.Millisecond))
	require.Equal(t, []string{"b"}, fired)

	w.Tick(base.Add(25 * time.Millisecond))
	assert.Equal(t, []string{"b", "a"}, fired)
}

func TestTimerWheelAddRelinksCancelled(t *testing.T) {
	w := newTimerWheel()
	base := time.Unix(1000, 0)

	fired := 0
	a := w.New(base, 10*time.Millisecond, func(time.Time) { fired++ })
	w.Cancel(a)

	w.Add(a, base.Add(5*time.Millisecond))
	require.True(t, a.Live())

	w.Tick(base.Add(time.Second))
	assert.Equal(t, 1, fired)
}

func TestTimerWheelCallbackMayRearm(t *testing.T) {
	w := newTimerWheel()
	base := time.Unix(1000, 0)

	var tm *Timeout
	fired := 0
	tm = w.New(base, 10*time.Millisecond, func(now time.Time) {
		fired++
		if fired < 3 {
			w.Reset(tm, now)
		}
	})

	now := base
	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Millisecond)
		w.Tick(now)
	}
	assert.Equal(t, 3, fired)
	assert.False(t, tm.Live())
}

func TestTimerWheelTickSetMatchesExpiredLiveSet(t *testing.T) {
	w := newTimerWheel()
	base := time.Unix(1000, 0)

	fired := map[int]bool{}
	timeouts := make([]*Timeout, 0, 10)
	for i := 0; i < 10; i++ {
		i := i
		timeouts = append(timeouts, w.New(base, time.Duration(i+1)*time.Millisecond, func(time.Time) {
			fired[i] = true
		}))
	}
	w.Cancel(timeouts[2])
	w.Cancel(timeouts[7])

	now := base.Add(5 * time.Millisecond)
	w.Tick(now)

	for i, tm := range timeouts {
		deadline := base.Add(time.Duration(i+1) * time.Millisecond)
		expected := !deadline.After(now) && i != 2 && i != 7
		assert.Equal(t, expected, fired[i], "timeout %d", i)
		if expected || i == 2 || i == 7 {
			assert.False(t, tm.Live(), "timeout %d should be unlinked", i)
		}
	}
}
