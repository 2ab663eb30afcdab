package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimers_Schedule(t *testing.T) {
	timers := NewTimers()
	fired := make(chan struct{})

	timers.Schedule("k", 10*time.Millisecond, func() { close(fired) })
	assert.True(t, timers.Pending("k"))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Eventually(t, func() bool { return !timers.Pending("k") }, time.Second, 5*time.Millisecond)
}

func TestTimers_ScheduleSupersedes(t *testing.T) {
	timers := NewTimers()
	var first, second atomic.Int32

	timers.Schedule("k", 20*time.Millisecond, func() { first.Add(1) })
	timers.Schedule("k", 30*time.Millisecond, func() { second.Add(1) })

	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestTimers_Cancel(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Bool

	timers.Schedule("k", 20*time.Millisecond, func() { fired.Store(true) })
	assert.True(t, timers.Cancel("k"))
	assert.False(t, timers.Cancel("k"))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestTimers_CancelAll(t *testing.T) {
	timers := NewTimers()
	var fired atomic.Int32

	timers.Schedule("a", 20*time.Millisecond, func() { fired.Add(1) })
	timers.Schedule("b", 20*time.Millisecond, func() { fired.Add(1) })
	timers.CancelAll()

	assert.False(t, timers.Pending("a"))
	assert.False(t, timers.Pending("b"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
