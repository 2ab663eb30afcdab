package session

import (
	"sync"
	"time"
)

// Timers runs delayed callbacks keyed by name. Scheduling a key again
// supersedes the pending callback; a superseded or cancelled callback
// never runs.
type Timers struct {
	mu      sync.Mutex
	pending map[string]timerEntry
	seq     uint64
}

type timerEntry struct {
	timer *time.Timer
	gen   uint64
}

// NewTimers creates an empty timer set.
func NewTimers() *Timers {
	return &Timers{pending: make(map[string]timerEntry)}
}

// Schedule runs fn after d under key.
func (t *Timers) Schedule(key string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.pending[key]; ok {
		old.timer.Stop()
	}

	t.seq++
	gen := t.seq
	timer := time.AfterFunc(d, func() {
		t.mu.Lock()
		cur, ok := t.pending[key]
		if !ok || cur.gen != gen {
			t.mu.Unlock()
			return
		}
		delete(t.pending, key)
		t.mu.Unlock()

		fn()
	})
	t.pending[key] = timerEntry{timer: timer, gen: gen}
}

// Cancel stops the pending callback for key. It reports whether one was pending.
func (t *Timers) Cancel(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.pending[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.pending, key)
	return true
}

// CancelAll stops every pending callback.
func (t *Timers) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, entry := range t.pending {
		entry.timer.Stop()
		delete(t.pending, key)
	}
}

// Pending reports whether a callback is scheduled for key.
func (t *Timers) Pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[key]
	return ok
}
