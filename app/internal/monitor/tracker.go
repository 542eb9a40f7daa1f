package monitor

import (
	"sync"
	"time"
)

type trackState struct {
	failures int
	nextDue  time.Time
}

// Tracker remembers, per monitor, when the next check is due and how many
// checks in a row have failed. It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	states map[int64]*trackState
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[int64]*trackState)}
}

func (t *Tracker) get(id int64) *trackState {
	s, ok := t.states[id]
	if !ok {
		s = &trackState{}
		t.states[id] = s
	}
	return s
}

// Update records a result and returns the consecutive failure count.
func (t *Tracker) Update(id int64, ok bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.get(id)
	if ok {
		s.failures = 0
		return 0
	}
	s.failures++
	return s.failures
}

// Claim reports whether a check is due at now and, if so, books the next
// one interval later. Monitors never seen before are due immediately.
func (t *Tracker) Claim(id int64, now time.Time, interval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.get(id)
	if now.Before(s.nextDue) {
		return false
	}
	s.nextDue = now.Add(interval)
	return true
}

// Reset forgets everything about a monitor.
func (t *Tracker) Reset(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, id)
}

// Prune removes entries for monitors that no longer exist.
func (t *Tracker) Prune(valid map[int64]struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range t.states {
		if _, ok := valid[id]; !ok {
			delete(t.states, id)
		}
	}
}
