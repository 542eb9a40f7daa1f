package refresh

import (
	"log"
	"time"
)

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Callbacks must be delivered on the same
// goroutine that drives the Scheduler.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Phase is the scheduler state for the displayed monitor.
type Phase int

const (
	Idle Phase = iota
	Scheduled
	Fetching
)

func (p Phase) String() string {
	switch p {
	case Scheduled:
		return "scheduled"
	case Fetching:
		return "fetching"
	default:
		return "idle"
	}
}

// Outcome classifies a finished fetch.
type Outcome int

const (
	// Fetched means the chart was rendered from fresh data.
	Fetched Outcome = iota
	// Failed is a transient error; the previous chart stays.
	Failed
	// NotFound means the monitor is gone.
	NotFound
	// Stale means the result belonged to an older selection or range and
	// was discarded.
	Stale
)

// Result reports a finished fetch. Target is set when a fresh monitor
// descriptor was obtained.
type Result struct {
	Outcome Outcome
	Target  *Target
}

// Hooks connect the scheduler to its host. Fetch must call done exactly
// once, on the scheduler's goroutine.
type Hooks struct {
	Fetch   func(monitorID int64, done func(Result))
	Visible func() bool
	Lost    func(monitorID int64)
}

// ScheduleState is owned by one displayed monitor. It is replaced when the
// selection changes.
type ScheduleState struct {
	monitorID int64
	target    Target
	known     bool
	timer     Timer
	gen       uint64
	inFlight  bool
	pending   bool
}

// Scheduler keeps one monitor's chart fresh without overlapping fetches.
// It is not safe for concurrent use; drive it from a single goroutine.
type Scheduler struct {
	clock  Clock
	policy Policy
	hooks  Hooks

	state *ScheduleState
	// busy is true while any fetch is outstanding, including one started
	// for a previous selection.
	busy bool
}

// New creates an idle scheduler.
func New(clock Clock, policy Policy, hooks Hooks) *Scheduler {
	if hooks.Visible == nil {
		hooks.Visible = func() bool { return true }
	}
	if hooks.Lost == nil {
		hooks.Lost = func(int64) {}
	}
	return &Scheduler{clock: clock, policy: policy, hooks: hooks}
}

// Select starts tracking a monitor, fetching it immediately.
func (s *Scheduler) Select(monitorID int64) {
	s.teardown()
	s.state = &ScheduleState{monitorID: monitorID}
	s.fetchOrDefer()
}

// Refresh fetches the current monitor now, e.g. after a range change. If a
// fetch is outstanding the new one starts as soon as it completes.
func (s *Scheduler) Refresh() {
	if s.state == nil {
		return
	}
	s.fetchOrDefer()
}

// Reconfigure applies pause, activity or interval changes made by the
// host. The pending timer is replaced or dropped.
func (s *Scheduler) Reconfigure(t Target) {
	st := s.state
	if st == nil || t.MonitorID != st.monitorID {
		return
	}
	st.target = t
	st.known = true
	if st.inFlight || st.pending {
		return
	}
	s.schedule()
}

// Stop cancels all timers. A fetch already in flight is ignored when it
// completes.
func (s *Scheduler) Stop() {
	s.teardown()
}

// Phase returns the current state.
func (s *Scheduler) Phase() Phase {
	st := s.state
	switch {
	case st == nil:
		return Idle
	case st.inFlight || st.pending:
		return Fetching
	case st.timer != nil:
		return Scheduled
	default:
		return Idle
	}
}

// MonitorID returns the tracked monitor, or 0.
func (s *Scheduler) MonitorID() int64 {
	if s.state == nil {
		return 0
	}
	return s.state.monitorID
}

// NextDelay is the delay the next timer will use.
func (s *Scheduler) NextDelay() time.Duration {
	if s.state == nil || !s.state.known {
		return s.policy.Floor
	}
	return s.policy.Delay(s.state.target.IntervalSec)
}

func (s *Scheduler) teardown() {
	if s.state == nil {
		return
	}
	s.cancelTimer(s.state)
	s.state = nil
}

func (s *Scheduler) cancelTimer(st *ScheduleState) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	// A fire already queued is ignored by its stale generation.
	st.gen++
}

func (s *Scheduler) fetchOrDefer() {
	st := s.state
	s.cancelTimer(st)
	if s.busy {
		st.pending = true
		return
	}
	s.fetch(st)
}

func (s *Scheduler) fetch(st *ScheduleState) {
	s.cancelTimer(st)
	st.pending = false
	st.inFlight = true
	s.busy = true
	s.hooks.Fetch(st.monitorID, func(res Result) { s.finish(st, res) })
}

func (s *Scheduler) finish(st *ScheduleState, res Result) {
	s.busy = false
	st.inFlight = false

	if st != s.state {
		// Selection changed or stopped while this fetch ran.
		if cur := s.state; cur != nil && cur.pending {
			s.fetch(cur)
		}
		return
	}

	if res.Outcome == NotFound {
		id := st.monitorID
		s.teardown()
		log.Printf("Monitor %d no longer exists, stopping refresh", id)
		s.hooks.Lost(id)
		return
	}
	if res.Target != nil {
		st.target = *res.Target
		st.known = true
	}
	if st.pending {
		s.fetch(st)
		return
	}
	s.schedule()
}

// schedule arms the timer for the next tick, or leaves the monitor idle
// when it is paused or inactive.
func (s *Scheduler) schedule() {
	st := s.state
	s.cancelTimer(st)
	if st.known && !st.target.Pollable() {
		return
	}
	gen := st.gen
	st.timer = s.clock.AfterFunc(s.NextDelay(), func() { s.fire(st, gen) })
}

func (s *Scheduler) fire(st *ScheduleState, gen uint64) {
	if st != s.state || gen != st.gen {
		return
	}
	st.timer = nil
	if !s.hooks.Visible() || s.busy {
		s.schedule()
		return
	}
	s.fetch(st)
}
