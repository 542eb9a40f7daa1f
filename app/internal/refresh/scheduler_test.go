package refresh

import (
	"math/rand"
	"sort"
	"testing"
	"time"
)

// --------------- fakes ---------------

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	end := c.now.Add(d)
	for {
		sort.SliceStable(c.timers, func(i, j int) bool { return c.timers[i].at.Before(c.timers[j].at) })
		var next *fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(end) {
				next = t
				break
			}
		}
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.fn()
	}
	c.now = end
}

// armed returns the live timers.
func (c *fakeClock) armed() []*fakeTimer {
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

type fetchCall struct {
	monitorID int64
	done      func(Result)
}

type harness struct {
	clock       *fakeClock
	sched       *Scheduler
	calls       []fetchCall
	outstanding int
	maxOut      int
	visible     bool
	lost        []int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{clock: newFakeClock(), visible: true}
	h.sched = New(h.clock, DefaultPolicy(), Hooks{
		Fetch: func(id int64, done func(Result)) {
			h.outstanding++
			if h.outstanding > h.maxOut {
				h.maxOut = h.outstanding
			}
			h.calls = append(h.calls, fetchCall{monitorID: id, done: done})
		},
		Visible: func() bool { return h.visible },
		Lost:    func(id int64) { h.lost = append(h.lost, id) },
	})
	return h
}

// complete finishes the oldest unfinished fetch.
func (h *harness) complete(res Result) {
	for i, c := range h.calls {
		if c.done != nil {
			h.calls[i].done = nil
			h.outstanding--
			c.done(res)
			return
		}
	}
	panic("no fetch in flight")
}

func (h *harness) fetched(interval int) {
	h.complete(Result{Outcome: Fetched, Target: &Target{MonitorID: h.sched.MonitorID(), IntervalSec: interval, Active: true}})
}

// --------------- Policy ---------------

func TestPolicy_Delay(t *testing.T) {
	p := DefaultPolicy()
	cases := map[int]time.Duration{
		0:    3 * time.Second,
		1:    3 * time.Second,
		3:    3 * time.Second,
		10:   10 * time.Second,
		60:   60 * time.Second,
		600:  60 * time.Second,
		-5:   3 * time.Second,
		3600: 60 * time.Second,
	}
	for in, want := range cases {
		if got := p.Delay(in); got != want {
			t.Errorf("Delay(%d) = %v, want %v", in, got, want)
		}
	}
}

func TestTarget_Pollable(t *testing.T) {
	if !(Target{Active: true}).Pollable() {
		t.Error("active unpaused should be pollable")
	}
	if (Target{Active: true, Paused: true}).Pollable() {
		t.Error("paused should not be pollable")
	}
	if (Target{}).Pollable() {
		t.Error("inactive should not be pollable")
	}
}

// --------------- lifecycle ---------------

func TestSelect_FetchesImmediately(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(7)
	if len(h.calls) != 1 || h.calls[0].monitorID != 7 {
		t.Fatalf("calls = %+v", h.calls)
	}
	if h.sched.Phase() != Fetching {
		t.Errorf("phase = %v, want fetching", h.sched.Phase())
	}
}

func TestFetched_SchedulesAtMonitorInterval(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(7)
	h.fetched(10)

	if h.sched.Phase() != Scheduled {
		t.Fatalf("phase = %v, want scheduled", h.sched.Phase())
	}
	armed := h.clock.armed()
	if len(armed) != 1 {
		t.Fatalf("armed timers = %d, want 1", len(armed))
	}
	if d := armed[0].at.Sub(h.clock.now); d != 10*time.Second {
		t.Errorf("delay = %v, want 10s", d)
	}

	h.clock.Advance(9999 * time.Millisecond)
	if len(h.calls) != 1 {
		t.Fatal("fetched before the interval elapsed")
	}
	h.clock.Advance(time.Millisecond)
	if len(h.calls) != 2 {
		t.Fatalf("calls = %d, want 2 after 10s", len(h.calls))
	}
}

func TestFetched_DelayIsClamped(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.fetched(1)
	if d := h.clock.armed()[0].at.Sub(h.clock.now); d != 3*time.Second {
		t.Errorf("delay = %v, want floor 3s", d)
	}

	h.clock.Advance(3 * time.Second)
	h.fetched(3600)
	if d := h.clock.armed()[0].at.Sub(h.clock.now); d != 60*time.Second {
		t.Errorf("delay = %v, want ceiling 60s", d)
	}
}

func TestFailedFirstFetch_RetriesAtFloor(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.complete(Result{Outcome: Failed})
	if h.sched.Phase() != Scheduled {
		t.Fatalf("phase = %v, want scheduled", h.sched.Phase())
	}
	if d := h.clock.armed()[0].at.Sub(h.clock.now); d != 3*time.Second {
		t.Errorf("retry delay = %v, want 3s", d)
	}
}

func TestFailed_KeepsKnownInterval(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.fetched(20)
	h.clock.Advance(20 * time.Second)
	h.complete(Result{Outcome: Failed})
	if d := h.clock.armed()[0].at.Sub(h.clock.now); d != 20*time.Second {
		t.Errorf("delay = %v, want 20s", d)
	}
}

func TestNotFound_TearsDown(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(9)
	h.complete(Result{Outcome: NotFound})

	if h.sched.Phase() != Idle {
		t.Errorf("phase = %v, want idle", h.sched.Phase())
	}
	if len(h.lost) != 1 || h.lost[0] != 9 {
		t.Errorf("lost = %v, want [9]", h.lost)
	}
	if len(h.clock.armed()) != 0 {
		t.Error("no timer should remain")
	}
	h.clock.Advance(time.Hour)
	if len(h.calls) != 1 {
		t.Errorf("fetches after not-found: %d", len(h.calls)-1)
	}
}

func TestPausedMonitor_NeverScheduled(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.complete(Result{Outcome: Fetched, Target: &Target{MonitorID: 1, IntervalSec: 10, Paused: true, Active: true}})
	if h.sched.Phase() != Idle {
		t.Errorf("phase = %v, want idle", h.sched.Phase())
	}
	if len(h.clock.armed()) != 0 {
		t.Error("paused monitor must not arm a timer")
	}
}

func TestInactiveMonitor_NeverScheduled(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.complete(Result{Outcome: Fetched, Target: &Target{MonitorID: 1, IntervalSec: 10}})
	if len(h.clock.armed()) != 0 {
		t.Error("inactive monitor must not arm a timer")
	}
}

// --------------- overlap ---------------

func TestRefresh_DuringFetchIsDeferred(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.sched.Refresh()
	if len(h.calls) != 1 {
		t.Fatalf("second fetch started while one was in flight")
	}
	h.complete(Result{Outcome: Stale})
	if len(h.calls) != 2 {
		t.Fatalf("deferred fetch did not start, calls = %d", len(h.calls))
	}
	if h.maxOut != 1 {
		t.Errorf("max outstanding = %d, want 1", h.maxOut)
	}
}

func TestRefresh_WhenScheduledFetchesNow(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.fetched(30)
	h.sched.Refresh()
	if len(h.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(h.calls))
	}
	if len(h.clock.armed()) != 0 {
		t.Error("timer should be cancelled while fetching")
	}
}

func TestTick_NoTimerWhileFetching(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.fetched(5)
	h.clock.Advance(5 * time.Second)
	if len(h.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(h.calls))
	}
	if len(h.clock.armed()) != 0 {
		t.Error("no tick may be armed while a fetch is in flight")
	}
	h.clock.Advance(time.Minute)
	if len(h.calls) != 2 || h.maxOut != 1 {
		t.Errorf("calls/max outstanding = %d/%d", len(h.calls), h.maxOut)
	}
}

func TestSelect_WhileOldFetchOutstanding(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.sched.Select(2)
	if len(h.calls) != 1 {
		t.Fatalf("new fetch should wait for the old one, calls = %d", len(h.calls))
	}
	if h.sched.Phase() != Fetching {
		t.Errorf("phase = %v, want fetching", h.sched.Phase())
	}

	h.complete(Result{Outcome: Stale})
	if len(h.calls) != 2 || h.calls[1].monitorID != 2 {
		t.Fatalf("calls = %+v", h.calls)
	}
	h.fetched(10)
	if h.sched.MonitorID() != 2 || h.sched.Phase() != Scheduled {
		t.Errorf("monitor/phase = %d/%v", h.sched.MonitorID(), h.sched.Phase())
	}
}

func TestOldResultDoesNotScheduleForOldMonitor(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.sched.Stop()
	h.fetched(10)
	if len(h.clock.armed()) != 0 {
		t.Error("result for a stopped selection armed a timer")
	}
	if h.sched.Phase() != Idle {
		t.Errorf("phase = %v, want idle", h.sched.Phase())
	}
}

// --------------- visibility ---------------

func TestHidden_SkipsTickAndReschedules(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.fetched(10)

	h.visible = false
	h.clock.Advance(10 * time.Second)
	if len(h.calls) != 1 {
		t.Fatal("hidden view should not fetch")
	}
	if h.sched.Phase() != Scheduled {
		t.Errorf("phase = %v, want scheduled", h.sched.Phase())
	}

	h.visible = true
	h.clock.Advance(10 * time.Second)
	if len(h.calls) != 2 {
		t.Errorf("calls = %d, want 2 once visible", len(h.calls))
	}
}

// --------------- timers ---------------

func TestAtMostOneTimerArmed(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.fetched(10)
	h.sched.Reconfigure(Target{MonitorID: 1, IntervalSec: 20, Active: true})
	h.sched.Reconfigure(Target{MonitorID: 1, IntervalSec: 30, Active: true})
	if n := len(h.clock.armed()); n != 1 {
		t.Errorf("armed timers = %d, want 1", n)
	}
	if d := h.clock.armed()[0].at.Sub(h.clock.now); d != 30*time.Second {
		t.Errorf("delay = %v, want 30s", d)
	}
}

func TestReconfigure_PauseAndResume(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.fetched(10)

	h.sched.Reconfigure(Target{MonitorID: 1, IntervalSec: 10, Paused: true, Active: true})
	if h.sched.Phase() != Idle || len(h.clock.armed()) != 0 {
		t.Fatalf("pause should drop the timer, phase = %v", h.sched.Phase())
	}
	h.clock.Advance(time.Minute)
	if len(h.calls) != 1 {
		t.Fatal("paused monitor was fetched")
	}

	h.sched.Reconfigure(Target{MonitorID: 1, IntervalSec: 10, Active: true})
	if h.sched.Phase() != Scheduled {
		t.Errorf("phase after resume = %v, want scheduled", h.sched.Phase())
	}
}

func TestReconfigure_OtherMonitorIgnored(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.fetched(10)
	h.sched.Reconfigure(Target{MonitorID: 2, Paused: true})
	if h.sched.Phase() != Scheduled {
		t.Errorf("phase = %v, want scheduled", h.sched.Phase())
	}
}

func TestStaleTimerCallbackIgnored(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.fetched(10)
	old := h.clock.armed()[0]

	// The timer is replaced, but its callback was already delivered.
	h.sched.Reconfigure(Target{MonitorID: 1, IntervalSec: 20, Active: true})
	old.fn()
	if len(h.calls) != 1 {
		t.Error("callback from a cancelled timer started a fetch")
	}
}

func TestStop_CancelsEverything(t *testing.T) {
	h := newHarness(t)
	h.sched.Select(1)
	h.fetched(10)
	h.sched.Stop()
	h.clock.Advance(time.Hour)
	if len(h.calls) != 1 {
		t.Error("fetch after Stop")
	}
	if h.sched.MonitorID() != 0 {
		t.Error("MonitorID should be 0 after Stop")
	}
}

// --------------- interleavings ---------------

func TestRandomInterleavingsNeverOverlap(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	outcomes := []Outcome{Fetched, Fetched, Failed, Stale}
	for run := 0; run < 200; run++ {
		h := newHarness(t)
		h.sched.Select(1)
		paused := false
		for step := 0; step < 60; step++ {
			switch rng.Intn(7) {
			case 0:
				h.clock.Advance(time.Duration(rng.Intn(20000)) * time.Millisecond)
			case 1:
				if h.outstanding > 0 {
					out := outcomes[rng.Intn(len(outcomes))]
					var tgt *Target
					if out == Fetched {
						tgt = &Target{MonitorID: h.sched.MonitorID(), IntervalSec: rng.Intn(90), Paused: paused, Active: true}
					}
					h.complete(Result{Outcome: out, Target: tgt})
				}
			case 2:
				h.sched.Refresh()
			case 3:
				h.visible = !h.visible
			case 4:
				h.sched.Select(int64(rng.Intn(3) + 1))
				paused = false
			case 5:
				paused = !paused
				h.sched.Reconfigure(Target{MonitorID: h.sched.MonitorID(), IntervalSec: 10, Paused: paused, Active: true})
			case 6:
				h.clock.Advance(time.Minute)
			}
			if h.outstanding > 1 {
				t.Fatalf("run %d step %d: %d fetches outstanding", run, step, h.outstanding)
			}
			if n := len(h.clock.armed()); n > 1 {
				t.Fatalf("run %d step %d: %d timers armed", run, step, n)
			}
			if h.sched.Phase() == Scheduled && h.sched.state.known && !h.sched.state.target.Pollable() {
				t.Fatalf("run %d step %d: paused monitor scheduled", run, step)
			}
		}
	}
}
