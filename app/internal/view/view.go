// Package view hosts the chart pipeline for one detail view. All state is
// owned by an event loop; public methods post to it and return.
package view

import (
	"context"
	"errors"
	"log"
	"time"

	"monitorchart/app/internal/chart"
	"monitorchart/app/internal/eventloop"
	"monitorchart/app/internal/geometry"
	"monitorchart/app/internal/models"
	"monitorchart/app/internal/refresh"
	"monitorchart/app/internal/series"
	"monitorchart/app/internal/store"
)

// Hooks are the signals a view emits to its host. They run on the view's
// loop and must not block.
type Hooks struct {
	// Rendered is called after every committed render and relayout.
	Rendered func(chart.Snapshot)
	// Lost is called when the selected monitor no longer exists.
	Lost func(monitorID int64)
}

// Config sets up a view.
type Config struct {
	Policy       refresh.Policy
	Range        series.Range
	Width        int
	Height       int
	FetchTimeout time.Duration
	Now          func() time.Time
}

// View is the detail-view controller: selection, range, visibility, size
// and hover for one chart.
type View struct {
	loop  *eventloop.Loop
	src   store.Source
	hooks Hooks
	cfg   Config
	sched *refresh.Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	// loop-owned
	selected int64
	rng      series.Range
	visible  bool
	width    int
	height   int
	seq      uint64
	current  chart.Snapshot
	hasChart bool
}

// New creates a view reading from src. Call Run to start it.
func New(src store.Source, cfg Config, hooks Hooks) *View {
	if cfg.Range == "" {
		cfg.Range = series.DefaultRange
	}
	if cfg.Policy == (refresh.Policy{}) {
		cfg.Policy = refresh.DefaultPolicy()
	}
	if cfg.Width <= 0 {
		cfg.Width = 800
	}
	if cfg.Height <= 0 {
		cfg.Height = 240
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if hooks.Rendered == nil {
		hooks.Rendered = func(chart.Snapshot) {}
	}
	if hooks.Lost == nil {
		hooks.Lost = func(int64) {}
	}

	v := &View{
		loop:    eventloop.New(64),
		src:     src,
		hooks:   hooks,
		cfg:     cfg,
		rng:     cfg.Range,
		visible: true,
		width:   cfg.Width,
		height:  cfg.Height,
	}
	v.ctx, v.cancel = context.WithCancel(context.Background())
	v.sched = refresh.New(loopClock{v.loop}, cfg.Policy, refresh.Hooks{
		Fetch:   v.fetch,
		Visible: func() bool { return v.visible },
		Lost:    v.lost,
	})
	return v
}

// Run drives the view until ctx is done or Close is called.
func (v *View) Run(ctx context.Context) {
	defer v.cancel()
	v.loop.Run(ctx)
	v.sched.Stop()
}

// Close stops the view. Fetches in flight are cancelled and never applied.
func (v *View) Close() {
	v.cancel()
	v.loop.Stop()
}

// Done is closed once the view has stopped.
func (v *View) Done() <-chan struct{} { return v.loop.Done() }

// Select makes monitorID the displayed monitor and fetches it now.
func (v *View) Select(monitorID int64) {
	v.loop.Post(func() {
		v.selected = monitorID
		v.seq++
		v.hasChart = false
		v.current = chart.Snapshot{}
		v.sched.Select(monitorID)
	})
}

// SetRange switches the lookback range and refetches.
func (v *View) SetRange(r series.Range) {
	v.loop.Post(func() {
		if r == v.rng {
			return
		}
		v.rng = r
		v.seq++
		v.sched.Refresh()
	})
}

// SetVisible reports host visibility. Becoming visible refreshes at once
// if a tick is pending, since ticks were skipped while hidden.
func (v *View) SetVisible(visible bool) {
	v.loop.Post(func() {
		was := v.visible
		v.visible = visible
		if visible && !was && v.sched.Phase() == refresh.Scheduled {
			v.sched.Refresh()
		}
	})
}

// Resize relayouts the current chart for a new surface without refetching.
func (v *View) Resize(width, height int) {
	v.loop.Post(func() {
		if width <= 0 || height <= 0 || (width == v.width && height == v.height) {
			return
		}
		v.width, v.height = width, height
		if v.hasChart {
			v.current = v.current.Relayout(width, height)
			v.hooks.Rendered(v.current)
		}
	})
}

// Refresh fetches the current monitor now, e.g. after it was changed or
// deleted elsewhere.
func (v *View) Refresh() {
	v.loop.Post(func() {
		if v.selected != 0 {
			v.sched.Refresh()
		}
	})
}

// Reconfigure applies a pause, resume or interval change made elsewhere.
func (v *View) Reconfigure(t refresh.Target) {
	v.loop.Post(func() { v.sched.Reconfigure(t) })
}

// Hover returns the tooltip for the raw sample nearest x.
func (v *View) Hover(x float64) (geometry.Tooltip, bool) {
	var tt geometry.Tooltip
	var ok bool
	v.loop.Call(func() {
		if !v.hasChart {
			return
		}
		var p geometry.PlotPoint
		if p, ok = v.current.Nearest(x); ok {
			tt = geometry.NewTooltip(p, v.cfg.Now())
		}
	})
	return tt, ok
}

// Snapshot returns the chart currently on display.
func (v *View) Snapshot() (chart.Snapshot, bool) {
	var snap chart.Snapshot
	var ok bool
	v.loop.Call(func() { snap, ok = v.current, v.hasChart })
	return snap, ok
}

// Phase returns the refresh state.
func (v *View) Phase() refresh.Phase {
	p := refresh.Idle
	v.loop.Call(func() { p = v.sched.Phase() })
	return p
}

// fetched is the outcome of one load. eventsOK is false when the event
// list could not be fetched.
type fetched struct {
	target   *refresh.Target
	name     string
	metrics  store.Metrics
	state    *models.MonitorState
	events   []models.Event
	eventsOK bool
	err      error
}

// fetch runs on the loop; the network calls run on their own goroutine and
// post the outcome back.
func (v *View) fetch(monitorID int64, done func(refresh.Result)) {
	seq, rng := v.seq, v.rng
	width, height := v.width, v.height
	go func() {
		res := v.load(monitorID, rng)
		posted := v.loop.Post(func() {
			done(v.commit(monitorID, seq, rng, width, height, res))
		})
		if !posted {
			log.Printf("View stopped before fetch for monitor %d completed", monitorID)
		}
	}()
}

func (v *View) load(monitorID int64, rng series.Range) fetched {
	ctx, cancel := context.WithTimeout(v.ctx, v.cfg.FetchTimeout)
	defer cancel()

	m, err := v.src.Monitor(ctx, monitorID)
	if err != nil {
		return fetched{err: err}
	}
	target := &refresh.Target{
		MonitorID:   m.ID,
		IntervalSec: m.IntervalSec,
		Paused:      m.IsPaused,
		Active:      m.IsActive,
	}
	metrics, err := v.src.Metrics(ctx, monitorID, rng)
	if err != nil {
		return fetched{target: target, err: err}
	}
	res := fetched{target: target, name: m.Name, metrics: metrics}

	// The chart does not depend on state and events, so their transient
	// failures only cost those panels.
	state, err := v.src.State(ctx, monitorID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fetched{target: target, err: err}
	case err != nil:
		log.Printf("Error fetching state for monitor %d: %v", monitorID, err)
	default:
		res.state = state
	}
	events, err := v.src.Events(ctx, monitorID, rng)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fetched{target: target, err: err}
	case err != nil:
		log.Printf("Error fetching events for monitor %d: %v", monitorID, err)
	default:
		res.events, res.eventsOK = events, true
	}
	return res
}

// commit applies a fetch result if it still belongs to the current
// selection and range.
func (v *View) commit(monitorID int64, seq uint64, rng series.Range, width, height int, res fetched) refresh.Result {
	if seq != v.seq || monitorID != v.selected {
		return refresh.Result{Outcome: refresh.Stale}
	}
	if errors.Is(res.err, store.ErrNotFound) {
		return refresh.Result{Outcome: refresh.NotFound}
	}
	if res.err != nil {
		log.Printf("Error refreshing chart for monitor %d: %v", monitorID, res.err)
		return refresh.Result{Outcome: refresh.Failed, Target: res.target}
	}

	snap := chart.Compose(chart.Input{
		MonitorID: monitorID,
		Name:      res.name,
		Range:     rng,
		Samples:   res.metrics.Samples,
		From:      res.metrics.From,
		To:        res.metrics.To,
		Width:     width,
		Height:    height,
	})
	if width != v.width || height != v.height {
		snap = snap.Relayout(v.width, v.height)
	}
	// A failed side fetch keeps what the previous render of this monitor showed.
	snap.State, snap.Events = res.state, res.events
	if v.hasChart && v.current.MonitorID == monitorID {
		if res.state == nil {
			snap.State = v.current.State
		}
		if !res.eventsOK {
			snap.Events = v.current.Events
		}
	}
	v.current = snap
	v.hasChart = true
	v.hooks.Rendered(snap)
	return refresh.Result{Outcome: refresh.Fetched, Target: res.target}
}

func (v *View) lost(monitorID int64) {
	if v.selected == monitorID {
		v.selected = 0
		v.seq++
		v.hasChart = false
		v.current = chart.Snapshot{}
	}
	v.hooks.Lost(monitorID)
}

// loopClock delivers scheduler timers on the view's loop.
type loopClock struct{ loop *eventloop.Loop }

func (c loopClock) AfterFunc(d time.Duration, fn func()) refresh.Timer {
	return c.loop.AfterFunc(d, fn)
}
