package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"monitorchart/app/internal/checker"
	"monitorchart/app/internal/database"
	"monitorchart/app/internal/models"
	"monitorchart/app/internal/stats"
)

// failureLogThreshold is the failure streak from which checks are logged.
const failureLogThreshold = 3

// Collector probes every active, unpaused monitor on its own interval and
// records the results.
type Collector struct {
	tracker *Tracker
	tick    time.Duration
	probe   func(checker.CheckOptions) checker.Result
	wg      sync.WaitGroup
}

// NewCollector creates a collector that looks for due monitors every tick.
func NewCollector(tick time.Duration) *Collector {
	if tick <= 0 {
		tick = time.Second
	}
	return &Collector{tracker: NewTracker(), tick: tick, probe: checker.Check}
}

// Run blocks until ctx is done, then waits for in-flight probes.
func (c *Collector) Run(ctx context.Context) {
	log.Printf("Collector started (tick %s)", c.tick)
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	c.RunOnce(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			c.wg.Wait()
			log.Println("Collector stopped")
			return
		case now := <-ticker.C:
			c.RunOnce(ctx, now)
		}
	}
}

// RunOnce starts a probe for every monitor that is due at now.
func (c *Collector) RunOnce(ctx context.Context, now time.Time) {
	monitors, err := database.GetAllMonitors()
	if err != nil {
		log.Printf("Error loading monitors: %v", err)
		return
	}

	valid := make(map[int64]struct{}, len(monitors))
	for i := range monitors {
		m := monitors[i]
		valid[m.ID] = struct{}{}
		if m.IsPaused || !m.IsActive {
			continue
		}
		if !c.tracker.Claim(m.ID, now, time.Duration(m.IntervalSec)*time.Second) {
			continue
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.check(ctx, &m)
		}()
	}
	c.tracker.Prune(valid)
}

// Wait blocks until probes started by RunOnce have been recorded.
func (c *Collector) Wait() { c.wg.Wait() }

func (c *Collector) check(ctx context.Context, m *models.Monitor) {
	if ctx.Err() != nil {
		return
	}
	res := c.probe(checker.CheckOptions{
		URL:         m.URL,
		Timeout:     time.Duration(m.TimeoutSec) * time.Second,
		ExpectedMin: m.ExpectedMin,
		ExpectedMax: m.ExpectedMax,
	})
	stats.Record(m, res, time.Now())

	if n := c.tracker.Update(m.ID, res.OK); n >= failureLogThreshold {
		log.Printf("Monitor %s failed %d checks in a row: %s", m.Name, n, checker.SanitizeError(res.Err))
	}
}
