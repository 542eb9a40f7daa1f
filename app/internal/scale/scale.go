package scale

import (
	"math"
	"time"

	"monitorchart/app/internal/series"
)

// Rung maps peaks up to and including Peak onto a fixed Ceiling.
type Rung struct {
	Peak    int
	Ceiling int
}

// Config drives y-axis planning. The ladder keeps ceilings stable between
// refreshes; the nice steps pick readable tick spacing.
type Config struct {
	Ladder []Rung
	// DoublingFloor is doubled until it exceeds peaks above the ladder.
	DoublingFloor int
	// NiceSteps are the leading digits a step may snap up to.
	NiceSteps []float64
	// TargetTicks is the desired number of intervals between 0 and the ceiling.
	TargetTicks int
}

// DefaultConfig returns the latency chart defaults.
func DefaultConfig() Config {
	return Config{
		Ladder: []Rung{
			{Peak: 10, Ceiling: 50},
			{Peak: 50, Ceiling: 100},
			{Peak: 100, Ceiling: 200},
		},
		DoublingFloor: 200,
		NiceSteps:     []float64{1, 2, 5, 10},
		TargetTicks:   5,
	}
}

// YPlan is the vertical scale of a chart in milliseconds.
type YPlan struct {
	Max  int
	Step int
}

// Ticks returns every tick value from 0 to Max inclusive.
func (p YPlan) Ticks() []int {
	if p.Step <= 0 || p.Max <= 0 {
		return []int{0}
	}
	ticks := make([]int, 0, p.Max/p.Step+1)
	for v := 0; v <= p.Max; v += p.Step {
		ticks = append(ticks, v)
	}
	return ticks
}

// PlanYAxis plans the y-axis for the given up latencies using DefaultConfig.
func PlanYAxis(upLatencies []int) YPlan {
	return DefaultConfig().PlanYAxis(upLatencies)
}

// PlanYAxis plans the y-axis for the given up latencies.
func (c Config) PlanYAxis(upLatencies []int) YPlan {
	peak := 0
	for _, v := range upLatencies {
		if v > peak {
			peak = v
		}
	}
	ceiling := c.Ceiling(peak)
	return YPlan{Max: ceiling, Step: c.Step(ceiling)}
}

// Step picks the tick spacing for a ceiling so the top gridline lands on
// it. The snapped NiceStep is used when it divides the ceiling; otherwise
// the nice step dividing it whose interval count is nearest TargetTicks,
// within [2, 2*TargetTicks]. When none qualifies the ceiling is halved into
// equal parts instead.
func (c Config) Step(ceiling int) int {
	if ceiling <= 0 {
		return 1
	}
	target := max(c.TargetTicks, 1)
	if step := c.NiceStep(float64(ceiling) / float64(target)); ceiling%step == 0 {
		return step
	}
	best, bestDist := 0, 0
	for mag := 1; mag <= ceiling; mag *= 10 {
		for _, s := range c.NiceSteps {
			step := int(math.Round(s * float64(mag)))
			if step < 1 || step > ceiling || ceiling%step != 0 {
				continue
			}
			n := ceiling / step
			if n < 2 || n > 2*target {
				continue
			}
			dist := n - target
			if dist < 0 {
				dist = -dist
			}
			if best == 0 || dist < bestDist || (dist == bestDist && step > best) {
				best, bestDist = step, dist
			}
		}
	}
	if best > 0 {
		return best
	}
	step := ceiling
	for step%2 == 0 && ceiling/(step/2) <= target {
		step /= 2
	}
	return step
}

// Ceiling maps a peak latency onto the ladder.
func (c Config) Ceiling(peak int) int {
	for _, r := range c.Ladder {
		if peak <= r.Peak {
			return r.Ceiling
		}
	}
	ceiling := c.DoublingFloor
	if ceiling <= 0 {
		ceiling = 1
	}
	for ceiling <= peak {
		ceiling *= 2
	}
	return ceiling
}

// NiceStep normalizes raw to a power of ten and snaps its leading digit up
// to the next configured nice step.
func (c Config) NiceStep(raw float64) int {
	if raw <= 0 || math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 1
	}
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	lead := raw / mag
	snapped := c.NiceSteps[len(c.NiceSteps)-1]
	for _, s := range c.NiceSteps {
		// Tolerate float noise from the division above.
		if lead <= s+1e-9 {
			snapped = s
			break
		}
	}
	step := int(math.Round(snapped * mag))
	if step < 1 {
		step = 1
	}
	return step
}

// PlanXAxis returns the x tick spacing for a range. It depends only on the
// range so sparse data still gets a legible, stable axis.
func PlanXAxis(r series.Range) time.Duration {
	return r.Settings().TickInterval
}

// XTicks returns tick instants aligned to interval within [from, to].
func XTicks(from, to time.Time, interval time.Duration) []time.Time {
	if interval <= 0 || to.Before(from) {
		return nil
	}
	first := from.Truncate(interval)
	if first.Before(from) {
		first = first.Add(interval)
	}
	var ticks []time.Time
	for t := first; !t.After(to); t = t.Add(interval) {
		ticks = append(ticks, t)
	}
	return ticks
}
