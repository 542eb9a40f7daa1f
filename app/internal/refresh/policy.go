package refresh

import "time"

// Policy bounds the polling delay derived from a monitor's check interval.
type Policy struct {
	Floor   time.Duration
	Ceiling time.Duration
}

// DefaultPolicy polls no faster than every 3s and no slower than every 60s.
func DefaultPolicy() Policy {
	return Policy{Floor: 3 * time.Second, Ceiling: 60 * time.Second}
}

// Delay returns the interval clamped to [Floor, Ceiling].
func (p Policy) Delay(intervalSec int) time.Duration {
	d := time.Duration(intervalSec) * time.Second
	if d < p.Floor {
		return p.Floor
	}
	if p.Ceiling > 0 && d > p.Ceiling {
		return p.Ceiling
	}
	return d
}

// Target is the part of a monitor descriptor the scheduler cares about.
type Target struct {
	MonitorID   int64
	IntervalSec int
	Paused      bool
	Active      bool
}

// Pollable reports whether the monitor should be polled at all.
func (t Target) Pollable() bool { return t.Active && !t.Paused }
