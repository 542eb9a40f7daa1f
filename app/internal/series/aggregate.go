package series

import (
	"math"
	"sort"
	"time"
)

// Sample represents a single recorded check outcome
type Sample struct {
	Time       time.Time
	OK         bool
	LatencyMs  int
	StatusCode *int
	Error      string
}

// Bucket summarizes the samples that fall into one fixed-width window.
// Pass-through buckets (no aggregation) have WindowStart == WindowEnd.
type Bucket struct {
	WindowStart    time.Time
	WindowEnd      time.Time
	UpCount        int
	DownCount      int
	UpLatencySum   int64
	LastStatusCode *int
	LastError      string

	lastAt time.Time
}

// OK reports whether the bucket holds at least one successful sample.
func (b Bucket) OK() bool {
	return b.UpCount > 0
}

// Latency returns the mean latency of successful samples, rounded to the
// nearest millisecond. Down buckets report 0.
func (b Bucket) Latency() int {
	if b.UpCount == 0 {
		return 0
	}
	return int(math.Round(float64(b.UpLatencySum) / float64(b.UpCount)))
}

// At returns the instant a bucket is plotted at: the window midpoint.
func (b Bucket) At() time.Time {
	return b.WindowStart.Add(b.WindowEnd.Sub(b.WindowStart) / 2)
}

// Total returns the number of samples in the bucket.
func (b Bucket) Total() int {
	return b.UpCount + b.DownCount
}

func (b *Bucket) add(s Sample) {
	if s.OK {
		b.UpCount++
		b.UpLatencySum += int64(max(s.LatencyMs, 0))
	} else {
		b.DownCount++
	}
	// Last diagnostic fields follow sample time, not input order.
	if b.Total() == 1 || !s.Time.Before(b.lastAt) {
		b.lastAt = s.Time
		b.LastStatusCode = s.StatusCode
		b.LastError = s.Error
	}
}

// Aggregate collapses samples into buckets of the given width over
// [from, to]. With width zero every sample becomes its own bucket and no
// window filtering happens. Buckets without samples are omitted, so a gap
// in the data is never reported as an outage.
func Aggregate(samples []Sample, width time.Duration, from, to time.Time) []Bucket {
	if width <= 0 {
		return passThrough(samples)
	}
	if to.Before(from) {
		return nil
	}

	// A sample stamped exactly at to belongs to the last window, not to
	// one starting at to.
	var last int64
	if span := to.Sub(from); span > 0 {
		last = int64((span - 1) / width)
	}

	byIndex := make(map[int64]*Bucket)
	for _, s := range samples {
		if s.Time.IsZero() || s.Time.Before(from) || s.Time.After(to) {
			continue
		}
		idx := min(int64(s.Time.Sub(from)/width), last)
		b, ok := byIndex[idx]
		if !ok {
			start := from.Add(time.Duration(idx) * width)
			b = &Bucket{WindowStart: start, WindowEnd: start.Add(width)}
			byIndex[idx] = b
		}
		b.add(s)
	}

	indexes := make([]int64, 0, len(byIndex))
	for idx := range byIndex {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	out := make([]Bucket, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, *byIndex[idx])
	}
	return out
}

func passThrough(samples []Sample) []Bucket {
	out := make([]Bucket, 0, len(samples))
	for _, s := range samples {
		if s.Time.IsZero() {
			continue
		}
		b := Bucket{WindowStart: s.Time, WindowEnd: s.Time}
		b.add(s)
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WindowStart.Before(out[j].WindowStart)
	})
	return out
}

// SortSamples orders samples by time, keeping the input order of ties.
func SortSamples(samples []Sample) []Sample {
	out := make([]Sample, len(samples))
	copy(out, samples)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// UpLatencies returns the plotted latency of every up bucket.
func UpLatencies(buckets []Bucket) []int {
	out := make([]int, 0, len(buckets))
	for _, b := range buckets {
		if b.OK() {
			out = append(out, b.Latency())
		}
	}
	return out
}
