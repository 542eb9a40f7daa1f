package series

import (
	"fmt"
	"time"
)

// Range is the user-selected lookback window for a chart.
type Range string

const (
	Range1h  Range = "1h"
	Range3h  Range = "3h"
	Range6h  Range = "6h"
	Range24h Range = "24h"
	Range7d  Range = "7d"
	Range30d Range = "30d"
)

// DefaultRange is used when a request does not name one.
const DefaultRange = Range24h

// RangeSettings holds everything that depends on the selected range.
type RangeSettings struct {
	// Lookback is the fetch window used when the store does not return bounds.
	Lookback time.Duration
	// TickInterval is the spacing of x-axis labels.
	TickInterval time.Duration
	// BucketWidth is the aggregation width. Zero plots raw samples.
	BucketWidth time.Duration
	// LabelLayout is the time.Format layout for x-axis labels.
	LabelLayout string
}

// AllSettings maps every supported range to its settings. Tune here, not in the
// aggregation or scaling code.
var AllSettings = map[Range]RangeSettings{
	Range1h:  {Lookback: time.Hour, TickInterval: 5 * time.Minute, LabelLayout: "15:04"},
	Range3h:  {Lookback: 3 * time.Hour, TickInterval: 15 * time.Minute, LabelLayout: "15:04"},
	Range6h:  {Lookback: 6 * time.Hour, TickInterval: 30 * time.Minute, LabelLayout: "15:04"},
	Range24h: {Lookback: 24 * time.Hour, TickInterval: time.Hour, BucketWidth: 5 * time.Minute, LabelLayout: "15:04"},
	Range7d:  {Lookback: 7 * 24 * time.Hour, TickInterval: 6 * time.Hour, BucketWidth: time.Hour, LabelLayout: "Jan 2 15:04"},
	Range30d: {Lookback: 30 * 24 * time.Hour, TickInterval: 24 * time.Hour, BucketWidth: 4 * time.Hour, LabelLayout: "Jan 2"},
}

// AllRanges returns the supported ranges from shortest to longest.
func AllRanges() []Range {
	return []Range{Range1h, Range3h, Range6h, Range24h, Range7d, Range30d}
}

// ParseRange validates a range name. An empty string yields DefaultRange.
func ParseRange(s string) (Range, error) {
	if s == "" {
		return DefaultRange, nil
	}
	r := Range(s)
	if _, ok := AllSettings[r]; !ok {
		return "", fmt.Errorf("unknown range %q", s)
	}
	return r, nil
}

// Settings returns the settings for r, falling back to DefaultRange.
func (r Range) Settings() RangeSettings {
	if s, ok := AllSettings[r]; ok {
		return s
	}
	return AllSettings[DefaultRange]
}

// Window returns the default [from, to] window ending at now.
func (r Range) Window(now time.Time) (time.Time, time.Time) {
	return now.Add(-r.Settings().Lookback), now
}

func (r Range) String() string { return string(r) }
