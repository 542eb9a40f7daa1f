package chart

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"monitorchart/app/internal/geometry"
	"monitorchart/app/internal/models"
	"monitorchart/app/internal/scale"
	"monitorchart/app/internal/series"
)

// Input is one fetched data set to be charted.
type Input struct {
	MonitorID int64
	Name      string
	Range     series.Range
	Samples   []series.Sample
	From, To  time.Time
	Width     int
	Height    int
}

// Summary is the one-line description shown under the chart.
type Summary struct {
	UptimePct  float64 `json:"uptime_pct"`
	AvgLatency int     `json:"avg_latency_ms"`
	Samples    int     `json:"samples"`
	Text       string  `json:"text"`
}

// Snapshot is a fully computed chart: buckets, scales, geometry and the
// hover index. State and Events carry the monitor's roll-up and status
// changes for the same range; either may be empty when the store could not
// serve it. Snapshots are never mutated once built.
type Snapshot struct {
	MonitorID int64
	Name      string
	Range     series.Range
	From, To  time.Time
	Buckets   []series.Bucket
	YPlan     scale.YPlan
	Tick      time.Duration
	Geometry  geometry.Geometry
	Hover     []geometry.PlotPoint
	Summary   Summary
	State     *models.MonitorState
	Events    []models.Event

	samples []series.Sample
}

// Compose runs samples through aggregation, scale planning and geometry.
func Compose(in Input) Snapshot {
	rs := in.Range.Settings()
	buckets := series.Aggregate(in.Samples, rs.BucketWidth, in.From, in.To)
	plan := scale.PlanYAxis(series.UpLatencies(buckets))

	snap := Snapshot{
		MonitorID: in.MonitorID,
		Name:      in.Name,
		Range:     in.Range,
		From:      in.From,
		To:        in.To,
		Buckets:   buckets,
		YPlan:     plan,
		Tick:      scale.PlanXAxis(in.Range),
		Summary:   summarize(buckets),
		samples:   in.Samples,
	}
	return snap.Relayout(in.Width, in.Height)
}

// Relayout rebuilds geometry for a new surface size from the same data.
func (s Snapshot) Relayout(width, height int) Snapshot {
	layout := geometry.DefaultLayout(width, height)
	s.Geometry = geometry.Build(s.Buckets, s.From, s.To, s.YPlan, s.Tick, layout, s.Range.Settings().LabelLayout)
	s.Hover = geometry.HoverPoints(s.samples, s.From, s.To, s.YPlan, layout)
	return s
}

// Nearest returns the raw sample closest to x.
func (s Snapshot) Nearest(x float64) (geometry.PlotPoint, bool) {
	return geometry.Nearest(s.Hover, x)
}

// Empty reports whether there is nothing to plot.
func (s Snapshot) Empty() bool { return len(s.Buckets) == 0 }

func summarize(buckets []series.Bucket) Summary {
	var up, total int
	var latSum int64
	for _, b := range buckets {
		up += b.UpCount
		total += b.Total()
		latSum += b.UpLatencySum
	}
	if total == 0 {
		return Summary{Text: "no data in range"}
	}
	sum := Summary{
		UptimePct: float64(int(float64(up)/float64(total)*10000+0.5)) / 100,
		Samples:   total,
	}
	if up > 0 {
		sum.AvgLatency = int(float64(latSum)/float64(up) + 0.5)
	}
	sum.Text = fmt.Sprintf("%s%% up, avg %dms, %s samples",
		humanize.FormatFloat("#.##", sum.UptimePct), sum.AvgLatency, humanize.Comma(int64(total)))
	return sum
}
