package geometry

import (
	"fmt"
	"time"

	"monitorchart/app/internal/scale"
	"monitorchart/app/internal/series"
)

// Padding is the space reserved around the plot area for axis labels.
type Padding struct {
	Top, Right, Bottom, Left float64
}

// Layout describes the drawing surface in pixels.
type Layout struct {
	Width   float64
	Height  float64
	Padding Padding
	// MinBandWidth is the width of a down band at a series edge.
	MinBandWidth float64
	MarkerRadius float64
	// AnchorRadius is used for the first and last point of the series.
	AnchorRadius float64
}

// DefaultLayout returns a layout for a w x h surface.
func DefaultLayout(w, h int) Layout {
	return Layout{
		Width:        float64(w),
		Height:       float64(h),
		Padding:      Padding{Top: 12, Right: 16, Bottom: 28, Left: 52},
		MinBandWidth: 6,
		MarkerRadius: 2,
		AnchorRadius: 4,
	}
}

// PlotLeft returns the left edge of the plot area.
func (l Layout) PlotLeft() float64 { return l.Padding.Left }

// PlotRight returns the right edge of the plot area.
func (l Layout) PlotRight() float64 { return l.Width - l.Padding.Right }

// PlotTop returns the top edge of the plot area.
func (l Layout) PlotTop() float64 { return l.Padding.Top }

// PlotBottom returns the bottom edge (baseline) of the plot area.
func (l Layout) PlotBottom() float64 { return l.Height - l.Padding.Bottom }

func (l Layout) plotWidth() float64  { return max(l.PlotRight()-l.PlotLeft(), 1) }
func (l Layout) plotHeight() float64 { return max(l.PlotBottom()-l.PlotTop(), 1) }

// PlotPoint is one drawable sample or bucket.
type PlotPoint struct {
	X          float64
	Y          float64
	OK         bool
	LatencyMs  int
	Time       time.Time
	StatusCode *int
	Error      string
}

// Segment is a connected polyline of up points.
type Segment struct {
	Points []PlotPoint
}

// Band is a shaded down interval.
type Band struct {
	X0, X1   float64
	From, To time.Time
}

// Width returns the horizontal extent of the band.
func (b Band) Width() float64 { return b.X1 - b.X0 }

// Marker is a dot drawn over an up point.
type Marker struct {
	X, Y   float64
	Radius float64
	Anchor bool
}

// Gridline is a horizontal (latency) or vertical (time) guide.
type Gridline struct {
	X0, Y0, X1, Y1 float64
	Horizontal     bool
}

// Label is axis text anchored at X, Y.
type Label struct {
	X, Y float64
	Text string
	// Axis is "x" or "y".
	Axis string
}

// Geometry is everything needed to draw a chart.
type Geometry struct {
	Layout     Layout
	Gridlines  []Gridline
	AxisLabels []Label
	UpSegments []Segment
	DownBands  []Band
	Points     []PlotPoint
	Markers    []Marker
}

// Projector maps time and latency onto pixels for one chart.
type Projector struct {
	layout   Layout
	from, to time.Time
	yMax     int
}

// NewProjector returns a projector for the domain [from, to] and y ceiling.
func NewProjector(layout Layout, from, to time.Time, yMax int) Projector {
	return Projector{layout: layout, from: from, to: to, yMax: yMax}
}

// X maps t linearly into the plot width, clamped to the plot area.
func (p Projector) X(t time.Time) float64 {
	span := p.to.Sub(p.from)
	if span <= 0 {
		return p.layout.PlotLeft() + p.layout.plotWidth()/2
	}
	frac := float64(t.Sub(p.from)) / float64(span)
	frac = min(max(frac, 0), 1)
	return p.layout.PlotLeft() + frac*p.layout.plotWidth()
}

// Y maps latency into the plot height, inverted so larger values sit higher.
func (p Projector) Y(latencyMs int) float64 {
	if p.yMax <= 0 {
		return p.layout.PlotBottom()
	}
	v := min(max(float64(latencyMs), 0), float64(p.yMax))
	return p.layout.PlotBottom() - v/float64(p.yMax)*p.layout.plotHeight()
}

// Point builds a plot point for a raw sample.
func (p Projector) Point(s series.Sample) PlotPoint {
	pt := PlotPoint{
		X:          p.X(s.Time),
		OK:         s.OK,
		Time:       s.Time,
		StatusCode: s.StatusCode,
		Error:      s.Error,
		Y:          p.layout.PlotBottom(),
	}
	if s.OK {
		pt.LatencyMs = s.LatencyMs
		pt.Y = p.Y(s.LatencyMs)
	}
	return pt
}

// BucketPoint builds a plot point for an aggregated bucket.
func (p Projector) BucketPoint(b series.Bucket) PlotPoint {
	pt := PlotPoint{
		X:          p.X(b.At()),
		OK:         b.OK(),
		Time:       b.At(),
		StatusCode: b.LastStatusCode,
		Error:      b.LastError,
		Y:          p.layout.PlotBottom(),
	}
	if pt.OK {
		pt.LatencyMs = b.Latency()
		pt.Y = p.Y(pt.LatencyMs)
	}
	return pt
}

// Build turns buckets into drawable primitives over [from, to].
func Build(buckets []series.Bucket, from, to time.Time, plan scale.YPlan, tick time.Duration, layout Layout, labelLayout string) Geometry {
	proj := NewProjector(layout, from, to, plan.Max)
	g := Geometry{Layout: layout}

	g.Points = make([]PlotPoint, 0, len(buckets))
	for _, b := range buckets {
		g.Points = append(g.Points, proj.BucketPoint(b))
	}

	g.Gridlines, g.AxisLabels = axes(proj, layout, plan, from, to, tick, labelLayout)
	g.UpSegments = upSegments(g.Points)
	g.DownBands = downBands(g.Points, layout)
	g.Markers = markers(g.Points, layout)
	return g
}

func axes(proj Projector, layout Layout, plan scale.YPlan, from, to time.Time, tick time.Duration, labelLayout string) ([]Gridline, []Label) {
	var lines []Gridline
	var labels []Label

	for _, v := range plan.Ticks() {
		y := proj.Y(v)
		lines = append(lines, Gridline{X0: layout.PlotLeft(), Y0: y, X1: layout.PlotRight(), Y1: y, Horizontal: true})
		labels = append(labels, Label{X: layout.PlotLeft() - 6, Y: y, Text: fmt.Sprintf("%dms", v), Axis: "y"})
	}

	if labelLayout == "" {
		labelLayout = "15:04"
	}
	for _, t := range scale.XTicks(from, to, tick) {
		x := proj.X(t)
		lines = append(lines, Gridline{X0: x, Y0: layout.PlotTop(), X1: x, Y1: layout.PlotBottom()})
		labels = append(labels, Label{X: x, Y: layout.PlotBottom() + 14, Text: t.Format(labelLayout), Axis: "x"})
	}
	return lines, labels
}

// upSegments groups maximal runs of up points; a down point breaks a run.
func upSegments(points []PlotPoint) []Segment {
	var segs []Segment
	var run []PlotPoint
	flush := func() {
		if len(run) >= 2 {
			segs = append(segs, Segment{Points: run})
		}
		run = nil
	}
	for _, p := range points {
		if !p.OK {
			flush()
			continue
		}
		run = append(run, p)
	}
	flush()
	return segs
}

// downBands shades every down point out to the midpoints with its
// neighbours and merges bands that touch.
func downBands(points []PlotPoint, layout Layout) []Band {
	var bands []Band
	half := layout.MinBandWidth / 2
	for i, p := range points {
		if p.OK {
			continue
		}
		x0 := p.X - half
		if i > 0 {
			x0 = (points[i-1].X + p.X) / 2
		}
		x1 := p.X + half
		if i < len(points)-1 {
			x1 = (p.X + points[i+1].X) / 2
		}
		x0 = max(x0, layout.PlotLeft())
		x1 = min(x1, layout.PlotRight())

		if n := len(bands); n > 0 && x0 <= bands[n-1].X1 {
			bands[n-1].X1 = max(bands[n-1].X1, x1)
			bands[n-1].To = p.Time
			continue
		}
		bands = append(bands, Band{X0: x0, X1: x1, From: p.Time, To: p.Time})
	}
	return bands
}

func markers(points []PlotPoint, layout Layout) []Marker {
	var out []Marker
	last := len(points) - 1
	for i, p := range points {
		if !p.OK {
			continue
		}
		m := Marker{X: p.X, Y: p.Y, Radius: layout.MarkerRadius}
		if i == 0 || i == last {
			m.Radius = layout.AnchorRadius
			m.Anchor = true
		}
		out = append(out, m)
	}
	return out
}

// HoverPoints projects raw samples for the hover index, ordered by time.
func HoverPoints(samples []series.Sample, from, to time.Time, plan scale.YPlan, layout Layout) []PlotPoint {
	proj := NewProjector(layout, from, to, plan.Max)
	sorted := series.SortSamples(samples)
	out := make([]PlotPoint, 0, len(sorted))
	for _, s := range sorted {
		if s.Time.IsZero() {
			continue
		}
		out = append(out, proj.Point(s))
	}
	return out
}
