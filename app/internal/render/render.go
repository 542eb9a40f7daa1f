// Package render draws chart snapshots to SVG or PNG with go-chart's
// low level renderer.
package render

import (
	"fmt"
	"io"
	"math"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"monitorchart/app/internal/chart"
	"monitorchart/app/internal/geometry"
)

// Theme holds the colors used to paint a chart.
type Theme struct {
	Background drawing.Color
	Grid       drawing.Color
	Label      drawing.Color
	Line       drawing.Color
	Marker     drawing.Color
	DownBand   drawing.Color
	FontSize   float64
	LineWidth  float64
}

// DefaultTheme matches the status page palette.
var DefaultTheme = Theme{
	Background: drawing.ColorFromHex("ffffff"),
	Grid:       drawing.ColorFromHex("e5e7eb"),
	Label:      drawing.ColorFromHex("6b7280"),
	Line:       drawing.ColorFromHex("16a34a"),
	Marker:     drawing.ColorFromHex("15803d"),
	DownBand:   drawing.ColorFromHex("ef4444").WithAlpha(64),
	FontSize:   9,
	LineWidth:  1.5,
}

// SVG writes snap as an SVG document.
func SVG(w io.Writer, snap chart.Snapshot) error {
	return Draw(w, snap, gochart.SVG, DefaultTheme)
}

// PNG writes snap as a PNG image.
func PNG(w io.Writer, snap chart.Snapshot) error {
	return Draw(w, snap, gochart.PNG, DefaultTheme)
}

// Draw paints snap with the given renderer provider and theme.
func Draw(w io.Writer, snap chart.Snapshot, provider gochart.RendererProvider, theme Theme) error {
	layout := snap.Geometry.Layout
	width, height := int(layout.Width), int(layout.Height)
	if width <= 0 || height <= 0 {
		return fmt.Errorf("render: invalid surface %dx%d", width, height)
	}
	r, err := provider(width, height)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	font, err := gochart.GetDefaultFont()
	if err != nil {
		return fmt.Errorf("render: load font: %w", err)
	}
	r.SetFont(font)

	fillRect(r, 0, 0, layout.Width, layout.Height, theme.Background)
	drawGrid(r, snap.Geometry, theme)
	drawBands(r, snap.Geometry, theme)
	drawSegments(r, snap.Geometry, theme)
	drawMarkers(r, snap.Geometry, theme)
	drawLabels(r, snap, theme)

	return r.Save(w)
}

func px(v float64) int { return int(math.Round(v)) }

func fillRect(r gochart.Renderer, x0, y0, x1, y1 float64, c drawing.Color) {
	r.ResetStyle()
	r.SetFillColor(c)
	r.SetStrokeColor(drawing.ColorTransparent)
	r.SetStrokeWidth(0)
	r.MoveTo(px(x0), px(y0))
	r.LineTo(px(x1), px(y0))
	r.LineTo(px(x1), px(y1))
	r.LineTo(px(x0), px(y1))
	r.LineTo(px(x0), px(y0))
	r.Close()
	r.Fill()
}

func drawGrid(r gochart.Renderer, g geometry.Geometry, theme Theme) {
	for _, gl := range g.Gridlines {
		r.ResetStyle()
		r.SetStrokeColor(theme.Grid)
		r.SetStrokeWidth(1)
		r.MoveTo(px(gl.X0), px(gl.Y0))
		r.LineTo(px(gl.X1), px(gl.Y1))
		r.Stroke()
	}
}

func drawBands(r gochart.Renderer, g geometry.Geometry, theme Theme) {
	top, bottom := g.Layout.PlotTop(), g.Layout.PlotBottom()
	for _, b := range g.DownBands {
		fillRect(r, b.X0, top, b.X1, bottom, theme.DownBand)
	}
}

func drawSegments(r gochart.Renderer, g geometry.Geometry, theme Theme) {
	for _, seg := range g.UpSegments {
		if len(seg.Points) < 2 {
			continue
		}
		r.ResetStyle()
		r.SetStrokeColor(theme.Line)
		r.SetStrokeWidth(theme.LineWidth)
		r.MoveTo(px(seg.Points[0].X), px(seg.Points[0].Y))
		for _, p := range seg.Points[1:] {
			r.LineTo(px(p.X), px(p.Y))
		}
		r.Stroke()
	}
}

func drawMarkers(r gochart.Renderer, g geometry.Geometry, theme Theme) {
	for _, m := range g.Markers {
		r.ResetStyle()
		r.SetFillColor(theme.Marker)
		r.SetStrokeColor(theme.Marker)
		r.SetStrokeWidth(1)
		r.Circle(m.Radius, px(m.X), px(m.Y))
		r.FillStroke()
	}
}

func drawLabels(r gochart.Renderer, snap chart.Snapshot, theme Theme) {
	r.ResetStyle()
	r.SetFontColor(theme.Label)
	r.SetFontSize(theme.FontSize)
	for _, l := range snap.Geometry.AxisLabels {
		box := r.MeasureText(l.Text)
		x, y := px(l.X), px(l.Y)
		if l.Axis == "y" {
			// right-aligned against the plot edge
			x -= box.Width()
			y += box.Height() / 2
		} else {
			x -= box.Width() / 2
		}
		r.Text(l.Text, x, y)
	}
	if snap.Summary.Text != "" {
		r.Text(snap.Summary.Text, px(snap.Geometry.Layout.PlotLeft()), px(snap.Geometry.Layout.PlotTop())+px(theme.FontSize))
	}
}
