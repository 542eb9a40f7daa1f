package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"monitorchart/app/internal/chart"
	"monitorchart/app/internal/series"
)

func testSnapshot() chart.Snapshot {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var samples []series.Sample
	for i := 0; i < 30; i++ {
		samples = append(samples, series.Sample{
			Time:      base.Add(time.Duration(i) * 2 * time.Minute),
			OK:        i < 10 || i > 14,
			LatencyMs: 40 + i,
		})
	}
	return chart.Compose(chart.Input{
		Name:    "api",
		Range:   series.Range1h,
		Samples: samples,
		From:    base,
		To:      base.Add(time.Hour),
		Width:   640,
		Height:  240,
	})
}

func TestSVG(t *testing.T) {
	var buf bytes.Buffer
	if err := SVG(&buf, testSnapshot()); err != nil {
		t.Fatalf("SVG: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<svg") {
		t.Fatal("output is not an svg document")
	}
	if !strings.Contains(out, "ms") {
		t.Error("expected y-axis labels in output")
	}
	if !strings.Contains(out, "circle") {
		t.Error("expected markers in output")
	}
}

func TestPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := PNG(&buf, testSnapshot()); err != nil {
		t.Fatalf("PNG: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("missing PNG signature")
	}
}

func TestSVG_EmptySnapshot(t *testing.T) {
	now := time.Now()
	snap := chart.Compose(chart.Input{Range: series.Range24h, From: now.Add(-24 * time.Hour), To: now, Width: 300, Height: 120})
	var buf bytes.Buffer
	if err := SVG(&buf, snap); err != nil {
		t.Fatalf("SVG: %v", err)
	}
	if !strings.Contains(buf.String(), "no data in range") {
		t.Error("empty chart should carry the summary text")
	}
}

func TestDraw_InvalidSurface(t *testing.T) {
	snap := testSnapshot().Relayout(0, 0)
	var buf bytes.Buffer
	if err := SVG(&buf, snap); err == nil {
		t.Error("expected error for zero sized surface")
	}
}
