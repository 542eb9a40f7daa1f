package geometry

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"monitorchart/app/internal/checker"
)

// Nearest returns the point horizontally closest to x. Points must be
// ordered by X, which HoverPoints guarantees. Ties go to the earlier point.
func Nearest(points []PlotPoint, x float64) (PlotPoint, bool) {
	if len(points) == 0 {
		return PlotPoint{}, false
	}
	i := sort.Search(len(points), func(i int) bool { return points[i].X >= x })
	switch {
	case i == 0:
		return points[0], true
	case i == len(points):
		return points[len(points)-1], true
	}
	before, after := points[i-1], points[i]
	if math.Abs(after.X-x) < math.Abs(x-before.X) {
		return after, true
	}
	return before, true
}

// Tooltip is the inspector text for one sample.
type Tooltip struct {
	Time    string  `json:"time"`
	Age     string  `json:"age"`
	Latency string  `json:"latency"`
	State   string  `json:"state"`
	Status  string  `json:"status"`
	Error   string  `json:"error,omitempty"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// NewTooltip formats p for display relative to now.
func NewTooltip(p PlotPoint, now time.Time) Tooltip {
	tt := Tooltip{
		Time:    p.Time.Format("2006-01-02 15:04:05"),
		Age:     humanize.RelTime(p.Time, now, "ago", "from now"),
		Latency: "-",
		State:   "DOWN",
		Status:  "-",
		Error:   checker.SanitizeError(p.Error),
		X:       p.X,
		Y:       p.Y,
	}
	if p.OK {
		tt.State = "UP"
		tt.Latency = strconv.Itoa(p.LatencyMs) + "ms"
	}
	if p.StatusCode != nil {
		tt.Status = strconv.Itoa(*p.StatusCode)
	}
	return tt
}
