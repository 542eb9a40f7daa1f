package handlers

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/crypto/blake2b"

	"monitorchart/app/internal/cache"
	"monitorchart/app/internal/chart"
	"monitorchart/app/internal/geometry"
	"monitorchart/app/internal/render"
	"monitorchart/app/internal/series"
	"monitorchart/app/internal/store"
)

const (
	minSide = 120
	maxSide = 4000
)

// Charts serves one-shot rendered charts and hover lookups.
type Charts struct {
	src           store.Source
	width, height int
	snapshots     *cache.Cache[chart.Snapshot]
	images        *cache.Cache[image]
	now           func() time.Time
}

type image struct {
	body        []byte
	etag        string
	contentType string
}

// NewCharts creates chart handlers reading from src. Results are cached for
// ttl, which should not exceed the refresh floor.
func NewCharts(src store.Source, width, height int, ttl time.Duration) *Charts {
	return &Charts{
		src:       src,
		width:     width,
		height:    height,
		snapshots: cache.New[chart.Snapshot](ttl),
		images:    cache.New[image](ttl),
		now:       time.Now,
	}
}

// Invalidate drops cached charts of a monitor.
func (c *Charts) Invalidate(id int64) {
	prefix := fmt.Sprintf("%d:", id)
	c.snapshots.DeletePrefix(prefix)
	c.images.DeletePrefix(prefix)
}

// Stop ends the cache sweepers.
func (c *Charts) Stop() {
	c.snapshots.Stop()
	c.images.Stop()
}

func (c *Charts) size(r *http.Request) (int, int, error) {
	w, h := c.width, c.height
	q := r.URL.Query()
	if s := q.Get("w"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < minSide || n > maxSide {
			return 0, 0, fmt.Errorf("w must be between %d and %d", minSide, maxSide)
		}
		w = n
	}
	if s := q.Get("h"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < minSide || n > maxSide {
			return 0, 0, fmt.Errorf("h must be between %d and %d", minSide, maxSide)
		}
		h = n
	}
	return w, h, nil
}

// snapshot composes (or reuses) the chart for a monitor, range and size.
func (c *Charts) snapshot(ctx context.Context, id int64, rng series.Range, w, h int) (chart.Snapshot, error) {
	key := fmt.Sprintf("%d:%s:%dx%d", id, rng, w, h)
	if snap, ok := c.snapshots.Get(key); ok {
		return snap, nil
	}
	m, err := c.src.Monitor(ctx, id)
	if err != nil {
		return chart.Snapshot{}, err
	}
	metrics, err := c.src.Metrics(ctx, id, rng)
	if err != nil {
		return chart.Snapshot{}, err
	}
	snap := chart.Compose(chart.Input{
		MonitorID: id,
		Name:      m.Name,
		Range:     rng,
		Samples:   metrics.Samples,
		From:      metrics.From,
		To:        metrics.To,
		Width:     w,
		Height:    h,
	})
	c.snapshots.Set(key, snap)
	return snap, nil
}

func etagOf(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// HandleChart renders a chart as "svg" or "png"
func (c *Charts) HandleChart(format string) http.HandlerFunc {
	draw, contentType := render.SVG, "image/svg+xml"
	if format == "png" {
		draw, contentType = render.PNG, "image/png"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorID(w, r)
		if !ok {
			return
		}
		rng, ok := rangeParam(w, r)
		if !ok {
			return
		}
		width, height, err := c.size(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		key := fmt.Sprintf("%d:%s:%dx%d:%s", id, rng, width, height, format)
		img, cached := c.images.Get(key)
		if !cached {
			snap, err := c.snapshot(r.Context(), id, rng, width, height)
			if err != nil {
				storeError(w, err, "chart")
				return
			}
			var buf bytes.Buffer
			if err := draw(&buf, snap); err != nil {
				storeError(w, err, "chart render")
				return
			}
			img = image{body: buf.Bytes(), etag: etagOf(buf.Bytes()), contentType: contentType}
			c.images.Set(key, img)
		}

		w.Header().Set("ETag", img.etag)
		w.Header().Set("Cache-Control", "no-cache")
		if r.Header.Get("If-None-Match") == img.etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Content-Type", img.contentType)
		w.Write(img.body)
	}
}

// hoverResponse is the tooltip for the sample nearest ?x=.
type hoverResponse struct {
	Found   bool              `json:"found"`
	Tooltip *geometry.Tooltip `json:"tooltip,omitempty"`
}

// HandleHover answers which raw sample is nearest a cursor position
func (c *Charts) HandleHover() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorID(w, r)
		if !ok {
			return
		}
		rng, ok := rangeParam(w, r)
		if !ok {
			return
		}
		width, height, err := c.size(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		x, err := strconv.ParseFloat(r.URL.Query().Get("x"), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "x must be a number")
			return
		}

		snap, err := c.snapshot(r.Context(), id, rng, width, height)
		if err != nil {
			storeError(w, err, "chart")
			return
		}
		p, found := snap.Nearest(x)
		if !found {
			writeJSON(w, http.StatusOK, hoverResponse{})
			return
		}
		tt := geometry.NewTooltip(p, c.now())
		writeJSON(w, http.StatusOK, hoverResponse{Found: true, Tooltip: &tt})
	}
}
