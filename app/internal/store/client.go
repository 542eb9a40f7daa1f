package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"monitorchart/app/internal/models"
	"monitorchart/app/internal/series"
)

// ErrNotFound is returned when the store answers 404 for a monitor.
var ErrNotFound = errors.New("monitor not found")

// Metrics is a decoded metrics response. Samples keep the store's order.
type Metrics struct {
	Samples []series.Sample
	From    time.Time
	To      time.Time
	// Dropped counts samples discarded as malformed.
	Dropped int
}

// Source is what the chart view needs from a sample store.
type Source interface {
	Monitors(ctx context.Context) ([]models.Monitor, error)
	Monitor(ctx context.Context, id int64) (*models.Monitor, error)
	State(ctx context.Context, id int64) (*models.MonitorState, error)
	Metrics(ctx context.Context, id int64, r series.Range) (Metrics, error)
	Events(ctx context.Context, id int64, r series.Range) ([]models.Event, error)
}

type call struct {
	done chan struct{}
	body []byte
	err  error
}

// Client talks to the sample store HTTP API. Identical concurrent GETs
// share one round trip.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Now     func() time.Time

	mu       sync.Mutex
	inFlight map[string]*call
}

// NewClient creates a store client rooted at baseURL (e.g.
// "http://localhost:8080/api").
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: timeout},
		Now:      time.Now,
		inFlight: make(map[string]*call),
	}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	c.mu.Lock()
	if cl, ok := c.inFlight[path]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.body, cl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inFlight[path] = cl
	c.mu.Unlock()

	cl.body, cl.err = c.do(ctx, path)

	c.mu.Lock()
	delete(c.inFlight, path)
	c.mu.Unlock()
	close(cl.done)
	return cl.body, cl.err
}

func (c *Client) do(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("store http %d for %s", resp.StatusCode, path)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return raw, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Monitor fetches the monitor descriptor.
func (c *Client) Monitor(ctx context.Context, id int64) (*models.Monitor, error) {
	var m models.Monitor
	if err := c.getJSON(ctx, fmt.Sprintf("/monitor/%d", id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Monitors fetches the monitor list.
func (c *Client) Monitors(ctx context.Context) ([]models.Monitor, error) {
	var out []models.Monitor
	if err := c.getJSON(ctx, "/monitors", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// State fetches the status roll-up.
func (c *Client) State(ctx context.Context, id int64) (*models.MonitorState, error) {
	var st models.MonitorState
	if err := c.getJSON(ctx, fmt.Sprintf("/monitor/%d/state", id), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Metrics fetches samples for the range. Malformed samples are dropped
// and counted; the rest are returned unsorted.
func (c *Client) Metrics(ctx context.Context, id int64, r series.Range) (Metrics, error) {
	path := fmt.Sprintf("/monitor/%d/metrics?range=%s", id, url.QueryEscape(r.String()))
	body, err := c.get(ctx, path)
	if err != nil {
		return Metrics{}, err
	}
	out, err := parseMetrics(body, r, c.Now())
	if err != nil {
		return Metrics{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if out.Dropped > 0 {
		log.Printf("Dropped %d malformed samples for monitor %d", out.Dropped, id)
	}
	return out, nil
}

// wireMetrics keeps items and bounds raw so one bad field only costs its
// own sample.
type wireMetrics struct {
	Items []json.RawMessage `json:"items"`
	From  json.RawMessage   `json:"from"`
	To    json.RawMessage   `json:"to"`
}

// wireSample accepts fractional latencies.
type wireSample struct {
	Ts         string  `json:"ts"`
	OK         bool    `json:"ok"`
	LatencyMs  float64 `json:"latency_ms"`
	StatusCode *int    `json:"status_code"`
	Error      string  `json:"error"`
}

// maxLatencyMs bounds latencies that still fit the plotted int range.
const maxLatencyMs = math.MaxInt32

func parseMetrics(body []byte, r series.Range, now time.Time) (Metrics, error) {
	var wire wireMetrics
	if err := json.Unmarshal(body, &wire); err != nil {
		return Metrics{}, err
	}
	out := Metrics{Samples: make([]series.Sample, 0, len(wire.Items))}
	for _, raw := range wire.Items {
		var it wireSample
		if err := json.Unmarshal(raw, &it); err != nil {
			out.Dropped++
			continue
		}
		out.add(it.Ts, it.OK, it.LatencyMs, it.StatusCode, it.Error)
	}
	var from, to string
	if json.Unmarshal(wire.From, &from) != nil || json.Unmarshal(wire.To, &to) != nil {
		from, to = "", ""
	}
	out.window(from, to, r, now)
	return out, nil
}

// decodeMetrics converts a typed metrics body read from the local store.
func decodeMetrics(body models.Metrics, r series.Range, now time.Time) Metrics {
	out := Metrics{Samples: make([]series.Sample, 0, len(body.Items))}
	for _, it := range body.Items {
		out.add(it.Ts, it.OK, float64(it.LatencyMs), it.StatusCode, it.Error)
	}
	out.window(body.From, body.To, r, now)
	return out
}

func (m *Metrics) add(ts string, ok bool, latency float64, code *int, errMsg string) {
	t, err := ParseTimestamp(ts)
	if err != nil || latency > maxLatencyMs {
		m.Dropped++
		return
	}
	m.Samples = append(m.Samples, series.Sample{
		Time:       t,
		OK:         ok,
		LatencyMs:  int(math.Round(max(latency, 0))),
		StatusCode: code,
		Error:      errMsg,
	})
}

// window sets the bounds. A missing or inverted window falls back to the
// range's default window ending at now.
func (m *Metrics) window(fromStr, toStr string, r series.Range, now time.Time) {
	from, errFrom := ParseTimestamp(fromStr)
	to, errTo := ParseTimestamp(toStr)
	if errFrom != nil || errTo != nil || to.Before(from) {
		from, to = r.Window(now)
	}
	m.From, m.To = from, to
}

// Events fetches status-change events for the range.
func (c *Client) Events(ctx context.Context, id int64, r series.Range) ([]models.Event, error) {
	var body models.Events
	path := fmt.Sprintf("/monitor/%d/events?range=%s", id, url.QueryEscape(r.String()))
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}
	return body.Items, nil
}

// ParseTimestamp accepts RFC 3339 with or without fractional seconds.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	return time.Parse(time.RFC3339Nano, s)
}
