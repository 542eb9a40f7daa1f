package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axiomhq/hyperloglog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"monitorchart/app/internal/chart"
	"monitorchart/app/internal/geometry"
	"monitorchart/app/internal/models"
	"monitorchart/app/internal/ratelimit"
	"monitorchart/app/internal/refresh"
	"monitorchart/app/internal/render"
	"monitorchart/app/internal/series"
	"monitorchart/app/internal/store"
	"monitorchart/app/internal/view"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 1024
	sendBuffer   = 16
)

// inbound is a message from the browser.
type inbound struct {
	Type      string  `json:"type"`
	Visible   bool    `json:"visible"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Range     string  `json:"range"`
	X         float64 `json:"x"`
	MonitorID int64   `json:"monitor_id"`
}

// outbound is a message to the browser.
type outbound struct {
	Type      string               `json:"type"`
	Session   string               `json:"session,omitempty"`
	MonitorID int64                `json:"monitor_id,omitempty"`
	Name      string               `json:"name,omitempty"`
	Range     string               `json:"range,omitempty"`
	From      *time.Time           `json:"from,omitempty"`
	To        *time.Time           `json:"to,omitempty"`
	SVG       string               `json:"svg,omitempty"`
	Summary   *chart.Summary       `json:"summary,omitempty"`
	State     *models.MonitorState `json:"state,omitempty"`
	Events    []models.Event       `json:"events,omitempty"`
	Tooltip   *geometry.Tooltip    `json:"tooltip,omitempty"`
	Found     bool                 `json:"found,omitempty"`
	Monitors  []models.Monitor     `json:"monitors,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// Live runs a chart view per websocket connection.
type Live struct {
	src      store.Source
	cfg      view.Config
	upgrader websocket.Upgrader
	origins  []string

	mu       sync.Mutex
	sessions map[string]*session
	viewers  map[int64]*hyperloglog.Sketch
}

// NewLive creates the live view endpoint. cfg is the template for each
// connection's view. Browsers may connect from the serving host or from one
// of origins (e.g. "https://status.example.com").
func NewLive(src store.Source, cfg view.Config, origins []string) *Live {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	l := &Live{
		src:      src,
		cfg:      cfg,
		sessions: make(map[string]*session),
		viewers:  make(map[int64]*hyperloglog.Sketch),
	}
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			l.origins = append(l.origins, o)
		}
	}
	l.upgrader = websocket.Upgrader{CheckOrigin: l.checkOrigin}
	return l
}

// checkOrigin allows non-browser clients, same-host pages and the
// configured origins.
func (l *Live) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, o := range l.origins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	log.Printf("Rejected live view from origin %s", origin)
	return false
}

type session struct {
	live    *Live
	id      string
	ip      string
	conn    *websocket.Conn
	view    *view.View
	send    chan []byte
	done    chan struct{}
	monitor atomic.Int64
}

// enqueue never blocks the view loop; a slow client loses messages.
func (s *session) enqueue(msg outbound) {
	msg.Session = s.id
	b, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error encoding live message: %v", err)
		return
	}
	select {
	case s.send <- b:
	case <-s.done:
	default:
		log.Printf("Live session %s is not keeping up, dropping %s message", s.id, msg.Type)
	}
}

func (s *session) rendered(snap chart.Snapshot) {
	var buf bytes.Buffer
	if err := render.SVG(&buf, snap); err != nil {
		s.enqueue(outbound{Type: "error", MonitorID: snap.MonitorID, Error: "render failed"})
		log.Printf("Error rendering live chart for monitor %d: %v", snap.MonitorID, err)
		return
	}
	from, to := snap.From, snap.To
	s.enqueue(outbound{
		Type:      "render",
		MonitorID: snap.MonitorID,
		Name:      snap.Name,
		Range:     snap.Range.String(),
		From:      &from,
		To:        &to,
		SVG:       buf.String(),
		Summary:   &snap.Summary,
		State:     snap.State,
		Events:    snap.Events,
	})
}

// lost tells the browser its monitor is gone and sends a fresh monitor
// list so it can pick another.
func (s *session) lost(id int64) {
	s.monitor.CompareAndSwap(id, 0)
	s.enqueue(outbound{Type: "lost", MonitorID: id})
	go s.sendMonitors()
}

func (s *session) sendMonitors() {
	ctx, cancel := context.WithTimeout(context.Background(), s.live.cfg.FetchTimeout)
	defer cancel()
	list, err := s.live.src.Monitors(ctx)
	if err != nil {
		log.Printf("Error fetching monitor list for live session %s: %v", s.id, err)
		return
	}
	s.enqueue(outbound{Type: "monitors", Monitors: list})
}

// HandleLive upgrades to a websocket and streams renders of a monitor
func (l *Live) HandleLive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorID(w, r)
		if !ok {
			return
		}
		rng, ok := rangeParam(w, r)
		if !ok {
			return
		}
		conn, err := l.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		cfg := l.cfg
		cfg.Range = rng
		s := &session{
			live: l,
			id:   uuid.NewString(),
			ip:   ratelimit.ClientIP(r),
			conn: conn,
			send: make(chan []byte, sendBuffer),
			done: make(chan struct{}),
		}
		s.view = view.New(l.src, cfg, view.Hooks{Rendered: s.rendered, Lost: s.lost})

		l.open(s)
		defer l.close(s)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go s.view.Run(ctx)
		go s.writer()

		s.enqueue(outbound{Type: "hello", MonitorID: id, Range: rng.String()})
		l.selectMonitor(s, id)
		l.reader(s)
	}
}

func (l *Live) open(s *session) {
	l.mu.Lock()
	l.sessions[s.id] = s
	n := len(l.sessions)
	l.mu.Unlock()
	log.Printf("Live session %s opened from %s (%d active)", s.id, s.ip, n)
}

func (l *Live) close(s *session) {
	l.mu.Lock()
	delete(l.sessions, s.id)
	n := len(l.sessions)
	l.mu.Unlock()

	close(s.done)
	s.view.Close()
	s.conn.Close()
	log.Printf("Live session %s closed (%d active)", s.id, n)
}

func (l *Live) selectMonitor(s *session, id int64) {
	s.monitor.Store(id)
	l.mu.Lock()
	sk, ok := l.viewers[id]
	if !ok {
		sk = hyperloglog.New14()
		l.viewers[id] = sk
	}
	sk.Insert([]byte(s.ip))
	l.mu.Unlock()
	s.view.Select(id)
}

func (s *session) writer() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("Write error for live session %s: %v", s.id, err)
				s.conn.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Close()
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// reader dispatches host signals to the view until the connection drops.
func (l *Live) reader(s *session) {
	s.conn.SetReadLimit(readLimit)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("Read error for live session %s: %v", s.id, err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.enqueue(outbound{Type: "error", Error: "invalid message"})
			continue
		}
		switch msg.Type {
		case "visibility":
			s.view.SetVisible(msg.Visible)
		case "resize":
			if msg.Width < minSide || msg.Width > maxSide || msg.Height < minSide || msg.Height > maxSide {
				s.enqueue(outbound{Type: "error", Error: "invalid size"})
				continue
			}
			s.view.Resize(msg.Width, msg.Height)
		case "range":
			rng, err := series.ParseRange(msg.Range)
			if err != nil {
				s.enqueue(outbound{Type: "error", Error: err.Error()})
				continue
			}
			s.view.SetRange(rng)
		case "hover":
			tt, found := s.view.Hover(msg.X)
			out := outbound{Type: "tooltip", MonitorID: s.monitor.Load(), Found: found}
			if found {
				out.Tooltip = &tt
			}
			s.enqueue(out)
		case "select":
			if msg.MonitorID <= 0 {
				s.enqueue(outbound{Type: "error", Error: "invalid monitor id"})
				continue
			}
			l.selectMonitor(s, msg.MonitorID)
		default:
			s.enqueue(outbound{Type: "error", Error: "unknown message type"})
		}
	}
}

// Reconfigure pushes a pause, resume or interval change to every view.
// Views showing another monitor ignore it.
func (l *Live) Reconfigure(t refresh.Target) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.sessions {
		if s.monitor.Load() == t.MonitorID {
			s.view.Reconfigure(t)
		}
	}
}

// Refresh makes every view showing id refetch, so deletions surface at once.
func (l *Live) Refresh(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.sessions {
		if s.monitor.Load() == id {
			s.view.Refresh()
		}
	}
}

// Viewers reports live sessions on a monitor and the estimated number of
// distinct clients that have watched it since start.
type Viewers struct {
	MonitorID int64  `json:"monitor_id"`
	Live      int    `json:"live"`
	Unique    uint64 `json:"unique_viewers"`
}

// Count returns the viewer figures for id.
func (l *Live) Count(id int64) Viewers {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := Viewers{MonitorID: id}
	for _, s := range l.sessions {
		if s.monitor.Load() == id {
			v.Live++
		}
	}
	if sk, ok := l.viewers[id]; ok {
		v.Unique = sk.Estimate()
	}
	return v
}

// Forget drops viewer statistics of a deleted monitor.
func (l *Live) Forget(id int64) {
	l.mu.Lock()
	delete(l.viewers, id)
	l.mu.Unlock()
}

// HandleViewers returns live and distinct viewer counts for a monitor
func (l *Live) HandleViewers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorID(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, l.Count(id))
	}
}
