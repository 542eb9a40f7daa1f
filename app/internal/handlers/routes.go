package handlers

import (
	"net/http"

	"monitorchart/app/internal/auth"
	"monitorchart/app/internal/ratelimit"
)

// Deps are the shared services behind the routes.
type Deps struct {
	Admin  *auth.Admin
	Charts *Charts
	Live   *Live
	// Hover limits hover lookups per client IP
	Hover *ratelimit.Limiter
}

// SetupRoutes configures all HTTP routes and middlewares
func SetupRoutes(d Deps) http.Handler {
	actions := &Actions{live: d.Live, charts: d.Charts}
	mux := http.NewServeMux()

	// Store API
	mux.HandleFunc("GET /api/monitors", HandleListMonitors())
	mux.HandleFunc("GET /api/monitor/{id}", HandleMonitor())
	mux.HandleFunc("GET /api/monitor/{id}/state", HandleState())
	mux.HandleFunc("GET /api/monitor/{id}/metrics", HandleMetrics())
	mux.HandleFunc("GET /api/monitor/{id}/events", HandleEvents())

	// Charts
	mux.HandleFunc("GET /api/monitor/{id}/chart.svg", d.Charts.HandleChart("svg"))
	mux.HandleFunc("GET /api/monitor/{id}/chart.png", d.Charts.HandleChart("png"))
	mux.Handle("GET /api/monitor/{id}/hover", d.Hover.Middleware(d.Charts.HandleHover()))
	mux.HandleFunc("GET /api/monitor/{id}/live", d.Live.HandleLive())
	mux.HandleFunc("GET /api/monitor/{id}/viewers", d.Live.HandleViewers())

	// Action bar
	mux.HandleFunc("POST /api/monitor/{id}/pause", d.Admin.RequireAdmin(actions.HandleSetPaused(true)))
	mux.HandleFunc("POST /api/monitor/{id}/resume", d.Admin.RequireAdmin(actions.HandleSetPaused(false)))
	mux.HandleFunc("POST /api/monitor/{id}/maintenance", d.Admin.RequireAdmin(actions.HandleMaintenance()))
	mux.HandleFunc("DELETE /api/monitor/{id}", d.Admin.RequireAdmin(actions.HandleDelete()))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return GzipMiddleware(mux)
}
