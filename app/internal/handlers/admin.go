package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"monitorchart/app/internal/database"
	"monitorchart/app/internal/refresh"
	"monitorchart/app/internal/stats"
)

// Actions are the pause, resume, maintenance and delete endpoints of the
// detail view's action bar. Every change is pushed to open live views.
type Actions struct {
	live   *Live
	charts *Charts
}

func (a *Actions) changed(id int64) {
	stats.Invalidate(id)
	a.charts.Invalidate(id)
	m, err := database.GetMonitor(id)
	if err != nil {
		a.live.Refresh(id)
		return
	}
	a.live.Reconfigure(refresh.Target{
		MonitorID:   m.ID,
		IntervalSec: m.IntervalSec,
		Paused:      m.IsPaused,
		Active:      m.IsActive,
	})
}

// HandleSetPaused pauses or resumes checks and chart refresh for a monitor
func (a *Actions) HandleSetPaused(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorID(w, r)
		if !ok {
			return
		}
		if err := database.SetPaused(id, paused); err != nil {
			storeError(w, err, "monitor")
			return
		}
		log.Printf("Monitor %d paused=%v", id, paused)
		a.changed(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

type maintenanceRequest struct {
	Active bool `json:"active"`
}

// HandleMaintenance toggles the maintenance window of a monitor
func (a *Actions) HandleMaintenance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorID(w, r)
		if !ok {
			return
		}
		var req maintenanceRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		m, err := database.GetMonitor(id)
		if err != nil {
			storeError(w, err, "monitor")
			return
		}
		if err := stats.SetMaintenance(m, req.Active, time.Now()); err != nil {
			storeError(w, err, "maintenance")
			return
		}
		a.changed(id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleDelete removes a monitor with its history. Open views see it as
// not found on their next fetch, which is forced immediately.
func (a *Actions) HandleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorID(w, r)
		if !ok {
			return
		}
		if err := database.DeleteMonitor(id); err != nil {
			storeError(w, err, "monitor")
			return
		}
		log.Printf("Monitor %d deleted", id)
		stats.Forget(id)
		a.live.Forget(id)
		a.changed(id)
		w.WriteHeader(http.StatusNoContent)
	}
}
