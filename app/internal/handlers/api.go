package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"monitorchart/app/internal/database"
	"monitorchart/app/internal/models"
	"monitorchart/app/internal/series"
	"monitorchart/app/internal/stats"
	"monitorchart/app/internal/store"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, models.APIError{Error: msg})
}

// monitorID parses the {id} path value, answering 400 itself when invalid.
func monitorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid monitor id")
		return 0, false
	}
	return id, true
}

// rangeParam parses ?range=, answering 400 itself when unknown.
func rangeParam(w http.ResponseWriter, r *http.Request) (series.Range, bool) {
	rng, err := series.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return rng, true
}

// storeError maps a lookup error onto a response.
func storeError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, database.ErrNotFound) || errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return
	}
	log.Printf("Error loading %s: %v", what, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// HandleListMonitors returns every monitor
func HandleListMonitors() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		monitors, err := database.GetAllMonitors()
		if err != nil {
			storeError(w, err, "monitors")
			return
		}
		if monitors == nil {
			monitors = []models.Monitor{}
		}
		writeJSON(w, http.StatusOK, monitors)
	}
}

// HandleMonitor returns one monitor descriptor
func HandleMonitor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorID(w, r)
		if !ok {
			return
		}
		m, err := database.GetMonitor(id)
		if err != nil {
			storeError(w, err, "monitor")
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// HandleState returns the status roll-up of a monitor
func HandleState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorID(w, r)
		if !ok {
			return
		}
		m, err := database.GetMonitor(id)
		if err != nil {
			storeError(w, err, "monitor")
			return
		}
		st, err := stats.GetState(m)
		if err != nil {
			storeError(w, err, "state")
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// HandleMetrics returns raw samples for ?range=
func HandleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorID(w, r)
		if !ok {
			return
		}
		rng, ok := rangeParam(w, r)
		if !ok {
			return
		}
		body, err := store.MetricsBody(id, rng, time.Now())
		if err != nil {
			storeError(w, err, "metrics")
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// HandleEvents returns status-change events for ?range=, newest first
func HandleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := monitorID(w, r)
		if !ok {
			return
		}
		rng, ok := rangeParam(w, r)
		if !ok {
			return
		}
		if _, err := database.GetMonitor(id); err != nil {
			storeError(w, err, "monitor")
			return
		}
		from, to := rng.Window(time.Now())
		items, err := database.GetEvents(id, from, to)
		if err != nil {
			storeError(w, err, "events")
			return
		}
		writeJSON(w, http.StatusOK, models.Events{Items: items})
	}
}
