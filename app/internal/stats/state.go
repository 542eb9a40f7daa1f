package stats

import (
	"math"
	"time"

	"monitorchart/app/internal/cache"
	"monitorchart/app/internal/database"
	"monitorchart/app/internal/models"
)

// GetState computes the status roll-up of a monitor, cached for 30s
func GetState(m *models.Monitor) (models.MonitorState, error) {
	if st, ok := cache.StateCache.Get(stateKey(m.ID)); ok {
		return st, nil
	}

	now := time.Now()
	var st models.MonitorState

	maint, err := database.IsMaintenance(m.ID)
	if err != nil {
		return st, err
	}
	st.MaintenanceActive = maint

	last, found, err := database.LastSample(m.ID)
	if err != nil {
		return st, err
	}
	switch {
	case m.IsPaused || !m.IsActive:
		st.Status = models.StatusPaused
	case maint:
		st.Status = models.StatusMaintenance
	case !found:
		st.Status = models.StatusUnknown
	case last.OK:
		st.Status = models.StatusUp
	default:
		st.Status = models.StatusDown
	}
	if found {
		st.LastCheckedAt = last.Ts
		st.LastStatusCode = last.StatusCode
		st.LastError = last.Error
		if last.OK {
			ms := last.LatencyMs
			st.LastLatencyMs = &ms
		}
	}

	day, err := database.SampleStats(m.ID, now.Add(-24*time.Hour))
	if err != nil {
		return st, err
	}
	month, err := database.SampleStats(m.ID, now.Add(-30*24*time.Hour))
	if err != nil {
		return st, err
	}
	st.Uptime24h = uptime(day)
	st.Uptime30d = uptime(month)
	if day.AvgLatency.Valid {
		avg := round2(day.AvgLatency.Float64)
		st.AvgLatency24h = &avg
	}

	cache.StateCache.Set(stateKey(m.ID), st)
	return st, nil
}

// uptime is nil when the window holds no samples
func uptime(w database.WindowStats) *float64 {
	if w.Total == 0 {
		return nil
	}
	pct := round2(float64(w.Up) / float64(w.Total) * 100)
	return &pct
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
