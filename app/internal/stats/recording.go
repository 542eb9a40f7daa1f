package stats

import (
	"fmt"
	"log"
	"sync"
	"time"

	"monitorchart/app/internal/cache"
	"monitorchart/app/internal/checker"
	"monitorchart/app/internal/database"
	"monitorchart/app/internal/models"
)

// TLSWarnWindow is how far ahead of certificate expiry a tls-expiring
// event is raised.
const TLSWarnWindow = 14 * 24 * time.Hour

var (
	lastStatus = make(map[int64]bool)
	statusMu   sync.Mutex
)

// Forget drops the remembered status of a deleted monitor
func Forget(monitorID int64) {
	statusMu.Lock()
	defer statusMu.Unlock()
	delete(lastStatus, monitorID)
}

// transition remembers ok for the monitor and reports whether it differs
// from the previous result. The first result of a monitor with no history
// counts as a transition.
func transition(monitorID int64, ok bool) bool {
	statusMu.Lock()
	defer statusMu.Unlock()

	prev, known := lastStatus[monitorID]
	if !known {
		if s, found, err := database.LastSample(monitorID); err == nil && found {
			prev, known = s.OK, true
		}
	}
	lastStatus[monitorID] = ok
	return !known || prev != ok
}

// Record stores a probe result as a sample and raises up/down and
// tls-expiring events.
func Record(m *models.Monitor, res checker.Result, at time.Time) {
	errMsg := checker.SanitizeError(res.Err)
	changed := transition(m.ID, res.OK)

	if err := database.InsertSample(at, m.ID, res.OK, res.Code, res.MS, errMsg); err != nil {
		log.Printf("Error recording sample for monitor %d: %v", m.ID, err)
		return
	}
	Invalidate(m.ID)

	if changed {
		kind, msg := models.EventUp, fmt.Sprintf("%s is up", m.Name)
		if !res.OK {
			kind, msg = models.EventDown, fmt.Sprintf("%s is down", m.Name)
			if errMsg != "" {
				msg += ": " + errMsg
			}
		}
		if _, err := database.InsertEvent(m.ID, kind, msg, at); err != nil {
			log.Printf("Error recording event for monitor %d: %v", m.ID, err)
		}
	}

	if !res.CertExpiry.IsZero() && res.CertExpiry.Sub(at) < TLSWarnWindow {
		recordTLSExpiring(m, res.CertExpiry, at)
	}
}

// recordTLSExpiring raises at most one tls-expiring event per day
func recordTLSExpiring(m *models.Monitor, expiry, at time.Time) {
	last, err := database.LastEventOfKind(m.ID, models.EventTLSExpiring)
	if err != nil {
		log.Printf("Error reading events for monitor %d: %v", m.ID, err)
		return
	}
	if !last.IsZero() && at.Sub(last) < 24*time.Hour {
		return
	}
	days := int(expiry.Sub(at).Hours() / 24)
	msg := fmt.Sprintf("%s certificate expires in %d days (%s)", m.Name, days, expiry.UTC().Format("2006-01-02"))
	if _, err := database.InsertEvent(m.ID, models.EventTLSExpiring, msg, at); err != nil {
		log.Printf("Error recording event for monitor %d: %v", m.ID, err)
	}
}

// SetMaintenance toggles the maintenance flag and records a maintenance
// event when it changes.
func SetMaintenance(m *models.Monitor, on bool, at time.Time) error {
	was, err := database.IsMaintenance(m.ID)
	if err != nil {
		return err
	}
	if was == on {
		return nil
	}
	if err := database.SetMaintenance(m.ID, on); err != nil {
		return err
	}
	msg := fmt.Sprintf("%s maintenance ended", m.Name)
	if on {
		msg = fmt.Sprintf("%s maintenance started", m.Name)
	}
	if _, err := database.InsertEvent(m.ID, models.EventMaintenance, msg, at); err != nil {
		return err
	}
	Invalidate(m.ID)
	return nil
}

func stateKey(monitorID int64) string { return fmt.Sprintf("state:%d", monitorID) }

// Invalidate drops the cached state roll-up of a monitor
func Invalidate(monitorID int64) {
	cache.StateCache.Delete(stateKey(monitorID))
}
