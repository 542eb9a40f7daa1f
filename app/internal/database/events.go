package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"monitorchart/app/internal/models"
)

// InsertEvent records an event for a monitor and returns it
func InsertEvent(monitorID int64, kind, message string, at time.Time) (models.Event, error) {
	ev := models.Event{
		ID:        uuid.NewString(),
		MonitorID: monitorID,
		Kind:      kind,
		Message:   message,
		CreatedAt: formatTS(at),
	}
	_, err := DB.Exec(`INSERT INTO events (id, monitor_id, kind, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.MonitorID, ev.Kind, ev.Message, ev.CreatedAt)
	return ev, err
}

// GetEvents returns events for a monitor in [from, to], newest first
func GetEvents(monitorID int64, from, to time.Time) ([]models.Event, error) {
	rows, err := DB.Query(`
		SELECT id, monitor_id, kind, message, created_at
		FROM events
		WHERE monitor_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at DESC`,
		monitorID, formatTS(from), formatTS(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Event{}
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.MonitorID, &ev.Kind, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, ev)
	}
	return items, rows.Err()
}

// LastEventOfKind returns when the latest event of kind was recorded for a
// monitor. The zero time means none.
func LastEventOfKind(monitorID int64, kind string) (time.Time, error) {
	var created string
	err := DB.QueryRow(`SELECT created_at FROM events WHERE monitor_id = ? AND kind = ?
		ORDER BY created_at DESC LIMIT 1`, monitorID, kind).Scan(&created)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(tsLayout, created)
}

// DeleteEventsBefore removes events older than cutoff
func DeleteEventsBefore(cutoff time.Time) (int64, error) {
	res, err := DB.Exec(`DELETE FROM events WHERE created_at < ?`, formatTS(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
