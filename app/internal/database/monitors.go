package database

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"monitorchart/app/internal/models"
)

const monitorColumns = `id, name, url, interval_sec, timeout_sec, expected_min, expected_max,
	is_paused, is_active, tags, sla_target_pct`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row rowScanner) (*models.Monitor, error) {
	var m models.Monitor
	var paused, active int
	var tags string
	err := row.Scan(&m.ID, &m.Name, &m.URL, &m.IntervalSec, &m.TimeoutSec, &m.ExpectedMin, &m.ExpectedMax,
		&paused, &active, &tags, &m.SLATargetPct)
	if err != nil {
		return nil, err
	}
	m.IsPaused = paused != 0
	m.IsActive = active != 0
	m.Tags = splitTags(tags)
	return &m, nil
}

func splitTags(s string) []string {
	out := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// CreateMonitor inserts a monitor and returns its id
func CreateMonitor(m *models.Monitor) (int64, error) {
	if m.IntervalSec <= 0 {
		m.IntervalSec = 60
	}
	if m.TimeoutSec <= 0 {
		m.TimeoutSec = 5
	}
	if m.ExpectedMin == 0 && m.ExpectedMax == 0 {
		m.ExpectedMin, m.ExpectedMax = 200, 399
	}
	res, err := DB.Exec(`INSERT INTO monitors (name, url, interval_sec, timeout_sec, expected_min, expected_max,
		is_paused, is_active, tags, sla_target_pct, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Name, m.URL, m.IntervalSec, m.TimeoutSec, m.ExpectedMin, m.ExpectedMax,
		boolInt(m.IsPaused), boolInt(m.IsActive), strings.Join(m.Tags, ","), m.SLATargetPct,
		formatTS(time.Now()))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	m.ID = id
	return id, nil
}

// UpsertMonitor creates the monitor or updates url and interval of the one
// with the same name. Used to seed monitors from configuration.
func UpsertMonitor(m *models.Monitor) (int64, error) {
	existing, err := GetMonitorByName(m.Name)
	if errors.Is(err, ErrNotFound) {
		return CreateMonitor(m)
	}
	if err != nil {
		return 0, err
	}
	interval := m.IntervalSec
	if interval <= 0 {
		interval = existing.IntervalSec
	}
	_, err = DB.Exec(`UPDATE monitors SET url = ?, interval_sec = ?, updated_at = ? WHERE id = ?`,
		m.URL, interval, formatTS(time.Now()), existing.ID)
	if err != nil {
		return 0, err
	}
	m.ID = existing.ID
	return existing.ID, nil
}

// GetMonitor returns a monitor by id, or ErrNotFound
func GetMonitor(id int64) (*models.Monitor, error) {
	m, err := scanMonitor(DB.QueryRow(`SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

// GetMonitorByName returns a monitor by its unique name, or ErrNotFound
func GetMonitorByName(name string) (*models.Monitor, error) {
	m, err := scanMonitor(DB.QueryRow(`SELECT `+monitorColumns+` FROM monitors WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

// GetAllMonitors returns every monitor ordered by id
func GetAllMonitors() ([]models.Monitor, error) {
	rows, err := DB.Query(`SELECT ` + monitorColumns + ` FROM monitors ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var monitors []models.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, *m)
	}
	return monitors, rows.Err()
}

func updateFlag(id int64, column string, value bool) error {
	res, err := DB.Exec(`UPDATE monitors SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		boolInt(value), formatTS(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPaused pauses or resumes checks for a monitor
func SetPaused(id int64, paused bool) error { return updateFlag(id, "is_paused", paused) }

// SetActive enables or disables a monitor
func SetActive(id int64, active bool) error { return updateFlag(id, "is_active", active) }

// SetMaintenance toggles the maintenance window flag
func SetMaintenance(id int64, on bool) error { return updateFlag(id, "maintenance", on) }

// IsMaintenance reports whether the monitor is in a maintenance window
func IsMaintenance(id int64) (bool, error) {
	var on int
	err := DB.QueryRow(`SELECT maintenance FROM monitors WHERE id = ?`, id).Scan(&on)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	return on != 0, err
}

// SetInterval changes the check cadence of a monitor
func SetInterval(id int64, seconds int) error {
	res, err := DB.Exec(`UPDATE monitors SET interval_sec = ?, updated_at = ? WHERE id = ?`,
		seconds, formatTS(time.Now()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMonitor removes a monitor together with its samples and events
func DeleteMonitor(id int64) error {
	tx, err := DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM monitors WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec(`DELETE FROM samples WHERE monitor_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM events WHERE monitor_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
