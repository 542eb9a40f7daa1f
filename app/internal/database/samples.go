package database

import (
	"database/sql"
	"time"

	"monitorchart/app/internal/models"
)

// InsertSample records a check result. A zero status means no HTTP status
// was received.
func InsertSample(ts time.Time, monitorID int64, ok bool, status int, ms *int, errMsg string) error {
	var statusVal, msVal, errVal any
	if status > 0 {
		statusVal = status
	}
	if ms != nil {
		msVal = *ms
	}
	if errMsg != "" {
		errVal = errMsg
	}
	_, err := DB.Exec(`INSERT INTO samples (monitor_id, taken_at, ok, http_status, latency_ms, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		monitorID, formatTS(ts), boolInt(ok), statusVal, msVal, errVal)
	return err
}

// GetSamples returns samples for a monitor with from <= taken_at <= to,
// oldest first.
func GetSamples(monitorID int64, from, to time.Time) ([]models.Sample, error) {
	rows, err := DB.Query(`
		SELECT taken_at, ok, http_status, latency_ms, error
		FROM samples
		WHERE monitor_id = ? AND taken_at >= ? AND taken_at <= ?
		ORDER BY taken_at ASC, id ASC`,
		monitorID, formatTS(from), formatTS(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Sample{}
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// LastSample returns the most recent sample for a monitor. ok is false
// when the monitor has never been checked.
func LastSample(monitorID int64) (models.Sample, bool, error) {
	s, err := scanSample(DB.QueryRow(`
		SELECT taken_at, ok, http_status, latency_ms, error
		FROM samples WHERE monitor_id = ?
		ORDER BY taken_at DESC, id DESC LIMIT 1`, monitorID))
	if err == sql.ErrNoRows {
		return models.Sample{}, false, nil
	}
	if err != nil {
		return models.Sample{}, false, err
	}
	return s, true, nil
}

func scanSample(row rowScanner) (models.Sample, error) {
	var s models.Sample
	var ok int
	var status, latency sql.NullInt64
	var errMsg sql.NullString
	if err := row.Scan(&s.Ts, &ok, &status, &latency, &errMsg); err != nil {
		return s, err
	}
	s.OK = ok != 0
	if status.Valid {
		code := int(status.Int64)
		s.StatusCode = &code
	}
	if latency.Valid {
		s.LatencyMs = int(latency.Int64)
	}
	s.Error = errMsg.String
	return s, nil
}

// WindowStats is an uptime and latency roll-up over a time window
type WindowStats struct {
	Total      int
	Up         int
	AvgLatency sql.NullFloat64
}

// SampleStats aggregates samples for a monitor since the given time
func SampleStats(monitorID int64, since time.Time) (WindowStats, error) {
	var st WindowStats
	err := DB.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(ok), 0), AVG(CASE WHEN ok = 1 THEN latency_ms END)
		FROM samples
		WHERE monitor_id = ? AND taken_at >= ?`,
		monitorID, formatTS(since)).Scan(&st.Total, &st.Up, &st.AvgLatency)
	return st, err
}

// DeleteSamplesBefore removes samples older than cutoff and returns how
// many were deleted.
func DeleteSamplesBefore(cutoff time.Time) (int64, error) {
	res, err := DB.Exec(`DELETE FROM samples WHERE taken_at < ?`, formatTS(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
