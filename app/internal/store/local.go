package store

import (
	"context"
	"errors"
	"time"

	"monitorchart/app/internal/database"
	"monitorchart/app/internal/models"
	"monitorchart/app/internal/series"
	"monitorchart/app/internal/stats"
)

// Local reads straight from the SQLite store in this process.
type Local struct {
	Now func() time.Time
}

// NewLocal returns a Local source using the wall clock.
func NewLocal() *Local { return &Local{Now: time.Now} }

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Monitors returns every monitor.
func (l *Local) Monitors(ctx context.Context) ([]models.Monitor, error) {
	return database.GetAllMonitors()
}

// Monitor returns the monitor descriptor.
func (l *Local) Monitor(ctx context.Context, id int64) (*models.Monitor, error) {
	m, err := database.GetMonitor(id)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// State returns the status roll-up.
func (l *Local) State(ctx context.Context, id int64) (*models.MonitorState, error) {
	m, err := database.GetMonitor(id)
	if err != nil {
		return nil, notFound(err)
	}
	st, err := stats.GetState(m)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Metrics returns samples in the range's window ending now.
func (l *Local) Metrics(ctx context.Context, id int64, r series.Range) (Metrics, error) {
	now := l.Now()
	body, err := MetricsBody(id, r, now)
	if err != nil {
		return Metrics{}, err
	}
	return decodeMetrics(body, r, now), nil
}

// Events returns status-change events in the range's window.
func (l *Local) Events(ctx context.Context, id int64, r series.Range) ([]models.Event, error) {
	if _, err := database.GetMonitor(id); err != nil {
		return nil, notFound(err)
	}
	from, to := r.Window(l.Now())
	return database.GetEvents(id, from, to)
}

// MetricsBody builds the wire response for a metrics request. The store
// API handler serves it as JSON.
func MetricsBody(id int64, r series.Range, now time.Time) (models.Metrics, error) {
	if _, err := database.GetMonitor(id); err != nil {
		return models.Metrics{}, notFound(err)
	}
	from, to := r.Window(now)
	items, err := database.GetSamples(id, from, to)
	if err != nil {
		return models.Metrics{}, err
	}
	return models.Metrics{
		Items: items,
		From:  from.UTC().Format(time.RFC3339),
		To:    to.UTC().Format(time.RFC3339),
	}, nil
}
