package database

import (
	"errors"
	"testing"
	"time"

	"monitorchart/app/internal/models"
)

func initTestDB(t *testing.T) {
	t.Helper()
	if err := Init(":memory:"); err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
}

func sampleMonitor(name string) *models.Monitor {
	return &models.Monitor{
		Name:        name,
		URL:         "http://example.com/" + name,
		IntervalSec: 30,
		IsActive:    true,
		Tags:        []string{"prod", "web"},
	}
}

// --------------- Init / EnsureSchema ---------------

func TestInit_InMemory(t *testing.T) {
	if err := Init(":memory:"); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if DB == nil {
		t.Fatal("DB should be non-nil after Init")
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	initTestDB(t)
	if err := EnsureSchema(); err != nil {
		t.Fatalf("second EnsureSchema call failed: %v", err)
	}
}

// --------------- Monitors ---------------

func TestCreateMonitor(t *testing.T) {
	initTestDB(t)
	id, err := CreateMonitor(sampleMonitor("api"))
	if err != nil {
		t.Fatalf("CreateMonitor: %v", err)
	}
	if id <= 0 {
		t.Errorf("expected positive id, got %d", id)
	}
}

func TestCreateMonitor_DuplicateName(t *testing.T) {
	initTestDB(t)
	if _, err := CreateMonitor(sampleMonitor("api")); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateMonitor(sampleMonitor("api")); err == nil {
		t.Error("expected error for duplicate name")
	}
}

func TestCreateMonitor_Defaults(t *testing.T) {
	initTestDB(t)
	id, _ := CreateMonitor(&models.Monitor{Name: "bare", URL: "http://x", IsActive: true})
	m, err := GetMonitor(id)
	if err != nil {
		t.Fatal(err)
	}
	if m.IntervalSec != 60 || m.TimeoutSec != 5 {
		t.Errorf("interval/timeout = %d/%d, want 60/5", m.IntervalSec, m.TimeoutSec)
	}
	if m.ExpectedMin != 200 || m.ExpectedMax != 399 {
		t.Errorf("expected range = %d-%d", m.ExpectedMin, m.ExpectedMax)
	}
	if len(m.Tags) != 0 {
		t.Errorf("tags = %v, want empty", m.Tags)
	}
}

func TestGetMonitor(t *testing.T) {
	initTestDB(t)
	id, _ := CreateMonitor(sampleMonitor("api"))
	m, err := GetMonitor(id)
	if err != nil {
		t.Fatalf("GetMonitor: %v", err)
	}
	if m.Name != "api" || m.IntervalSec != 30 || !m.IsActive || m.IsPaused {
		t.Errorf("monitor = %+v", m)
	}
	if len(m.Tags) != 2 || m.Tags[0] != "prod" {
		t.Errorf("tags = %v", m.Tags)
	}
}

func TestGetMonitor_NotFound(t *testing.T) {
	initTestDB(t)
	if _, err := GetMonitor(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetAllMonitors(t *testing.T) {
	initTestDB(t)
	CreateMonitor(sampleMonitor("a"))
	CreateMonitor(sampleMonitor("b"))
	all, err := GetAllMonitors()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Name != "a" || all[1].Name != "b" {
		t.Errorf("monitors = %+v", all)
	}
}

func TestUpsertMonitor_UpdatesExisting(t *testing.T) {
	initTestDB(t)
	id, _ := CreateMonitor(sampleMonitor("api"))
	got, err := UpsertMonitor(&models.Monitor{Name: "api", URL: "http://new", IntervalSec: 10, IsActive: true})
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Errorf("upsert id = %d, want %d", got, id)
	}
	m, _ := GetMonitor(id)
	if m.URL != "http://new" || m.IntervalSec != 10 {
		t.Errorf("monitor not updated: %+v", m)
	}
}

func TestSetPaused(t *testing.T) {
	initTestDB(t)
	id, _ := CreateMonitor(sampleMonitor("api"))
	if err := SetPaused(id, true); err != nil {
		t.Fatal(err)
	}
	m, _ := GetMonitor(id)
	if !m.IsPaused {
		t.Error("expected paused")
	}
	SetPaused(id, false)
	m, _ = GetMonitor(id)
	if m.IsPaused {
		t.Error("expected resumed")
	}
}

func TestSetPaused_NotFound(t *testing.T) {
	initTestDB(t)
	if err := SetPaused(42, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetMaintenance(t *testing.T) {
	initTestDB(t)
	id, _ := CreateMonitor(sampleMonitor("api"))
	SetMaintenance(id, true)
	on, err := IsMaintenance(id)
	if err != nil || !on {
		t.Errorf("maintenance = %v, %v", on, err)
	}
}

func TestDeleteMonitor_RemovesSamplesAndEvents(t *testing.T) {
	initTestDB(t)
	id, _ := CreateMonitor(sampleMonitor("api"))
	ms := 10
	InsertSample(time.Now(), id, true, 200, &ms, "")
	InsertEvent(id, models.EventUp, "up", time.Now())

	if err := DeleteMonitor(id); err != nil {
		t.Fatal(err)
	}
	if _, err := GetMonitor(id); !errors.Is(err, ErrNotFound) {
		t.Error("monitor should be gone")
	}
	var n int
	DB.QueryRow(`SELECT COUNT(*) FROM samples WHERE monitor_id = ?`, id).Scan(&n)
	if n != 0 {
		t.Errorf("samples left: %d", n)
	}
	DB.QueryRow(`SELECT COUNT(*) FROM events WHERE monitor_id = ?`, id).Scan(&n)
	if n != 0 {
		t.Errorf("events left: %d", n)
	}
}

func TestDeleteMonitor_NonExistent(t *testing.T) {
	initTestDB(t)
	if err := DeleteMonitor(12345); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// --------------- Samples ---------------

func TestInsertSample_AndGetSamples(t *testing.T) {
	initTestDB(t)
	id, _ := CreateMonitor(sampleMonitor("api"))
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ms := 42
	InsertSample(base.Add(2*time.Minute), id, true, 200, &ms, "")
	InsertSample(base, id, false, 0, nil, "connection refused")
	InsertSample(base.Add(-time.Hour), id, true, 200, &ms, "")

	items, err := GetSamples(id, base.Add(-time.Minute), base.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 samples in window, got %d", len(items))
	}
	if items[0].OK || items[0].StatusCode != nil || items[0].Error != "connection refused" {
		t.Errorf("first sample = %+v", items[0])
	}
	if !items[1].OK || items[1].LatencyMs != 42 || items[1].StatusCode == nil || *items[1].StatusCode != 200 {
		t.Errorf("second sample = %+v", items[1])
	}
	if items[0].Ts != "2024-05-01T12:00:00Z" {
		t.Errorf("ts = %q", items[0].Ts)
	}
}

func TestGetSamples_EmptyIsNotNil(t *testing.T) {
	initTestDB(t)
	items, err := GetSamples(1, time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if items == nil {
		t.Error("expected empty slice so JSON encodes []")
	}
}

func TestLastSample(t *testing.T) {
	initTestDB(t)
	id, _ := CreateMonitor(sampleMonitor("api"))
	if _, ok, _ := LastSample(id); ok {
		t.Error("no samples yet")
	}
	base := time.Now().UTC()
	a, b := 10, 20
	InsertSample(base.Add(-time.Minute), id, true, 200, &a, "")
	InsertSample(base, id, true, 200, &b, "")
	s, ok, err := LastSample(id)
	if err != nil || !ok || s.LatencyMs != 20 {
		t.Errorf("last = %+v ok=%v err=%v", s, ok, err)
	}
}

func TestSampleStats(t *testing.T) {
	initTestDB(t)
	id, _ := CreateMonitor(sampleMonitor("api"))
	now := time.Now()
	a, b := 10, 30
	InsertSample(now, id, true, 200, &a, "")
	InsertSample(now, id, true, 200, &b, "")
	InsertSample(now, id, false, 500, nil, "")
	st, err := SampleStats(id, now.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 3 || st.Up != 2 {
		t.Errorf("total/up = %d/%d", st.Total, st.Up)
	}
	if !st.AvgLatency.Valid || st.AvgLatency.Float64 != 20 {
		t.Errorf("avg = %+v, want 20", st.AvgLatency)
	}
}

func TestDeleteSamplesBefore(t *testing.T) {
	initTestDB(t)
	id, _ := CreateMonitor(sampleMonitor("api"))
	now := time.Now()
	InsertSample(now.Add(-40*24*time.Hour), id, true, 200, nil, "")
	InsertSample(now, id, true, 200, nil, "")
	n, err := DeleteSamplesBefore(now.Add(-30 * 24 * time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
}

// --------------- Events ---------------

func TestInsertEvent_AndGetEvents(t *testing.T) {
	initTestDB(t)
	id, _ := CreateMonitor(sampleMonitor("api"))
	now := time.Now().UTC().Truncate(time.Second)
	ev, err := InsertEvent(id, models.EventDown, "went down", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID == "" {
		t.Error("event id should be assigned")
	}
	InsertEvent(id, models.EventUp, "back up", now)
	InsertEvent(id, models.EventUp, "ancient", now.Add(-48*time.Hour))

	items, err := GetEvents(id, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 events, got %d", len(items))
	}
	if items[0].Kind != models.EventUp {
		t.Errorf("events should be newest first, got %q", items[0].Kind)
	}
}

func TestLastEventOfKind(t *testing.T) {
	initTestDB(t)
	id, _ := CreateMonitor(sampleMonitor("api"))
	at, err := LastEventOfKind(id, models.EventTLSExpiring)
	if err != nil || !at.IsZero() {
		t.Errorf("expected zero time, got %v %v", at, err)
	}
	when := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	InsertEvent(id, models.EventTLSExpiring, "cert", when)
	at, _ = LastEventOfKind(id, models.EventTLSExpiring)
	if !at.Equal(when) {
		t.Errorf("at = %v, want %v", at, when)
	}
}
