package models

// Monitor is the descriptor served at GET monitor/{id}
type Monitor struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	URL          string   `json:"url"`
	IntervalSec  int      `json:"interval_sec"`
	IsPaused     bool     `json:"is_paused"`
	IsActive     bool     `json:"is_active"`
	Tags         []string `json:"tags"`
	SLATargetPct float64  `json:"sla_target_pct"`
	// Not part of the wire contract, used by the collector only.
	TimeoutSec  int `json:"-"`
	ExpectedMin int `json:"-"`
	ExpectedMax int `json:"-"`
}

// Status values reported in MonitorState
const (
	StatusUp          = "up"
	StatusDown        = "down"
	StatusPaused      = "paused"
	StatusMaintenance = "maintenance"
	StatusUnknown     = "unknown"
)

// MonitorState is the roll-up served at GET monitor/{id}/state
type MonitorState struct {
	Status            string   `json:"status"`
	LastCheckedAt     string   `json:"last_checked_at,omitempty"`
	LastStatusCode    *int     `json:"last_status_code"`
	LastError         string   `json:"last_error,omitempty"`
	LastLatencyMs     *int     `json:"last_latency_ms"`
	AvgLatency24h     *float64 `json:"avg_latency_24h"`
	Uptime24h         *float64 `json:"uptime_24h"`
	Uptime30d         *float64 `json:"uptime_30d"`
	MaintenanceActive bool     `json:"maintenance_active"`
}

// Sample is one check result on the wire. Ts stays a string so a client
// can drop malformed timestamps instead of failing the whole response.
type Sample struct {
	Ts         string `json:"ts"`
	OK         bool   `json:"ok"`
	LatencyMs  int    `json:"latency_ms"`
	StatusCode *int   `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Metrics is the body of GET monitor/{id}/metrics
type Metrics struct {
	Items []Sample `json:"items"`
	From  string   `json:"from"`
	To    string   `json:"to"`
}

// Event kinds
const (
	EventUp          = "up"
	EventDown        = "down"
	EventMaintenance = "maintenance"
	EventTLSExpiring = "tls-expiring"
)

// Event is a status change or notable condition for a monitor
type Event struct {
	ID        string `json:"id"`
	MonitorID int64  `json:"monitor_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// Events is the body of GET monitor/{id}/events
type Events struct {
	Items []Event `json:"items"`
}

// APIError is the JSON body returned with non-2xx responses
type APIError struct {
	Error string `json:"error"`
}
