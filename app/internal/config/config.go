package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port            string
	DBPath          string
	EnableCollector bool
	CollectorTick   time.Duration

	// Chart views. An empty StoreBaseURL reads the local database.
	StoreBaseURL string
	RefreshFloor time.Duration
	RefreshCeil  time.Duration
	ChartWidth   int
	ChartHeight  int
	FetchTimeout time.Duration
	HoverPerMin  int

	// AllowedOrigins may open live views besides the serving host.
	AllowedOrigins []string

	// Action endpoints (pause/resume/delete). Nil disables them.
	AdminHash []byte

	// Monitors seeded at startup
	Monitors []MonitorSeed
}

// MonitorSeed is one entry of MONITORS.
type MonitorSeed struct {
	Name        string
	URL         string
	IntervalSec int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getenv("PORT", "4555"),
		DBPath:          getenv("DB_PATH", "./monitorchart.db"),
		EnableCollector: envBool("ENABLE_COLLECTOR", true),
		CollectorTick:   envDurSecs("COLLECTOR_TICK_SECS", 1),
		StoreBaseURL:    strings.TrimSuffix(getenv("STORE_BASE_URL", ""), "/"),
		RefreshFloor:    envDurMillis("REFRESH_FLOOR_MS", 3000),
		RefreshCeil:     envDurMillis("REFRESH_CEILING_MS", 60000),
		ChartWidth:      envInt("CHART_WIDTH", 800),
		ChartHeight:     envInt("CHART_HEIGHT", 240),
		FetchTimeout:    envDurSecs("FETCH_TIMEOUT_SECS", 10),
		HoverPerMin:     envInt("HOVER_RATE_PER_MIN", 600),
	}
	for _, o := range strings.Split(getenv("ALLOWED_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}
	if cfg.RefreshCeil < cfg.RefreshFloor {
		return nil, fmt.Errorf("REFRESH_CEILING_MS (%v) is below REFRESH_FLOOR_MS (%v)", cfg.RefreshCeil, cfg.RefreshFloor)
	}

	if h := getenv("ADMIN_TOKEN_BCRYPT", ""); h != "" {
		cfg.AdminHash = []byte(h)
	} else if tok := getenv("ADMIN_TOKEN", ""); tok != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(tok), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		cfg.AdminHash = h
	}

	seeds, err := ParseMonitors(getenv("MONITORS", ""))
	if err != nil {
		return nil, err
	}
	cfg.Monitors = seeds
	return cfg, nil
}

// ParseMonitors parses "name=url@interval,..." where the interval in
// seconds is optional.
func ParseMonitors(s string) ([]MonitorSeed, error) {
	var out []MonitorSeed
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rest, ok := strings.Cut(entry, "=")
		name, rest = strings.TrimSpace(name), strings.TrimSpace(rest)
		if !ok || name == "" || rest == "" {
			return nil, fmt.Errorf("invalid MONITORS entry %q, want name=url@interval", entry)
		}
		seed := MonitorSeed{Name: name, URL: rest}
		// URLs may carry userinfo, so only a numeric suffix is an interval.
		if i := strings.LastIndex(rest, "@"); i > 0 {
			if n, err := strconv.Atoi(rest[i+1:]); err == nil {
				if n <= 0 {
					return nil, fmt.Errorf("invalid interval in MONITORS entry %q", entry)
				}
				seed.URL, seed.IntervalSec = rest[:i], n
			}
		}
		out = append(out, seed)
	}
	return out, nil
}

// Helper functions
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	v := strings.ToLower(getenv(k, ""))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func envDurSecs(k string, def int) time.Duration {
	return time.Duration(envInt(k, def)) * time.Second
}

func envDurMillis(k string, def int) time.Duration {
	return time.Duration(envInt(k, def)) * time.Millisecond
}
