package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"monitorchart/app/internal/auth"
	"monitorchart/app/internal/config"
	"monitorchart/app/internal/database"
	"monitorchart/app/internal/handlers"
	"monitorchart/app/internal/models"
	"monitorchart/app/internal/monitor"
	"monitorchart/app/internal/ratelimit"
	"monitorchart/app/internal/refresh"
	"monitorchart/app/internal/stats"
	"monitorchart/app/internal/store"
	"monitorchart/app/internal/view"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := database.Init(cfg.DBPath); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	seedMonitors(cfg.Monitors)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats.StartRetention(ctx)

	var collector *monitor.Collector
	if cfg.EnableCollector {
		collector = monitor.NewCollector(cfg.CollectorTick)
		go collector.Run(ctx)
		log.Printf("Collector started with %v tick", cfg.CollectorTick)
	}

	src := chartSource(cfg)
	policy := refresh.Policy{Floor: cfg.RefreshFloor, Ceiling: cfg.RefreshCeil}

	admin := auth.NewAdmin(cfg.AdminHash)
	defer admin.Stop()
	if !admin.Enabled() {
		log.Println("ADMIN_TOKEN not set - pause, resume and delete endpoints are disabled")
	}
	charts := handlers.NewCharts(src, cfg.ChartWidth, cfg.ChartHeight, policy.Floor)
	defer charts.Stop()
	hover := ratelimit.New(ratelimit.Config{PerMinute: cfg.HoverPerMin})
	defer hover.Stop()
	live := handlers.NewLive(src, view.Config{
		Policy:       policy,
		Width:        cfg.ChartWidth,
		Height:       cfg.ChartHeight,
		FetchTimeout: cfg.FetchTimeout,
	}, cfg.AllowedOrigins)

	mux := handlers.SetupRoutes(handlers.Deps{Admin: admin, Charts: charts, Live: live, Hover: hover})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handlers.SecureHeaders(mux),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdown); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	if collector != nil {
		collector.Wait()
	}
	log.Println("Server stopped")
}

// chartSource picks where chart views read samples from.
func chartSource(cfg *config.Config) store.Source {
	if cfg.StoreBaseURL == "" {
		return store.NewLocal()
	}
	log.Printf("Reading chart data from %s", cfg.StoreBaseURL)
	return store.NewClient(cfg.StoreBaseURL, cfg.FetchTimeout)
}

// seedMonitors creates or updates the monitors named in MONITORS
func seedMonitors(seeds []config.MonitorSeed) {
	for _, s := range seeds {
		id, err := database.UpsertMonitor(&models.Monitor{
			Name:        s.Name,
			URL:         s.URL,
			IntervalSec: s.IntervalSec,
			IsActive:    true,
		})
		if err != nil {
			log.Printf("Error seeding monitor %q: %v", s.Name, err)
			continue
		}
		log.Printf("Monitor %q ready (id %d)", s.Name, id)
	}
}
