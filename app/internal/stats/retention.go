package stats

import (
	"context"
	"log"
	"time"

	"monitorchart/app/internal/database"
)

// Retention is how long samples and events are kept
const Retention = 30 * 24 * time.Hour

// Cleanup deletes samples and events older than Retention
func Cleanup(now time.Time) {
	cutoff := now.Add(-Retention)
	n, err := database.DeleteSamplesBefore(cutoff)
	if err != nil {
		log.Printf("Error cleaning up samples: %v", err)
	} else if n > 0 {
		log.Printf("Removed %d samples older than %s", n, cutoff.Format(time.RFC3339))
	}
	if _, err := database.DeleteEventsBefore(cutoff); err != nil {
		log.Printf("Error cleaning up events: %v", err)
	}
}

// StartRetention runs Cleanup every hour until ctx is done
func StartRetention(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				Cleanup(now)
			}
		}
	}()
	log.Println("Retention cleanup started")
}
