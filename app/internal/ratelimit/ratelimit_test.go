package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time { return f.t }

func newTestLimiter(perMin, burst int) (*Limiter, *fakeNow) {
	l := New(Config{PerMinute: perMin, Burst: burst, Message: "slow down"})
	clock := &fakeNow{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l.now = clock.now
	return l, clock
}

func TestNew_DefaultBurst(t *testing.T) {
	l := New(Config{PerMinute: 10})
	defer l.Stop()
	if l.burst != 10 {
		t.Errorf("burst = %v, want 10", l.burst)
	}
}

func TestAllow_WithinBurst(t *testing.T) {
	l, _ := newTestLimiter(10, 10)
	defer l.Stop()
	for i := 0; i < 10; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Error("request over burst should be denied")
	}
}

func TestAllow_DifferentKeys(t *testing.T) {
	l, _ := newTestLimiter(2, 2)
	defer l.Stop()
	l.Allow("ip1")
	l.Allow("ip1")
	if !l.Allow("ip2") {
		t.Error("different key should have its own bucket")
	}
	if l.Allow("ip1") {
		t.Error("ip1 should be limited")
	}
}

func TestAllow_Refills(t *testing.T) {
	l, clock := newTestLimiter(60, 1)
	defer l.Stop()
	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("bucket should be empty")
	}
	clock.t = clock.t.Add(time.Second)
	if !l.Allow("k") {
		t.Error("one token should refill after a second at 60/min")
	}
}

func TestRemaining(t *testing.T) {
	l, _ := newTestLimiter(10, 5)
	defer l.Stop()
	if got := l.Remaining("new"); got != 5 {
		t.Errorf("remaining = %d, want 5", got)
	}
	l.Allow("new")
	if got := l.Remaining("new"); got != 4 {
		t.Errorf("remaining = %d, want 4", got)
	}
}

func TestRetryAfter(t *testing.T) {
	l, _ := newTestLimiter(60, 1)
	defer l.Stop()
	if d := l.RetryAfter("k"); d != 0 {
		t.Errorf("retry after = %v, want 0", d)
	}
	l.Allow("k")
	if d := l.RetryAfter("k"); d != time.Second {
		t.Errorf("retry after = %v, want 1s", d)
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	defer l.Stop()
	l.Allow("k")
	l.Reset("k")
	if !l.Allow("k") {
		t.Error("reset key should start with a full bucket")
	}
}

func TestPrune(t *testing.T) {
	l, clock := newTestLimiter(1, 1)
	defer l.Stop()
	l.Allow("old")
	clock.t = clock.t.Add(11 * time.Minute)
	l.Allow("fresh")
	l.prune()
	if _, ok := l.buckets["old"]; ok {
		t.Error("idle bucket should be pruned")
	}
	if _, ok := l.buckets["fresh"]; !ok {
		t.Error("fresh bucket should stay")
	}
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	defer l.Stop()
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.9:1234"
	if ip := ClientIP(req); ip != "192.168.1.9" {
		t.Errorf("ip = %q", ip)
	}
	req.RemoteAddr = "nohost"
	if ip := ClientIP(req); ip != "nohost" {
		t.Errorf("ip = %q", ip)
	}
}
