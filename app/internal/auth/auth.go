package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"monitorchart/app/internal/ratelimit"
)

// Admin guards the monitor action endpoints (pause, resume, maintenance,
// delete) with a single bcrypt-hashed token.
type Admin struct {
	Hash []byte
	// failures limits wrong-token attempts per client IP
	failures *ratelimit.Limiter
}

// NewAdmin returns a guard for hash. A nil hash disables the endpoints.
func NewAdmin(hash []byte) *Admin {
	return &Admin{
		Hash: hash,
		failures: ratelimit.New(ratelimit.Config{
			PerMinute: 10,
			Message:   "Too many failed attempts. Please try again later.",
		}),
	}
}

// Enabled reports whether a token is configured.
func (a *Admin) Enabled() bool { return len(a.Hash) > 0 }

// Token extracts the presented token from a Bearer header or X-Admin-Token.
func Token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Admin-Token"))
}

// Check verifies tok against the configured hash.
func (a *Admin) Check(tok string) bool {
	if !a.Enabled() || tok == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.Hash, []byte(tok)) == nil
}

// RequireAdmin is middleware that requires a valid admin token
func (a *Admin) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			writeError(w, http.StatusForbidden, "actions are disabled")
			return
		}
		ip := ratelimit.ClientIP(r)
		if a.failures.Remaining(ip) < 1 {
			writeError(w, http.StatusTooManyRequests, "too many failed attempts")
			return
		}
		if !a.Check(Token(r)) {
			a.failures.Allow(ip)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		a.failures.Reset(ip)
		next(w, r)
	}
}

// Stop releases the limiter goroutine.
func (a *Admin) Stop() { a.failures.Stop() }

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
