package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/campuspulse/campuspulse/internal/auth"
	"github.com/campuspulse/campuspulse/internal/clock"
	"github.com/campuspulse/campuspulse/internal/model"
)

var t0 = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(clock.NewFake(t0))

	for i := 0; i < 5; i++ {
		if !rl.Allow("key", 5, time.Minute) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	if rl.Allow("key", 5, time.Minute) {
		t.Error("6th request should be denied")
	}
	if !rl.Allow("other", 5, time.Minute) {
		t.Error("other key should be allowed")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	clk := clock.NewFake(t0)
	rl := NewRateLimiter(clk)

	for i := 0; i < 3; i++ {
		rl.Allow("key", 3, 10*time.Second)
	}
	if rl.Allow("key", 3, 10*time.Second) {
		t.Error("should be blocked within window")
	}

	clk.Advance(11 * time.Second)
	if !rl.Allow("key", 3, 10*time.Second) {
		t.Error("should be allowed after window expires")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	clk := clock.NewFake(t0)
	rl := NewRateLimiter(clk)

	rl.Allow("expired", 5, 10*time.Second)
	clk.Advance(15 * time.Second)
	rl.Allow("active", 5, time.Minute)

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.entries["expired"]; ok {
		t.Error("expired entry should have been cleaned up")
	}
	if _, ok := rl.entries["active"]; !ok {
		t.Error("active entry should still exist")
	}
}

func TestRateLimitMiddlewarePerUser(t *testing.T) {
	rl := NewRateLimiter(clock.NewFake(t0))

	handler := RateLimit(rl, UserOrIPKey, 2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(userID int64) int {
		req := httptest.NewRequest("POST", "/api/events/1/register", nil)
		req = req.WithContext(auth.WithAuth(req.Context(), auth.AuthContext{UserID: userID, Role: model.RoleStudent}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := do(1); code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, code, http.StatusOK)
		}
	}
	if code := do(1); code != http.StatusTooManyRequests {
		t.Errorf("3rd request: status = %d, want %d", code, http.StatusTooManyRequests)
	}
	if code := do(2); code != http.StatusOK {
		t.Errorf("other user: status = %d, want %d", code, http.StatusOK)
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if ip := RealIP(req); ip != "10.0.0.1" {
		t.Errorf("RealIP = %q, want %q", ip, "10.0.0.1")
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if ip := RealIP(req); ip != "203.0.113.7" {
		t.Errorf("RealIP = %q, want %q", ip, "203.0.113.7")
	}

	req.Header.Set("CF-Connecting-IP", "198.51.100.2")
	if ip := RealIP(req); ip != "198.51.100.2" {
		t.Errorf("RealIP = %q, want %q", ip, "198.51.100.2")
	}
}
