package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenBucketExhausts(t *testing.T) {
	tb := NewTokenBucket(3, 1)
	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d denied within capacity", i)
		}
	}
	if tb.Allow() {
		t.Error("request allowed past capacity")
	}
}

func TestRateLimiterIsolatesKeys(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	if !rl.Allow("10.0.0.1") {
		t.Fatal("first key denied")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("first key not exhausted")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("second key throttled by first")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(2, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "198.51.100.7:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("/v1/scan"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := do("/v1/scan"); code != http.StatusOK {
		t.Fatalf("second request: %d", code)
	}
	if code := do("/v1/scan"); code != http.StatusTooManyRequests {
		t.Fatalf("third request: %d, want 429", code)
	}
	// Health probes bypass the limiter entirely.
	if code := do("/health"); code != http.StatusOK {
		t.Errorf("health probe throttled: %d", code)
	}
}

func TestClientIPStripsPort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4444"
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("got %q", got)
	}
}
