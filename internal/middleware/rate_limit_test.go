package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestRateLimitByIP_AdmitsUnderLimit verifies requests under the limit pass through
func TestRateLimitByIP_AdmitsUnderLimit(t *testing.T) {
	limiter := RateLimitByIP(EdgeRateLimitConfig{RequestsPerMinute: 10})

	handler := limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.RemoteAddr = "203.0.113.10:40000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Errorf("request %d failed with status %d, expected 200", i+1, recorder.Code)
		}
	}
}

// TestRateLimitByIP_Returns429OverLimit verifies the over-limit response shape
func TestRateLimitByIP_Returns429OverLimit(t *testing.T) {
	limiter := RateLimitByIP(EdgeRateLimitConfig{RequestsPerMinute: 1})

	handler := limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "203.0.113.11:40000"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("first request failed with status %d", recorder.Code)
	}

	req = httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "203.0.113.11:40000"
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", recorder.Code)
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}
	if body := recorder.Body.String(); body != `{"error":"rate_limit_exceeded","message":"Too many requests"}` {
		t.Errorf("unexpected response body: %s", body)
	}
}

// TestRateLimitByIP_IsolatesClients verifies separate buckets per client IP
func TestRateLimitByIP_IsolatesClients(t *testing.T) {
	limiter := RateLimitByIP(EdgeRateLimitConfig{RequestsPerMinute: 1})

	handler := limiter(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "203.0.113.20:40000"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("client A request failed with status %d", recorder.Code)
	}

	// Client B still has its own bucket
	req = httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "203.0.113.21:40000"
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("client B should have an independent limit, got status %d", recorder.Code)
	}
}
