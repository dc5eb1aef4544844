package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var _ RateLimitStore = (*InMemoryRateLimitStore)(nil)

func TestInMemoryRateLimitStore_FixedWindow(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	ctx := context.Background()
	config := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}

	for i, wantRemaining := range []int{2, 1, 0} {
		allowed, remaining, _ := store.Allow(ctx, "user:u1", config)
		if !allowed || remaining != wantRemaining {
			t.Errorf("request %d: allowed = %v, remaining = %d, want true, %d", i+1, allowed, remaining, wantRemaining)
		}
	}

	allowed, remaining, retryAfter := store.Allow(ctx, "user:u1", config)
	if allowed || remaining != 0 {
		t.Errorf("4th request: allowed = %v, remaining = %d", allowed, remaining)
	}
	if retryAfter < 1 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want within the window", retryAfter)
	}

	if allowed, _, _ := store.Allow(ctx, "user:u2", config); !allowed {
		t.Error("another user's budget should be independent")
	}
}

func TestInMemoryRateLimitStore_WindowExpiryAndCleanup(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	ctx := context.Background()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 30 * time.Millisecond}

	store.Allow(ctx, "user:u1", config)
	if allowed, _, _ := store.Allow(ctx, "user:u1", config); allowed {
		t.Fatal("second request in the window should be blocked")
	}

	time.Sleep(40 * time.Millisecond)
	store.Cleanup()
	if n := store.Len(); n != 0 {
		t.Errorf("Len() after cleanup = %d, want 0", n)
	}
	if allowed, _, _ := store.Allow(ctx, "user:u1", config); !allowed {
		t.Error("a new window should allow the request")
	}
}

func TestUserKeyFunc(t *testing.T) {
	keyFunc := UserKeyFunc()

	tests := []struct {
		name    string
		userID  string
		headers map[string]string
		remote  string
		want    string
	}{
		{"authenticated user", "u1", map[string]string{"X-Forwarded-For": "203.0.113.50"}, "10.0.0.1:5555", "user:u1"},
		{"first forwarded hop", "", map[string]string{"X-Forwarded-For": "203.0.113.50, 10.0.0.1"}, "10.0.0.1:5555", "ip:203.0.113.50"},
		{"real ip header", "", map[string]string{"X-Real-IP": " 198.51.100.7 "}, "10.0.0.1:5555", "ip:198.51.100.7"},
		{"remote address", "", nil, "192.0.2.1:5555", "ip:192.0.2.1"},
		{"remote address without port", "", nil, "192.0.2.1", "ip:192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/user/pandits/search", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if tt.userID != "" {
				req = req.WithContext(SetUser(req.Context(), tt.userID, "user"))
			}
			if got := keyFunc(req); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

// reviewRequest is a review submission by userID.
func reviewRequest(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/user/bookings/b-1/review", nil)
	return req.WithContext(SetUser(req.Context(), userID, "user"))
}

func TestRateLimiter_PerUserBudget(t *testing.T) {
	metrics := NewMetrics()
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	var buf bytes.Buffer
	handler := Logging(newTestLogger(&buf))(RateLimiter(NewInMemoryRateLimitStore(), config, UserKeyFunc(), metrics)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})))

	for i, wantRemaining := range []string{"1", "0"} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, reviewRequest("u1"))
		if rr.Code != http.StatusCreated {
			t.Fatalf("request %d: status = %d", i+1, rr.Code)
		}
		if rr.Header().Get("X-RateLimit-Limit") != "2" || rr.Header().Get("X-RateLimit-Remaining") != wantRemaining {
			t.Errorf("request %d: headers = %v", i+1, rr.Header())
		}
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, reviewRequest("u1"))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("3rd request: status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" || rr.Header().Get("X-RateLimit-Reset") == "" {
		t.Errorf("blocked response headers = %v", rr.Header())
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body.Error.Code != "rate_limited" {
		t.Errorf("body = %s", rr.Body.String())
	}
	if !strings.Contains(buf.String(), `"error_code":"rate_limited"`) {
		t.Errorf("blocked request log missing error_code: %s", buf.String())
	}

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, reviewRequest("u2"))
	if other.Code != http.StatusCreated {
		t.Errorf("another user: status = %d, want 201", other.Code)
	}

	const route = "/user/bookings/{id}/review"
	if got := counterValue(t, metrics.rateLimitRequests.WithLabelValues(route, "user")); got != 4 {
		t.Errorf("requests counter = %v, want 4", got)
	}
	if got := counterValue(t, metrics.rateLimitBlocked.WithLabelValues(route, "user")); got != 1 {
		t.Errorf("blocked counter = %v, want 1", got)
	}
}
