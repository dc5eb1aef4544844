// Package main contains integration tests for the API server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/panditseva/internal/auth"
	"github.com/onnwee/panditseva/internal/config"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

func testConfig() *config.Config {
	return &config.Config{
		Port:                     8080,
		Env:                      "development",
		LogLevel:                 "info",
		JWTSecret:                testSecret,
		RatingReconcileInterval:  time.Minute,
		TracingExporter:          config.DefaultTracingExporter,
		MetricsToken:             "scrape-token",
		RateLimitSearchPerMinute: 60,
		RateLimitReviewPerMinute: 10,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*app, *bytes.Buffer) {
	t.Helper()
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	a, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(func() { a.shutdown(context.Background()) })
	return a, &logBuf
}

func TestNewApp_InMemoryWiring(t *testing.T) {
	a, logBuf := newTestApp(t, testConfig())

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/ready status = %d, body: %s", rr.Code, rr.Body.String())
	}
	var ready struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &ready); err != nil {
		t.Fatal(err)
	}
	if ready.Checks["database"] != "disabled" || ready.Checks["redis"] != "disabled" || ready.Checks["metrics"] != "ok" {
		t.Errorf("checks = %v", ready.Checks)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header from the middleware chain")
	}

	if !strings.Contains(logBuf.String(), "using in-memory storage") {
		t.Errorf("expected in-memory storage warning in logs: %s", logBuf.String())
	}
}

func TestNewApp_RoutesRequireAuth(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user/pandits/search", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}

	// A valid token for an account that does not exist reaches the handler.
	token, err := auth.NewJWTService(testSecret).GenerateAccessToken("u-1", auth.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/user/pandits/search", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for an unknown account, body: %s", rr.Code, rr.Body.String())
	}
}

func TestNewApp_MetricsToken(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d without token, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer scrape-token")
	rr = httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d with token", rr.Code)
	}
	for _, name := range []string{"http_requests_total", "go_goroutines"} {
		if !strings.Contains(rr.Body.String(), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestNewApp_InvalidRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "not a url"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := newApp(context.Background(), cfg, logger); err == nil {
		t.Fatal("expected error for an invalid REDIS_URL")
	}
}

func TestNewApp_StartAndShutdown(t *testing.T) {
	a, _ := newTestApp(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.start(ctx)
	if !a.reconcile.IsRunning() {
		t.Error("reconcile job not running after start")
	}
	a.shutdown(context.Background())
	if a.reconcile.IsRunning() {
		t.Error("reconcile job still running after shutdown")
	}
}

// TestGracefulShutdown_InFlightRequests checks that Shutdown lets an
// in-flight request finish before the server stops.
func TestGracefulShutdown_InFlightRequests(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	started := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"done"}`))
	})

	server := &http.Server{Handler: mux, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}
	go func() { _ = server.Serve(listener) }()

	var (
		wg     sync.WaitGroup
		status int
		reqErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := http.Get("http://" + listener.Addr().String() + "/slow")
		if err != nil {
			reqErr = err
			return
		}
		defer resp.Body.Close()
		status = resp.StatusCode
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the handler")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	wg.Wait()
	if reqErr != nil {
		t.Fatalf("in-flight request failed: %v", reqErr)
	}
	if status != http.StatusOK {
		t.Errorf("in-flight request status = %d, want 200", status)
	}
}
