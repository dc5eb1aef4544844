package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	ErrorCode string `json:"error_code"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func parseEntry(t *testing.T, buf *bytes.Buffer) testLogEntry {
	t.Helper()
	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_BasicFields(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/user/pandits/search", nil))

	entry := parseEntry(t, buf)
	if entry.Method != "GET" || entry.Path != "/user/pandits/search" {
		t.Errorf("method/path = %s %s", entry.Method, entry.Path)
	}
	if entry.Status != 200 {
		t.Errorf("status = %d, want 200", entry.Status)
	}
	if entry.Size != 5 {
		t.Errorf("size = %d, want 5", entry.Size)
	}
	if entry.Level != "INFO" {
		t.Errorf("level = %s, want INFO", entry.Level)
	}
	if entry.UserID != "" || entry.ErrorCode != "" {
		t.Errorf("unexpected user/error fields: %+v", entry)
	}
}

func TestLogging_WithRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := RequestID(Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if entry := parseEntry(t, buf); entry.RequestID != "req-123" {
		t.Errorf("request_id = %q, want req-123", entry.RequestID)
	}
}

func TestLogging_UserSetByInnerMiddleware(t *testing.T) {
	buf := &bytes.Buffer{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := SetUser(r.Context(), "user-42", "pandit")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusOK)
	})
	// HTTPMetrics sits between Logging and the handler, so the update has to unwrap.
	handler := Logging(newTestLogger(buf))(HTTPMetrics(NewMetrics())(inner))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/pandit/location", nil))

	entry := parseEntry(t, buf)
	if entry.UserID != "user-42" || entry.Role != "pandit" {
		t.Errorf("user_id/role = %q/%q, want user-42/pandit", entry.UserID, entry.Role)
	}
}

func TestLogging_ErrorLevels(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		wantLevel string
		wantCode  string
	}{
		{"ok", http.StatusOK, "ignored_on_success", "INFO", ""},
		{"client error", http.StatusConflict, "duplicate_review", "WARN", "duplicate_review"},
		{"server error", http.StatusInternalServerError, "internal_error", "ERROR", "internal_error"},
		{"client error without code", http.StatusNotFound, "", "WARN", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.code != "" {
					UpdateResponseContext(w, SetErrorCode(r.Context(), tt.code))
				}
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/user/bookings/b-1/review", nil))

			entry := parseEntry(t, buf)
			if entry.Level != tt.wantLevel {
				t.Errorf("level = %s, want %s", entry.Level, tt.wantLevel)
			}
			if entry.ErrorCode != tt.wantCode {
				t.Errorf("error_code = %q, want %q", entry.ErrorCode, tt.wantCode)
			}
		})
	}
}

func TestUpdateResponseContext_PlainWriter(t *testing.T) {
	// Must not panic on writers that were not wrapped by Logging.
	UpdateResponseContext(httptest.NewRecorder(), SetErrorCode(context.Background(), "x"))
	UpdateResponseContext(nil, context.Background())
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	if GetUserID(ctx) != "" || GetUserRole(ctx) != "" || GetErrorCode(ctx) != "" {
		t.Error("empty context should return empty values")
	}

	ctx = SetUser(ctx, "u1", "admin")
	ctx = SetErrorCode(ctx, "forbidden")
	if GetUserID(ctx) != "u1" || GetUserRole(ctx) != "admin" || GetErrorCode(ctx) != "forbidden" {
		t.Errorf("accessors = %q %q %q", GetUserID(ctx), GetUserRole(ctx), GetErrorCode(ctx))
	}
}

func TestResponseWriter_WriteHeaderOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.statusCode != http.StatusCreated || rec.Code != http.StatusCreated {
		t.Errorf("status = %d/%d, want 201", rw.statusCode, rec.Code)
	}
	if rw.Unwrap() != rec {
		t.Error("Unwrap() should return the wrapped writer")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level, env string
		want       slog.Level
	}{
		{"debug", "production", slog.LevelDebug},
		{"INFO", "development", slog.LevelInfo},
		{"warning", "", slog.LevelWarn},
		{"error", "", slog.LevelError},
		{"", "production", slog.LevelInfo},
		{"", "development", slog.LevelDebug},
		{"verbose", "production", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.level, tt.env); got != tt.want {
			t.Errorf("parseLevel(%q, %q) = %v, want %v", tt.level, tt.env, got, tt.want)
		}
	}
	if NewLogger("production", "") == nil || NewLogger("development", "debug") == nil {
		t.Error("NewLogger() returned nil")
	}
}
