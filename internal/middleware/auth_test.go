package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/panditseva/internal/auth"
)

const testJWTSecret = "middleware-test-secret-middleware-test-secret"

func TestRequireAuth(t *testing.T) {
	jwtSvc := auth.NewJWTService(testJWTSecret)
	userToken, err := jwtSvc.GenerateAccessToken("user-1", auth.RoleUser)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	refreshToken, _ := jwtSvc.GenerateRefreshToken("user-1")
	otherToken, _ := auth.NewJWTService("some-other-secret-some-other-secret!!").GenerateAccessToken("user-1", auth.RoleAdmin)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + userToken, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + userToken, http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
		{"refresh token", "Bearer " + refreshToken, http.StatusUnauthorized},
		{"foreign signature", "Bearer " + otherToken, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID, gotRole string
			handler := RequireAuth(jwtSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotID, gotRole = GetUserID(r.Context()), GetUserRole(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/user/bookings", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if gotID != "user-1" || gotRole != auth.RoleUser {
					t.Errorf("context user = %q/%q", gotID, gotRole)
				}
				return
			}

			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse body: %v", err)
			}
			if body.Error.Code != "auth_failed" {
				t.Errorf("error code = %q, want auth_failed", body.Error.Code)
			}
		})
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	handler := RequireAuth(stubValidator{err: auth.ErrExpiredToken})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/user/bookings", nil)
	req.Header.Set("Authorization", "Bearer x")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

type stubValidator struct {
	claims *auth.Claims
	err    error
}

func (s stubValidator) ValidateAccessToken(string) (*auth.Claims, error) {
	return s.claims, s.err
}

func TestRequireRole(t *testing.T) {
	jwtSvc := auth.NewJWTServiceWithRotation(testJWTSecret, "", time.Second)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name       string
		role       string
		allowed    []string
		wantStatus int
	}{
		{"admin on admin route", auth.RoleAdmin, []string{auth.RoleAdmin}, http.StatusNoContent},
		{"user on admin route", auth.RoleUser, []string{auth.RoleAdmin}, http.StatusForbidden},
		{"pandit on pandit route", auth.RolePandit, []string{auth.RolePandit}, http.StatusNoContent},
		{"pandit on user route", auth.RolePandit, []string{auth.RoleUser}, http.StatusForbidden},
		{"user on shared route", auth.RoleUser, []string{auth.RoleUser, auth.RolePandit}, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwtSvc.GenerateAccessToken("acct-1", tt.role)
			if err != nil {
				t.Fatalf("GenerateAccessToken() error = %v", err)
			}
			handler := RequireAuth(jwtSvc)(RequireRole(tt.allowed...)(ok))

			req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}

	t.Run("without RequireAuth", func(t *testing.T) {
		rr := httptest.NewRecorder()
		RequireRole(auth.RoleAdmin)(ok).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	})
}
