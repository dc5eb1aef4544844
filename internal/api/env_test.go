package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/panditseva/internal/audit"
	"github.com/onnwee/panditseva/internal/auth"
	"github.com/onnwee/panditseva/internal/booking"
	"github.com/onnwee/panditseva/internal/catalog"
	"github.com/onnwee/panditseva/internal/geo"
	"github.com/onnwee/panditseva/internal/idempotency"
	"github.com/onnwee/panditseva/internal/pandit"
	"github.com/onnwee/panditseva/internal/ranking"
	"github.com/onnwee/panditseva/internal/rating"
	"github.com/onnwee/panditseva/internal/user"
)

const testJWTSecret = "test-secret-that-is-at-least-32-characters"

// testEnv wires the router to in-memory repositories.
type testEnv struct {
	t        *testing.T
	users    *user.InMemoryRepository
	pandits  *pandit.InMemoryRepository
	bookings *booking.InMemoryRepository
	services *catalog.InMemoryRepository
	store    *rating.InMemoryStore
	audit    *audit.InMemoryRepository
	jwt      *auth.JWTService
	handler  http.Handler
}

func newTestEnv(t *testing.T, configure ...func(*RouterConfig)) *testEnv {
	t.Helper()

	env := &testEnv{
		t:        t,
		users:    user.NewInMemoryRepository(),
		pandits:  pandit.NewInMemoryRepository(),
		bookings: booking.NewInMemoryRepository(),
		services: catalog.NewInMemoryRepository(),
		store:    rating.NewInMemoryStore(),
		audit:    audit.NewInMemoryRepository(),
		jwt:      auth.NewJWTService(testJWTSecret),
	}
	env.store.Mirror(rating.TypePandit, env.pandits)
	env.store.Mirror(rating.TypeUser, env.users)
	env.pandits.OnDelete(env.services.DeleteByPandit, func(ctx context.Context, id string) error {
		ids, err := env.bookings.DeleteByPandit(ctx, id)
		if err != nil {
			return err
		}
		_, err = env.store.DeleteByBookings(ctx, ids)
		return err
	})

	config := RouterConfig{
		Tokens:   env.jwt,
		Users:    env.users,
		Pandits:  env.pandits,
		Bookings: env.bookings,
		Services: env.services,
		Ranker:   ranking.NewRanker(nil, nil),
		Reviews:  rating.NewService(rating.ServiceConfig{Store: env.store}),
		Audit:    env.audit,

		Idempotency: idempotency.NewInMemoryStore(time.Hour),
	}
	for _, fn := range configure {
		fn(&config)
	}
	env.handler = NewRouter(config)
	return env
}

// addUser stores a client account. loc may be nil.
func (e *testEnv) addUser(name string, loc *geo.Coordinate) *user.User {
	e.t.Helper()
	u := &user.User{
		FullName: name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Role:     user.RoleUser,
		Location: loc,
	}
	if err := e.users.Insert(context.Background(), u); err != nil {
		e.t.Fatalf("failed to insert user: %v", err)
	}
	return u
}

// addPandit stores a pandit account and its profile.
func (e *testEnv) addPandit(name string, loc *geo.Coordinate, price float64, verified bool) *pandit.Pandit {
	e.t.Helper()
	u := &user.User{
		FullName: name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@pandits.example.com",
		Role:     user.RolePandit,
	}
	if err := e.users.Insert(context.Background(), u); err != nil {
		e.t.Fatalf("failed to insert pandit account: %v", err)
	}
	p := &pandit.Pandit{
		UserID:          u.ID,
		FullName:        name,
		Region:          "Delhi NCR",
		Languages:       []string{"hi", "sa"},
		Location:        loc,
		PricePerService: price,
		Verified:        verified,
	}
	if err := e.pandits.Insert(context.Background(), p); err != nil {
		e.t.Fatalf("failed to insert pandit: %v", err)
	}
	return p
}

// addService lists a service for a pandit.
func (e *testEnv) addService(panditID, name string, price float64) *catalog.Service {
	e.t.Helper()
	s := &catalog.Service{PanditID: panditID, Name: name, Category: "puja", BasePrice: price, DurationMinutes: 90}
	if _, err := e.services.Upsert(context.Background(), s); err != nil {
		e.t.Fatalf("failed to insert service: %v", err)
	}
	return s
}

// addBooking stores a booking in the given status.
func (e *testEnv) addBooking(userID, panditID string, status booking.Status) *booking.Booking {
	e.t.Helper()
	b := &booking.Booking{UserID: userID, PanditID: panditID, Status: status, TotalAmount: 1100}
	if err := e.bookings.Insert(context.Background(), b); err != nil {
		e.t.Fatalf("failed to insert booking: %v", err)
	}
	return b
}

func (e *testEnv) token(userID, role string) string {
	e.t.Helper()
	tok, err := e.jwt.GenerateAccessToken(userID, role)
	if err != nil {
		e.t.Fatalf("failed to generate token: %v", err)
	}
	return tok
}

// do sends a request through the router. body is JSON encoded unless it is
// a string, which is sent verbatim.
func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.doWithHeaders(method, path, token, body, nil)
}

// doWithHeaders is do with extra request headers.
func (e *testEnv) doWithHeaders(method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			e.t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response: %v, body: %s", err, rr.Body.String())
	}
	return v
}

// expectError checks the status and the error code of a JSON error response.
func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status = %d, want %d, body: %s", rr.Code, status, rr.Body.String())
	}
	resp := decodeBody[ErrorResponse](t, rr)
	if resp.Error.Code != code {
		t.Errorf("error code = %q, want %q", resp.Error.Code, code)
	}
}

func mustCoord(t *testing.T, lat, lng float64) *geo.Coordinate {
	t.Helper()
	c, err := geo.NewCoordinate(lat, lng)
	if err != nil {
		t.Fatalf("invalid coordinate: %v", err)
	}
	return c
}
