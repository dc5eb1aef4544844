package api

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/onnwee/panditseva/internal/auth"
	"github.com/onnwee/panditseva/internal/booking"
)

func TestGetPandit_Public(t *testing.T) {
	env := newTestEnv(t)
	p := env.addPandit("Pandit Sharma", mustCoord(t, 28.6200, 77.2100), 1100, true)

	rr := env.do(http.MethodGet, "/pandits/"+p.ID, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	got := decodeBody[PublicPandit](t, rr)
	if got.ID != p.ID || got.FullName != "Pandit Sharma" || got.PricePerService != 1100 {
		t.Errorf("unexpected profile: %+v", got)
	}
	if got.Geohash == "" {
		t.Error("expected a geohash for a located pandit")
	}
	if bytes.Contains(rr.Body.Bytes(), []byte("latitude")) {
		t.Errorf("public profile exposes exact coordinates: %s", rr.Body.String())
	}
}

func TestGetPandit_HidesUnverified(t *testing.T) {
	env := newTestEnv(t)
	p := env.addPandit("Pandit Pending", nil, 500, false)

	expectError(t, env.do(http.MethodGet, "/pandits/"+p.ID, "", nil), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, env.do(http.MethodGet, "/pandits/missing", "", nil), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, env.do(http.MethodGet, "/pandits/"+p.ID+"/reviews", "", nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestListReviews_NewestFirst(t *testing.T) {
	env := newTestEnv(t)
	p := env.addPandit("Pandit Sharma", nil, 1100, true)

	for i, score := range []int{3, 5} {
		u := env.addUser("Reviewer "+string(rune('A'+i)), nil)
		b := env.addBooking(u.ID, p.ID, booking.StatusCompleted)
		rr := env.do(http.MethodPost, "/user/bookings/"+b.ID+"/review", env.token(u.ID, auth.RoleUser), map[string]any{"rating": score})
		if rr.Code != http.StatusCreated {
			t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
		}
		// Distinct timestamps for ordering.
		time.Sleep(2 * time.Millisecond)
	}

	rr := env.do(http.MethodGet, "/pandits/"+p.ID+"/reviews", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[ReviewListResponse](t, rr)
	if resp.Count != 2 || len(resp.Reviews) != 2 {
		t.Fatalf("count = %d, reviews = %d", resp.Count, len(resp.Reviews))
	}
	if resp.Reviews[0].Rating != 5 {
		t.Errorf("first review rating = %d, want the newest (5)", resp.Reviews[0].Rating)
	}
	if resp.RatingAvg != 4 {
		t.Errorf("rating_avg = %v, want 4", resp.RatingAvg)
	}
}

func TestListReviews_Empty(t *testing.T) {
	env := newTestEnv(t)
	p := env.addPandit("Pandit Sharma", nil, 1100, true)

	resp := decodeBody[ReviewListResponse](t, env.do(http.MethodGet, "/pandits/"+p.ID+"/reviews", "", nil))
	if resp.Reviews == nil || resp.Count != 0 {
		t.Errorf("expected an empty list, got %+v", resp)
	}

	stored, _ := env.pandits.Get(context.Background(), p.ID)
	if stored.RatingAvg != 0 {
		t.Errorf("rating_avg = %v, want 0 for an unrated pandit", stored.RatingAvg)
	}
}
