package rating

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingWriter struct {
	mu   sync.Mutex
	avgs map[string]float64
}

func (w *recordingWriter) SetRatingAvg(ctx context.Context, id string, avg float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.avgs == nil {
		w.avgs = make(map[string]float64)
	}
	w.avgs[id] = avg
	return nil
}

func TestService_Submit(t *testing.T) {
	store := NewInMemoryStore()
	writer := &recordingWriter{}
	store.Mirror(TypePandit, writer)
	dirty := NewDirtyTracker()
	metrics := NewMetrics()

	svc := NewService(ServiceConfig{Store: store, Dirty: dirty, Metrics: metrics, Logger: quietLogger()})
	ctx := context.Background()

	for i, r := range []int{4, 5, 3} {
		_, _, err := svc.Submit(ctx, userSubmission(fmt.Sprintf("b%d", i), fmt.Sprintf("u%d", i), r))
		if err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
	}

	avg, err := store.Aggregate(ctx, pandit1)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if avg != 4.0 {
		t.Errorf("stored aggregate = %v, want 4.0", avg)
	}
	if writer.avgs[pandit1.ID] != 4.0 {
		t.Errorf("mirrored aggregate = %v, want 4.0", writer.avgs[pandit1.ID])
	}
	if !dirty.IsDirty(pandit1) {
		t.Error("subject should be marked dirty after a submission")
	}
	if got := counterValue(t, metrics.reviewsSubmitted.WithLabelValues(string(TypePandit))); got != 3 {
		t.Errorf("submitted counter = %v, want 3", got)
	}
}

func TestService_SubmitDuplicate(t *testing.T) {
	store := NewInMemoryStore()
	metrics := NewMetrics()
	svc := NewService(ServiceConfig{Store: store, Metrics: metrics, Logger: quietLogger()})
	ctx := context.Background()

	if _, _, err := svc.Submit(ctx, userSubmission("b1", "u1", 5)); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	_, _, err := svc.Submit(ctx, userSubmission("b1", "u1", 1))
	if !errors.Is(err, ErrDuplicateReview) {
		t.Fatalf("second Submit() error = %v, want ErrDuplicateReview", err)
	}

	avg, _ := store.Aggregate(ctx, pandit1)
	if avg != 5 {
		t.Errorf("aggregate after duplicate = %v, want unchanged 5", avg)
	}
	if store.Count() != 1 {
		t.Errorf("stored reviews = %d, want 1", store.Count())
	}
	if got := counterValue(t, metrics.reviewRejections.WithLabelValues(RejectDuplicate)); got != 1 {
		t.Errorf("duplicate rejections = %v, want 1", got)
	}
}

func TestService_SubmitInvalidRating(t *testing.T) {
	store := NewInMemoryStore()
	metrics := NewMetrics()
	svc := NewService(ServiceConfig{Store: store, Metrics: metrics, Logger: quietLogger()})

	_, _, err := svc.Submit(context.Background(), userSubmission("b1", "u1", 6))
	if !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("Submit() error = %v, want ErrInvalidRating", err)
	}
	if store.Count() != 0 {
		t.Error("invalid review should not be stored")
	}
	if got := counterValue(t, metrics.reviewRejections.WithLabelValues(RejectInvalidRating)); got != 1 {
		t.Errorf("invalid rating rejections = %v, want 1", got)
	}
}

func TestService_ConcurrentSubmissionsKeepAggregateConsistent(t *testing.T) {
	const n = 40
	store := NewInMemoryStore()
	svc := NewService(ServiceConfig{
		Store:  NewSlowStore(store, time.Millisecond),
		Logger: quietLogger(),
	})

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rating := 1
			if i%2 == 0 {
				rating = 5
			}
			_, _, err := svc.Submit(context.Background(), userSubmission(fmt.Sprintf("b%d", i), fmt.Sprintf("u%d", i), rating))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	ctx := context.Background()
	reviews, _ := store.ListBySubject(ctx, pandit1)
	if len(reviews) != n {
		t.Fatalf("stored %d reviews, want %d", len(reviews), n)
	}
	avg, _ := store.Aggregate(ctx, pandit1)
	if want := Mean(pandit1, reviews); avg != want {
		t.Errorf("stored aggregate %v does not match recomputed mean %v", avg, want)
	}
	if avg != 3 {
		t.Errorf("stored aggregate = %v, want 3", avg)
	}
}

// noLock lets every caller through at once.
type noLock struct{}

func (noLock) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// barrierStore holds every ListBySubject caller until n callers have read,
// so all of them see the same review list.
type barrierStore struct {
	ReviewStore
	arrived sync.WaitGroup
}

func (b *barrierStore) ListBySubject(ctx context.Context, s Subject) ([]Review, error) {
	reviews, err := b.ReviewStore.ListBySubject(ctx, s)
	b.arrived.Done()
	b.arrived.Wait()
	return reviews, err
}

func TestService_WithoutLockLosesUpdates(t *testing.T) {
	const n = 10
	store := NewInMemoryStore()
	barrier := &barrierStore{ReviewStore: store}
	barrier.arrived.Add(n)

	svc := NewService(ServiceConfig{Store: barrier, Locker: noLock{}, Logger: quietLogger()})

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rating := 1
			if i%2 == 0 {
				rating = 5
			}
			if _, _, err := svc.Submit(context.Background(), userSubmission(fmt.Sprintf("b%d", i), fmt.Sprintf("u%d", i), rating)); err != nil {
				t.Errorf("Submit() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	ctx := context.Background()
	reviews, _ := store.ListBySubject(ctx, pandit1)
	avg, _ := store.Aggregate(ctx, pandit1)

	// Every writer computed its aggregate from an empty list, so the stored
	// value is a single review's rating instead of the mean of all ten.
	if len(reviews) != n {
		t.Fatalf("stored %d reviews, want %d", len(reviews), n)
	}
	if avg == Mean(pandit1, reviews) {
		t.Errorf("expected a lost update without locking, got consistent aggregate %v", avg)
	}
	if avg != 1 && avg != 5 {
		t.Errorf("stored aggregate = %v, want a single rating (1 or 5)", avg)
	}
}

func TestService_LockTimeout(t *testing.T) {
	locker := NewKeyedMutex()
	unlock, err := locker.Lock(context.Background(), pandit1.Key())
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	defer unlock()

	svc := NewService(ServiceConfig{Store: NewInMemoryStore(), Locker: locker, Logger: quietLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err = svc.Submit(ctx, userSubmission("b1", "u1", 5))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit() error = %v, want context.DeadlineExceeded", err)
	}
}
