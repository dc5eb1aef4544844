package rating

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/panditseva/internal/tracing"
)

// ServiceConfig configures a Service. Store is required.
type ServiceConfig struct {
	Store   ReviewStore
	Locker  SubjectLocker
	Dirty   *DirtyTracker
	Metrics *Metrics
	Logger  *slog.Logger
}

// Service accepts review submissions and keeps subject aggregates in step
// with the stored reviews.
type Service struct {
	store   ReviewStore
	locker  SubjectLocker
	dirty   *DirtyTracker
	metrics *Metrics
	logger  *slog.Logger
}

// NewService creates a review service. A nil Locker falls back to an
// in-process KeyedMutex.
func NewService(config ServiceConfig) *Service {
	if config.Locker == nil {
		config.Locker = NewKeyedMutex()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Service{
		store:   config.Store,
		locker:  config.Locker,
		dirty:   config.Dirty,
		metrics: config.Metrics,
		logger:  config.Logger,
	}
}

// Submit validates in, stores the resulting review and updates the subject's
// aggregate rating. Submissions for the same subject are serialised so each
// aggregate is computed from every review stored before it.
func (s *Service) Submit(ctx context.Context, in Submission) (review Review, aggregate float64, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "rating.submit",
		attribute.String("rating.subject_type", string(in.SubjectType)),
		attribute.String("booking.id", in.BookingID))
	defer func() { endSpan(err) }()

	defer func() {
		if err != nil && s.metrics != nil {
			s.metrics.IncRejected(err)
		}
	}()

	subject := in.Subject()
	if !subject.Type.Valid() || subject.ID == "" {
		return Review{}, 0, ErrInvalidSubject
	}

	unlock, err := s.locker.Lock(ctx, subject.Key())
	if err != nil {
		return Review{}, 0, fmt.Errorf("failed to lock %s: %w", subject.Key(), err)
	}
	defer unlock()

	existing, err := s.store.ListBySubject(ctx, subject)
	if err != nil {
		return Review{}, 0, fmt.Errorf("failed to load reviews: %w", err)
	}

	review, aggregate, err = SubmitReview(in, existing)
	if err != nil {
		return Review{}, 0, err
	}

	if err := s.store.Save(ctx, review, aggregate); err != nil {
		if errors.Is(err, ErrDuplicateReview) {
			return Review{}, 0, err
		}
		return Review{}, 0, fmt.Errorf("failed to save review: %w", err)
	}

	tracing.AddEvent(ctx, "aggregate_updated", attribute.Float64("rating.aggregate", aggregate))
	if s.dirty != nil {
		s.dirty.MarkDirty(subject)
	}
	if s.metrics != nil {
		s.metrics.IncSubmitted(subject.Type)
	}

	s.logger.InfoContext(ctx, "review submitted",
		"review_id", review.ID,
		"booking_id", review.BookingID,
		"subject", subject.Key(),
		"rating", review.Rating,
		"aggregate", aggregate,
		"review_count", len(existing)+1)

	return review, aggregate, nil
}

// Reviews returns the stored reviews about subject.
func (s *Service) Reviews(ctx context.Context, subject Subject) ([]Review, error) {
	return s.store.ListBySubject(ctx, subject)
}
