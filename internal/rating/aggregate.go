package rating

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// now is replaced in tests.
var now = time.Now

// SubmitReview checks a new submission against the subject's existing reviews
// and returns the accepted Review together with the subject's new mean rating.
//
// It fails with ErrDuplicateReview when existing already holds a review with
// the same booking, reviewer and reviewer type, and with ErrInvalidRating when
// the rating is outside [1, 5]. Nothing is persisted; the caller must store the
// review and the aggregate together.
func SubmitReview(in Submission, existing []Review) (Review, float64, error) {
	if !in.SubjectType.Valid() || !in.ReviewerType.Valid() || in.SubjectID == "" || in.ReviewerID == "" {
		return Review{}, 0, ErrInvalidSubject
	}
	if in.SubjectType == in.ReviewerType {
		return Review{}, 0, ErrSelfReview
	}

	for _, r := range existing {
		if r.BookingID == in.BookingID && r.ReviewerID == in.ReviewerID && r.ReviewerType == in.ReviewerType {
			return Review{}, 0, fmt.Errorf("%w: booking %s", ErrDuplicateReview, in.BookingID)
		}
	}

	if err := ValidateRating(in.Rating); err != nil {
		return Review{}, 0, err
	}

	review := Review{
		ID:           uuid.NewString(),
		BookingID:    in.BookingID,
		SubjectID:    in.SubjectID,
		SubjectType:  in.SubjectType,
		ReviewerID:   in.ReviewerID,
		ReviewerType: in.ReviewerType,
		Rating:       in.Rating,
		Comment:      in.Comment,
		CreatedAt:    now().UTC(),
	}

	return review, Mean(in.Subject(), append(existing[:len(existing):len(existing)], review)), nil
}

// Mean returns the average rating of the reviews about subject, or 0 when
// there are none. Reviews about other subjects are ignored.
//
// The mean is always recomputed from the full list so that a later
// recomputation from storage reproduces it exactly.
func Mean(subject Subject, reviews []Review) float64 {
	var sum, count int
	for _, r := range reviews {
		if r.Subject() != subject {
			continue
		}
		sum += r.Rating
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}
