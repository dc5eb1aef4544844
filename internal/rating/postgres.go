package rating

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/panditseva/internal/db"
	"github.com/onnwee/panditseva/internal/tracing"
)

// PostgresStore implements ReviewStore on PostgreSQL. Reviews live in the
// reviews table and aggregates in the rating_avg column of pandits or users.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(conn *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: conn, logger: logger}
}

// aggregateTable returns the table holding rating_avg for t.
func aggregateTable(t SubjectType) (string, error) {
	switch t {
	case TypePandit:
		return "pandits", nil
	case TypeUser:
		return "users", nil
	default:
		return "", ErrInvalidSubject
	}
}

// ListBySubject returns every review about subject, oldest first.
func (s *PostgresStore) ListBySubject(ctx context.Context, subject Subject) (reviews []Review, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "reviews", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, booking_id, subject_id, subject_type, reviewer_id, reviewer_type, rating, comment, created_at
		FROM reviews
		WHERE subject_type = $1 AND subject_id = $2
		ORDER BY created_at, id
	`, string(subject.Type), subject.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Review
		var subjectType, reviewerType string
		if err := rows.Scan(&r.ID, &r.BookingID, &r.SubjectID, &subjectType, &r.ReviewerID,
			&reviewerType, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		r.SubjectType = SubjectType(subjectType)
		r.ReviewerType = SubjectType(reviewerType)
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reviews: %w", err)
	}
	return reviews, nil
}

// Save inserts review and updates the subject's rating_avg in one transaction.
func (s *PostgresStore) Save(ctx context.Context, review Review, aggregate float64) (err error) {
	table, err := aggregateTable(review.SubjectType)
	if err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, "reviews", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Always attempt rollback on function exit (no-op after successful commit)
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			s.logger.Warn("failed to rollback review transaction",
				slog.String("error", err.Error()))
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reviews (id, booking_id, subject_id, subject_type, reviewer_id, reviewer_type, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, review.ID, review.BookingID, review.SubjectID, string(review.SubjectType), review.ReviewerID,
		string(review.ReviewerType), review.Rating, review.Comment, review.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, db.ReviewsUniqueConstraint) {
			return ErrDuplicateReview
		}
		return fmt.Errorf("failed to insert review: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE `+table+` SET rating_avg = $1 WHERE id = $2`, aggregate, review.SubjectID)
	if err != nil {
		return fmt.Errorf("failed to update %s rating: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, review.SubjectType, review.SubjectID)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Aggregate returns the stored rating_avg of subject.
func (s *PostgresStore) Aggregate(ctx context.Context, subject Subject) (avg float64, err error) {
	table, err := aggregateTable(subject.Type)
	if err != nil {
		return 0, err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, table, tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	err = s.db.QueryRowContext(ctx, `SELECT rating_avg FROM `+table+` WHERE id = $1`, subject.ID).Scan(&avg)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s rating: %w", table, err)
	}
	return avg, nil
}

// SetAggregate overwrites the stored rating_avg of subject.
func (s *PostgresStore) SetAggregate(ctx context.Context, subject Subject, aggregate float64) (err error) {
	table, err := aggregateTable(subject.Type)
	if err != nil {
		return err
	}

	ctx, endSpan := tracing.StartDBSpan(ctx, table, tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	res, err := s.db.ExecContext(ctx, `UPDATE `+table+` SET rating_avg = $1 WHERE id = $2`, aggregate, subject.ID)
	if err != nil {
		return fmt.Errorf("failed to update %s rating: %w", table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SubjectsWithReviews returns every subject that has at least one review.
// It seeds the DirtyTracker at startup so aggregates written before a crash
// are reconciled.
func (s *PostgresStore) SubjectsWithReviews(ctx context.Context) (subjects []Subject, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "reviews", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT subject_type, subject_id FROM reviews`)
	if err != nil {
		return nil, fmt.Errorf("failed to query review subjects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t, id string
		if err := rows.Scan(&t, &id); err != nil {
			return nil, fmt.Errorf("failed to scan review subject: %w", err)
		}
		subjects = append(subjects, Subject{Type: SubjectType(t), ID: id})
	}
	return subjects, rows.Err()
}
