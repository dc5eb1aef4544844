package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/onnwee/panditseva/internal/tracing"
)

const selectColumns = `id, user_id, pandit_id, service_id, status, total_amount, scheduled_at, created_at`

type row struct {
	ID          string       `db:"id"`
	UserID      string       `db:"user_id"`
	PanditID    string       `db:"pandit_id"`
	ServiceID   string       `db:"service_id"`
	Status      string       `db:"status"`
	TotalAmount float64      `db:"total_amount"`
	ScheduledAt sql.NullTime `db:"scheduled_at"`
	CreatedAt   time.Time    `db:"created_at"`
}

func (r row) toBooking() *Booking {
	b := &Booking{
		ID:          r.ID,
		UserID:      r.UserID,
		PanditID:    r.PanditID,
		ServiceID:   r.ServiceID,
		Status:      Status(r.Status),
		TotalAmount: r.TotalAmount,
		CreatedAt:   r.CreatedAt,
	}
	if r.ScheduledAt.Valid {
		t := r.ScheduledAt.Time
		b.ScheduledAt = &t
	}
	return b
}

// PostgresRepository implements Repository on PostgreSQL using sqlx.
type PostgresRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(conn *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: sqlx.NewDb(conn, "postgres"), logger: logger}
}

// Get retrieves a booking by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (b *Booking, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "bookings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var rec row
	err = r.db.GetContext(ctx, &rec, `SELECT `+selectColumns+` FROM bookings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return rec.toBooking(), nil
}

// Insert stores a new booking.
func (r *PostgresRepository) Insert(ctx context.Context, b *Booking) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "bookings", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	rec := row{
		ID:          b.ID,
		UserID:      b.UserID,
		PanditID:    b.PanditID,
		ServiceID:   b.ServiceID,
		Status:      string(b.Status),
		TotalAmount: b.TotalAmount,
		CreatedAt:   b.CreatedAt,
	}
	if b.ScheduledAt != nil {
		rec.ScheduledAt = sql.NullTime{Time: *b.ScheduledAt, Valid: true}
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO bookings (`+selectColumns+`)
		VALUES (:id, :user_id, :pandit_id, :service_id, :status, :total_amount, :scheduled_at, :created_at)
	`, rec)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// ListByUser returns the user's bookings, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*Booking, error) {
	return r.list(ctx, "user_id", userID)
}

// ListByPandit returns the pandit's bookings, newest first.
func (r *PostgresRepository) ListByPandit(ctx context.Context, panditID string) ([]*Booking, error) {
	return r.list(ctx, "pandit_id", panditID)
}

func (r *PostgresRepository) list(ctx context.Context, column, id string) (bookings []*Booking, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "bookings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var rows []row
	err = r.db.SelectContext(ctx, &rows,
		`SELECT `+selectColumns+` FROM bookings WHERE `+column+` = $1 ORDER BY created_at DESC, id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	bookings = make([]*Booking, len(rows))
	for i, rec := range rows {
		bookings[i] = rec.toBooking()
	}
	return bookings, nil
}

// Transition moves a booking to a new status in a single conditional UPDATE,
// so two concurrent transitions cannot both succeed.
func (r *PostgresRepository) Transition(ctx context.Context, id string, to Status) (b *Booking, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "bookings", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	from := allowedFrom(to)
	states := make(pq.StringArray, len(from))
	for i, s := range from {
		states[i] = string(s)
	}

	var rec row
	err = r.db.GetContext(ctx, &rec, `
		UPDATE bookings SET status = $2
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+selectColumns, id, string(to), states)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err = r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id); err != nil {
			return nil, fmt.Errorf("failed to check booking: %w", err)
		}
		if !exists {
			return nil, ErrNotFound
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	r.logger.DebugContext(ctx, "booking status changed", slog.String("booking_id", id), slog.String("status", string(to)))
	return rec.toBooking(), nil
}

// HasActiveForPandit reports whether the pandit has pending or confirmed bookings.
func (r *PostgresRepository) HasActiveForPandit(ctx context.Context, panditID string) (active bool, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "bookings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	err = r.db.GetContext(ctx, &active, `
		SELECT EXISTS (
			SELECT 1 FROM bookings WHERE pandit_id = $1 AND status IN ('pending', 'confirmed')
		)
	`, panditID)
	if err != nil {
		return false, fmt.Errorf("failed to check active bookings: %w", err)
	}
	return active, nil
}

// Stats counts bookings by status.
func (r *PostgresRepository) Stats(ctx context.Context) (s Stats, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "bookings", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var counts []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err = r.db.SelectContext(ctx, &counts, `SELECT status, COUNT(*) AS n FROM bookings GROUP BY status`); err != nil {
		return Stats{}, fmt.Errorf("failed to count bookings: %w", err)
	}
	for _, c := range counts {
		s.add(Status(c.Status), c.N)
	}
	return s, nil
}
