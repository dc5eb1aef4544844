package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onnwee/panditseva/internal/db"
	"github.com/onnwee/panditseva/internal/geo"
	"github.com/onnwee/panditseva/internal/tracing"
)

type row struct {
	ID           string          `db:"id"`
	FullName     string          `db:"full_name"`
	Email        string          `db:"email"`
	Role         string          `db:"role"`
	Latitude     sql.NullFloat64 `db:"latitude"`
	Longitude    sql.NullFloat64 `db:"longitude"`
	LocationName string          `db:"location_name"`
	RatingAvg    float64         `db:"rating_avg"`
	CreatedAt    time.Time       `db:"created_at"`
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

// Get retrieves a user by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (u *User, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "users", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var rec row
	err = r.db.GetContext(ctx, &rec, `
		SELECT id, full_name, email, role, latitude, longitude, location_name, rating_avg, created_at
		FROM users WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u = &User{
		ID:           rec.ID,
		FullName:     rec.FullName,
		Email:        rec.Email,
		Role:         Role(rec.Role),
		LocationName: rec.LocationName,
		RatingAvg:    rec.RatingAvg,
		CreatedAt:    rec.CreatedAt,
	}
	if rec.Latitude.Valid && rec.Longitude.Valid {
		u.Location = &geo.Coordinate{Lat: rec.Latitude.Float64, Lng: rec.Longitude.Float64}
	}
	return u, nil
}

// Insert stores a new user.
func (r *PostgresRepository) Insert(ctx context.Context, u *User) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "users", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if err = u.prepareInsert(); err != nil {
		return err
	}

	rec := row{
		ID:           u.ID,
		FullName:     u.FullName,
		Email:        u.Email,
		Role:         string(u.Role),
		LocationName: u.LocationName,
		RatingAvg:    u.RatingAvg,
		CreatedAt:    u.CreatedAt,
	}
	if u.Location != nil {
		rec.Latitude = sql.NullFloat64{Float64: u.Location.Lat, Valid: true}
		rec.Longitude = sql.NullFloat64{Float64: u.Location.Lng, Valid: true}
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO users (id, full_name, email, role, latitude, longitude, location_name, rating_avg, created_at)
		VALUES (:id, :full_name, :email, :role, :latitude, :longitude, :location_name, :rating_avg, :created_at)
	`, rec)
	if err != nil {
		if db.IsUniqueViolation(err, "users_email_key") {
			return ErrEmailExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateLocation sets the user's location. An empty name keeps the old one.
func (r *PostgresRepository) UpdateLocation(ctx context.Context, id string, loc *geo.Coordinate, name string) error {
	var lat, lng sql.NullFloat64
	if loc != nil {
		lat = sql.NullFloat64{Float64: loc.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: loc.Lng, Valid: true}
	}
	return r.exec(ctx, `
		UPDATE users
		SET latitude = $2, longitude = $3,
			location_name = CASE WHEN $4 = '' THEN location_name ELSE $4 END
		WHERE id = $1
	`, id, lat, lng, name)
}

// SetRatingAvg sets the aggregate rating.
func (r *PostgresRepository) SetRatingAvg(ctx context.Context, id string, avg float64) error {
	return r.exec(ctx, `UPDATE users SET rating_avg = $2 WHERE id = $1`, id, avg)
}

// Count returns the number of accounts.
func (r *PostgresRepository) Count(ctx context.Context) (n int, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "users", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	if err = r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "users", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
