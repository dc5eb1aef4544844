package pandit

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

	"github.com/onnwee/panditseva/internal/db"
	"github.com/onnwee/panditseva/internal/geo"
	"github.com/onnwee/panditseva/internal/tracing"
)

// row mirrors the pandits table for sqlx scanning.
type row struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	FullName        string          `db:"full_name"`
	Region          string          `db:"region"`
	Languages       pq.StringArray  `db:"languages"`
	Bio             string          `db:"bio"`
	ExperienceYears int             `db:"experience_years"`
	Latitude        sql.NullFloat64 `db:"latitude"`
	Longitude       sql.NullFloat64 `db:"longitude"`
	LocationName    string          `db:"location_name"`
	PricePerService float64         `db:"price_per_service"`
	RatingAvg       float64         `db:"rating_avg"`
	Verified        bool            `db:"verified"`
	CreatedAt       time.Time       `db:"created_at"`
}

const selectColumns = `id, user_id, full_name, region, languages, bio, experience_years,
	latitude, longitude, location_name, price_per_service, rating_avg, verified, created_at`

func (r row) toPandit() *Pandit {
	p := &Pandit{
		ID:              r.ID,
		UserID:          r.UserID,
		FullName:        r.FullName,
		Region:          r.Region,
		Languages:       []string(r.Languages),
		Bio:             r.Bio,
		ExperienceYears: r.ExperienceYears,
		LocationName:    r.LocationName,
		PricePerService: r.PricePerService,
		RatingAvg:       r.RatingAvg,
		Verified:        r.Verified,
		CreatedAt:       r.CreatedAt,
	}
	// A location is only usable when both halves are present.
	if r.Latitude.Valid && r.Longitude.Valid {
		p.Location = &geo.Coordinate{Lat: r.Latitude.Float64, Lng: r.Longitude.Float64}
	}
	return p
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
	return &PostgresRepository{
		db:     sqlx.NewDb(conn, "postgres"),
		logger: logger,
	}
}

// Get retrieves a pandit by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (p *Pandit, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "pandits", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var rec row
	err = r.db.GetContext(ctx, &rec, `SELECT `+selectColumns+` FROM pandits WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pandit: %w", err)
	}
	return rec.toPandit(), nil
}

// GetByUserID retrieves the pandit profile owned by a user account.
func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (p *Pandit, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "pandits", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var rec row
	err = r.db.GetContext(ctx, &rec, `SELECT `+selectColumns+` FROM pandits WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pandit by user: %w", err)
	}
	return rec.toPandit(), nil
}

// ListVerified returns every verified pandit, oldest first.
func (r *PostgresRepository) ListVerified(ctx context.Context) (pandits []*Pandit, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "pandits", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var rows []row
	err = r.db.SelectContext(ctx, &rows, `SELECT `+selectColumns+` FROM pandits WHERE verified ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list verified pandits: %w", err)
	}
	return toPandits(rows), nil
}

// List returns pandits matching opts, newest first.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) (pandits []*Pandit, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "pandits", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	where := ""
	switch opts.Filter {
	case FilterVerified:
		where = "WHERE verified"
	case FilterPending:
		where = "WHERE NOT verified"
	}

	var rows []row
	err = r.db.SelectContext(ctx, &rows,
		`SELECT `+selectColumns+` FROM pandits `+where+` ORDER BY created_at DESC, id DESC OFFSET $1 LIMIT $2`,
		opts.Offset, opts.limit())
	if err != nil {
		return nil, fmt.Errorf("failed to list pandits: %w", err)
	}
	return toPandits(rows), nil
}

// Insert stores a new pandit. ID and CreatedAt are assigned when empty.
func (r *PostgresRepository) Insert(ctx context.Context, p *Pandit) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "pandits", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	rec := row{
		ID:              p.ID,
		UserID:          p.UserID,
		FullName:        p.FullName,
		Region:          p.Region,
		Languages:       pq.StringArray(p.Languages),
		Bio:             p.Bio,
		ExperienceYears: p.ExperienceYears,
		LocationName:    p.LocationName,
		PricePerService: p.PricePerService,
		RatingAvg:       p.RatingAvg,
		Verified:        p.Verified,
		CreatedAt:       p.CreatedAt,
	}
	if rec.Languages == nil {
		rec.Languages = pq.StringArray{}
	}
	if p.Location != nil {
		rec.Latitude = sql.NullFloat64{Float64: p.Location.Lat, Valid: true}
		rec.Longitude = sql.NullFloat64{Float64: p.Location.Lng, Valid: true}
	}

	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO pandits (id, user_id, full_name, region, languages, bio, experience_years,
			latitude, longitude, location_name, price_per_service, rating_avg, verified, created_at)
		VALUES (:id, :user_id, :full_name, :region, :languages, :bio, :experience_years,
			:latitude, :longitude, :location_name, :price_per_service, :rating_avg, :verified, :created_at)
	`, rec)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return ErrExists
		}
		return fmt.Errorf("failed to insert pandit: %w", err)
	}
	return nil
}

// UpdateLocation sets the pandit's service location. A nil loc clears it.
func (r *PostgresRepository) UpdateLocation(ctx context.Context, id string, loc *geo.Coordinate, name string) error {
	var lat, lng sql.NullFloat64
	if loc != nil {
		lat = sql.NullFloat64{Float64: loc.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: loc.Lng, Valid: true}
	}
	return r.exec(ctx, `
		UPDATE pandits
		SET latitude = $2, longitude = $3,
			location_name = CASE WHEN $4 = '' THEN location_name ELSE $4 END
		WHERE id = $1
	`, id, lat, lng, name)
}

// SetVerified sets the verification flag.
func (r *PostgresRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	return r.exec(ctx, `UPDATE pandits SET verified = $2 WHERE id = $1`, id, verified)
}

// SetRatingAvg sets the aggregate rating.
func (r *PostgresRepository) SetRatingAvg(ctx context.Context, id string, avg float64) error {
	return r.exec(ctx, `UPDATE pandits SET rating_avg = $2 WHERE id = $1`, id, avg)
}

// Delete removes a pandit.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "pandits", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// The cascade removes the reviews the pandit wrote about clients, so
	// those clients' aggregates are recomputed from what remains.
	if _, err := tx.ExecContext(ctx, recomputeClientRatings, id); err != nil {
		return fmt.Errorf("failed to recompute client ratings: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM pandits WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pandit: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pandit delete: %w", err)
	}
	return nil
}

const recomputeClientRatings = `
	UPDATE users u SET rating_avg = COALESCE((
		SELECT AVG(r.rating)::DOUBLE PRECISION
		FROM reviews r JOIN bookings b ON b.id = r.booking_id
		WHERE r.subject_type = 'user' AND r.subject_id = u.id AND b.pandit_id <> $1
	), 0)
	WHERE u.id IN (
		SELECT r.subject_id
		FROM reviews r JOIN bookings b ON b.id = r.booking_id
		WHERE r.subject_type = 'user' AND b.pandit_id = $1
	)`

// Stats counts pandits by verification status.
func (r *PostgresRepository) Stats(ctx context.Context) (s Stats, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "pandits", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	err = r.db.QueryRowxContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE verified), COUNT(*) FILTER (WHERE NOT verified)
		FROM pandits
	`).Scan(&s.Total, &s.Verified, &s.Pending)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to count pandits: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "pandits", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update pandit: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func toPandits(rows []row) []*Pandit {
	pandits := make([]*Pandit, len(rows))
	for i, rec := range rows {
		pandits[i] = rec.toPandit()
	}
	return pandits
}
