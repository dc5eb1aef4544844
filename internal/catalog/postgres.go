package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/onnwee/panditseva/internal/tracing"
)

const selectColumns = `id, pandit_id, name, category, base_price, duration_minutes, created_at, updated_at`

type row struct {
	ID              string    `db:"id"`
	PanditID        string    `db:"pandit_id"`
	Name            string    `db:"name"`
	Category        string    `db:"category"`
	BasePrice       float64   `db:"base_price"`
	DurationMinutes int       `db:"duration_minutes"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r row) toService() *Service {
	return &Service{
		ID:              r.ID,
		PanditID:        r.PanditID,
		Name:            r.Name,
		Category:        r.Category,
		BasePrice:       r.BasePrice,
		DurationMinutes: r.DurationMinutes,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// PostgresRepository implements Repository on the services table.
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

// Upsert inserts or updates s keyed by (pandit_id, name). xmax is zero only
// for a row the statement inserted.
func (r *PostgresRepository) Upsert(ctx context.Context, s *Service) (res *UpsertResult, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "services", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	var out struct {
		row
		Inserted bool `db:"inserted"`
	}
	err = r.db.GetContext(ctx, &out, `
		INSERT INTO services (id, pandit_id, name, category, base_price, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pandit_id, name) DO UPDATE SET
			category = EXCLUDED.category,
			base_price = EXCLUDED.base_price,
			duration_minutes = EXCLUDED.duration_minutes,
			updated_at = NOW()
		RETURNING `+selectColumns+`, (xmax = 0) AS inserted`,
		uuid.New().String(), s.PanditID, s.Name, s.Category, s.BasePrice, s.DurationMinutes)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert service: %w", err)
	}

	*s = *out.toService()
	if !out.Inserted {
		r.logger.DebugContext(ctx, "service updated", "service_id", s.ID, "pandit_id", s.PanditID)
	}
	return &UpsertResult{Inserted: out.Inserted, ID: s.ID}, nil
}

// Get retrieves a service by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (s *Service, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "services", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var rec row
	err = r.db.GetContext(ctx, &rec, `SELECT `+selectColumns+` FROM services WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return rec.toService(), nil
}

// List returns matching services ordered by name then ID.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) (services []*Service, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "services", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var (
		where []string
		args  []any
	)
	if opts.PanditID != "" {
		args = append(args, opts.PanditID)
		where = append(where, "pandit_id = $"+strconv.Itoa(len(args)))
	}
	if opts.Category != "" {
		args = append(args, opts.Category)
		where = append(where, "category = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + selectColumns + ` FROM services`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, opts.limit(), max(opts.Offset, 0))
	query += ` ORDER BY name, id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	var rows []row
	if err = r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	services = make([]*Service, 0, len(rows))
	for _, rec := range rows {
		services = append(services, rec.toService())
	}
	return services, nil
}

var searchOrder = map[SortOrder]string{
	SortPriceAsc:  "base_price ASC, name, id",
	SortPriceDesc: "base_price DESC, name, id",
	SortNameAsc:   "name ASC, id",
	SortNameDesc:  "name DESC, id",
}

// likePattern escapes LIKE metacharacters so s matches literally.
func likePattern(s string) string {
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

// Search filters, sorts and pages the whole catalog. The total comes from a
// window count over the filtered rows, falling back to a plain count when
// the page is past the last match.
func (r *PostgresRepository) Search(ctx context.Context, opts SearchOptions) (res *SearchResult, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "services", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if opts.Keyword != "" {
		p := arg(likePattern(opts.Keyword))
		where = append(where, "(name ILIKE "+p+" OR category ILIKE "+p+")")
	}
	if opts.Category != "" {
		where = append(where, "category ILIKE "+arg(likePattern(opts.Category)))
	}
	if opts.MinPrice != nil {
		where = append(where, "base_price >= "+arg(*opts.MinPrice))
	}
	if opts.MaxPrice != nil {
		where = append(where, "base_price <= "+arg(*opts.MaxPrice))
	}
	order, ok := searchOrder[opts.SortBy]
	if !ok {
		order = searchOrder[SortPriceAsc]
	}

	var filter string
	if len(where) > 0 {
		filter = ` WHERE ` + strings.Join(where, " AND ")
	}
	filterArgs := len(args)
	query := `SELECT ` + selectColumns + `, COUNT(*) OVER () AS total FROM services` + filter +
		` ORDER BY ` + order + ` LIMIT ` + arg(opts.limit()) + ` OFFSET ` + arg(max(opts.Offset, 0))

	var rows []struct {
		row
		Total int `db:"total"`
	}
	if err = r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search services: %w", err)
	}
	res = &SearchResult{Items: make([]*Service, 0, len(rows))}
	for _, rec := range rows {
		res.Total = rec.Total
		res.Items = append(res.Items, rec.toService())
	}
	if len(rows) == 0 && opts.Offset > 0 {
		if err = r.db.GetContext(ctx, &res.Total, `SELECT COUNT(*) FROM services`+filter, args[:filterArgs]...); err != nil {
			return nil, fmt.Errorf("failed to count services: %w", err)
		}
	}
	return res, nil
}

// Delete removes a service by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "services", tracing.DBOperationDelete)
	defer func() { endSpan(err) }()

	res, err := r.db.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
