package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/onnwee/panditseva/internal/tracing"
)

const selectColumns = `id, actor_id, actor_role, entity_type, entity_id, action, outcome,
	detail, request_id, ip_address, user_agent, created_at`

type row struct {
	ID         string    `db:"id"`
	ActorID    string    `db:"actor_id"`
	ActorRole  string    `db:"actor_role"`
	EntityType string    `db:"entity_type"`
	EntityID   string    `db:"entity_id"`
	Action     string    `db:"action"`
	Outcome    string    `db:"outcome"`
	Detail     string    `db:"detail"`
	RequestID  string    `db:"request_id"`
	IPAddress  string    `db:"ip_address"`
	UserAgent  string    `db:"user_agent"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r row) toLog() *Log {
	return &Log{
		ID:         r.ID,
		ActorID:    r.ActorID,
		ActorRole:  r.ActorRole,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Action:     r.Action,
		Outcome:    r.Outcome,
		Detail:     r.Detail,
		RequestID:  r.RequestID,
		IPAddress:  r.IPAddress,
		UserAgent:  r.UserAgent,
		CreatedAt:  r.CreatedAt,
	}
}

// PostgresRepository implements Repository on the audit_logs table.
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

// Record stores an entry.
func (r *PostgresRepository) Record(ctx context.Context, entry Entry) (log *Log, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_logs", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	log = newLog(entry)
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		log.ID, log.ActorID, log.ActorRole, log.EntityType, log.EntityID, log.Action, log.Outcome,
		log.Detail, log.RequestID, log.IPAddress, log.UserAgent, log.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert audit log: %w", err)
	}
	return log, nil
}

// Query returns matching entries, newest first.
func (r *PostgresRepository) Query(ctx context.Context, q Query) (logs []*Log, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "audit_logs", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	var (
		where []string
		args  []any
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, column+" = $"+strconv.Itoa(len(args)))
	}
	add("actor_id", q.ActorID)
	add("entity_type", q.EntityType)
	add("entity_id", q.EntityID)

	query := `SELECT ` + selectColumns + ` FROM audit_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, q.limit())
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args))

	var rows []row
	if err = r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	logs = make([]*Log, 0, len(rows))
	for _, rec := range rows {
		logs = append(logs, rec.toLog())
	}
	return logs, nil
}
