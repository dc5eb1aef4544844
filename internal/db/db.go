// Package db provides database connection handling and the schema for
// PanditSeva.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Pool defaults for Open.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 30 * time.Minute
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Open connects to PostgreSQL with the lib/pq driver, applies pool settings
// and verifies the connection with a ping.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate creates every table and index used by the application. It is
// idempotent and safe to run on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, optionally on the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// Reviews unique index on (booking_id, reviewer_id, reviewer_type).
const ReviewsUniqueConstraint = "reviews_booking_reviewer_key"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		full_name    TEXT NOT NULL,
		email        TEXT NOT NULL UNIQUE,
		role         TEXT NOT NULL CHECK (role IN ('user', 'pandit', 'admin')),
		latitude     DOUBLE PRECISION,
		longitude    DOUBLE PRECISION,
		location_name TEXT NOT NULL DEFAULT '',
		rating_avg   DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS pandits (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		full_name         TEXT NOT NULL,
		region            TEXT NOT NULL DEFAULT '',
		languages         TEXT[] NOT NULL DEFAULT '{}',
		bio               TEXT NOT NULL DEFAULT '',
		experience_years  INTEGER NOT NULL DEFAULT 0,
		latitude          DOUBLE PRECISION,
		longitude         DOUBLE PRECISION,
		location_name     TEXT NOT NULL DEFAULT '',
		price_per_service DOUBLE PRECISION NOT NULL DEFAULT 0,
		rating_avg        DOUBLE PRECISION NOT NULL DEFAULT 0,
		verified          BOOLEAN NOT NULL DEFAULT FALSE,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS pandits_verified_idx ON pandits (verified)`,
	`CREATE TABLE IF NOT EXISTS services (
		id               TEXT PRIMARY KEY,
		pandit_id        TEXT NOT NULL REFERENCES pandits(id) ON DELETE CASCADE,
		name             TEXT NOT NULL,
		category         TEXT NOT NULL DEFAULT '',
		base_price       DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (base_price >= 0),
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (pandit_id, name)
	)`,
	`CREATE INDEX IF NOT EXISTS services_category_idx ON services (category)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL REFERENCES users(id),
		pandit_id    TEXT NOT NULL REFERENCES pandits(id) ON DELETE CASCADE,
		service_id   TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL CHECK (status IN ('pending', 'confirmed', 'completed', 'cancelled')),
		total_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		scheduled_at TIMESTAMPTZ,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id            TEXT PRIMARY KEY,
		booking_id    TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		subject_id    TEXT NOT NULL,
		subject_type  TEXT NOT NULL CHECK (subject_type IN ('pandit', 'user')),
		reviewer_id   TEXT NOT NULL,
		reviewer_type TEXT NOT NULL CHECK (reviewer_type IN ('pandit', 'user')),
		rating        INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		comment       TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT ` + ReviewsUniqueConstraint + ` UNIQUE (booking_id, reviewer_id, reviewer_type)
	)`,
	`CREATE INDEX IF NOT EXISTS reviews_subject_idx ON reviews (subject_type, subject_id)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          TEXT PRIMARY KEY,
		actor_id    TEXT NOT NULL DEFAULT '',
		actor_role  TEXT NOT NULL DEFAULT '',
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		action      TEXT NOT NULL,
		outcome     TEXT NOT NULL CHECK (outcome IN ('success', 'failure')),
		detail      TEXT NOT NULL DEFAULT '',
		request_id  TEXT NOT NULL DEFAULT '',
		ip_address  TEXT NOT NULL DEFAULT '',
		user_agent  TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_entity_idx ON audit_logs (entity_type, entity_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_actor_idx ON audit_logs (actor_id, created_at DESC)`,
}
