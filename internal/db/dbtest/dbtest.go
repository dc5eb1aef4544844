// Package dbtest starts a disposable PostgreSQL container for integration
// tests and applies the application schema to it.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/onnwee/panditseva/internal/db"
)

// Image is the PostgreSQL image used when DATABASE_URL is not set.
const Image = "postgres:16-alpine"

// Open returns a migrated database for t. It uses DATABASE_URL when set,
// otherwise it starts a container. The test is skipped when neither is
// available, for example when Docker is not running.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		url = startContainer(ctx, t)
	}

	conn, err := db.Open(ctx, url)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	Truncate(t, conn)

	return conn
}

// Truncate empties every application table.
func Truncate(t *testing.T, conn *sql.DB) {
	t.Helper()
	if _, err := conn.Exec(`TRUNCATE audit_logs, reviews, bookings, services, pandits, users CASCADE`); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

func startContainer(ctx context.Context, t *testing.T) string {
	t.Helper()

	ctr, err := postgres.Run(ctx, Image,
		postgres.WithDatabase("panditseva"),
		postgres.WithUsername("panditseva"),
		postgres.WithPassword("panditseva"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return url
}
