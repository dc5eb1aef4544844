//go:build integration

package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/onnwee/panditseva/internal/db/dbtest"
)

func TestPostgresRepository(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewPostgresRepository(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	for _, e := range []Entry{
		{ActorID: "a1", ActorRole: "admin", EntityType: EntityPandit, EntityID: "p1", Action: ActionApprovePandit},
		{ActorID: "a1", ActorRole: "admin", EntityType: EntityPandit, EntityID: "p2", Action: ActionRejectPandit, Detail: "documents expired"},
		{ActorID: "a2", ActorRole: "admin", EntityType: EntityPandit, EntityID: "p1", Action: ActionAccessPreciseLocation, IPAddress: "192.0.2.1"},
	} {
		if _, err := Record(ctx, repo, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	logs, err := repo.Query(ctx, Query{EntityType: EntityPandit, EntityID: "p1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("got %d logs for p1, want 2", len(logs))
	}
	if logs[0].Action != ActionAccessPreciseLocation || logs[0].IPAddress != "192.0.2.1" {
		t.Errorf("newest log = %+v", logs[0])
	}

	logs, err = repo.Query(ctx, Query{ActorID: "a1", Limit: 1})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Detail != "documents expired" {
		t.Errorf("actor query = %+v", logs)
	}

	all, err := repo.Query(ctx, Query{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d logs, want 3", len(all))
	}
}
