package idempotency

import (
	"context"
	"log/slog"
)

// Cleanup removes expired records from an in-memory store. It has the shape
// of a periodic job body.
func Cleanup(store *InMemoryStore, logger *slog.Logger) func(context.Context) error {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		if deleted := store.DeleteExpired(); deleted > 0 {
			logger.InfoContext(ctx, "cleaned up expired idempotency keys", "deleted", deleted)
		}
		return nil
	}
}
