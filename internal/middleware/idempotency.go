package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/onnwee/panditseva/internal/idempotency"
)

// IdempotencyKeyHeader is the HTTP header name for idempotency keys.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotentReplayHeader marks a response replayed from the store.
const IdempotentReplayHeader = "Idempotent-Replayed"

// maxIdempotentBody caps the request body read for fingerprinting.
const maxIdempotentBody = 1 << 20

// idempotencyKeyContextKey is the context key for storing the idempotency key.
type idempotencyKeyContextKey struct{}

// idempotencyResponseWriter passes the response through while keeping a
// copy of the status and body.
type idempotencyResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
	written    bool
}

func (w *idempotencyResponseWriter) WriteHeader(statusCode int) {
	if !w.written {
		w.statusCode = statusCode
		w.written = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b[:n])
	return n, err
}

func (w *idempotencyResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// SetIdempotencyKey stores the idempotency key in the context.
func SetIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyContextKey{}, key)
}

// GetIdempotencyKey retrieves the idempotency key from context. Returns empty string if not present.
func GetIdempotencyKey(ctx context.Context) string {
	if key, ok := ctx.Value(idempotencyKeyContextKey{}).(string); ok {
		return key
	}
	return ""
}

// Idempotency makes POST requests carrying an Idempotency-Key header safe to
// retry. Keys are scoped to the authenticated user, so the middleware must
// run after RequireAuth. Requests without the header pass through.
//
// The first request reserves the key. A retry while it is in flight gets 409,
// a retry after a 2xx response gets the stored response replayed, and a
// retry with a different body gets 422. Non-2xx responses release the key.
// If the store fails the request is served without idempotency. metrics may
// be nil.
func Idempotency(store idempotency.Store, logger *slog.Logger, metrics *Metrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	count := func(o IdempotencyOutcome) {
		if metrics != nil {
			metrics.IncIdempotency(o)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if err := idempotency.ValidateKey(key); err != nil {
				if errors.Is(err, idempotency.ErrKeyTooLong) {
					writeError(w, r, http.StatusBadRequest, "idempotency_key_too_long", "Idempotency-Key exceeds maximum length of 64 characters")
					return
				}
				writeError(w, r, http.StatusBadRequest, "invalid_idempotency_key", "Invalid Idempotency-Key format")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
			if err != nil || len(body) > maxIdempotentBody {
				writeError(w, r, http.StatusBadRequest, "bad_request", "Failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			ctx := SetIdempotencyKey(r.Context(), key)
			r = r.WithContext(ctx)
			scope := GetUserID(ctx)
			requestHash := idempotency.Hash(body)

			existing, err := store.Get(ctx, scope, key)
			switch {
			case err == nil:
				count(replay(w, r, existing, requestHash, logger))
				return
			case !errors.Is(err, idempotency.ErrKeyNotFound):
				logger.ErrorContext(ctx, "failed to check idempotency key", "key", key, "error", err)
				count(IdempotencyBypassed)
				next.ServeHTTP(w, r)
				return
			}

			rec := &idempotency.Record{
				Scope:       scope,
				Key:         key,
				Method:      r.Method,
				Route:       r.URL.Path,
				RequestHash: requestHash,
				Status:      idempotency.StatusProcessing,
			}
			if err := store.Reserve(ctx, rec); err != nil {
				if errors.Is(err, idempotency.ErrKeyExists) {
					count(IdempotencyInProgress)
					writeError(w, r, http.StatusConflict, "idempotency_key_in_progress", "A request with this Idempotency-Key is already in progress")
					return
				}
				logger.ErrorContext(ctx, "failed to reserve idempotency key", "key", key, "error", err)
				count(IdempotencyBypassed)
				next.ServeHTTP(w, r)
				return
			}

			capture := &idempotencyResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			// The response is already sent; store errors are only logged.
			if capture.statusCode < 200 || capture.statusCode >= 300 {
				if err := store.Release(ctx, scope, key); err != nil {
					logger.ErrorContext(ctx, "failed to release idempotency key", "key", key, "error", err)
				}
				count(IdempotencyReleased)
				return
			}
			rec.Status = idempotency.StatusCompleted
			rec.StatusCode = capture.statusCode
			rec.Body = capture.body.String()
			rec.BodyHash = idempotency.Hash(capture.body.Bytes())
			if err := store.Complete(ctx, rec); err != nil {
				logger.ErrorContext(ctx, "failed to store idempotency key", "key", key, "error", err)
				return
			}
			count(IdempotencyStored)
			logger.DebugContext(ctx, "stored idempotency key", "key", key, "status", capture.statusCode)
		})
	}
}

func replay(w http.ResponseWriter, r *http.Request, rec *idempotency.Record, requestHash string, logger *slog.Logger) IdempotencyOutcome {
	switch {
	case rec.Status != idempotency.StatusCompleted:
		writeError(w, r, http.StatusConflict, "idempotency_key_in_progress", "A request with this Idempotency-Key is already in progress")
		return IdempotencyInProgress
	case rec.RequestHash != requestHash || rec.Route != r.URL.Path:
		writeError(w, r, http.StatusUnprocessableEntity, "idempotency_key_reused", "Idempotency-Key was already used with a different request")
		return IdempotencyReused
	default:
		logger.InfoContext(r.Context(), "idempotency key found, returning stored response",
			"key", rec.Key,
			"status", rec.StatusCode,
		)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set(IdempotentReplayHeader, "true")
		w.WriteHeader(rec.StatusCode)
		_, _ = io.WriteString(w, rec.Body)
		return IdempotencyReplayed
	}
}
