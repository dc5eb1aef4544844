// Package idempotency stores the outcome of requests made with an
// Idempotency-Key header so that retries replay the first response instead of
// repeating its side effects.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Record statuses. A processing record reserves the key while the first
// request is in flight.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

var (
	// ErrKeyNotFound is returned when an idempotency key is not found.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists is returned when reserving a key that is already stored.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey is returned when the key is empty or contains
	// characters outside printable ASCII.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong is returned when the key exceeds maximum length.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// MaxKeyLength is the maximum allowed length for an idempotency key.
const MaxKeyLength = 64

// DefaultExpiry is how long a completed response is replayed.
const DefaultExpiry = 24 * time.Hour

// Record is a stored idempotency key. Keys are scoped per caller so two
// accounts may use the same key independently.
type Record struct {
	Scope       string    `json:"scope"`
	Key         string    `json:"key"`
	Method      string    `json:"method"`
	Route       string    `json:"route"`
	RequestHash string    `json:"request_hash"`
	Status      string    `json:"status"`
	StatusCode  int       `json:"status_code,omitempty"`
	Body        string    `json:"body,omitempty"`
	BodyHash    string    `json:"body_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValidateKey checks that key is non-empty printable ASCII of at most
// MaxKeyLength bytes.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return ErrInvalidKey
		}
	}
	return nil
}

// Hash returns the hex SHA-256 of data. It fingerprints request bodies, so a
// key reused with a different payload can be refused, and stored responses.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Store persists idempotency records.
type Store interface {
	// Get returns the record for (scope, key) or ErrKeyNotFound.
	Get(ctx context.Context, scope, key string) (*Record, error)

	// Reserve stores a processing record. It returns ErrKeyExists when
	// the key is already present.
	Reserve(ctx context.Context, rec *Record) error

	// Complete replaces the reservation with the completed record.
	Complete(ctx context.Context, rec *Record) error

	// Release drops a reservation so the request can be retried.
	Release(ctx context.Context, scope, key string) error
}
