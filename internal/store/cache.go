// Package store implements the cache/store adapter of spec §4.B: a
// typed KV cache with TTL and idempotency marking over Redis, and a
// durable document store over Postgres, plus the DLQ list primitive.
package store

import (
	"context"
	"time"
)

// MarkResult is the outcome of TryMarkOnce, the idempotency primitive.
type MarkResult int

const (
	Acquired MarkResult = iota
	AlreadySet
)

// Cache is the KV-cache half of spec §4.B's language-neutral contract.
// Implementations must return a wrapped model.ErrTransientBackend on
// backend unavailability so callers can apply the retry policy.
type Cache interface {
	// PutWithTTL upserts value at key with the given expiration.
	PutWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the value at key, or ErrAbsent if it does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key; absence is not an error.
	Delete(ctx context.Context, key string) error
	// TryMarkOnce atomically sets key with ttl iff absent — the
	// idempotency primitive of spec §4.B.
	TryMarkOnce(ctx context.Context, key string, ttl time.Duration) (MarkResult, error)
	// AppendDLQ non-blockingly appends entry to the DLQ list.
	AppendDLQ(ctx context.Context, entry []byte) error
	// ReadDLQ returns up to limit DLQ entries (oldest first) without
	// removing them — used by the operator replay tool.
	ReadDLQ(ctx context.Context, limit int64) ([][]byte, error)
	// PopDLQ pops and returns up to limit DLQ entries, oldest first.
	// Each entry is removed on its own; the batch as a whole is not
	// atomic.
	PopDLQ(ctx context.Context, limit int64) ([][]byte, error)
}

// ErrAbsent is returned by Cache.Get when key does not exist — the
// spec's "value | absent" result shape.
var ErrAbsent = absentErr{}

type absentErr struct{}

func (absentErr) Error() string { return "cache key absent" }
