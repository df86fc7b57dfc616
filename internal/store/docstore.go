package store

import (
	"context"
	"time"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

// DocStore is the durable half of spec §4.B's adapter contract: every
// accepted tick and enriched chain is appended here for later range
// queries, independent of what remains in the TTL cache.
type DocStore interface {
	InsertTick(ctx context.Context, t model.UnderlyingTick) error
	InsertChain(ctx context.Context, c model.EnrichedChain) error

	ListUnderlyingTicks(ctx context.Context, product model.Product, from, to time.Time, limit int) ([]model.UnderlyingTick, error)
	ListOptionChains(ctx context.Context, product model.Product, expiry time.Time, from, to time.Time, limit int) ([]model.EnrichedChain, error)

	Products(ctx context.Context) ([]model.Product, error)
	Expiries(ctx context.Context, product model.Product) ([]time.Time, error)

	Close() error
}
