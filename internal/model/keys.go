package model

import (
	"fmt"
	"time"
)

// Key builders for the exhaustive grammar of spec §4.B. Centralizing
// them here means the cache adapter, the worker pool, and the query
// surface can never drift on a key format.

func KeyLatestUnderlying(p Product) string { return fmt.Sprintf("latest:underlying:%s", p) }

func KeyLatestOption(symbol string) string { return fmt.Sprintf("latest:option:%s", symbol) }

func KeyLatestChain(p Product, expiry time.Time) string {
	return fmt.Sprintf("latest:chain:%s:%s", p, expiry.UTC().Format("20060102"))
}

func KeyLatestPCR(p Product, expiry time.Time) string {
	return fmt.Sprintf("latest:pcr:%s:%s", p, expiry.UTC().Format("20060102"))
}

func KeyOHLC(p Product, w WindowSize) string { return fmt.Sprintf("ohlc:%s:%d", p, w.Seconds()) }

func KeyIVSurface(p Product) string { return fmt.Sprintf("iv_surface:%s", p) }

func KeyIdempotencyTick(p Product, tickID int64) string {
	return fmt.Sprintf("processed:underlying:%s:%d", p, tickID)
}

func KeyIdempotencyChain(p Product, expiry time.Time, chainHash string) string {
	return fmt.Sprintf("processed:chain:%s:%s:%s", p, expiry.UTC().Format("20060102"), chainHash)
}

const KeyDLQEnrichment = "dlq:enrichment"

// TTLs fixed by the spec's key grammar table.
const (
	TTLLatest      = 300 * time.Second
	TTLIdempotency = 3600 * time.Second
)

// TTLForOHLC returns the window's own duration, per the key grammar
// table ("ohlc:{P}:{W}" TTL == W).
func TTLForOHLC(w WindowSize) time.Duration { return time.Duration(w) }

// Room name builders for the fan-out gateway (spec §3, §4.E).
const RoomGeneral = "general"

func RoomProduct(p Product) string { return fmt.Sprintf("product:%s", p) }

func RoomChain(p Product) string { return fmt.Sprintf("chain:%s", p) }
