package analytics

import (
	"sort"
	"time"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

// BuildIVSurface assembles the set of IVSurfacePoint for one
// (product, expiry) from an enriched chain's calls+puts, sorted by
// strike; MergeIVSurface swaps them in for any prior points of that
// pair (spec §4.A). Calls and puts carry
// distinct IVs at the same strike; both are kept as separate points so
// a strike-range query sees the full smile on both sides.
func BuildIVSurface(chain model.OptionChain) []model.IVSurfacePoint {
	points := make([]model.IVSurfacePoint, 0, len(chain.Calls)+len(chain.Puts))
	for _, q := range chain.Calls {
		points = append(points, model.IVSurfacePoint{Product: chain.Product, Expiry: chain.Expiry, Strike: q.Strike, IV: q.IV})
	}
	for _, q := range chain.Puts {
		points = append(points, model.IVSurfacePoint{Product: chain.Product, Expiry: chain.Expiry, Strike: q.Strike, IV: q.IV})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Strike < points[j].Strike })
	return points
}

// MergeIVSurface replaces every point belonging to (product, expiry)
// within an existing product-wide surface with fresh points, leaving
// points for other expiries of the same product untouched, then
// re-sorts by (expiry, strike) as required for range queries.
func MergeIVSurface(existing []model.IVSurfacePoint, product model.Product, expiry time.Time, fresh []model.IVSurfacePoint) []model.IVSurfacePoint {
	merged := make([]model.IVSurfacePoint, 0, len(existing)+len(fresh))
	for _, p := range existing {
		if p.Product == product && p.Expiry.Equal(expiry) {
			continue
		}
		merged = append(merged, p)
	}
	merged = append(merged, fresh...)
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Expiry.Equal(merged[j].Expiry) {
			return merged[i].Expiry.Before(merged[j].Expiry)
		}
		return merged[i].Strike < merged[j].Strike
	})
	return merged
}

// StrikeRange filters a surface slice (already sorted by strike within
// an expiry) to [lo, hi] inclusive, for the range-query contract of
// spec §4.A.
func StrikeRange(surface []model.IVSurfacePoint, lo, hi int64) []model.IVSurfacePoint {
	out := make([]model.IVSurfacePoint, 0, len(surface))
	for _, p := range surface {
		if p.Strike >= lo && p.Strike <= hi {
			out = append(out, p)
		}
	}
	return out
}
