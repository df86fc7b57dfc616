package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

// MaxPain computes the strike that minimizes aggregate option-holder
// payout (spec §4.A):
//
//	pain(K) = Σ_calls ci.OI · max(0, K − ci.Strike)
//	        + Σ_puts  pi.OI · max(0, pi.Strike − K)
//
// Ties are broken toward the strike closest to spot, then toward the
// lower strike.
//
// This is the naive O(n²) form — for every candidate K it walks every
// strike. A running prefix-sum form (accumulate Σ OI and Σ OI·Strike
// while sweeping K in ascending order) computes the same result in
// O(n) and is a reasonable optimization if |strikes| grows large
// enough for this to matter; the spec explicitly permits either.
func MaxPain(strikes []int64, calls, puts []model.OptionQuote, spot decimal.Decimal) int64 {
	best := strikes[0]
	bestPain := pain(best, strikes, calls, puts)
	bestDist := spot.Sub(decimal.NewFromInt(best)).Abs()

	for _, k := range strikes[1:] {
		p := pain(k, strikes, calls, puts)
		dist := spot.Sub(decimal.NewFromInt(k)).Abs()
		switch {
		case p < bestPain:
			best, bestPain, bestDist = k, p, dist
		case p == bestPain && dist.LessThan(bestDist):
			best, bestDist = k, dist
		case p == bestPain && dist.Equal(bestDist) && k < best:
			best = k
		}
	}
	return best
}

// pain evaluates the payout function at a single candidate strike.
// Open interest and strikes are integers, so the running total stays
// exact in int64 without needing decimal arithmetic.
func pain(k int64, strikes []int64, calls, puts []model.OptionQuote) int64 {
	var total int64
	for _, c := range calls {
		if d := k - c.Strike; d > 0 {
			total += c.OpenInterest * d
		}
	}
	for _, p := range puts {
		if d := p.Strike - k; d > 0 {
			total += p.OpenInterest * d
		}
	}
	return total
}
