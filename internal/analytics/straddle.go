package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

// ATMStrike picks the strike closest to spot, ties broken toward the
// lower strike (spec §4.A). strikes must be the chain's sorted strike
// sequence and is assumed non-empty; callers validate the chain first.
func ATMStrike(strikes []int64, spot decimal.Decimal) int64 {
	best := strikes[0]
	bestDist := spot.Sub(decimal.NewFromInt(best)).Abs()
	for _, k := range strikes[1:] {
		dist := spot.Sub(decimal.NewFromInt(k)).Abs()
		switch {
		case dist.LessThan(bestDist):
			best, bestDist = k, dist
		case dist.Equal(bestDist) && k < best:
			best = k
		}
	}
	return best
}

// ATMIndex returns the index of strike within strikes, or -1. strikes
// is small (tens of entries) so a linear scan is adequate.
func ATMIndex(strikes []int64, strike int64) int {
	for i, k := range strikes {
		if k == strike {
			return i
		}
	}
	return -1
}

// ATMStraddlePrice sums the ATM call and put last prices, rounded to
// the monetary scale (spec §4.A).
func ATMStraddlePrice(calls, puts []model.OptionQuote, atmIndex int) decimal.Decimal {
	return calls[atmIndex].Last.Add(puts[atmIndex].Last).Round(priceScale)
}
