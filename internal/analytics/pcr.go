// Package analytics implements the pure, deterministic enrichment
// kernels of spec §4.A: PCR, ATM straddle, Max Pain, OI buildup, OHLC
// window updates, and IV surface assembly. Every function here is a
// function of its inputs only — no I/O, no clocks, no randomness — so
// the worker pool can call them inline without ceremony and tests can
// assert bitwise-deterministic output.
package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

// ratioScale is the rounding scale for PCR ratios (spec: 4 decimals).
const ratioScale = 4

// priceScale is the rounding scale for monetary fields (spec: 2 decimals).
const priceScale = 2

// PCRResult holds both OI- and volume-based put/call ratios.
type PCRResult struct {
	OI             decimal.Decimal
	OIUndefined    bool
	Volume         decimal.Decimal
	VolumeUndefined bool
}

// ComputePCR sums open interest and volume across calls/puts and
// derives both ratios. A zero denominator yields a rounded-zero ratio
// with the corresponding Undefined flag set, per spec §4.A / §8.
func ComputePCR(calls, puts []model.OptionQuote) PCRResult {
	var callOI, putOI, callVol, putVol int64
	for _, c := range calls {
		callOI += c.OpenInterest
		callVol += c.Volume
	}
	for _, p := range puts {
		putOI += p.OpenInterest
		putVol += p.Volume
	}

	res := PCRResult{}
	if callOI == 0 {
		res.OI = decimal.Zero
		res.OIUndefined = true
	} else {
		res.OI = decimal.NewFromInt(putOI).DivRound(decimal.NewFromInt(callOI), ratioScale)
	}
	if callVol == 0 {
		res.Volume = decimal.Zero
		res.VolumeUndefined = true
	} else {
		res.Volume = decimal.NewFromInt(putVol).DivRound(decimal.NewFromInt(callVol), ratioScale)
	}
	return res
}

// TotalOI sums open interest across a quote slice.
func TotalOI(quotes []model.OptionQuote) int64 {
	var total int64
	for _, q := range quotes {
		total += q.OpenInterest
	}
	return total
}

// OIBuildup computes the OTM open-interest buildup on each side
// relative to spot, per spec §4.A.
//
//	call_buildup_otm = sum of call OI where strike > spot
//	put_buildup_otm  = sum of put OI where strike < spot
func OIBuildup(calls, puts []model.OptionQuote, spot decimal.Decimal) (callBuildupOTM, putBuildupOTM int64) {
	for _, c := range calls {
		if decimal.NewFromInt(c.Strike).GreaterThan(spot) {
			callBuildupOTM += c.OpenInterest
		}
	}
	for _, p := range puts {
		if decimal.NewFromInt(p.Strike).LessThan(spot) {
			putBuildupOTM += p.OpenInterest
		}
	}
	return callBuildupOTM, putBuildupOTM
}
