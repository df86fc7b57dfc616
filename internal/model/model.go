// Package model defines the DeltaStream data model: raw market events,
// enriched analytics views, and the small set of identifiers used to
// route and deduplicate them through the pipeline.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product identifies an underlying instrument, e.g. "NIFTY".
type Product string

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// WindowSize is a supported OHLC aggregation window.
type WindowSize time.Duration

const (
	Window1m  WindowSize = WindowSize(60 * time.Second)
	Window5m  WindowSize = WindowSize(300 * time.Second)
	Window15m WindowSize = WindowSize(900 * time.Second)
)

// Seconds returns the window size in whole seconds, the unit used in
// cache keys and topic names.
func (w WindowSize) Seconds() int64 { return int64(time.Duration(w).Seconds()) }

// SupportedWindows enumerates every window the pipeline maintains.
func SupportedWindows() []WindowSize { return []WindowSize{Window1m, Window5m, Window15m} }

// UnderlyingTick is a single price observation for a Product.
//
// Invariant: (Product, TickID) is unique across the lifetime of the
// pipeline — TickID is assigned by the ingest side, monotonically per
// product, and is the basis of the idempotency key for this tick.
type UnderlyingTick struct {
	Product   Product         `json:"product"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	TickID    int64           `json:"tick_id"`
}

// OptionQuote is one strike/expiry/side quote within an OptionChain.
type OptionQuote struct {
	Symbol       string          `json:"symbol"`
	Product      Product         `json:"product"`
	Strike       int64           `json:"strike"`
	Expiry       time.Time       `json:"expiry"`
	OptionType   OptionType      `json:"option_type"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	Last         decimal.Decimal `json:"last"`
	Volume       int64           `json:"volume"`
	OpenInterest int64           `json:"open_interest"`
	Greeks       Greeks          `json:"greeks"`
	IV           decimal.Decimal `json:"iv"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Greeks are informational, sourced verbatim from the upstream feed.
// DeltaStream never recomputes them (see spec §9 Open Questions).
type Greeks struct {
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Vega  decimal.Decimal `json:"vega"`
	Theta decimal.Decimal `json:"theta"`
}

// CanonicalSymbol builds the `{product}{YYYYMMDD}{C|P}{strike}` symbol
// form fixed by spec §3.
func CanonicalSymbol(product Product, expiry time.Time, ot OptionType, strike int64) string {
	side := "C"
	if ot == Put {
		side = "P"
	}
	return fmt.Sprintf("%s%s%s%d", product, expiry.UTC().Format("20060102"), side, strike)
}

// OptionChain is an atomic snapshot of one expiry of one product.
//
// Invariant: len(Strikes) == len(Calls) == len(Puts), and
// Calls[i].Strike == Puts[i].Strike == Strikes[i] for every i.
type OptionChain struct {
	Product   Product         `json:"product"`
	Expiry    time.Time       `json:"expiry"`
	SpotPrice decimal.Decimal `json:"spot_price"`
	Strikes   []int64         `json:"strikes"`
	Calls     []OptionQuote   `json:"calls"`
	Puts      []OptionQuote   `json:"puts"`
	Timestamp time.Time       `json:"timestamp"`
}

// Validate checks the chain structural invariant (spec §8 property 2)
// and the per-quote sanity rules the ingest subscriber must enforce
// (spec §4.D): bid<=last<=ask, non-negative OI.
func (c OptionChain) Validate() error {
	n := len(c.Strikes)
	if len(c.Calls) != n || len(c.Puts) != n {
		return fmt.Errorf("%w: |calls|=%d |puts|=%d |strikes|=%d", ErrInvariantViolation, len(c.Calls), len(c.Puts), n)
	}
	for i, k := range c.Strikes {
		if c.Calls[i].Strike != k || c.Puts[i].Strike != k {
			return fmt.Errorf("%w: strike misalignment at index %d", ErrInvariantViolation, i)
		}
		for _, q := range []OptionQuote{c.Calls[i], c.Puts[i]} {
			if q.Bid.GreaterThan(q.Last) || q.Last.GreaterThan(q.Ask) {
				return fmt.Errorf("%w: bid<=last<=ask violated for %s", ErrInvariantViolation, q.Symbol)
			}
			if q.OpenInterest < 0 || q.Volume < 0 {
				return fmt.Errorf("%w: negative OI/volume for %s", ErrInvariantViolation, q.Symbol)
			}
		}
	}
	return nil
}

// EnrichedChain is an OptionChain augmented with the analytics fields
// computed by internal/analytics (spec §3, §4.A).
type EnrichedChain struct {
	OptionChain
	PCROI            decimal.Decimal `json:"pcr_oi"`
	PCROIUndefined   bool            `json:"pcr_oi_undefined"`
	PCRVolume        decimal.Decimal `json:"pcr_volume"`
	PCRVolUndefined  bool            `json:"pcr_volume_undefined"`
	ATMStrike        int64           `json:"atm_strike"`
	ATMStraddlePrice decimal.Decimal `json:"atm_straddle_price"`
	MaxPainStrike    int64           `json:"max_pain_strike"`
	TotalCallOI      int64           `json:"total_call_oi"`
	TotalPutOI       int64           `json:"total_put_oi"`
	CallBuildupOTM   int64           `json:"call_buildup_otm"`
	PutBuildupOTM    int64           `json:"put_buildup_otm"`
	ProcessedAt      time.Time       `json:"processed_at"`
}

// OHLCWindow tracks one live or frozen aggregation window for a product.
//
// OpenTS is the timestamp of the tick currently supplying Open; it is
// tracked (rather than relying on arrival order) so that a late-arriving
// tick whose timestamp precedes every tick seen so far still wins Open,
// per spec §5's ordering guarantee.
type OHLCWindow struct {
	Product Product         `json:"product"`
	Window  WindowSize      `json:"window"`
	Open    decimal.Decimal `json:"open"`
	High    decimal.Decimal `json:"high"`
	Low     decimal.Decimal `json:"low"`
	Close   decimal.Decimal `json:"close"`
	TStart  time.Time       `json:"t_start"`
	TEnd    time.Time       `json:"t_end"`
	OpenTS  time.Time       `json:"open_ts"`
	CloseTS time.Time       `json:"close_ts"`
}

// WindowBounds computes [t_start, t_end) for a tick timestamp and
// window size, per spec §4.A: t_start = floor(ts/W)*W.
func WindowBounds(ts time.Time, w WindowSize) (start, end time.Time) {
	secs := time.Duration(w).Seconds()
	epoch := ts.Unix()
	startUnix := (epoch / int64(secs)) * int64(secs)
	start = time.Unix(startUnix, 0).UTC()
	end = start.Add(time.Duration(w))
	return start, end
}

// Apply folds a tick into the window in place, honoring the OpenTS/
// CloseTS monotonicity guard described in spec §5.
func (w *OHLCWindow) Apply(price decimal.Decimal, ts time.Time) {
	if w.OpenTS.IsZero() || ts.Before(w.OpenTS) {
		w.Open = price
		w.OpenTS = ts
	}
	if w.High.IsZero() || price.GreaterThan(w.High) {
		w.High = price
	}
	if w.Low.IsZero() || price.LessThan(w.Low) {
		w.Low = price
	}
	if w.CloseTS.IsZero() || !ts.Before(w.CloseTS) {
		w.Close = price
		w.CloseTS = ts
	}
}

// NewOHLCWindow seeds a fresh window from the first tick it sees.
func NewOHLCWindow(product Product, w WindowSize, ts time.Time) *OHLCWindow {
	start, end := WindowBounds(ts, w)
	win := &OHLCWindow{Product: product, Window: w, TStart: start, TEnd: end}
	return win
}

// IVSurfacePoint is one (expiry, strike) implied-volatility observation.
type IVSurfacePoint struct {
	Product Product         `json:"product"`
	Expiry  time.Time       `json:"expiry"`
	Strike  int64           `json:"strike"`
	IV      decimal.Decimal `json:"iv"`
}

// DLQEntry is an append-only record of a permanently failed task.
type DLQEntry struct {
	ID       string          `json:"id"`
	TaskKind string          `json:"task_kind"`
	TaskID   string          `json:"task_id"`
	Error    string          `json:"error"`
	Args     []byte          `json:"args"`
	FailedAt time.Time       `json:"failed_at"`
	Attempts int             `json:"attempts"`
}
