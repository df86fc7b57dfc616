package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

// UpdateWindow folds one tick into a window, creating it if nil. It is
// the pure half of spec §4.A's streaming OHLC update; the worker pool
// owns the per-(product, window) mutex around the call (spec §5) and
// the read/write to the cache-resident window.
func UpdateWindow(existing *model.OHLCWindow, product model.Product, w model.WindowSize, price decimal.Decimal, ts time.Time) *model.OHLCWindow {
	start, end := model.WindowBounds(ts, w)

	if existing == nil || existing.TStart != start {
		// No window yet, or ts belongs to a different window than the
		// one currently tracked — start fresh. A tick at exactly TEnd
		// belongs to the next window (spec §8 boundary behavior),
		// which WindowBounds already handles via floor division.
		existing = model.NewOHLCWindow(product, w, ts)
	}
	existing.Apply(price, ts)
	return existing
}
