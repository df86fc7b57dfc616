package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// twoStrikeChain builds the E2E-3 fixture from spec §8.
func twoStrikeChain() model.OptionChain {
	expiry := time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC)
	return model.OptionChain{
		Product:   "NIFTY",
		Expiry:    expiry,
		SpotPrice: d("21543.25"),
		Strikes:   []int64{21500, 21600},
		Calls: []model.OptionQuote{
			{Symbol: "NIFTY20250130C21500", Strike: 21500, OptionType: model.Call, OpenInterest: 100, Last: d("70")},
			{Symbol: "NIFTY20250130C21600", Strike: 21600, OptionType: model.Call, OpenInterest: 300, Last: d("20")},
		},
		Puts: []model.OptionQuote{
			{Symbol: "NIFTY20250130P21500", Strike: 21500, OptionType: model.Put, OpenInterest: 200, Last: d("60")},
			{Symbol: "NIFTY20250130P21600", Strike: 21600, OptionType: model.Put, OpenInterest: 100, Last: d("120")},
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestComputePCR(t *testing.T) {
	chain := twoStrikeChain()
	res := ComputePCR(chain.Calls, chain.Puts)
	// put OI = 300, call OI = 400 -> 0.75
	assert.True(t, res.OI.Equal(d("0.75")), "got %s", res.OI)
	assert.False(t, res.OIUndefined)
}

func TestComputePCR_ZeroDenominator(t *testing.T) {
	calls := []model.OptionQuote{{Strike: 100, OpenInterest: 0, Volume: 0}}
	puts := []model.OptionQuote{{Strike: 100, OpenInterest: 50, Volume: 5}}
	res := ComputePCR(calls, puts)
	assert.True(t, res.OI.IsZero())
	assert.True(t, res.OIUndefined)
	assert.True(t, res.Volume.IsZero())
	assert.True(t, res.VolumeUndefined)
}

func TestATMStrike_ClosestToSpot(t *testing.T) {
	chain := twoStrikeChain()
	atm := ATMStrike(chain.Strikes, chain.SpotPrice)
	assert.Equal(t, int64(21500), atm)
}

func TestATMStrike_Tiebreak_LowerWins(t *testing.T) {
	// spot exactly between two strikes -> lower wins.
	strikes := []int64{100, 200}
	atm := ATMStrike(strikes, d("150"))
	assert.Equal(t, int64(100), atm)
}

func TestATMStraddlePrice(t *testing.T) {
	chain := twoStrikeChain()
	idx := ATMIndex(chain.Strikes, 21500)
	require.Equal(t, 0, idx)
	straddle := ATMStraddlePrice(chain.Calls, chain.Puts, idx)
	assert.True(t, straddle.Equal(d("130")), "got %s", straddle)
}

func TestMaxPain_SingleStrike(t *testing.T) {
	calls := []model.OptionQuote{{Strike: 100, OpenInterest: 10}}
	puts := []model.OptionQuote{{Strike: 100, OpenInterest: 20}}
	mp := MaxPain([]int64{100}, calls, puts, d("100"))
	assert.Equal(t, int64(100), mp)
}

func TestMaxPain_MinimizesPain(t *testing.T) {
	chain := twoStrikeChain()
	mp := MaxPain(chain.Strikes, chain.Calls, chain.Puts, chain.SpotPrice)
	for _, k := range chain.Strikes {
		assert.LessOrEqual(t, pain(mp, chain.Strikes, chain.Calls, chain.Puts), pain(k, chain.Strikes, chain.Calls, chain.Puts))
	}
	// With this fixture pain(21500)==pain(21600)==10000 (a genuine tie
	// under the formula in spec §4.A); the tie-break picks the strike
	// closest to spot, which is 21500.
	assert.Equal(t, int64(21500), mp)
}

func TestOIBuildup(t *testing.T) {
	chain := twoStrikeChain()
	callBuildup, putBuildup := OIBuildup(chain.Calls, chain.Puts, chain.SpotPrice)
	// call strike 21600 > spot -> 300; call strike21500 <= spot -> excluded
	assert.Equal(t, int64(300), callBuildup)
	// put strike 21500 < spot -> 200; put strike21600 >= spot -> excluded
	assert.Equal(t, int64(200), putBuildup)
}

func TestUpdateWindow_OpenHighLowClose(t *testing.T) {
	base := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	w := UpdateWindow(nil, "NIFTY", model.Window1m, d("100"), base)
	require.NotNil(t, w)
	assert.True(t, w.Open.Equal(d("100")))
	assert.True(t, w.High.Equal(d("100")))
	assert.True(t, w.Low.Equal(d("100")))
	assert.True(t, w.Close.Equal(d("100")))

	w = UpdateWindow(w, "NIFTY", model.Window1m, d("110"), base.Add(10*time.Second))
	assert.True(t, w.High.Equal(d("110")))
	assert.True(t, w.Close.Equal(d("110")))
	assert.True(t, w.Open.Equal(d("100")))

	w = UpdateWindow(w, "NIFTY", model.Window1m, d("90"), base.Add(20*time.Second))
	assert.True(t, w.Low.Equal(d("90")))
	assert.True(t, w.Close.Equal(d("90")))
}

func TestUpdateWindow_LateArrivalKeepsEarliestAsOpen(t *testing.T) {
	base := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	w := UpdateWindow(nil, "NIFTY", model.Window1m, d("100"), base.Add(30*time.Second))
	// A tick that arrived later in wall-clock time but carries an
	// earlier in-window timestamp must still become Open.
	w = UpdateWindow(w, "NIFTY", model.Window1m, d("95"), base.Add(5*time.Second))
	assert.True(t, w.Open.Equal(d("95")), "got %s", w.Open)
}

func TestUpdateWindow_BoundaryTickBelongsToNextWindow(t *testing.T) {
	tEnd := time.Date(2025, 1, 15, 10, 31, 0, 0, time.UTC) // exactly the 60s boundary
	w := UpdateWindow(nil, "NIFTY", model.Window1m, d("100"), tEnd)
	start, end := model.WindowBounds(tEnd, model.Window1m)
	assert.Equal(t, tEnd, start)
	assert.True(t, w.TStart.Equal(tEnd))
	assert.True(t, w.TEnd.Equal(end))
}

func TestBuildIVSurface_SortedByStrike(t *testing.T) {
	chain := twoStrikeChain()
	chain.Calls[0].IV = d("0.15")
	chain.Calls[1].IV = d("0.18")
	chain.Puts[0].IV = d("0.16")
	chain.Puts[1].IV = d("0.19")
	points := BuildIVSurface(chain)
	require.Len(t, points, 4)
	for i := 1; i < len(points); i++ {
		assert.LessOrEqual(t, points[i-1].Strike, points[i].Strike)
	}
}

func TestMergeIVSurface_ReplacesOnlyMatchingExpiry(t *testing.T) {
	expiryA := time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC)
	expiryB := time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC)
	existing := []model.IVSurfacePoint{
		{Product: "NIFTY", Expiry: expiryA, Strike: 21500, IV: d("0.1")},
		{Product: "NIFTY", Expiry: expiryB, Strike: 21500, IV: d("0.2")},
	}
	fresh := []model.IVSurfacePoint{{Product: "NIFTY", Expiry: expiryA, Strike: 21500, IV: d("0.99")}}
	merged := MergeIVSurface(existing, "NIFTY", expiryA, fresh)
	require.Len(t, merged, 2)
	for _, p := range merged {
		if p.Expiry.Equal(expiryA) {
			assert.True(t, p.IV.Equal(d("0.99")))
		} else {
			assert.True(t, p.IV.Equal(d("0.2")))
		}
	}
}

func TestEnrichOptionChain_E2E3(t *testing.T) {
	chain := twoStrikeChain()
	require.NoError(t, chain.Validate())
	enriched := EnrichOptionChain(chain, time.Now().UTC())
	assert.True(t, enriched.PCROI.Equal(d("0.75")))
	assert.Equal(t, int64(21500), enriched.ATMStrike)
	assert.True(t, enriched.ATMStraddlePrice.Equal(d("130")))
	assert.Equal(t, int64(400), enriched.TotalCallOI)
	assert.Equal(t, int64(300), enriched.TotalPutOI)
}
