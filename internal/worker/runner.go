package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/analytics"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/bus"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/store"
)

// EnrichmentRunner is the concrete Handler binding spec §4.C's three
// task kinds to the pure kernels of internal/analytics, the cache/store
// adapter, and the re-publish bus.
type EnrichmentRunner struct {
	cache    store.Cache
	docStore store.DocStore
	bus      bus.Bus
	logger   zerolog.Logger

	idempotencyTTL time.Duration

	// ohlcLocks serializes concurrent OHLC updates for the same
	// (product, window) key, since two workers could otherwise read
	// the same cached window, both apply a tick, and race the writeback.
	ohlcLocks sync.Map // map[string]*sync.Mutex
}

func NewEnrichmentRunner(cache store.Cache, docStore store.DocStore, b bus.Bus, idempotencyTTL time.Duration, logger zerolog.Logger) *EnrichmentRunner {
	return &EnrichmentRunner{
		cache:          cache,
		docStore:       docStore,
		bus:            b,
		idempotencyTTL: idempotencyTTL,
		logger:         logger.With().Str("component", "enrichment_runner").Logger(),
	}
}

func (r *EnrichmentRunner) Handle(ctx context.Context, t model.Task) error {
	switch t.Kind {
	case model.TaskEnrichTick:
		return r.handleTick(ctx, t)
	case model.TaskEnrichChain:
		return r.handleChain(ctx, t)
	case model.TaskRecomputeOHLC:
		return r.handleRecomputeOHLC(ctx, t)
	default:
		return fmt.Errorf("%w: unknown task kind %q", model.ErrEnvelopeInvalid, t.Kind)
	}
}

func (r *EnrichmentRunner) handleTick(ctx context.Context, t model.Task) error {
	if t.Tick == nil {
		return fmt.Errorf("%w: enrich_tick task missing tick payload", model.ErrEnvelopeInvalid)
	}
	tick := *t.Tick

	idemKey := model.KeyIdempotencyTick(tick.Product, tick.TickID)
	mark, err := r.cache.TryMarkOnce(ctx, idemKey, r.idempotencyTTL)
	if err != nil {
		return err
	}
	if mark == store.AlreadySet {
		return model.ErrDuplicateEffect
	}

	windows := make(map[int64]model.OHLCWindow, len(model.SupportedWindows()))
	for _, w := range model.SupportedWindows() {
		updated, err := r.applyOHLCDecimal(ctx, tick.Product, w, tick.Price, tick.Timestamp)
		if err != nil {
			return err
		}
		windows[w.Seconds()] = *updated
	}

	latest, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("marshal tick: %w", err)
	}
	if err := r.cache.PutWithTTL(ctx, model.KeyLatestUnderlying(tick.Product), latest, model.TTLLatest); err != nil {
		return err
	}

	if err := r.docStore.InsertTick(ctx, tick); err != nil {
		return err
	}

	event := model.EnrichedUnderlyingEvent{
		UnderlyingTick: tick,
		OHLC:           windows,
		ProcessedAt:    time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal enriched underlying event: %w", err)
	}
	if err := r.bus.Publish(ctx, string(model.TopicEnrichedUnderlying), payload); err != nil {
		r.logger.Warn().Err(err).Msg("publish enriched underlying event failed")
	}
	return nil
}

// applyOHLCDecimal loads the cached window for (product, w), applies
// price at ts, and writes the result back with the window's TTL.
// Concurrent calls for the same (product, w) are serialized so two
// workers processing ticks for the same product can't race the
// read-modify-write of the cached window.
func (r *EnrichmentRunner) applyOHLCDecimal(ctx context.Context, product model.Product, w model.WindowSize, price decimal.Decimal, ts time.Time) (*model.OHLCWindow, error) {
	lockKey := fmt.Sprintf("%s:%d", product, w.Seconds())
	lockIface, _ := r.ohlcLocks.LoadOrStore(lockKey, &sync.Mutex{})
	lock := lockIface.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	key := model.KeyOHLC(product, w)
	var existing *model.OHLCWindow
	raw, err := r.cache.Get(ctx, key)
	switch {
	case err == nil:
		var win model.OHLCWindow
		if uerr := json.Unmarshal(raw, &win); uerr != nil {
			return nil, fmt.Errorf("unmarshal cached OHLC window: %w", uerr)
		}
		existing = &win
	case err == store.ErrAbsent:
		existing = nil
	default:
		return nil, err
	}

	updated := analytics.UpdateWindow(existing, product, w, price, ts)

	payload, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("marshal OHLC window: %w", err)
	}
	if err := r.cache.PutWithTTL(ctx, key, payload, model.TTLForOHLC(w)); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *EnrichmentRunner) handleChain(ctx context.Context, t model.Task) error {
	if t.Chain == nil {
		return fmt.Errorf("%w: enrich_chain task missing chain payload", model.ErrEnvelopeInvalid)
	}
	chain := *t.Chain
	if err := chain.Validate(); err != nil {
		return err
	}

	idemKey := model.KeyIdempotencyChain(chain.Product, chain.Expiry, chainHash(chain))
	mark, err := r.cache.TryMarkOnce(ctx, idemKey, r.idempotencyTTL)
	if err != nil {
		return err
	}
	if mark == store.AlreadySet {
		return model.ErrDuplicateEffect
	}

	enriched := analytics.EnrichOptionChain(chain, time.Now().UTC())

	surfaceRaw, err := r.cache.Get(ctx, model.KeyIVSurface(chain.Product))
	var existingSurface []model.IVSurfacePoint
	if err == nil {
		_ = json.Unmarshal(surfaceRaw, &existingSurface)
	} else if err != store.ErrAbsent {
		return err
	}
	fresh := analytics.BuildIVSurface(chain)
	merged := analytics.MergeIVSurface(existingSurface, chain.Product, chain.Expiry, fresh)
	surfacePayload, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal IV surface: %w", err)
	}
	if err := r.cache.PutWithTTL(ctx, model.KeyIVSurface(chain.Product), surfacePayload, model.TTLLatest); err != nil {
		return err
	}

	chainPayload, err := json.Marshal(enriched)
	if err != nil {
		return fmt.Errorf("marshal enriched chain: %w", err)
	}
	if err := r.cache.PutWithTTL(ctx, model.KeyLatestChain(chain.Product, chain.Expiry), chainPayload, model.TTLLatest); err != nil {
		return err
	}
	pcrPayload, err := json.Marshal(analytics.PCRResult{
		OI:          enriched.PCROI,
		OIUndefined: enriched.PCROIUndefined,
		Volume:      enriched.PCRVolume,
		VolumeUndefined: enriched.PCRVolUndefined,
	})
	if err != nil {
		return fmt.Errorf("marshal PCR: %w", err)
	}
	if err := r.cache.PutWithTTL(ctx, model.KeyLatestPCR(chain.Product, chain.Expiry), pcrPayload, model.TTLLatest); err != nil {
		return err
	}

	if err := r.docStore.InsertChain(ctx, enriched); err != nil {
		return err
	}

	if err := r.bus.Publish(ctx, string(model.TopicEnrichedOptionChain), chainPayload); err != nil {
		r.logger.Warn().Err(err).Msg("publish enriched chain event failed")
	}
	return nil
}

func (r *EnrichmentRunner) handleRecomputeOHLC(ctx context.Context, t model.Task) error {
	if t.OHLC == nil {
		return fmt.Errorf("%w: recompute_ohlc task missing payload", model.ErrEnvelopeInvalid)
	}
	// Recomputation is a cache-repair operation (e.g. after a TTL
	// eviction or an operator-triggered DLQ replay): reload the latest
	// underlying tick and reapply it to the named window.
	raw, err := r.cache.Get(ctx, model.KeyLatestUnderlying(t.OHLC.Product))
	if err == store.ErrAbsent {
		return fmt.Errorf("%w: no latest tick to recompute window from", model.ErrInvariantViolation)
	}
	if err != nil {
		return err
	}
	var tick model.UnderlyingTick
	if err := json.Unmarshal(raw, &tick); err != nil {
		return fmt.Errorf("unmarshal latest tick: %w", err)
	}
	_, err = r.applyOHLCDecimal(ctx, t.OHLC.Product, t.OHLC.Window, tick.Price, tick.Timestamp)
	return err
}

func chainHash(c model.OptionChain) string {
	return fmt.Sprintf("%d-%d", len(c.Strikes), c.Timestamp.UnixNano())
}
