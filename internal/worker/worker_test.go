package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/bus"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/store"
)

// memCache is an in-memory store.Cache for runner tests.
type memCache struct {
	mu   sync.Mutex
	vals map[string][]byte
	dlq  [][]byte
	marks map[string]bool
}

func newMemCache() *memCache {
	return &memCache{vals: make(map[string][]byte), marks: make(map[string]bool)}
}

func (c *memCache) PutWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[key]
	if !ok {
		return nil, store.ErrAbsent
	}
	return v, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vals, key)
	return nil
}

func (c *memCache) TryMarkOnce(_ context.Context, key string, _ time.Duration) (store.MarkResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.marks[key] {
		return store.AlreadySet, nil
	}
	c.marks[key] = true
	return store.Acquired, nil
}

func (c *memCache) AppendDLQ(_ context.Context, entry []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dlq = append(c.dlq, entry)
	return nil
}

func (c *memCache) ReadDLQ(_ context.Context, limit int64) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dlq, nil
}

func (c *memCache) PopDLQ(_ context.Context, limit int64) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.dlq
	c.dlq = nil
	return out, nil
}

// memDocStore is a no-op DocStore recording inserts for assertions.
type memDocStore struct {
	mu     sync.Mutex
	ticks  []model.UnderlyingTick
	chains []model.EnrichedChain
}

func (d *memDocStore) InsertTick(_ context.Context, t model.UnderlyingTick) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticks = append(d.ticks, t)
	return nil
}
func (d *memDocStore) InsertChain(_ context.Context, c model.EnrichedChain) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chains = append(d.chains, c)
	return nil
}
func (d *memDocStore) ListUnderlyingTicks(context.Context, model.Product, time.Time, time.Time, int) ([]model.UnderlyingTick, error) {
	return nil, nil
}
func (d *memDocStore) ListOptionChains(context.Context, model.Product, time.Time, time.Time, time.Time, int) ([]model.EnrichedChain, error) {
	return nil, nil
}
func (d *memDocStore) Products(context.Context) ([]model.Product, error)              { return nil, nil }
func (d *memDocStore) Expiries(context.Context, model.Product) ([]time.Time, error)   { return nil, nil }
func (d *memDocStore) Close() error                                                  { return nil }

// memBus is a no-op bus.Bus recording published messages.
type memBus struct {
	mu        sync.Mutex
	published []bus.Message
}

func (b *memBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, bus.Message{Topic: topic, Payload: payload})
	return nil
}
func (b *memBus) Subscribe(context.Context, ...string) (<-chan bus.Message, func() error) {
	ch := make(chan bus.Message)
	close(ch)
	return ch, func() error { return nil }
}

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestEnrichmentRunner_HandleTick_FirstTimeProcessesAndPublishes(t *testing.T) {
	cache := newMemCache()
	docs := &memDocStore{}
	b := &memBus{}
	r := NewEnrichmentRunner(cache, docs, b, time.Hour, zerolog.Nop())

	tick := model.UnderlyingTick{Product: "NIFTY", Price: d("21500.5"), Timestamp: time.Now().UTC(), TickID: 1}
	task := model.Task{ID: "t1", Kind: model.TaskEnrichTick, Tick: &tick}

	err := r.Handle(context.Background(), task)
	require.NoError(t, err)

	require.Len(t, docs.ticks, 1)
	require.Len(t, b.published, 1)
	assert.Equal(t, "enriched:underlying", b.published[0].Topic)
}

func TestEnrichmentRunner_HandleTick_DuplicateIsIdempotent(t *testing.T) {
	cache := newMemCache()
	docs := &memDocStore{}
	b := &memBus{}
	r := NewEnrichmentRunner(cache, docs, b, time.Hour, zerolog.Nop())

	tick := model.UnderlyingTick{Product: "NIFTY", Price: d("21500.5"), Timestamp: time.Now().UTC(), TickID: 42}
	task := model.Task{ID: "t1", Kind: model.TaskEnrichTick, Tick: &tick}

	require.NoError(t, r.Handle(context.Background(), task))
	err := r.Handle(context.Background(), task)
	assert.ErrorIs(t, err, model.ErrDuplicateEffect)
	assert.Len(t, docs.ticks, 1)
}

func TestEnrichmentRunner_HandleChain_MissingPayloadIsPermanentFailure(t *testing.T) {
	r := NewEnrichmentRunner(newMemCache(), &memDocStore{}, &memBus{}, time.Hour, zerolog.Nop())
	err := r.Handle(context.Background(), model.Task{ID: "t2", Kind: model.TaskEnrichChain})
	assert.ErrorIs(t, err, model.ErrEnvelopeInvalid)
}

func TestBackoffWithJitter_GrowsWithAttempt(t *testing.T) {
	base := 5 * time.Second
	d1 := backoffWithJitter(base, 1)
	d4 := backoffWithJitter(base, 4)
	assert.Greater(t, d4, d1/2) // exponential growth dominates jitter noise
}
