package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/broker"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/bus"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

type fakeBus struct {
	ch chan bus.Message
}

func newFakeBus() *fakeBus { return &fakeBus{ch: make(chan bus.Message, 16)} }

func (f *fakeBus) Publish(_ context.Context, topic string, payload []byte) error {
	f.ch <- bus.Message{Topic: topic, Payload: payload}
	return nil
}
func (f *fakeBus) Subscribe(context.Context, ...string) (<-chan bus.Message, func() error) {
	return f.ch, func() error { return nil }
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []model.Task
	depth int64
}

func (q *fakeQueue) Enqueue(_ context.Context, t model.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return nil
}
func (q *fakeQueue) Dequeue(context.Context, time.Duration) (*broker.Delivery, error) { return nil, nil }
func (q *fakeQueue) Ack(context.Context, *broker.Delivery) error                      { return nil }
func (q *fakeQueue) Nack(context.Context, *broker.Delivery) error                     { return nil }
func (q *fakeQueue) Depth(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.depth, nil
}

func TestSubscriber_ValidTickIsEnqueued(t *testing.T) {
	b := newFakeBus()
	q := &fakeQueue{}
	s := NewSubscriber(b, q, nil, Config{HighWatermark: 100, LowWatermark: 10, PollInterval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	go func() { _ = s.Run(ctx) }()

	tick := model.UnderlyingTick{Product: "NIFTY", Price: decimal.NewFromInt(21500), Timestamp: time.Now().UTC(), TickID: 1}
	data, _ := json.Marshal(tick)
	env := model.RawEnvelope{Kind: model.RawUnderlyingTick, Data: data}
	payload, _ := json.Marshal(env)
	b.ch <- bus.Message{Topic: string(model.TopicRawUnderlying), Payload: payload}

	time.Sleep(50 * time.Millisecond)
	q.mu.Lock()
	defer q.mu.Unlock()
	require.Len(t, q.tasks, 1)
	assert.Equal(t, model.TaskEnrichTick, q.tasks[0].Kind)
}

func TestSubscriber_MalformedEnvelopeIsRejectedNotEnqueued(t *testing.T) {
	b := newFakeBus()
	q := &fakeQueue{}
	s := NewSubscriber(b, q, nil, Config{HighWatermark: 100, LowWatermark: 10, PollInterval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	b.ch <- bus.Message{Topic: string(model.TopicRawUnderlying), Payload: []byte("not json")}

	time.Sleep(50 * time.Millisecond)
	q.mu.Lock()
	defer q.mu.Unlock()
	assert.Len(t, q.tasks, 0)
	assert.Equal(t, int64(1), s.Stats().Rejected)
}

func TestSubscriber_PausesAboveHighWatermark(t *testing.T) {
	b := newFakeBus()
	q := &fakeQueue{depth: 1000}
	s := NewSubscriber(b, q, nil, Config{HighWatermark: 500, LowWatermark: 100, PollInterval: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	assert.True(t, s.Stats().Paused)
}
