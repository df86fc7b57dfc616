// Package broker implements spec §4.C's durable task queue: at-least-once
// delivery with late acknowledgement, a redis-backed reliable-queue
// pattern (BRPOPLPUSH into a processing list, survivable across worker
// crashes), and a circuit breaker over sustained backend failure.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

const (
	queueKey      = "broker:tasks"
	processingKey = "broker:tasks:processing"
)

// Delivery wraps a dequeued Task with the processing-list payload
// needed to Ack or Nack it.
type Delivery struct {
	Task    model.Task
	raw     string
}

// Queue is the durable task queue contract spec §4.C's worker pool
// binds against — prefetch=1 semantics come from callers only
// requesting one Dequeue at a time per worker goroutine.
type Queue interface {
	Enqueue(ctx context.Context, t model.Task) error
	// Dequeue blocks up to timeout for the next task, moving it onto
	// the processing list until Ack or Nack is called.
	Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// Nack returns the task to the head of the queue for redelivery.
	Nack(ctx context.Context, d *Delivery) error
	// Depth reports the current queue backlog, used for the
	// high/low watermark backpressure check of spec §4.D.
	Depth(ctx context.Context) (int64, error)
}

// RedisQueue implements Queue using a BRPOPLPUSH reliable-queue over a
// single Redis list pair, matching the teacher's habit of reusing one
// redis.Client across adapters (see redisclient.New).
type RedisQueue struct {
	c *redis.Client
	cb *CircuitBreaker
}

func NewRedisQueue(c *redis.Client, cb *CircuitBreaker) *RedisQueue {
	return &RedisQueue{c: c, cb: cb}
}

func (q *RedisQueue) Enqueue(ctx context.Context, t model.Task) error {
	raw, err := t.Marshal()
	if err != nil {
		return err
	}
	err = q.c.LPush(ctx, queueKey, raw).Err()
	return q.wrap(err, "enqueue")
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := q.c.BRPopLPush(ctx, queueKey, processingKey, timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, q.wrap(err, "dequeue")
	}
	task, err := model.UnmarshalTask([]byte(raw))
	if err != nil {
		// A malformed entry can never be processed; drop it from the
		// processing list so it doesn't wedge the queue forever.
		_ = q.c.LRem(ctx, processingKey, 1, raw).Err()
		return nil, err
	}
	if q.cb != nil {
		q.cb.RecordSuccess()
	}
	return &Delivery{Task: task, raw: raw}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	err := q.c.LRem(ctx, processingKey, 1, d.raw).Err()
	return q.wrap(err, "ack")
}

func (q *RedisQueue) Nack(ctx context.Context, d *Delivery) error {
	pipe := q.c.TxPipeline()
	pipe.LRem(ctx, processingKey, 1, d.raw)
	pipe.LPush(ctx, queueKey, d.raw)
	_, err := pipe.Exec(ctx)
	return q.wrap(err, "nack")
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	n, err := q.c.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0, q.wrap(err, "depth")
	}
	return n, nil
}

func (q *RedisQueue) wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	if q.cb != nil {
		q.cb.RecordFailure()
	}
	return fmt.Errorf("%w: broker %s: %v", model.ErrTransientBackend, op, err)
}
