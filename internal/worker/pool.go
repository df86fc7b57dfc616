// Package worker implements spec §4.C's enrichment worker pool: a
// fixed-size pool of goroutines pulling tasks off the durable queue
// with prefetch=1 each, retrying transient failures with exponential
// backoff and jitter, and routing exhausted tasks to the DLQ — the
// same batch-then-retry-with-backoff shape as the teacher's analytics
// ingestion pipeline, adapted from fixed-interval batch flushing to
// per-task retry of a durable queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/broker"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/metrics"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/store"
)

// Handler processes a single task's business logic. Implementations
// classify failures using the model.Err* sentinels so the pool knows
// whether to retry, DLQ immediately, or treat as success.
type Handler interface {
	Handle(ctx context.Context, t model.Task) error
}

// Config controls pool sizing, retry policy, and task time limits,
// mirroring SPEC_FULL.md §A.1's WORKER_* and TASK_* environment knobs.
type Config struct {
	Count       int
	Prefetch    int
	RetryBase   time.Duration
	MaxAttempts int
	SoftTimeout time.Duration
	HardTimeout time.Duration
}

// Pool runs Config.Count worker goroutines, each dequeuing one task at
// a time (prefetch=1 is enforced simply by never dequeuing a second
// task before the first is acked or requeued).
type Pool struct {
	queue   broker.Queue
	cache   store.Cache
	handler Handler
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Registry

	wg sync.WaitGroup

	dlqRouted int64
	processed int64
	retried   int64
	mu        sync.Mutex
}

func NewPool(queue broker.Queue, cache store.Cache, handler Handler, cfg Config, logger zerolog.Logger) *Pool {
	if cfg.Count < 1 {
		cfg.Count = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Pool{
		queue:   queue,
		cache:   cache,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With().Str("component", "worker_pool").Logger(),
	}
}

// Start launches the worker goroutines. Callers cancel ctx to stop the
// pool and then call Wait.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Count; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	p.logger.Info().Int("workers", p.cfg.Count).Msg("enrichment worker pool started")
}

func (p *Pool) Wait() { p.wg.Wait() }

// SetMetrics wires a metrics registry into the pool's outcome
// counters. Optional: a nil registry (the default) simply skips
// tracking, which keeps unit tests free of a metrics dependency.
func (p *Pool) SetMetrics(reg *metrics.Registry) { p.metrics = reg }

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With().Int("worker_id", id).Logger()

	for {
		if ctx.Err() != nil {
			return
		}
		d, err := p.queue.Dequeue(ctx, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("dequeue failed, backing off")
			time.Sleep(time.Second)
			continue
		}
		if d == nil {
			continue // timed out waiting, poll again
		}
		p.process(ctx, d, log)
	}
}

func (p *Pool) process(ctx context.Context, d *broker.Delivery, log zerolog.Logger) {
	hardCtx, cancel := context.WithTimeout(ctx, p.cfg.HardTimeout)
	defer cancel()

	softCtx, softCancel := context.WithTimeout(hardCtx, p.cfg.SoftTimeout)
	defer softCancel()

	err := p.handler.Handle(softCtx, d.Task)

	switch {
	case err == nil, errors.Is(err, model.ErrDuplicateEffect):
		p.incProcessed(d.Task.Kind)
		if ackErr := p.queue.Ack(ctx, d); ackErr != nil {
			log.Error().Err(ackErr).Str("task_id", d.Task.ID).Msg("ack failed")
		}

	case errors.Is(err, model.ErrEnvelopeInvalid), errors.Is(err, model.ErrInvariantViolation):
		// Permanent failure: no amount of retrying will fix malformed
		// or invariant-violating input.
		log.Warn().Err(err).Str("task_id", d.Task.ID).Msg("task permanently failed, routing to DLQ")
		p.deadLetter(ctx, d.Task, err)
		_ = p.queue.Ack(ctx, d)

	default:
		// Transient: model.ErrTransientBackend, model.ErrTaskTimeout, or
		// an unclassified error all get the same retry treatment.
		p.retry(ctx, d, err, log)
	}
}

func (p *Pool) retry(ctx context.Context, d *broker.Delivery, cause error, log zerolog.Logger) {
	next := d.Task
	next.Attempt++

	if next.Attempt >= p.cfg.MaxAttempts {
		log.Warn().Err(cause).Str("task_id", d.Task.ID).Int("attempts", next.Attempt).
			Msg("task exhausted retries, routing to DLQ")
		p.deadLetter(ctx, d.Task, cause)
		_ = p.queue.Ack(ctx, d)
		return
	}

	delay := backoffWithJitter(p.cfg.RetryBase, next.Attempt)
	log.Warn().Err(cause).Str("task_id", d.Task.ID).Int("attempt", next.Attempt).
		Dur("delay", delay).Msg("task failed, scheduling retry")

	p.incRetried(d.Task.Kind)
	time.Sleep(delay)

	raw, merr := next.Marshal()
	if merr != nil {
		log.Error().Err(merr).Msg("failed to marshal retry task")
		_ = p.queue.Ack(ctx, d)
		return
	}
	retryTask, uerr := model.UnmarshalTask(raw)
	if uerr != nil {
		log.Error().Err(uerr).Msg("failed to round-trip retry task")
		_ = p.queue.Ack(ctx, d)
		return
	}
	if err := p.queue.Enqueue(ctx, retryTask); err != nil {
		log.Error().Err(err).Msg("failed to enqueue retry, will rely on broker redelivery")
		_ = p.queue.Nack(ctx, d)
		return
	}
	_ = p.queue.Ack(ctx, d)
}

func (p *Pool) deadLetter(ctx context.Context, t model.Task, cause error) {
	raw, _ := t.Marshal()
	entry := model.DLQEntry{
		ID:       uuid.NewString(),
		TaskKind: string(t.Kind),
		TaskID:   t.ID,
		Error:    cause.Error(),
		Args:     raw,
		FailedAt: time.Now().UTC(),
		Attempts: t.Attempt,
	}
	b, err := json.Marshal(entry)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal DLQ entry")
		return
	}
	if err := p.cache.AppendDLQ(ctx, b); err != nil {
		p.logger.Error().Err(err).Msg("failed to append DLQ entry")
		return
	}
	p.incDLQ(t.Kind)
}

// backoffWithJitter implements spec §4.C's retry policy: base * 2^attempt,
// plus up to 50% jitter so redelivered tasks across the pool don't
// thunder back in lockstep.
func backoffWithJitter(base time.Duration, attempt int) time.Duration {
	capped := attempt
	if capped > 6 {
		capped = 6 // bound exponential growth
	}
	backoff := base * time.Duration(1<<uint(capped))
	jitter := time.Duration(rand.Int63n(int64(backoff)/2 + 1))
	return backoff + jitter
}

func (p *Pool) incProcessed(kind model.TaskKind) {
	p.mu.Lock()
	p.processed++
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.TrackTaskProcessed(string(kind))
	}
}

func (p *Pool) incRetried(kind model.TaskKind) {
	p.mu.Lock()
	p.retried++
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.TrackTaskRetried(string(kind))
	}
}

func (p *Pool) incDLQ(kind model.TaskKind) {
	p.mu.Lock()
	p.dlqRouted++
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.TrackTaskDLQ(string(kind))
	}
}

// Stats reports cumulative pool counters, exposed via internal/metrics.
type Stats struct {
	Processed int64
	Retried   int64
	DLQRouted int64
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Processed: p.processed, Retried: p.retried, DLQRouted: p.dlqRouted}
}
