package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/bus"
	"github.com/AnkushSinghGandhi/DeltaStream-OptionAnalysis2-sub001/internal/model"
)

// RedisCache implements Cache (and the Bus interface of
// internal/bus, see bus.go) over a single go-redis client, following
// the teacher's redisclient.New(cfg) shape but widened to expose the
// operations spec §4.B actually needs.
type RedisCache struct {
	c *redis.Client
}

// NewRedisCache parses url (go-redis DSN form, e.g.
// redis://host:6379/0) and returns a client wrapper. No connection is
// made here; call Ping to verify the server is reachable.
func NewRedisCache(url string) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &RedisCache{c: redis.NewClient(opt)}, nil
}

// Ping verifies connectivity, used at startup per spec §6 exit code 1
// ("endpoints unreachable after retry").
func (r *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := r.c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", model.ErrTransientBackend, err)
	}
	return nil
}

func (r *RedisCache) Close() error { return r.c.Close() }

func (r *RedisCache) PutWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.c.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: redis SET %s: %v", model.ErrTransientBackend, key, err)
	}
	return nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrAbsent
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis GET %s: %v", model.ErrTransientBackend, key, err)
	}
	return b, nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.c.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: redis DEL %s: %v", model.ErrTransientBackend, key, err)
	}
	return nil
}

// TryMarkOnce is Redis SET key val NX EX ttl — atomic set-if-absent.
func (r *RedisCache) TryMarkOnce(ctx context.Context, key string, ttl time.Duration) (MarkResult, error) {
	ok, err := r.c.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return AlreadySet, fmt.Errorf("%w: redis SETNX %s: %v", model.ErrTransientBackend, key, err)
	}
	if ok {
		return Acquired, nil
	}
	return AlreadySet, nil
}

func (r *RedisCache) AppendDLQ(ctx context.Context, entry []byte) error {
	if err := r.c.RPush(ctx, model.KeyDLQEnrichment, entry).Err(); err != nil {
		return fmt.Errorf("%w: redis RPUSH dlq: %v", model.ErrTransientBackend, err)
	}
	return nil
}

func (r *RedisCache) ReadDLQ(ctx context.Context, limit int64) ([][]byte, error) {
	vals, err := r.c.LRange(ctx, model.KeyDLQEnrichment, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: redis LRANGE dlq: %v", model.ErrTransientBackend, err)
	}
	return toBytesSlice(vals), nil
}

func (r *RedisCache) PopDLQ(ctx context.Context, limit int64) ([][]byte, error) {
	out := make([][]byte, 0, limit)
	for i := int64(0); i < limit; i++ {
		v, err := r.c.LPop(ctx, model.KeyDLQEnrichment).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("%w: redis LPOP dlq: %v", model.ErrTransientBackend, err)
		}
		out = append(out, []byte(v))
	}
	return out, nil
}

// Publish is the bus half of spec §4.B: fire-and-forget, best-effort.
func (r *RedisCache) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.c.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("%w: redis PUBLISH %s: %v", model.ErrTransientBackend, topic, err)
	}
	return nil
}

// Subscribe returns a cancellable iterator over (topic, payload) pairs
// on any of topics. Closing ctx releases the underlying subscription.
func (r *RedisCache) Subscribe(ctx context.Context, topics ...string) (<-chan bus.Message, func() error) {
	sub := r.c.Subscribe(ctx, topics...)
	out := make(chan bus.Message, 64)
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- bus.Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, sub.Close
}

func toBytesSlice(vals []string) [][]byte {
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out
}

// Client exposes the underlying go-redis client so the broker's durable
// queue (internal/broker) can reuse the same client as the cache, making
// "bus" and "broker" the same substrate under different logical keys.
func (r *RedisCache) Client() *redis.Client { return r.c }
