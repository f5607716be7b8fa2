package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter: key ごとに window あたり limit 回まで許可
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// ===== in-memory token bucket =====

type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	limit      float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: map[string]*bucket{}, now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) > 10000 {
			l.sweep(now.Add(-10 * time.Minute))
		}
		b = &bucket{
			tokens:     float64(limit),
			limit:      float64(limit),
			refillRate: float64(limit) / window.Seconds(),
			lastRefill: now,
		}
		l.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.limit {
		b.tokens = b.limit
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return Result{Allowed: true, Limit: limit, Remaining: int(b.tokens)}, nil
	}
	wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
	return Result{Allowed: false, Limit: limit, Remaining: 0, RetryAfter: wait}, nil
}

func (l *MemoryLimiter) sweep(cutoff time.Time) {
	for k, b := range l.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}

// ===== redis fixed window =====

// RedisLimiter は複数プロセスで共有するための固定窓カウンタ
type RedisLimiter struct {
	rdb    redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(rdb redis.Cmdable) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: "ictserve:rl:", now: time.Now}
}

func (l *RedisLimiter) windowKey(key string, window time.Duration, now time.Time) (string, time.Time) {
	start := now.Truncate(window)
	return fmt.Sprintf("%s%s:%d", l.prefix, key, start.Unix()), start.Add(window)
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := l.now()
	k, end := l.windowKey(key, window, now)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, window+time.Second)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	n := int(incr.Val())
	if n > limit {
		return Result{Allowed: false, Limit: limit, RetryAfter: end.Sub(now)}, nil
	}
	return Result{Allowed: true, Limit: limit, Remaining: limit - n}, nil
}
