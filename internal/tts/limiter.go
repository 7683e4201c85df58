package tts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter blocks until one more backend call is permitted.
type Limiter interface {
	Wait(ctx context.Context) error
}

// LimitSpec is a per-backend call budget.
type LimitSpec struct {
	PerSecond float64
	Burst     int
}

// LimiterSet holds one limiter per backend, shared by every job in the process.
type LimiterSet struct {
	mu       sync.Mutex
	factory  func(backend string) Limiter
	limiters map[string]Limiter
}

func NewLimiterSet(factory func(backend string) Limiter) *LimiterSet {
	return &LimiterSet{factory: factory, limiters: make(map[string]Limiter)}
}

// For returns the backend's limiter, creating it on first use.
func (s *LimiterSet) For(backend string) Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[backend]
	if !ok {
		l = s.factory(backend)
		s.limiters[backend] = l
	}
	return l
}

// Wait blocks on the backend's limiter. A nil set never blocks.
func (s *LimiterSet) Wait(ctx context.Context, backend string) error {
	if s == nil {
		return nil
	}
	l := s.For(backend)
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}

func specFor(specs map[string]LimitSpec, def LimitSpec, backend string) LimitSpec {
	if s, ok := specs[backend]; ok {
		return s
	}
	return def
}

// LocalLimiters builds in-process token buckets.
func LocalLimiters(specs map[string]LimitSpec, def LimitSpec) func(string) Limiter {
	return func(backend string) Limiter {
		s := specFor(specs, def, backend)
		if s.PerSecond <= 0 {
			return rate.NewLimiter(rate.Inf, 0)
		}
		burst := s.Burst
		if burst < 1 {
			burst = 1
		}
		return rate.NewLimiter(rate.Limit(s.PerSecond), burst)
	}
}

// RedisLimiter is a fixed-window counter shared by every worker process that
// points at the same Redis.
type RedisLimiter struct {
	rdb    redis.Cmdable
	key    string
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(rdb redis.Cmdable, key string, limit int64, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &RedisLimiter{rdb: rdb, key: key, limit: limit, window: window, now: time.Now}
}

func (l *RedisLimiter) Wait(ctx context.Context) error {
	if l.limit <= 0 {
		return nil
	}
	for {
		now := l.now()
		slot := now.UnixNano() / int64(l.window)
		key := fmt.Sprintf("%s:%d", l.key, slot)

		n, err := l.rdb.Incr(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("rate limit incr: %w", err)
		}
		if n == 1 {
			if err := l.rdb.Expire(ctx, key, 2*l.window).Err(); err != nil {
				return fmt.Errorf("rate limit expire: %w", err)
			}
		}
		if n <= l.limit {
			return nil
		}

		next := time.Unix(0, (slot+1)*int64(l.window))
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RedisLimiters builds Redis-backed limiters keyed by backend. PerSecond is
// rounded up to whole calls per one-second window.
func RedisLimiters(rdb redis.Cmdable, prefix string, specs map[string]LimitSpec, def LimitSpec) func(string) Limiter {
	return func(backend string) Limiter {
		s := specFor(specs, def, backend)
		limit := int64(s.PerSecond)
		if float64(limit) < s.PerSecond {
			limit++
		}
		return NewRedisLimiter(rdb, prefix+":"+backend, limit, time.Second)
	}
}
