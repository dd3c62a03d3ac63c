package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AttemptCounter counts events per key inside a fixed window.
type AttemptCounter interface {
	// Incr records one attempt and returns the count in the current window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

// LoginThrottleConfig bounds failed logins per client IP.
type LoginThrottleConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// LoginThrottle refuses login attempts from an IP once MaxAttempts requests
// have failed within Window. A successful login clears the counter. Counter
// errors are logged and the request proceeds.
func LoginThrottle(counter AttemptCounter, cfg LoginThrottleConfig, logger zerolog.Logger) echo.MiddlewareFunc {
	retryAfter := strconv.Itoa(int(cfg.Window.Seconds()))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if counter == nil || cfg.MaxAttempts <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := "login:" + c.RealIP()

			n, err := counter.Incr(ctx, key, cfg.Window)
			if err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("login throttle unavailable")
				return next(c)
			}
			if n > int64(cfg.MaxAttempts) {
				c.Response().Header().Set("Retry-After", retryAfter)
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts")
			}

			err = next(c)
			if err == nil && c.Response().Status < http.StatusBadRequest {
				if rerr := counter.Reset(ctx, key); rerr != nil {
					logger.Warn().Err(rerr).Str("key", key).Msg("reset login throttle")
				}
			}
			return err
		}
	}
}

// RedisAttemptCounter keeps counters in Redis so limits hold across replicas.
type RedisAttemptCounter struct {
	client *redis.Client
	prefix string
}

// NewRedisAttemptCounter creates a counter namespaced under prefix.
func NewRedisAttemptCounter(client *redis.Client, prefix string) *RedisAttemptCounter {
	return &RedisAttemptCounter{client: client, prefix: prefix}
}

func (r *RedisAttemptCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := r.prefix + key
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.TTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", k, err)
	}
	if windowUnset(incr.Val(), ttl.Val()) {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return 0, fmt.Errorf("redis expire %s: %w", k, err)
		}
	}
	return incr.Val(), nil
}

// windowUnset reports whether a counter still needs its expiry: on the first
// attempt, or when an earlier Expire never landed (TTL reports -1). Only
// plain EXPIRE is used; the NX flag needs Redis 7.
func windowUnset(count int64, ttl time.Duration) bool {
	return count == 1 || ttl < 0
}

func (r *RedisAttemptCounter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// MemoryAttemptCounter is a single-process AttemptCounter.
type MemoryAttemptCounter struct {
	mu      sync.Mutex
	entries map[string]*attemptWindow
	now     func() time.Time
}

type attemptWindow struct {
	count   int64
	resetAt time.Time
}

// NewMemoryAttemptCounter creates an in-process counter. A nil clock means time.Now.
func NewMemoryAttemptCounter(now func() time.Time) *MemoryAttemptCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryAttemptCounter{entries: make(map[string]*attemptWindow), now: now}
}

func (m *MemoryAttemptCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.entries[key]
	if !ok || !now.Before(w.resetAt) {
		w = &attemptWindow{resetAt: now.Add(window)}
		m.entries[key] = w
	}
	w.count++
	return w.count, nil
}

func (m *MemoryAttemptCounter) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
