package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"phone-auth/pkg/metrics"
	"phone-auth/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Counter increments a fixed-window hit counter and reports the time left in the window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type redisCounter struct {
	rdb redis.Cmdable
}

func NewRedisCounter(rdb redis.Cmdable) Counter {
	return &redisCounter{rdb: rdb}
}

func (c *redisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}

	// first hit opens the window
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return count, window, err
		}
		return count, window, nil
	}

	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// key lost its expiry, put it back so it cannot stick forever
		c.rdb.Expire(ctx, key, window)
		ttl = window
	}
	return count, ttl, nil
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// memoryCounter is the single-instance fallback used when no redis is configured.
type memoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryCounter() Counter {
	return &memoryCounter{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

func (c *memoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		c.windows[key] = w
	}
	w.count++

	// drop expired windows so the map does not grow without bound
	if len(c.windows) > 10000 {
		for k, v := range c.windows {
			if !now.Before(v.resetAt) {
				delete(c.windows, k)
			}
		}
	}

	return w.count, w.resetAt.Sub(now), nil
}

// RateLimit throttles requests per authenticated user, falling back to the client IP.
// Counter failures let the request through.
func RateLimit(counter Counter, limit int, window time.Duration, keyPrefix string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := "ratelimit:" + keyPrefix + ":" + clientKey(r)

			count, ttl, err := counter.Incr(r.Context(), key, window)
			if err != nil {
				logger.Warn("Rate limit counter unavailable", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := int(math.Ceil(ttl.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}

			remaining := limit - int(count)
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(retryAfter))

			if count > int64(limit) {
				logger.Warn("Rate limit exceeded",
					zap.String("key", key),
					zap.Int64("count", count),
					zap.Int("retry_after", retryAfter),
				)
				metrics.RateLimitExceeded.WithLabelValues(keyPrefix).Inc()
				utils.ResponseTooManyRequests(w, "Too many requests", retryAfter, nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if userID, ok := utils.GetUserIDFromContext(r.Context()); ok {
		return "uid:" + userID.String()
	}

	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		return "ip:" + strings.TrimSpace(strings.Split(ip, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
