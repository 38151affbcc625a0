package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/kupapos/kupa/internal/config"
)

// bucket decides whether the caller identified by key may proceed.
type bucket interface {
	take(ctx context.Context, key string) (allowed bool, remaining int64, retry time.Duration, err error)
}

// NewRateLimiter returns a token bucket middleware for the credential
// endpoints.  With the redis backend state is shared between instances; when
// rdb is nil or the backend is "memory" each process keeps its own buckets.
// Store errors let the request through.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client, log *slog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if log == nil {
		log = slog.Default()
	}

	var b bucket
	if cfg.Backend == "redis" && rdb != nil {
		b = &redisBucket{rdb: rdb, cfg: cfg}
	} else {
		b = newMemoryBucket(cfg)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			allowed, remaining, retry, err := b.take(c.Request().Context(), key)
			if err != nil {
				log.Warn("rate limit store error", "key", key, "error", err)
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}

			if !allowed {
				secs := int(math.Ceil(retry.Seconds()))
				if secs < 0 {
					secs = 0
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					log.Info("rate limit block", "key", key, "retry", retry)
				}
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":       "rate limit exceeded",
					"code":        "too_many_requests",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

type redisBucket struct {
	rdb *redis.Client
	cfg config.RateLimitConfig
}

func (b *redisBucket) take(ctx context.Context, key string) (bool, int64, time.Duration, error) {
	vals, err := tokenBucketScript.Run(ctx, b.rdb, []string{key},
		time.Now().UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return false, 0, 0, err
	}
	if len(vals) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected script result %v", vals)
	}
	return vals[0] == 1, vals[1], time.Duration(vals[2]) * time.Millisecond, nil
}

type memoryEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// memoryBucket keeps one x/time/rate limiter per key and drops keys idle for
// longer than the configured TTL.
type memoryBucket struct {
	cfg       config.RateLimitConfig
	mu        sync.Mutex
	entries   map[string]*memoryEntry
	lastSweep time.Time
	now       func() time.Time
}

func newMemoryBucket(cfg config.RateLimitConfig) *memoryBucket {
	return &memoryBucket{cfg: cfg, entries: make(map[string]*memoryEntry), now: time.Now}
}

func (b *memoryBucket) take(_ context.Context, key string) (bool, int64, time.Duration, error) {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastSweep) > b.cfg.TTL {
		for k, e := range b.entries {
			if now.Sub(e.lastSeen) > b.cfg.TTL {
				delete(b.entries, k)
			}
		}
		b.lastSweep = now
	}

	e, ok := b.entries[key]
	if !ok {
		every := b.cfg.RefillInterval / time.Duration(b.cfg.RefillTokens)
		e = &memoryEntry{lim: rate.NewLimiter(rate.Every(every), b.cfg.Capacity)}
		b.entries[key] = e
	}
	e.lastSeen = now

	r := e.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0, b.cfg.RefillInterval, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay, nil
	}
	return true, int64(e.lim.TokensAt(now)), 0, nil
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := userID(c)
	route := c.Request().Method + " " + c.Path()

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
