package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/clinic-appointments/internal/config"
)

// takeScript refills the bucket stored at KEYS[1] by whole intervals and
// takes one token. Arguments are now_ms, capacity, refill_tokens,
// interval_ms and ttl_seconds. It returns {allowed, remaining, wait_ms}.
var takeScript = redis.NewScript(`
local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local stamp = tonumber(redis.call('HGET', KEYS[1], 'stamp'))
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local step = tonumber(ARGV[3])
local every = tonumber(ARGV[4])

if tokens == nil or stamp == nil then
	tokens = capacity
	stamp = now
end

local due = math.floor(math.max(0, now - stamp) / every)
if due > 0 then
	tokens = math.min(capacity, tokens + due * step)
	stamp = stamp + due * every
end

local allowed = 0
local wait = 0
if tokens >= 1 then
	allowed = 1
	tokens = tokens - 1
else
	wait = math.max(0, every - (now - stamp))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'stamp', stamp)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[5]))
return {allowed, tokens, wait}
`)

type verdict struct {
	allowed   bool
	remaining int64
	wait      time.Duration
}

type bucket struct {
	rdb *redis.Client
	cfg config.RateLimitConfig
}

func (b bucket) take(ctx context.Context, key string, now time.Time) (verdict, error) {
	res, err := takeScript.Run(ctx, b.rdb, []string{key},
		now.UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		int64(b.cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return verdict{}, err
	}
	if len(res) != 3 {
		return verdict{}, redis.Nil
	}
	return verdict{
		allowed:   res[0] == 1,
		remaining: res[1],
		wait:      time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket limits requests with a Redis-backed token bucket keyed by
// cfg.KeyStrategy. Redis errors fail open: the request proceeds and a
// warning is logged, so an outage never blocks bookings.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log zerolog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	log = log.With().Str("component", "ratelimit").Logger()
	b := bucket{rdb: rdb, cfg: cfg}
	limit := strconv.Itoa(cfg.Capacity)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			v, err := b.take(c.Request().Context(), key, time.Now())
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(v.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if v.allowed {
				return next(c)
			}

			secs := int((v.wait + time.Second - 1) / time.Second)
			h.Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				log.Info().Str("key", key).Dur("wait", v.wait).Msg("request throttled")
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// rateKey joins the parts named by the strategy, e.g. "ip_route". Unknown
// or empty strategies key on ip, user and route together.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := strings.Split(strings.ToLower(cfg.KeyStrategy), "_")
	key := []string{cfg.Prefix}
	for _, p := range parts {
		switch p {
		case "ip":
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key = append(key, "ip", ip)
		case "user":
			key = append(key, "user", userID(c))
		case "route":
			key = append(key, "route", c.Request().Method+" "+c.Path())
		default:
			return rateKey(config.RateLimitConfig{Prefix: cfg.Prefix, KeyStrategy: "ip_user_route"}, c)
		}
	}
	return strings.Join(key, ":")
}
