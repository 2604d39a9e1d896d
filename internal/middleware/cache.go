package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/clinic-appointments/internal/config"
)

// cachedResponse is what a cache entry holds. Body is base64 in JSON.
type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// recorder copies the response into a buffer as it is written. Once the
// body grows past limit the copy is abandoned and the entry is not stored.
type recorder struct {
	http.ResponseWriter
	status   int
	body     bytes.Buffer
	limit    int
	overflow bool
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.overflow {
		if r.limit > 0 && r.body.Len()+len(b) > r.limit {
			r.overflow = true
			r.body.Reset()
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

// headers never replayed from the cache.
var volatileHeaders = []string{"Content-Length", "X-Cache", RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Key"}

// cacheKey hashes the request parts named by cfg.KeyStrategy
// ("route", "method_route", "method_route_query"; default "route_query").
func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	strategy := strings.ToLower(cfg.KeyStrategy)
	if strategy == "" {
		strategy = "route_query"
	}
	h := sha256.New()
	for _, p := range strings.Split(strategy, "_") {
		switch p {
		case "method":
			h.Write([]byte(r.Method))
		case "route":
			h.Write([]byte(c.Path()))
		case "query":
			h.Write([]byte(r.URL.Query().Encode()))
		}
		h.Write([]byte{0})
	}
	return cfg.Prefix + ":" + hex.EncodeToString(h.Sum(nil))
}

func replay(c echo.Context, entry cachedResponse) error {
	h := c.Response().Header()
	for k, vals := range entry.Header {
		for _, v := range vals {
			h.Add(k, v)
		}
	}
	h.Set("X-Cache", "HIT")
	c.Response().WriteHeader(entry.Status)
	_, err := c.Response().Write(entry.Body)
	return err
}

// NewRedisCache stores the status, headers and body of 200 responses and
// replays them on later requests with the same key. Mount it only on
// routes whose payload does not depend on database state.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[c.Request().Method] {
				return next(c)
			}
			key := cacheKey(cfg, c)

			if raw, err := rdb.Get(c.Request().Context(), key).Bytes(); err == nil {
				var entry cachedResponse
				if json.Unmarshal(raw, &entry) == nil && entry.Status != 0 {
					return replay(c, entry)
				}
			}

			rec := &recorder{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			c.Response().Writer = rec
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if rec.status != http.StatusOK || rec.overflow {
				return nil
			}

			hdr := c.Response().Header().Clone()
			for _, k := range volatileHeaders {
				hdr.Del(k)
			}
			raw, err := json.Marshal(cachedResponse{Status: rec.status, Header: hdr, Body: rec.body.Bytes()})
			if err != nil {
				return nil
			}
			// The request may already be cancelled by the time we store.
			_ = rdb.Set(context.Background(), key, raw, ttl).Err()
			return nil
		}
	}
}
