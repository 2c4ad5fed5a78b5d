package handlers

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request once it has been served.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote_addr", r.RemoteAddr),
				}
				if reqID := middleware.GetReqID(r.Context()); reqID != "" {
					fields = append(fields, zap.String("request_id", reqID))
				}
				if status >= http.StatusInternalServerError {
					log.Warn("request served", fields...)
					return
				}
				log.Info("request served", fields...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// RateLimiter throttles requests per client IP using a Redis backed GCRA
// limiter. Redis errors let the request through.
type RateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	log     *zap.Logger
}

// NewRateLimiter returns a limiter allowing perMinute requests per IP. A nil
// client or a non-positive rate disables limiting.
func NewRateLimiter(client *redis.Client, perMinute int, log *zap.Logger) *RateLimiter {
	if client == nil || perMinute <= 0 {
		return &RateLimiter{log: log}
	}
	return &RateLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.PerMinute(perMinute),
		log:     log,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	if rl.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := keyByIP(r)
		res, err := rl.limiter.Allow(r.Context(), key, rl.limit)
		if err != nil {
			rl.log.Warn("rate limiter unavailable, allowing request", zap.String("key", key), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit.Rate))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.Allowed == 0 {
			retryAfter := int(res.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, fmt.Sprintf("too many requests, retry after %d seconds", retryAfter))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// keyByIP expects RemoteAddr to have been resolved by middleware.RealIP.
func keyByIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ratelimit:auth:" + ip
}
