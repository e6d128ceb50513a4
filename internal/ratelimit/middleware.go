package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/stagehub-np/backend-stagehub/internal/common"
)

// New builds a redis-backed limiter allowing ratePerMin requests per key
// per minute.
func New(rdb *redis.Client, ratePerMin int) (*limiter.Limiter, error) {
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix: "rl:stagehub",
	})
	if err != nil {
		return nil, err
	}
	rate := limiter.Rate{Period: time.Minute, Limit: int64(ratePerMin)}
	return limiter.New(store, rate), nil
}

// Middleware enforces the limit per client IP. Limiter store errors fail
// open; dropping traffic because redis hiccuped is worse than a brief
// over-admission.
func Middleware(l *limiter.Limiter, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}
			lctx, err := l.Get(r.Context(), common.ClientIP(r))
			if err != nil {
				logger.Warn().Err(err).Msg("rate_limit_store_error")
				next.ServeHTTP(w, r)
				return
			}

			headers := w.Header()
			headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
			headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
			headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

			if lctx.Reached {
				retryAfter := lctx.Reset - time.Now().Unix()
				if retryAfter < 0 {
					retryAfter = 0
				}
				headers.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
				common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
