package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/practice-sem-2/messaging-service/internal/auth"
	"github.com/practice-sem-2/messaging-service/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimiter is a sliding window limiter keyed by caller. Each window is a
// sorted set of request timestamps.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration, logger *logrus.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
	}
}

// Allow records the request and reports whether it fits in the window along
// with the number of requests left.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	now := rl.now()
	windowStart := now.Add(-rl.window)

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart.UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	count := int(countCmd.Val())
	remaining := rl.limit - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return count < rl.limit, remaining, nil
}

func callerKey(r *http.Request) string {
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		return "ratelimit:user:" + claims.UserID()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RealIP leaves a bare address without a port
		host = r.RemoteAddr
	}
	return "ratelimit:ip:" + host
}

// Middleware limits the wrapped routes. Redis failures let the request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := callerKey(r)
		allowed, remaining, err := rl.Allow(r.Context(), key)
		if err != nil {
			rl.logger.
				WithError(err).
				WithField("key", key).
				Warning("rate limiter is unavailable")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			route := routePattern(r)
			metrics.RateLimitHits.WithLabelValues(route).Inc()
			rl.logger.
				WithField("key", key).
				WithField("route", route).
				Info("rate limit exceeded")

			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
