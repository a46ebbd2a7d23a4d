package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/filmclub/cinema-service/internal/ratelimit"
	"github.com/filmclub/cinema-service/internal/utils/response"
)

// rate-limited action names
const (
	ActionComments  = "comments"
	ActionBootstrap = "bootstrap"
)

type RateLimitConfig struct {
	limiters map[string]*ratelimit.TokenBucket
}

// NewRateLimitConfig builds the per-action limiters. A nil Redis client
// disables rate limiting; every request then passes through.
func NewRateLimitConfig(redisClient *redis.Client) *RateLimitConfig {
	config := &RateLimitConfig{
		limiters: make(map[string]*ratelimit.TokenBucket),
	}
	if redisClient == nil {
		return config
	}

	// POST .../comments: 30/min per user
	config.limiters[ActionComments] = ratelimit.NewTokenBucket(redisClient, 30, 30)

	// POST /api/users/session/bootstrap: 10/min per client address
	config.limiters[ActionBootstrap] = ratelimit.NewTokenBucket(redisClient, 10, 10)

	return config
}

// RateLimitMiddleware enforces the named action's bucket. The caller key is
// the authenticated user id when one is in context, else the remote
// address.
func (rlc *RateLimitConfig) RateLimitMiddleware(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter, exists := rlc.limiters[action]
			if !exists {
				next.ServeHTTP(w, r)
				return
			}

			caller := r.RemoteAddr
			if userID, ok := GetUserIDFromContext(r.Context()); ok {
				caller = strconv.Itoa(userID)
			}

			allowed, err := limiter.Allow(r.Context(), caller, action)
			if err != nil {
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(
					fmt.Errorf("rate limit check failed: %w", err)))
				return
			}
			if !allowed {
				response.WriteJSON(w, http.StatusTooManyRequests, response.GeneralError(
					errors.New("rate limit exceeded")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
