package cache

import (
	"context"
	"net/http"

	"github.com/go-redis/redis/v8"

	"github.com/filmclub/cinema-service/internal/utils/response"
)

// CacheStats represents cache performance statistics
type CacheStats struct {
	RedisConnected bool     `json:"redis_connected"`
	CacheKeys      []string `json:"cache_keys_sample"`
	KeyCount       int      `json:"total_keys"`
}

// GetCacheStats returns cache performance statistics
func GetCacheStats(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()
		stats := CacheStats{}

		if redisClient == nil {
			response.WriteJSON(w, http.StatusOK, response.RequestOK("Cache stats retrieved", stats))
			return
		}

		// Test Redis connection
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			response.WriteJSON(w, http.StatusOK, response.RequestOK("Cache stats retrieved", stats))
			return
		}
		stats.RedisConnected = true

		// Get cache keys (sample)
		keys := redisClient.Keys(ctx, "cinema:*")
		if keys.Err() == nil {
			stats.CacheKeys = keys.Val()
			if len(stats.CacheKeys) > 10 {
				stats.CacheKeys = stats.CacheKeys[:10] // Show only first 10
			}
		}

		// Get total key count
		dbSize := redisClient.DBSize(ctx)
		if dbSize.Err() == nil {
			stats.KeyCount = int(dbSize.Val())
		}

		response.WriteJSON(w, http.StatusOK, response.RequestOK("Cache stats retrieved", stats))
	}
}

// ClearCache endpoint for administrative purposes
func ClearCache(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		if redisClient == nil {
			response.WriteJSON(w, http.StatusOK, response.RequestOK("No cache configured", map[string]interface{}{
				"deleted_keys": 0,
			}))
			return
		}

		// Get cache type from query parameter
		cacheType := r.URL.Query().Get("type")

		var pattern string
		switch cacheType {
		case "cinema":
			pattern = "cinema:*"
		case "gallery":
			pattern = "gallery:*"
		case "ratelimit":
			pattern = "rate_limit:*"
		case "all":
			pattern = "*"
		default:
			pattern = "cinema:*" // Default to cinema cache
		}

		// Delete matching keys
		keys := redisClient.Keys(ctx, pattern)
		if keys.Err() != nil {
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(keys.Err()))
			return
		}

		if len(keys.Val()) > 0 {
			deleted := redisClient.Del(ctx, keys.Val()...)
			if deleted.Err() != nil {
				response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(deleted.Err()))
				return
			}

			result := map[string]interface{}{
				"pattern":      pattern,
				"deleted_keys": deleted.Val(),
			}
			response.WriteJSON(w, http.StatusOK, response.RequestOK("Cache cleared successfully", result))
		} else {
			result := map[string]interface{}{
				"pattern":      pattern,
				"deleted_keys": 0,
				"message":      "No keys found matching pattern",
			}
			response.WriteJSON(w, http.StatusOK, response.RequestOK("No cache keys to clear", result))
		}
	}
}
