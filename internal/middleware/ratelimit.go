// ratelimit.go provides Gin middleware that enforces per-client rate limits,
// returning 429 responses when the configured requests-per-minute threshold is
// exceeded.
//
// Two limiter backends are supported. When a Redis address is configured the
// limiter uses redis_rate's GCRA implementation so every replica draws from a
// single shared budget. Without Redis each process falls back to a local
// token-bucket limiter, which is exact for single-instance deployments and a
// per-replica approximation otherwise.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the maximum number of requests allowed per minute
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often the in-memory backend cleans up idle entries
	CleanupInterval time.Duration
	// RedisAddress enables the shared Redis backend when non-empty
	RedisAddress  string
	RedisPassword string
	RedisDB       int
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
		BurstSize:         20,
		CleanupInterval:   5 * time.Minute,
	}
}

// rateLimitEntry tracks request counts for a single client
type rateLimitEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter enforces per-key request limits using either a shared Redis
// window or an in-process token bucket.
type RateLimiter struct {
	config RateLimitConfig

	// Redis backend; nil when running in-memory.
	rdb     *redis.Client
	limiter *redis_rate.Limiter

	// In-memory backend.
	entries map[string]*rateLimitEntry
	mu      sync.RWMutex
	stopCh  chan struct{}
}

// NewRateLimiter creates a rate limiter. When config.RedisAddress is set the
// Redis backend is used; a failed initial ping logs a warning and falls back
// to the in-memory backend rather than refusing to start.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		entries: make(map[string]*rateLimitEntry),
		stopCh:  make(chan struct{}),
	}

	if config.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddress,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("rate limiter: redis unreachable, falling back to in-memory limiting",
				"address", config.RedisAddress, "error", err)
			rdb.Close()
		} else {
			rl.rdb = rdb
			rl.limiter = redis_rate.NewLimiter(rdb)
			slog.Info("rate limiter: using redis backend", "address", config.RedisAddress)
		}
	}

	// Cleanup only matters for the in-memory map.
	if rl.limiter == nil {
		go rl.cleanup()
	}

	return rl
}

// cleanup periodically removes expired entries
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, entry := range rl.entries {
				// Remove entries that haven't been accessed in 10 minutes
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine and closes the Redis connection if any
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
	if rl.rdb != nil {
		rl.rdb.Close()
	}
}

// Allow reports whether a request from the given key should be admitted, along
// with the number of requests remaining in the current window.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int) {
	if rl.limiter != nil {
		res, err := rl.limiter.Allow(ctx, key, redis_rate.Limit{
			Rate:   rl.config.RequestsPerMinute,
			Burst:  rl.config.BurstSize,
			Period: time.Minute,
		})
		if err != nil {
			// Redis hiccup: admit the request rather than failing closed.
			slog.Warn("rate limiter: redis check failed, admitting request", "error", err)
			return true, rl.config.BurstSize
		}
		return res.Allowed > 0, res.Remaining
	}
	return rl.allowLocal(key)
}

// allowLocal implements a token bucket over the in-memory entry map.
func (rl *RateLimiter) allowLocal(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.entries[key]

	if !exists {
		// New client, give them full burst
		rl.entries[key] = &rateLimitEntry{
			tokens:     float64(rl.config.BurstSize) - 1,
			lastUpdate: now,
		}
		return true, rl.config.BurstSize - 1
	}

	// Calculate tokens to add based on time elapsed
	elapsed := now.Sub(entry.lastUpdate)
	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0
	tokensToAdd := elapsed.Seconds() * tokensPerSecond

	// Update tokens (capped at burst size)
	entry.tokens = min(float64(rl.config.BurstSize), entry.tokens+tokensToAdd)
	entry.lastUpdate = now

	// Check if we have tokens available
	if entry.tokens >= 1 {
		entry.tokens--
		return true, int(entry.tokens)
	}

	return false, 0
}

// RateLimitMiddleware creates a Gin middleware that rate limits requests
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		allowed, remaining := limiter.Allow(c.Request.Context(), key)
		if !allowed {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.config.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

// getRateLimitKey determines the key to use for rate limiting
// Priority: authenticated actor > IP address
func getRateLimitKey(c *gin.Context) string {
	if actor, exists := c.Get(ActorKey); exists {
		if name, ok := actor.(string); ok && name != "" && name != AnonymousActorName {
			return "actor:" + name
		}
	}

	// Fall back to IP address
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}

// Helper function for min (Go 1.21+ has this built-in, but for compatibility)
func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
