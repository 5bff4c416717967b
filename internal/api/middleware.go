package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agentfoundry/agentkit/internal/cache"
	"github.com/agentfoundry/agentkit/pkg/logging"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header("X-Request-ID", reqID)
		c.Set("request_id", reqID)

		ctx := logging.WithRequestID(c.Request.Context(), reqID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// RequestLoggingMiddleware logs each request through the structured logger
func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.LogRequest(
			c.Request.Context(),
			c.Request.Method,
			c.FullPath(),
			c.Request.UserAgent(),
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start),
		)
	}
}

// RateLimitMiddleware provides Redis-based rate limiting per client IP
func RateLimitMiddleware(client *cache.Client, limit int, window time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}

	return func(c *gin.Context) {
		if client == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("agentkit:ratelimit:%s", c.ClientIP())

		count, err := client.Redis().Incr(ctx, key).Result()
		if err != nil {
			// Redis trouble should not take the API down
			c.Next()
			return
		}

		// The window starts at the first hit and must not slide with
		// later ones, so the TTL is only set on the initial increment
		if count == 1 {
			client.Redis().Expire(ctx, key, window)
		}

		if count > int64(limit) {
			TooManyRequestsResponse(c, "rate limit exceeded", int(window.Seconds()))
			c.Abort()
			return
		}

		c.Next()
	}
}
