package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfoundry/agentkit/internal/cache"
)

func rateLimitedRouter(client *cache.Client, limit int, window time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(client, limit, window))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func pingOnce(router *gin.Engine) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitMiddleware_LimitsAndRecovers(t *testing.T) {
	mr := miniredis.RunT(t)
	client := cache.NewClientFromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	router := rateLimitedRouter(client, 2, time.Minute)

	key := "agentkit:ratelimit:192.0.2.1"

	assert.Equal(t, http.StatusOK, pingOnce(router).Code)
	assert.Equal(t, time.Minute, mr.TTL(key))

	// Later hits within the window must not push the expiry out, or a
	// steady stream of requests would never leave the limited state
	mr.FastForward(30 * time.Second)
	assert.Equal(t, http.StatusOK, pingOnce(router).Code)
	assert.Equal(t, 30*time.Second, mr.TTL(key))

	rec := pingOnce(router)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Error.Code)

	// Once the window closes the counter is gone and requests flow again
	mr.FastForward(30 * time.Second)
	assert.Equal(t, http.StatusOK, pingOnce(router).Code)
}

func TestRateLimitMiddleware_NilClientPassesThrough(t *testing.T) {
	router := rateLimitedRouter(nil, 1, time.Minute)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, pingOnce(router).Code)
	}
}
