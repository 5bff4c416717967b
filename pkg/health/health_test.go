package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfoundry/agentkit/pkg/resilience"
)

func healthyChecker(name string) Checker {
	return NewCustomChecker(name, func(ctx context.Context) (Status, string, error) {
		return StatusHealthy, "all good", nil
	})
}

func unhealthyChecker(name string) Checker {
	return NewCustomChecker(name, func(ctx context.Context) (Status, string, error) {
		return StatusUnhealthy, "broken", errors.New("dependency down")
	})
}

func TestService_CheckHealth_AllHealthy(t *testing.T) {
	svc := NewService(nil, nil)
	svc.RegisterChecker("a", healthyChecker("a"))
	svc.RegisterChecker("b", healthyChecker("b"))

	resp := svc.CheckHealth(context.Background())
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestService_CheckHealth_UnhealthyWins(t *testing.T) {
	svc := NewService(nil, nil)
	svc.RegisterChecker("ok", healthyChecker("ok"))
	svc.RegisterChecker("bad", unhealthyChecker("bad"))

	resp := svc.CheckHealth(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, "dependency down", resp.Checks["bad"].Error)
}

func TestService_CheckHealth_DegradedDoesNotMaskUnhealthy(t *testing.T) {
	svc := NewService(nil, nil)
	svc.RegisterChecker("bad", unhealthyChecker("bad"))
	svc.RegisterChecker("meh", NewCustomChecker("meh", func(ctx context.Context) (Status, string, error) {
		return StatusDegraded, "slow", nil
	}))

	resp := svc.CheckHealth(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestService_Handler_StatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		checker  Checker
		wantCode int
	}{
		{"healthy", healthyChecker("dep"), http.StatusOK},
		{"unhealthy", unhealthyChecker("dep"), http.StatusServiceUnavailable},
		{"degraded", NewCustomChecker("dep", func(ctx context.Context) (Status, string, error) {
			return StatusDegraded, "slow", nil
		}), http.StatusPartialContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(nil, nil)
			svc.RegisterChecker("dep", tt.checker)

			router := gin.New()
			router.GET("/health", svc.Handler())

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestService_ReadinessHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := NewService(nil, nil)
	svc.RegisterChecker("dep", unhealthyChecker("dep"))

	router := gin.New()
	router.GET("/health/ready", svc.ReadinessHandler())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ready"])
}

func TestBreakerChecker(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "llm",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
	})
	checker := NewBreakerChecker(breaker, "llm_breaker")

	check := checker.Check(context.Background())
	assert.Equal(t, StatusHealthy, check.Status)
	assert.Equal(t, "CLOSED", check.Metadata["state"])

	boom := errors.New("provider down")
	for i := 0; i < 2; i++ {
		_, _ = breaker.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, boom
		})
	}

	check = checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.Equal(t, "OPEN", check.Metadata["state"])
}

func TestRedisChecker_NilClient(t *testing.T) {
	checker := NewRedisChecker(nil, "redis")

	check := checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.NotEmpty(t, check.Error)
}

func TestCustomChecker_ErrorForcesUnhealthy(t *testing.T) {
	checker := NewCustomChecker("dep", func(ctx context.Context) (Status, string, error) {
		return StatusHealthy, "looked fine", errors.New("but it was not")
	})

	check := checker.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.Equal(t, "but it was not", check.Error)
}
