package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/agentfoundry/agentkit/internal/agent"
	"github.com/agentfoundry/agentkit/internal/cache"
	"github.com/agentfoundry/agentkit/pkg/config"
	"github.com/agentfoundry/agentkit/pkg/health"
	"github.com/agentfoundry/agentkit/pkg/logging"
	"github.com/agentfoundry/agentkit/pkg/metrics"
	"github.com/agentfoundry/agentkit/pkg/resilience"
	"github.com/agentfoundry/agentkit/pkg/streaming"
)

// Server holds the API's dependencies
type Server struct {
	config      *config.Config
	registry    *agent.Registry
	streamer    *streaming.Streamer
	degradation *resilience.DegradationManager
	guards      map[string]*resilience.Guard
	metrics     *metrics.Metrics
	health      *health.Service
	cacheClient *cache.Client
	alerts      *resilience.ErrorAlertGenerator
	logger      *logging.Logger
}

// ServerDeps holds everything a Server needs
type ServerDeps struct {
	Config      *config.Config
	Registry    *agent.Registry
	Streamer    *streaming.Streamer
	Degradation *resilience.DegradationManager
	Guards      map[string]*resilience.Guard
	Metrics     *metrics.Metrics
	Health      *health.Service
	CacheClient *cache.Client
	Alerts      *resilience.ErrorAlertGenerator
}

// NewServer creates a new API server
func NewServer(deps ServerDeps) *Server {
	return &Server{
		config:      deps.Config,
		registry:    deps.Registry,
		streamer:    deps.Streamer,
		degradation: deps.Degradation,
		guards:      deps.Guards,
		metrics:     deps.Metrics,
		health:      deps.Health,
		cacheClient: deps.CacheClient,
		alerts:      deps.Alerts,
		logger:      logging.GetLogger(),
	}
}

// Router builds the Gin engine with all routes and middleware
func (s *Server) Router() *gin.Engine {
	if s.config != nil && s.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(SecurityHeadersMiddleware())
	router.Use(RequestLoggingMiddleware(s.logger))
	if s.metrics != nil {
		router.Use(s.metrics.PrometheusMiddleware())
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "X-Request-ID", "Authorization")
	router.Use(cors.New(corsConfig))

	if s.health != nil {
		router.GET("/health", s.health.Handler())
		router.GET("/health/live", s.health.LivenessHandler())
		router.GET("/health/ready", s.health.ReadinessHandler())
	}
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(s.cacheClient, 100, time.Minute))
	{
		v1.GET("/agents", s.listAgents)
		v1.POST("/agents/:name/execute", s.executeAgent)
		v1.POST("/agents/:name/stream", s.streamAgent)

		v1.GET("/streams/:id", s.getStream)
		v1.DELETE("/streams/:id", s.cancelStream)

		v1.GET("/status", s.systemStatus)
	}

	return router
}
