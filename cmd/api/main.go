package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentfoundry/agentkit/internal/agent"
	"github.com/agentfoundry/agentkit/internal/api"
	"github.com/agentfoundry/agentkit/internal/cache"
	"github.com/agentfoundry/agentkit/internal/llm"
	pkgagent "github.com/agentfoundry/agentkit/pkg/agent"
	"github.com/agentfoundry/agentkit/pkg/config"
	"github.com/agentfoundry/agentkit/pkg/health"
	"github.com/agentfoundry/agentkit/pkg/logging"
	"github.com/agentfoundry/agentkit/pkg/metrics"
	"github.com/agentfoundry/agentkit/pkg/resilience"
	"github.com/agentfoundry/agentkit/pkg/streaming"
)

const version = "0.1.0"

func main() {
	// .env is optional, real deployments use environment variables
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		ServiceName: "agentkit-api",
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	m := metrics.NewMetrics(&metrics.Config{
		Namespace: "agentkit",
		Enabled:   true,
	})

	// Redis is optional in development, caching and rate limiting
	// degrade gracefully without it
	var cacheClient *cache.Client
	var cacheService *cache.Service
	cacheClient, err = cache.NewClient(&cfg.Redis)
	if err != nil {
		if cfg.IsProduction() {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		logger.Warn("Redis unavailable, running without cache", "error", err.Error())
		cacheClient = nil
	} else {
		defer cacheClient.Close()
		cacheService = cache.NewService(cacheClient, m, 5*time.Minute)
		logger.Info("Redis connection established")
	}

	streamer := streaming.NewStreamer(streaming.StreamerConfig{
		HeartbeatInterval: cfg.Streaming.HeartbeatInterval,
		BufferSize:        cfg.Streaming.BufferSize,
	})

	degradation := resilience.NewDegradationManager()
	degradation.Register("llm", resilience.LevelSevere)
	if cacheClient != nil {
		degradation.Register("redis", resilience.LevelPartial)
	}

	alerts := resilience.NewAlertManager()
	alerts.AddHandler(resilience.NewLoggingAlertHandler())
	errorAlerts := resilience.NewErrorAlertGenerator(alerts)

	guard := resilience.NewGuard("llm", resilience.CircuitBreakerConfig{
		FailureThreshold:  cfg.Resilience.FailureThreshold,
		RecoveryTimeout:   cfg.Resilience.RecoveryTimeout,
		HalfOpenSuccesses: cfg.Resilience.HalfOpenSuccesses,
		OnStateChange: func(name string, from, to resilience.CircuitState) {
			m.UpdateBreakerState(name, int(to))
			degradation.ObserveBreaker(name, from, to)
			if to == resilience.StateOpen {
				m.RecordBreakerTrip(name)
				_ = alerts.SendAlert(context.Background(), resilience.Alert{
					Severity:    resilience.SeverityError,
					Title:       "Circuit breaker opened",
					Description: fmt.Sprintf("circuit breaker %s transitioned %s -> %s", name, from, to),
					Source:      name,
					Tags:        map[string]string{"circuit_breaker": "true"},
				})
			}
		},
	}, retryPolicy(cfg, m))

	client, err := buildLLMClient(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize model provider: %v", err)
	}

	registry := agent.NewRegistry()
	if err := registerAgents(registry, agent.Deps{
		Client:   client,
		Guard:    guard,
		Streamer: streamer,
		Cache:    cacheService,
		Metrics:  m,
	}); err != nil {
		log.Fatalf("Failed to register agents: %v", err)
	}

	healthSvc := health.NewService(logger, &health.Config{
		Timeout: 5 * time.Second,
		Metadata: map[string]string{
			"service": "agentkit-api",
			"version": version,
		},
	})
	healthSvc.RegisterChecker("llm_breaker", health.NewBreakerChecker(guard.Breaker(), "llm_breaker"))
	if cacheClient != nil {
		healthSvc.RegisterChecker("redis", health.NewRedisChecker(cacheClient, "redis"))
	}

	server := api.NewServer(api.ServerDeps{
		Config:      cfg,
		Registry:    registry,
		Streamer:    streamer,
		Degradation: degradation,
		Guards:      map[string]*resilience.Guard{"llm": guard},
		Metrics:     m,
		Health:      healthSvc,
		CacheClient: cacheClient,
		Alerts:      errorAlerts,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting API server", "addr", httpServer.Addr, "environment", cfg.Server.Environment)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// retryPolicy overlays the configured backoff settings on the default
// policy so the non-retryable error classes stay in place
func retryPolicy(cfg *config.Config, m *metrics.Metrics) resilience.RetryPolicy {
	policy := resilience.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Resilience.MaxAttempts
	policy.InitialDelay = cfg.Resilience.InitialDelay
	policy.MaxDelay = cfg.Resilience.MaxDelay
	policy.BackoffFactor = cfg.Resilience.BackoffFactor
	policy.Jitter = cfg.Resilience.Jitter
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		m.RecordRetryAttempt("llm")
	}
	return policy
}

// buildLLMClient picks the configured provider, falling back to the
// scripted client when no API key is present in development
func buildLLMClient(cfg *config.Config, logger *logging.Logger) (llm.Client, error) {
	if cfg.LLM.APIKey == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("LLM_API_KEY is required in production")
		}
		logger.Warn("LLM_API_KEY not set, using scripted responses")
		return llm.NewScriptedClient(), nil
	}
	return llm.NewAnthropicClient(&cfg.LLM)
}

func registerAgents(registry *agent.Registry, deps agent.Deps) error {
	coachSkills := agent.NewSkillSet(
		pkgagent.Skill{
			Name:         "general",
			Description:  "General health and wellness conversation",
			SystemPrompt: "You are a friendly health and wellness coach. Answer briefly and practically.",
		},
		pkgagent.Skill{
			Name:         "meal_planning",
			Description:  "Meal plans and recipe suggestions",
			Keywords:     []string{"meal", "recipe", "food", "diet", "eat"},
			SystemPrompt: "You are a nutrition coach. Suggest meals and recipes with simple ingredients.",
		},
		pkgagent.Skill{
			Name:         "workout",
			Description:  "Exercise routines and training advice",
			Keywords:     []string{"workout", "exercise", "training", "gym", "run"},
			SystemPrompt: "You are a fitness coach. Recommend safe, progressive exercise routines.",
		},
	)
	coach := agent.NewBaseAgent(pkgagent.Config{
		Name:            "coach",
		Description:     "Health and wellness coaching agent",
		CacheTTLSeconds: 300,
	}, coachSkills, deps)

	assistantSkills := agent.NewSkillSet(
		pkgagent.Skill{
			Name:         "general",
			Description:  "General purpose assistance",
			SystemPrompt: "You are a concise, helpful assistant.",
		},
		pkgagent.Skill{
			Name:         "summarize",
			Description:  "Summarization of provided text",
			Keywords:     []string{"summarize", "summary", "tldr"},
			SystemPrompt: "You summarize text into a few clear bullet points.",
		},
	)
	assistant := agent.NewBaseAgent(pkgagent.Config{
		Name:        "assistant",
		Description: "General purpose assistant agent",
	}, assistantSkills, deps)

	for _, a := range []pkgagent.Agent{coach, assistant} {
		if err := registry.Register(a); err != nil {
			return err
		}
	}
	return nil
}
