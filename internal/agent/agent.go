package agent

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentfoundry/agentkit/internal/cache"
	"github.com/agentfoundry/agentkit/internal/llm"
	pkgagent "github.com/agentfoundry/agentkit/pkg/agent"
	"github.com/agentfoundry/agentkit/pkg/errors"
	"github.com/agentfoundry/agentkit/pkg/logging"
	"github.com/agentfoundry/agentkit/pkg/metrics"
	"github.com/agentfoundry/agentkit/pkg/resilience"
	"github.com/agentfoundry/agentkit/pkg/streaming"
	"github.com/agentfoundry/agentkit/pkg/types"
)

// BaseAgent executes conversational requests against a model provider,
// guarded by a circuit breaker and retry policy, with optional
// response caching.
type BaseAgent struct {
	config   pkgagent.Config
	skills   *SkillSet
	client   llm.Client
	guard    *resilience.Guard
	streamer *streaming.Streamer
	cache    *cache.Service
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// Deps holds the shared infrastructure an agent is built on
type Deps struct {
	Client   llm.Client
	Guard    *resilience.Guard
	Streamer *streaming.Streamer
	Cache    *cache.Service
	Metrics  *metrics.Metrics
}

// NewBaseAgent creates an agent with the given skills and dependencies
func NewBaseAgent(config pkgagent.Config, skills *SkillSet, deps Deps) *BaseAgent {
	return &BaseAgent{
		config:   config,
		skills:   skills,
		client:   deps.Client,
		guard:    deps.Guard,
		streamer: deps.Streamer,
		cache:    deps.Cache,
		metrics:  deps.Metrics,
		logger:   logging.GetLogger(),
	}
}

// Name returns the agent's unique name
func (a *BaseAgent) Name() string {
	return a.config.Name
}

// Description returns a human readable summary of what the agent does
func (a *BaseAgent) Description() string {
	return a.config.Description
}

// Skills returns the names of the skills this agent routes to
func (a *BaseAgent) Skills() []string {
	return a.skills.Names()
}

func (a *BaseAgent) validate(req *types.AgentRequest) error {
	if req == nil || strings.TrimSpace(req.Input) == "" {
		return errors.NewValidationError("input is required")
	}
	return nil
}

func (a *BaseAgent) buildRequest(skill pkgagent.Skill, req *types.AgentRequest) *llm.Request {
	messages := make([]types.Message, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, types.Message{Role: types.RoleUser, Content: req.Input})

	return &llm.Request{
		System:   skill.SystemPrompt,
		Messages: messages,
	}
}

// Execute handles a request and returns the full response
func (a *BaseAgent) Execute(ctx context.Context, req *types.AgentRequest) (*types.AgentResponse, error) {
	if err := a.validate(req); err != nil {
		return nil, err
	}

	if req.SessionID != "" {
		ctx = logging.WithSessionID(ctx, req.SessionID)
	}

	start := time.Now()
	skill := a.skills.Route(req.Input)

	if a.cache != nil && a.config.CacheTTLSeconds > 0 {
		if cached, hit := a.cache.GetCachedResponse(ctx, a.config.Name, req); hit {
			a.logger.LogAgentEvent(ctx, "execute_cache_hit", a.config.Name, cached.SkillName, nil)
			a.recordExecution(cached.SkillName, "cached", start)
			return cached, nil
		}
	}

	a.logger.LogAgentEvent(ctx, "execute_started", a.config.Name, skill.Name, nil)

	result, err := a.guard.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return a.client.Generate(ctx, a.buildRequest(skill, req))
	})
	if err != nil {
		a.logger.LogError(ctx, err, "Agent execution failed", logrus.Fields{
			"agent_name": a.config.Name,
			"skill_name": skill.Name,
		})
		a.recordExecution(skill.Name, "error", start)
		if a.metrics != nil {
			a.metrics.RecordError("agent", string(errors.GetType(err)))
		}
		return nil, err
	}

	generated := result.(*llm.Response)
	duration := time.Since(start)

	resp := &types.AgentResponse{
		AgentName:  a.config.Name,
		SkillName:  skill.Name,
		Output:     generated.Text,
		DurationMS: duration.Milliseconds(),
		Metadata: map[string]string{
			"provider": a.client.Provider(),
			"model":    a.client.Model(),
		},
		Timestamp: time.Now().UTC(),
	}

	if a.cache != nil && a.config.CacheTTLSeconds > 0 {
		a.cache.CacheResponse(ctx, a.config.Name, req, resp,
			time.Duration(a.config.CacheTTLSeconds)*time.Second)
	}

	a.logger.LogAgentEvent(ctx, "execute_completed", a.config.Name, skill.Name, logrus.Fields{
		"duration_ms":   duration.Milliseconds(),
		"output_tokens": generated.OutputTokens,
	})
	a.recordExecution(skill.Name, "success", start)
	if a.metrics != nil {
		a.metrics.RecordProviderRequest(a.client.Provider(), a.client.Model(), "success", duration)
	}

	return resp, nil
}

// ExecuteStream handles a request and returns the streaming session
// carrying the response events. The provider stream is established
// through the guard; once it is open, events flow without retries.
func (a *BaseAgent) ExecuteStream(ctx context.Context, req *types.StreamRequest) (*streaming.Session, error) {
	if err := a.validate(&req.AgentRequest); err != nil {
		return nil, err
	}

	if req.SessionID != "" {
		ctx = logging.WithSessionID(ctx, req.SessionID)
	}

	skill := a.skills.Route(req.Input)
	a.logger.LogAgentEvent(ctx, "stream_started", a.config.Name, skill.Name, nil)

	result, err := a.guard.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return a.client.StreamGenerate(ctx, a.buildRequest(skill, &req.AgentRequest))
	})
	if err != nil {
		a.logger.LogError(ctx, err, "Agent stream setup failed", logrus.Fields{
			"agent_name": a.config.Name,
			"skill_name": skill.Name,
		})
		return nil, err
	}

	stream := result.(llm.Stream)
	opts := []streaming.StreamOption{
		streaming.WithMetadata(map[string]interface{}{
			"agent":    a.config.Name,
			"skill":    skill.Name,
			"provider": a.client.Provider(),
			"model":    a.client.Model(),
		}),
	}
	if req.Progress {
		// Progress needs a known chunk count, which not every provider
		// stream can report
		if sized, ok := stream.(llm.SizedStream); ok && sized.Size() > 0 {
			opts = append(opts, streaming.WithProgress(sized.Size()))
		}
	}

	session, err := a.streamer.Stream(ctx, stream, opts...)
	if err != nil {
		return nil, err
	}

	return session, nil
}

func (a *BaseAgent) recordExecution(skill, status string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordAgentExecution(a.config.Name, skill, status, time.Since(start))
	}
}
