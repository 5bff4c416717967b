package agent

import (
	"context"

	"github.com/agentfoundry/agentkit/pkg/streaming"
	"github.com/agentfoundry/agentkit/pkg/types"
)

// Agent handles conversational requests, either as a single response
// or as a stream of events.
type Agent interface {
	// Name returns the unique name of the agent
	Name() string

	// Description returns a human readable summary of what the agent does
	Description() string

	// Skills returns the names of the skills this agent can route to
	Skills() []string

	// Execute handles a request and returns the full response
	Execute(ctx context.Context, req *types.AgentRequest) (*types.AgentResponse, error)

	// ExecuteStream handles a request and returns the streaming
	// session carrying the response events
	ExecuteStream(ctx context.Context, req *types.StreamRequest) (*streaming.Session, error)
}

// Skill is a unit of capability an agent routes requests to
type Skill struct {
	// Name is the unique skill name within an agent
	Name string
	// Description summarizes what the skill does
	Description string
	// Keywords route a request to this skill when any of them appears
	// in the input
	Keywords []string
	// SystemPrompt primes the model for this skill
	SystemPrompt string
}

// Config holds per-agent configuration
type Config struct {
	Name        string
	Description string
	// CacheTTLSeconds controls response caching, 0 disables it
	CacheTTLSeconds int
}

// Registry holds the set of available agents
type Registry interface {
	// Register adds an agent to the registry
	Register(a Agent) error

	// Get returns the agent with the given name
	Get(name string) (Agent, bool)

	// List returns all registered agents
	List() []Agent
}
