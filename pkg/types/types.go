package types

import (
	"time"
)

// Role identifies the author of a conversation message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single turn in a conversation
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AgentRequest is a request for an agent to handle
type AgentRequest struct {
	SessionID string            `json:"session_id,omitempty"`
	Input     string            `json:"input"`
	History   []Message         `json:"history,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AgentResponse is the result of an agent execution
type AgentResponse struct {
	AgentName  string            `json:"agent_name"`
	SkillName  string            `json:"skill_name,omitempty"`
	Output     string            `json:"output"`
	Cached     bool              `json:"cached"`
	DurationMS int64             `json:"duration_ms"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// StreamRequest asks an agent to stream its response
type StreamRequest struct {
	AgentRequest
	// Progress asks the stream to interleave progress events. Honored
	// only when the provider stream reports its chunk count.
	Progress bool `json:"progress,omitempty"`
}

// AgentInfo describes a registered agent
type AgentInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
}
