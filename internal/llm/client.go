package llm

import (
	"context"

	"github.com/agentfoundry/agentkit/pkg/types"
)

// Request is a generation request to a model provider
type Request struct {
	// System is the system prompt, empty for none
	System string
	// Messages is the conversation so far, oldest first
	Messages []types.Message
	// MaxTokens caps the generated output
	MaxTokens int64
	// Temperature controls sampling randomness
	Temperature float64
}

// Response is a complete generation result
type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Stream iterates over generated text chunks. It satisfies the
// streaming producer contract so it can feed a streaming session
// directly. Err reports the failure that stopped iteration, if any.
type Stream interface {
	Next() bool
	Current() interface{}
	Err() error
}

// SizedStream is a Stream that knows up front how many chunks it will
// yield. Progress reporting is only possible for sized streams.
type SizedStream interface {
	Stream
	Size() int
}

// Client is a model provider
type Client interface {
	// Provider returns the provider name, e.g. "anthropic"
	Provider() string

	// Model returns the configured model identifier
	Model() string

	// Generate produces a complete response
	Generate(ctx context.Context, req *Request) (*Response, error)

	// StreamGenerate produces a response as a stream of text chunks
	StreamGenerate(ctx context.Context, req *Request) (Stream, error)
}
