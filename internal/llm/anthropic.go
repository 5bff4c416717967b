package llm

import (
	"context"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentfoundry/agentkit/pkg/config"
	"github.com/agentfoundry/agentkit/pkg/errors"
	"github.com/agentfoundry/agentkit/pkg/types"
)

const providerAnthropic = "anthropic"

// AnthropicClient talks to the Anthropic Messages API
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicClient creates a client from configuration
func NewAnthropicClient(cfg *config.LLMConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewValidationError("LLM_API_KEY is required for the anthropic provider")
	}
	if cfg.Model == "" {
		return nil, errors.NewValidationError("LLM_MODEL is required for the anthropic provider")
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &AnthropicClient{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Provider returns the provider name
func (c *AnthropicClient) Provider() string {
	return providerAnthropic
}

// Model returns the configured model identifier
func (c *AnthropicClient) Model() string {
	return c.model
}

func (c *AnthropicClient) buildParams(req *Request) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		block := anthropic.NewTextBlock(msg.Content)
		switch msg.Role {
		case types.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		default:
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	if temperature > 0 {
		params.Temperature = anthropic.Float(temperature)
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	return params
}

// Generate produces a complete response
func (c *AnthropicClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	msg, err := c.client.Messages.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, errors.NewProviderError(providerAnthropic, "message request failed").WithCause(err)
	}

	text := ""
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Response{
		Text:         text,
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}

// StreamGenerate produces a response as a stream of text chunks
func (c *AnthropicClient) StreamGenerate(ctx context.Context, req *Request) (Stream, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.buildParams(req))
	return &anthropicStream{stream: stream}, nil
}

// anthropicStream adapts the SDK's SSE stream to the Stream interface,
// yielding only the text deltas.
type anthropicStream struct {
	stream  *ssestream.Stream[anthropic.MessageStreamEventUnion]
	current string
}

func (s *anthropicStream) Next() bool {
	for s.stream.Next() {
		event := s.stream.Current()
		if event.Type != "content_block_delta" {
			continue
		}

		delta := event.AsContentBlockDelta().Delta
		if delta.Type == "text_delta" && delta.Text != "" {
			s.current = delta.Text
			return true
		}
	}
	return false
}

func (s *anthropicStream) Current() interface{} {
	return s.current
}

func (s *anthropicStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return errors.NewProviderError(providerAnthropic, "stream failed").WithCause(err)
	}
	return nil
}
