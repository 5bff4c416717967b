package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/agentfoundry/agentkit/pkg/errors"
)

// ScriptedClient replays canned responses. It backs the development
// mode without an API key and the test suites.
type ScriptedClient struct {
	model     string
	chunkSize int

	mutex     sync.Mutex
	responses []string
	pos       int
	failWith  error
	failLeft  int
	calls     int
}

// NewScriptedClient creates a client that cycles through the given responses
func NewScriptedClient(responses ...string) *ScriptedClient {
	if len(responses) == 0 {
		responses = []string{"This is a scripted response."}
	}
	return &ScriptedClient{
		model:     "scripted-v1",
		chunkSize: 12,
		responses: responses,
	}
}

// FailWith makes every subsequent call fail with err. Passing nil
// restores normal behavior.
func (c *ScriptedClient) FailWith(err error) {
	c.mutex.Lock()
	c.failWith = err
	c.failLeft = 0
	c.mutex.Unlock()
}

// FailTimes makes only the next n calls fail with err
func (c *ScriptedClient) FailTimes(n int, err error) {
	c.mutex.Lock()
	c.failWith = err
	c.failLeft = n
	c.mutex.Unlock()
}

// Calls returns how many generation calls were made
func (c *ScriptedClient) Calls() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.calls
}

// Provider returns the provider name
func (c *ScriptedClient) Provider() string {
	return "scripted"
}

// Model returns the configured model identifier
func (c *ScriptedClient) Model() string {
	return c.model
}

func (c *ScriptedClient) next() (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.calls++
	if c.failWith != nil {
		err := c.failWith
		if c.failLeft > 0 {
			c.failLeft--
			if c.failLeft == 0 {
				c.failWith = nil
			}
		}
		return "", err
	}

	text := c.responses[c.pos%len(c.responses)]
	c.pos++
	return text, nil
}

// Generate returns the next scripted response
func (c *ScriptedClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("generation").WithCause(err)
	}

	text, err := c.next()
	if err != nil {
		return nil, err
	}

	return &Response{
		Text:         text,
		InputTokens:  int64(len(req.Messages)),
		OutputTokens: int64(len(strings.Fields(text))),
	}, nil
}

// StreamGenerate returns the next scripted response split into chunks
func (c *ScriptedClient) StreamGenerate(ctx context.Context, req *Request) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelledError("generation").WithCause(err)
	}

	text, err := c.next()
	if err != nil {
		return nil, err
	}

	var chunks []string
	for len(text) > 0 {
		n := c.chunkSize
		if n > len(text) {
			n = len(text)
		}
		chunks = append(chunks, text[:n])
		text = text[n:]
	}

	return &scriptedStream{chunks: chunks, pos: -1}, nil
}

type scriptedStream struct {
	chunks []string
	pos    int
	err    error
}

func (s *scriptedStream) Next() bool {
	s.pos++
	return s.pos < len(s.chunks)
}

func (s *scriptedStream) Current() interface{} {
	return s.chunks[s.pos]
}

func (s *scriptedStream) Err() error {
	return s.err
}

// Size returns the total number of chunks the stream will yield
func (s *scriptedStream) Size() int {
	return len(s.chunks)
}
