package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentfoundry/agentkit/pkg/logging"
	"github.com/agentfoundry/agentkit/pkg/metrics"
	"github.com/agentfoundry/agentkit/pkg/types"
)

const keyPrefix = "agentkit:cache:"

// Service provides JSON caching on top of Redis
type Service struct {
	client     *Client
	metrics    *metrics.Metrics
	logger     *logging.Logger
	defaultTTL time.Duration
}

// NewService creates a new cache service
func NewService(client *Client, m *metrics.Metrics, defaultTTL time.Duration) *Service {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}

	return &Service{
		client:     client,
		metrics:    m,
		logger:     logging.GetLogger(),
		defaultTTL: defaultTTL,
	}
}

// Get retrieves a cached value into dest. Returns false on a miss.
func (s *Service) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	start := time.Now()

	data, err := s.client.Redis().Get(ctx, keyPrefix+key).Bytes()
	if err == redis.Nil {
		s.record("get", "miss", start)
		return false, nil
	}
	if err != nil {
		s.record("get", "error", start)
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		s.record("get", "error", start)
		return false, fmt.Errorf("cache value decode failed: %w", err)
	}

	s.record("get", "hit", start)
	return true, nil
}

// Set stores a value with the given TTL. A zero TTL uses the default.
func (s *Service) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	start := time.Now()

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		s.record("set", "error", start)
		return fmt.Errorf("cache value encode failed: %w", err)
	}

	if err := s.client.Redis().Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		s.record("set", "error", start)
		return fmt.Errorf("cache set failed: %w", err)
	}

	s.record("set", "ok", start)
	return nil
}

// Delete removes a cached value
func (s *Service) Delete(ctx context.Context, key string) error {
	start := time.Now()

	if err := s.client.Redis().Del(ctx, keyPrefix+key).Err(); err != nil {
		s.record("delete", "error", start)
		return fmt.Errorf("cache delete failed: %w", err)
	}

	s.record("delete", "ok", start)
	return nil
}

// Exists checks whether a key is cached
func (s *Service) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Redis().Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("cache exists failed: %w", err)
	}
	return n > 0, nil
}

// GetCachedResponse looks up a cached agent response for a request
func (s *Service) GetCachedResponse(ctx context.Context, agentName string, req *types.AgentRequest) (*types.AgentResponse, bool) {
	var resp types.AgentResponse
	hit, err := s.Get(ctx, responseKey(agentName, req), &resp)
	if err != nil {
		s.logger.Warn("Response cache lookup failed", "agent", agentName, "error", err.Error())
		return nil, false
	}
	if !hit {
		return nil, false
	}

	resp.Cached = true
	return &resp, true
}

// CacheResponse stores an agent response for future identical requests
func (s *Service) CacheResponse(ctx context.Context, agentName string, req *types.AgentRequest, resp *types.AgentResponse, ttl time.Duration) {
	if err := s.Set(ctx, responseKey(agentName, req), resp, ttl); err != nil {
		s.logger.Warn("Response cache store failed", "agent", agentName, "error", err.Error())
	}
}

// responseKey derives a stable key from the agent name and request content
func responseKey(agentName string, req *types.AgentRequest) string {
	h := sha256.New()
	h.Write([]byte(agentName))
	h.Write([]byte{0})
	h.Write([]byte(req.Input))
	for _, msg := range req.History {
		h.Write([]byte{0})
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
	}
	return "response:" + hex.EncodeToString(h.Sum(nil))
}

func (s *Service) record(operation, result string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(operation, result, time.Since(start))
	}
}
