package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfoundry/agentkit/internal/agent"
	"github.com/agentfoundry/agentkit/internal/llm"
	pkgagent "github.com/agentfoundry/agentkit/pkg/agent"
	apperrors "github.com/agentfoundry/agentkit/pkg/errors"
	"github.com/agentfoundry/agentkit/pkg/metrics"
	"github.com/agentfoundry/agentkit/pkg/resilience"
	"github.com/agentfoundry/agentkit/pkg/streaming"
)

// alertRecorder captures alerts routed through the alert manager
type alertRecorder struct {
	mutex  sync.Mutex
	alerts []resilience.Alert
}

func (h *alertRecorder) HandleAlert(ctx context.Context, alert resilience.Alert) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.alerts = append(h.alerts, alert)
	return nil
}

func (h *alertRecorder) Name() string { return "recorder" }

func (h *alertRecorder) recorded() []resilience.Alert {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]resilience.Alert(nil), h.alerts...)
}

type testFixture struct {
	router  *gin.Engine
	client  *llm.ScriptedClient
	metrics *metrics.Metrics
	alerts  *alertRecorder
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client := llm.NewScriptedClient("scripted answer about meal planning")
	streamer := streaming.NewStreamer(streaming.StreamerConfig{
		HeartbeatInterval: time.Hour,
		BufferSize:        128,
	})
	guard := resilience.NewGuard("llm", resilience.CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  50 * time.Millisecond,
	}, resilience.RetryPolicy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	})

	skills := agent.NewSkillSet(
		pkgagent.Skill{Name: "general", Description: "general conversation"},
		pkgagent.Skill{Name: "meal_planning", Keywords: []string{"meal", "recipe"}},
	)
	coach := agent.NewBaseAgent(pkgagent.Config{
		Name:        "coach",
		Description: "health coaching agent",
	}, skills, agent.Deps{
		Client:   client,
		Guard:    guard,
		Streamer: streamer,
	})

	registry := agent.NewRegistry()
	require.NoError(t, registry.Register(coach))

	degradation := resilience.NewDegradationManager()
	degradation.Register("llm", resilience.LevelSevere)

	m := metrics.NewMetrics(nil)

	recorder := &alertRecorder{}
	alertManager := resilience.NewAlertManager()
	alertManager.AddHandler(recorder)

	server := NewServer(ServerDeps{
		Registry:    registry,
		Streamer:    streamer,
		Degradation: degradation,
		Guards:      map[string]*resilience.Guard{"llm": guard},
		Metrics:     m,
		Alerts:      resilience.NewErrorAlertGenerator(alertManager),
	})

	return &testFixture{
		router:  server.Router(),
		client:  client,
		metrics: m,
		alerts:  recorder,
	}
}

func newTestServer(t *testing.T) (*gin.Engine, *llm.ScriptedClient) {
	t.Helper()
	f := newTestFixture(t)
	return f.router, f.client
}

// streamRecorder implements http.CloseNotifier, which gin's Stream
// helper requires and httptest.ResponseRecorder lacks.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{
		ResponseRecorder: httptest.NewRecorder(),
		closed:           make(chan bool, 1),
	}
}

func (r *streamRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *streamRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := newStreamRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAPI_ListAgents(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/agents", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)

	data := resp.Data.(map[string]interface{})
	agents := data["agents"].([]interface{})
	require.Len(t, agents, 1)
	first := agents[0].(map[string]interface{})
	assert.Equal(t, "coach", first["name"])
	assert.Contains(t, first["skills"], "meal_planning")
}

func TestAPI_ExecuteAgent(t *testing.T) {
	router, client := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/coach/execute",
		map[string]interface{}{"input": "plan my meals for the week"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "coach", data["agent_name"])
	assert.Equal(t, "meal_planning", data["skill_name"])
	assert.Equal(t, "scripted answer about meal planning", data["output"])
	assert.Equal(t, 1, client.Calls())
}

func TestAPI_ExecuteValidationError(t *testing.T) {
	router, client := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/coach/execute",
		map[string]interface{}{"input": "   "}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, 0, client.Calls())
}

func TestAPI_ExecuteUnknownAgent(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/nope/execute",
		map[string]interface{}{"input": "hello"}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestAPI_ExecuteMalformedBody(t *testing.T) {
	router, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/agents/coach/execute",
		bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_ExecuteProviderErrorMapsToBadGateway(t *testing.T) {
	router, client := newTestServer(t)
	client.FailWith(apperrors.NewProviderError("scripted", "overloaded"))

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/coach/execute",
		map[string]interface{}{"input": "hello"}, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", resp.Error.Code)
}

func TestAPI_ExecuteFailureGeneratesAlert(t *testing.T) {
	f := newTestFixture(t)
	f.client.FailWith(apperrors.NewProviderError("scripted", "overloaded"))

	rec := doJSON(t, f.router, http.MethodPost, "/api/v1/agents/coach/execute",
		map[string]interface{}{"input": "hello"}, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	alerts := f.alerts.recorded()
	require.Len(t, alerts, 1)
	assert.Equal(t, resilience.SeverityError, alerts[0].Severity)
	assert.Equal(t, "agent:coach", alerts[0].Source)
	assert.Equal(t, "true", alerts[0].Tags["retry_exhausted"])
}

func TestAPI_StreamAgentSSE(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/coach/stream",
		map[string]interface{}{"input": "stream me a recipe"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	assert.NotEmpty(t, rec.Header().Get("X-Stream-ID"))

	events, err := streaming.ParseSSE(rec.Body)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(events), 3)

	assert.Equal(t, streaming.EventStart, events[0].Type)
	assert.Equal(t, streaming.EventEnd, events[len(events)-1].Type)

	reassembled := ""
	for _, ev := range events {
		if ev.Type == streaming.EventData {
			reassembled += ev.Data.(string)
		}
	}
	assert.Equal(t, "scripted answer about meal planning", reassembled)
}

func TestAPI_StreamAgentProgressEvents(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/coach/stream",
		map[string]interface{}{"input": "stream me a recipe", "progress": true}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	events, err := streaming.ParseSSE(rec.Body)
	require.NoError(t, err)

	var progress []map[string]interface{}
	for _, ev := range events {
		if ev.Type == streaming.EventProgress {
			p, ok := ev.Data.(map[string]interface{})
			require.True(t, ok)
			progress = append(progress, p)
		}
	}

	require.NotEmpty(t, progress)
	last := progress[len(progress)-1]
	assert.Equal(t, float64(100), last["percent"])
	assert.Equal(t, last["total"], last["completed"])
}

func TestAPI_StreamRecordsStreamMetrics(t *testing.T) {
	f := newTestFixture(t)

	rec := doJSON(t, f.router, http.MethodPost, "/api/v1/agents/coach/stream",
		map[string]interface{}{"input": "stream me a recipe"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The gauge returns to zero once the stream completes, and the
	// event counter shows the session actually flowed through it
	assert.Equal(t, float64(0), testutil.ToFloat64(f.metrics.ActiveStreams.WithLabelValues("coach")))
	assert.Greater(t, testutil.ToFloat64(f.metrics.StreamEvents.WithLabelValues("data")), float64(0))
}

func TestAPI_StreamAgentNDJSON(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/coach/stream",
		map[string]interface{}{"input": "another recipe please"},
		map[string]string{"Accept": "application/x-ndjson"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/x-ndjson")

	events, err := streaming.ParseNDJSON(rec.Body)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, streaming.EventStart, events[0].Type)
	assert.Equal(t, streaming.EventEnd, events[len(events)-1].Type)
}

func TestAPI_StreamValidationError(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/coach/stream",
		map[string]interface{}{"input": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetStreamNotFound(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/streams/00000000-0000-0000-0000-000000000000", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CancelStreamNotFound(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/streams/00000000-0000-0000-0000-000000000000", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_SystemStatus(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.Contains(t, data, "degradation")
	assert.Contains(t, data, "circuit_breakers")
	breakers := data["circuit_breakers"].(map[string]interface{})
	assert.Contains(t, breakers, "llm")
}

func TestAPI_RequestIDPropagation(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/agents", nil,
		map[string]string{"X-Request-ID": "req-abc-123"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-abc-123", rec.Header().Get("X-Request-ID"))

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-abc-123", resp.RequestID)
}
