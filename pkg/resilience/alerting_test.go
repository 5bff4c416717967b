package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/agentfoundry/agentkit/pkg/errors"
)

type capturingHandler struct {
	mutex  sync.Mutex
	alerts []Alert
}

func (h *capturingHandler) HandleAlert(ctx context.Context, alert Alert) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.alerts = append(h.alerts, alert)
	return nil
}

func (h *capturingHandler) Name() string { return "capturing" }

func (h *capturingHandler) captured() []Alert {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	out := make([]Alert, len(h.alerts))
	copy(out, h.alerts)
	return out
}

func TestAlertManager_SendAlert(t *testing.T) {
	am := NewAlertManager()
	handler := &capturingHandler{}
	am.AddHandler(handler)

	err := am.SendAlert(context.Background(), Alert{
		Severity: SeverityWarning,
		Title:    "Provider latency elevated",
		Source:   "llm",
	})
	require.NoError(t, err)

	alerts := handler.captured()
	require.Len(t, alerts, 1)
	assert.NotEmpty(t, alerts[0].ID)
	assert.False(t, alerts[0].Timestamp.IsZero())
	assert.Equal(t, "llm", alerts[0].Source)
}

func TestAlertManager_RateLimitPerSource(t *testing.T) {
	am := NewAlertManager()
	am.rateLimit = 3
	handler := &capturingHandler{}
	am.AddHandler(handler)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, am.SendAlert(ctx, Alert{Title: "t", Source: "llm"}))
	}
	err := am.SendAlert(ctx, Alert{Title: "t", Source: "llm"})
	require.Error(t, err)

	// other sources are unaffected
	require.NoError(t, am.SendAlert(ctx, Alert{Title: "t", Source: "redis"}))
	assert.Len(t, handler.captured(), 4)
}

func TestAlertManager_RateLimitResets(t *testing.T) {
	am := NewAlertManager()
	am.rateLimit = 1
	am.resetInterval = 10 * time.Millisecond
	handler := &capturingHandler{}
	am.AddHandler(handler)
	ctx := context.Background()

	require.NoError(t, am.SendAlert(ctx, Alert{Title: "t", Source: "llm"}))
	require.Error(t, am.SendAlert(ctx, Alert{Title: "t", Source: "llm"}))

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, am.SendAlert(ctx, Alert{Title: "t", Source: "llm"}))
}

func TestErrorAlertGenerator_Severity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want AlertSeverity
	}{
		{"circuit open", &CircuitOpenError{Name: "llm"}, SeverityError},
		{"retry exhausted", &RetryExhaustedError{Attempts: 3, LastErr: apperrors.NewInternalError("x")}, SeverityError},
		{"timeout", apperrors.NewTimeoutError("generate"), SeverityWarning},
		{"provider", apperrors.NewProviderError("anthropic", "overloaded"), SeverityWarning},
		{"validation", apperrors.NewValidationError("bad input"), SeverityInfo},
		{"internal", apperrors.NewInternalError("boom"), SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := NewAlertManager()
			handler := &capturingHandler{}
			am.AddHandler(handler)
			gen := NewErrorAlertGenerator(am)

			gen.HandleError(context.Background(), tt.err, "test", nil)

			alerts := handler.captured()
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.want, alerts[0].Severity)
		})
	}
}

func TestErrorAlertGenerator_Tags(t *testing.T) {
	am := NewAlertManager()
	handler := &capturingHandler{}
	am.AddHandler(handler)
	gen := NewErrorAlertGenerator(am)

	gen.HandleError(context.Background(), &CircuitOpenError{Name: "llm"}, "guard", nil)

	alerts := handler.captured()
	require.Len(t, alerts, 1)
	assert.Equal(t, "true", alerts[0].Tags["circuit_breaker"])
}

func TestErrorAlertGenerator_NilErrorIgnored(t *testing.T) {
	am := NewAlertManager()
	handler := &capturingHandler{}
	am.AddHandler(handler)
	gen := NewErrorAlertGenerator(am)

	gen.HandleError(context.Background(), nil, "guard", nil)
	assert.Empty(t, handler.captured())
}
