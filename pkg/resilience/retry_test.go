package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/agentfoundry/agentkit/pkg/errors"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  5 * time.Millisecond,
		MaxDelay:      50 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrier_SucceedsFirstAttempt(t *testing.T) {
	r := NewRetrier(fastPolicy())

	calls := 0
	result, err := r.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestRetrier_RetriesUntilSuccess(t *testing.T) {
	r := NewRetrier(fastPolicy())

	calls := 0
	result, err := r.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, apperrors.NewExternalError("upstream", "temporary failure")
		}
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	r := NewRetrier(fastPolicy())

	lastErr := apperrors.NewExternalError("upstream", "still down")
	calls := 0
	_, err := r.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, lastErr
	})

	assert.Equal(t, 3, calls)
	require.Error(t, err)
	assert.True(t, IsRetryExhaustedError(err))

	var reErr *RetryExhaustedError
	require.ErrorAs(t, err, &reErr)
	assert.Equal(t, 3, reErr.Attempts)
	assert.Equal(t, lastErr, reErr.LastErr)
	assert.ErrorIs(t, err, lastErr)
}

func TestRetrier_NonRetryableErrorPropagatesVerbatim(t *testing.T) {
	policy := fastPolicy()
	policy.DontRetryOn = []apperrors.ErrorType{apperrors.ErrorTypeValidation}
	r := NewRetrier(policy)

	valErr := apperrors.NewValidationError("bad input")
	calls := 0
	_, err := r.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, valErr
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, valErr, err)
	assert.False(t, IsRetryExhaustedError(err))
}

func TestRetrier_DontRetryOnTakesPrecedence(t *testing.T) {
	policy := fastPolicy()
	policy.RetryOn = []apperrors.ErrorType{apperrors.ErrorTypeExternal}
	policy.DontRetryOn = []apperrors.ErrorType{apperrors.ErrorTypeExternal}
	r := NewRetrier(policy)

	assert.False(t, r.IsRetryable(apperrors.NewExternalError("upstream", "down")))
}

func TestRetrier_RetryOnAllowList(t *testing.T) {
	policy := fastPolicy()
	policy.RetryOn = []apperrors.ErrorType{apperrors.ErrorTypeTimeout}
	r := NewRetrier(policy)

	assert.True(t, r.IsRetryable(apperrors.NewTimeoutError("call")))
	assert.False(t, r.IsRetryable(apperrors.NewExternalError("upstream", "down")))
}

func TestRetrier_PredicateGetsFinalSay(t *testing.T) {
	policy := fastPolicy()
	policy.Predicate = func(err error) bool {
		return apperrors.GetCode(err) != "TERMINAL"
	}
	r := NewRetrier(policy)

	assert.False(t, r.IsRetryable(apperrors.NewAppError(apperrors.ErrorTypeExternal, "TERMINAL", "no")))
	assert.True(t, r.IsRetryable(apperrors.NewExternalError("upstream", "down")))
}

func TestRetrier_CircuitOpenErrorNeverRetryable(t *testing.T) {
	r := NewRetrier(fastPolicy())

	err := &CircuitOpenError{Name: "dep", ResetAfter: time.Second}
	assert.False(t, r.IsRetryable(err))

	calls := 0
	_, execErr := r.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, err
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, err, execErr)
}

func TestRetrier_ContextCancellationStopsRetries(t *testing.T) {
	policy := fastPolicy()
	policy.InitialDelay = 200 * time.Millisecond
	r := NewRetrier(policy)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	start := time.Now()
	_, err := r.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, apperrors.NewExternalError("upstream", "down")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestRetrier_CalculateDelayBackoff(t *testing.T) {
	r := NewRetrier(RetryPolicy{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        false,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second}, // capped at MaxDelay
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, r.calculateDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetrier_JitterStaysWithinRange(t *testing.T) {
	r := NewRetrier(RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	})

	for i := 0; i < 100; i++ {
		delay := r.calculateDelay(2)
		assert.GreaterOrEqual(t, delay, 100*time.Millisecond)
		assert.LessOrEqual(t, delay, 300*time.Millisecond)
	}
}

func TestRetrier_JitterDeterministicDraw(t *testing.T) {
	r := NewRetrier(RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		JitterRange:   [2]float64{0.5, 1.5},
	})
	r.rand = func() float64 { return 0.5 }

	// base 200ms, multiplier 0.5 + 0.5*1.0 = 1.0
	assert.Equal(t, 200*time.Millisecond, r.calculateDelay(2))

	r.rand = func() float64 { return 0.0 }
	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(2))

	r.rand = func() float64 { return 1.0 }
	assert.Equal(t, 300*time.Millisecond, r.calculateDelay(2))
}

func TestRetrier_Callbacks(t *testing.T) {
	var retryAttempts []int
	var successAttempt int
	policy := fastPolicy()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		retryAttempts = append(retryAttempts, attempt)
	}
	policy.OnSuccess = func(attempt int) {
		successAttempt = attempt
	}
	r := NewRetrier(policy)

	calls := 0
	_, err := r.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, apperrors.NewExternalError("upstream", "flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, retryAttempts)
	assert.Equal(t, 3, successAttempt)
}

func TestRetrier_OnFailureCalledOnExhaustion(t *testing.T) {
	var failedAttempts int
	var failedErr error
	policy := fastPolicy()
	policy.OnFailure = func(attempts int, err error) {
		failedAttempts = attempts
		failedErr = err
	}
	r := NewRetrier(policy)

	upstream := apperrors.NewExternalError("upstream", "down")
	_, err := r.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, upstream
	})

	require.True(t, IsRetryExhaustedError(err))
	assert.Equal(t, 3, failedAttempts)
	assert.Equal(t, upstream, failedErr)
}

func TestDefaultRetryPolicy(t *testing.T) {
	r := NewRetrier(DefaultRetryPolicy())

	assert.True(t, r.IsRetryable(apperrors.NewExternalError("upstream", "down")))
	assert.True(t, r.IsRetryable(apperrors.NewTimeoutError("call")))
	assert.True(t, r.IsRetryable(errors.New("plain error")))
	assert.False(t, r.IsRetryable(apperrors.NewValidationError("bad")))
	assert.False(t, r.IsRetryable(apperrors.NewNotFoundError("agent")))
	assert.False(t, r.IsRetryable(apperrors.NewCancelledError("call")))
}
