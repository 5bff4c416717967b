package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	apperrors "github.com/agentfoundry/agentkit/pkg/errors"
	"github.com/agentfoundry/agentkit/pkg/logging"
)

// RetryPolicy controls retry behavior. A policy is immutable once
// created and safe for concurrent use.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff delay before jitter
	MaxDelay time.Duration
	// BackoffFactor multiplies the delay after each failed attempt
	BackoffFactor float64
	// Jitter randomizes each delay within JitterRange
	Jitter bool
	// JitterRange holds the min and max multipliers applied to the
	// delay when Jitter is enabled. Zero value means {0.5, 1.5}.
	JitterRange [2]float64
	// RetryOn lists error types that are retryable. Empty means all
	// qualifying errors are retryable.
	RetryOn []apperrors.ErrorType
	// DontRetryOn lists error types that are never retried. Takes
	// precedence over RetryOn.
	DontRetryOn []apperrors.ErrorType
	// Predicate, when set, gets the final say on whether an error is
	// retryable after the type filters pass.
	Predicate func(error) bool
	// OnRetry is called before each retry sleep with the attempt number
	// that just failed, the error, and the upcoming delay
	OnRetry func(attempt int, err error, delay time.Duration)
	// OnSuccess is called once when an attempt succeeds
	OnSuccess func(attempt int)
	// OnFailure is called once when all attempts are exhausted
	OnFailure func(attempts int, err error)
}

// DefaultRetryPolicy returns a policy suitable for calls to external services
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		DontRetryOn: []apperrors.ErrorType{
			apperrors.ErrorTypeValidation,
			apperrors.ErrorTypeNotFound,
			apperrors.ErrorTypeConflict,
			apperrors.ErrorTypeCancelled,
		},
	}
}

// Retrier executes operations according to a RetryPolicy
type Retrier struct {
	policy RetryPolicy
	logger *logging.Logger

	// rand is swappable for deterministic tests
	rand func() float64
}

// NewRetrier creates a new retrier with the given policy
func NewRetrier(policy RetryPolicy) *Retrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 1 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.BackoffFactor < 1.0 {
		policy.BackoffFactor = 2.0
	}
	if policy.JitterRange == [2]float64{} {
		policy.JitterRange = [2]float64{0.5, 1.5}
	}

	return &Retrier{
		policy: policy,
		logger: logging.GetLogger(),
		rand:   rand.Float64,
	}
}

// Policy returns a copy of the retrier's policy
func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Execute runs the operation, retrying on retryable failures until it
// succeeds, a non-retryable error occurs, attempts are exhausted, or
// the context is cancelled.
//
// Non-retryable errors propagate to the caller unchanged. Exhaustion is
// reported as *RetryExhaustedError wrapping the last attempt's error.
func (r *Retrier) Execute(ctx context.Context, op func(context.Context) (interface{}, error)) (interface{}, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if r.policy.OnSuccess != nil {
				r.policy.OnSuccess(attempt)
			}
			return result, nil
		}

		lastErr = err

		if !r.IsRetryable(err) {
			return nil, err
		}

		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.calculateDelay(attempt)

		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}

		r.logger.Debug("Retrying operation",
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if r.policy.OnFailure != nil {
		r.policy.OnFailure(r.policy.MaxAttempts, lastErr)
	}

	return nil, &RetryExhaustedError{
		Attempts: r.policy.MaxAttempts,
		LastErr:  lastErr,
	}
}

// IsRetryable reports whether the policy would retry the given error
func (r *Retrier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// A rejected call never gets retried against the same breaker
	if IsCircuitOpenError(err) {
		return false
	}

	errType := apperrors.GetType(err)

	for _, t := range r.policy.DontRetryOn {
		if errType == t {
			return false
		}
	}

	if len(r.policy.RetryOn) > 0 {
		found := false
		for _, t := range r.policy.RetryOn {
			if errType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if r.policy.Predicate != nil {
		return r.policy.Predicate(err)
	}

	return true
}

// calculateDelay computes the backoff delay for the given attempt,
// starting at 1. The cap applies before jitter, so a jittered delay
// may exceed MaxDelay by at most the upper jitter multiplier.
func (r *Retrier) calculateDelay(attempt int) time.Duration {
	backoff := float64(r.policy.InitialDelay) * math.Pow(r.policy.BackoffFactor, float64(attempt-1))
	if backoff > float64(r.policy.MaxDelay) {
		backoff = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		lo, hi := r.policy.JitterRange[0], r.policy.JitterRange[1]
		backoff *= lo + r.rand()*(hi-lo)
	}

	return time.Duration(backoff)
}

// RetryExhaustedError is returned when all retry attempts failed
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.LastErr)
}

// Unwrap returns the error from the final attempt
func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsRetryExhaustedError checks if an error is a retry exhaustion
func IsRetryExhaustedError(err error) bool {
	var reErr *RetryExhaustedError
	return errors.As(err, &reErr)
}
