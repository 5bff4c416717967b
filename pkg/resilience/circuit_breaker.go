package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentfoundry/agentkit/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, requests are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, requests are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, trial requests are allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	// Name of the guarded dependency, used in logs and errors
	Name string
	// FailureThreshold is the number of consecutive failures that
	// moves the breaker from closed to open
	FailureThreshold int
	// RecoveryTimeout is the minimum time the breaker stays open
	// before a half-open probe is allowed
	RecoveryTimeout time.Duration
	// HalfOpenSuccesses is the number of consecutive successful calls
	// in half-open state required to close the breaker again
	HalfOpenSuccesses int
	// IsFailure decides whether an error counts against the breaker.
	// Errors it rejects propagate to the caller without touching state.
	// Nil counts every non-nil error.
	IsFailure func(error) bool
	// OnStateChange is called whenever the state of the circuit breaker changes
	OnStateChange func(name string, from CircuitState, to CircuitState)
}

// CircuitBreakerStats is a read-only snapshot of breaker state and counters
type CircuitBreakerStats struct {
	Name            string       `json:"name"`
	State           CircuitState `json:"-"`
	StateLabel      string       `json:"state"`
	FailureCount    int          `json:"failure_count"`
	SuccessCount    int64        `json:"success_count"`
	TotalCalls      int64        `json:"total_calls"`
	SuccessRate     float64      `json:"success_rate"`
	LastFailureTime time.Time    `json:"last_failure_time"`
}

// CircuitBreaker stops calling a failing dependency after repeated
// consecutive failures and periodically probes it for recovery.
//
// The open->half-open transition happens lazily at call time once the
// recovery timeout has elapsed; there is no background timer. The breaker
// does not bound the number of concurrent half-open probes.
type CircuitBreaker struct {
	name              string
	failureThreshold  int
	recoveryTimeout   time.Duration
	halfOpenSuccesses int
	isFailure         func(error) bool
	onStateChange     func(name string, from CircuitState, to CircuitState)

	mutex           sync.Mutex
	state           CircuitState
	failureCount    int
	successCount    int64
	totalCalls      int64
	halfOpenProbes  int
	lastFailureTime time.Time

	// now is swappable for tests
	now func() time.Time

	logger *logging.Logger
}

// DefaultHalfOpenSuccesses is the number of consecutive half-open
// successes required to close the breaker when none is configured.
const DefaultHalfOpenSuccesses = 3

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:              config.Name,
		failureThreshold:  config.FailureThreshold,
		recoveryTimeout:   config.RecoveryTimeout,
		halfOpenSuccesses: config.HalfOpenSuccesses,
		isFailure:         config.IsFailure,
		onStateChange:     config.OnStateChange,
		state:             StateClosed,
		now:               time.Now,
		logger:            logging.GetLogger(),
	}

	if cb.failureThreshold <= 0 {
		cb.failureThreshold = 5
	}
	if cb.recoveryTimeout <= 0 {
		cb.recoveryTimeout = 30 * time.Second
	}
	if cb.halfOpenSuccesses <= 0 {
		cb.halfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	if cb.isFailure == nil {
		cb.isFailure = func(err error) bool { return err != nil }
	}

	return cb
}

// Execute runs the given operation if the circuit breaker accepts it.
// An open breaker rejects the call with *CircuitOpenError without
// invoking the operation.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := cb.beforeCall(); err != nil {
		return nil, err
	}

	result, err := op(ctx)
	cb.afterCall(err)
	return result, err
}

// Call is a convenience method that wraps Execute for operations that don't need context
func (cb *CircuitBreaker) Call(op func() (interface{}, error)) (interface{}, error) {
	return cb.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		return op()
	})
}

// beforeCall counts the call and applies the open-state gate, performing
// the lazy open->half-open transition when the recovery timeout elapsed.
func (cb *CircuitBreaker) beforeCall() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.totalCalls++

	if cb.state == StateOpen {
		elapsed := cb.now().Sub(cb.lastFailureTime)
		if elapsed >= cb.recoveryTimeout {
			cb.setState(StateHalfOpen)
		} else {
			return &CircuitOpenError{
				Name:       cb.name,
				ResetAfter: cb.recoveryTimeout - elapsed,
			}
		}
	}

	return nil
}

// afterCall records the outcome of an attempted call. Errors that the
// configured IsFailure predicate rejects leave the breaker untouched.
func (cb *CircuitBreaker) afterCall(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if err == nil {
		cb.onSuccess()
		return
	}
	if cb.isFailure(err) {
		cb.onFailure()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.successCount++

	switch cb.state {
	case StateHalfOpen:
		cb.halfOpenProbes++
		if cb.halfOpenProbes >= cb.halfOpenSuccesses {
			cb.failureCount = 0
			cb.setState(StateClosed)
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateHalfOpen:
		// Probe failed, back to open
		cb.setState(StateOpen)
	case StateClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.setState(StateOpen)
		}
	}
}

// setState transitions the breaker. Caller must hold the mutex.
func (cb *CircuitBreaker) setState(state CircuitState) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.halfOpenProbes = 0

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, state)
	}

	cb.logger.Warn("Circuit breaker state changed",
		"name", cb.name,
		"from", prev.String(),
		"to", state.String(),
		"failure_count", cb.failureCount,
	)
}

// State returns the current state of the circuit breaker without
// triggering the lazy recovery transition.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Name returns the name of the circuit breaker
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Stats returns a read-only snapshot of the breaker counters
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	successRate := 0.0
	if cb.totalCalls > 0 {
		successRate = float64(cb.successCount) / float64(cb.totalCalls)
	}

	return CircuitBreakerStats{
		Name:            cb.name,
		State:           cb.state,
		StateLabel:      cb.state.String(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		TotalCalls:      cb.totalCalls,
		SuccessRate:     successRate,
		LastFailureTime: cb.lastFailureTime,
	}
}

// Reset forces the breaker to closed and clears all counters
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.setState(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.totalCalls = 0
	cb.halfOpenProbes = 0
	cb.lastFailureTime = time.Time{}
}

// CircuitOpenError is returned when a call is rejected because the
// breaker is open. ResetAfter estimates how long until a probe is allowed.
type CircuitOpenError struct {
	Name       string
	ResetAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open, retry possible in %.1fs", e.Name, e.ResetAfter.Seconds())
}

// IsCircuitOpenError checks if an error is a circuit open rejection
func IsCircuitOpenError(err error) bool {
	var cbErr *CircuitOpenError
	return errors.As(err, &cbErr)
}
