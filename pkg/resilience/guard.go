package resilience

import (
	"context"
)

// Guard combines a circuit breaker and a retrier around calls to a
// single dependency.
//
// The retrier wraps the breaker, so every attempt counts against the
// breaker's failure threshold and an open breaker stops the retry loop
// immediately because CircuitOpenError is never retryable.
type Guard struct {
	name    string
	breaker *CircuitBreaker
	retrier *Retrier
}

// NewGuard creates a guard for the named dependency
func NewGuard(name string, cbConfig CircuitBreakerConfig, policy RetryPolicy) *Guard {
	if cbConfig.Name == "" {
		cbConfig.Name = name
	}

	return &Guard{
		name:    name,
		breaker: NewCircuitBreaker(cbConfig),
		retrier: NewRetrier(policy),
	}
}

// Execute runs the operation through retry and circuit breaker
func (g *Guard) Execute(ctx context.Context, op func(context.Context) (interface{}, error)) (interface{}, error) {
	return g.retrier.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return g.breaker.Execute(ctx, op)
	})
}

// Name returns the name of the guarded dependency
func (g *Guard) Name() string {
	return g.name
}

// Breaker returns the underlying circuit breaker
func (g *Guard) Breaker() *CircuitBreaker {
	return g.breaker
}

// Stats returns the breaker stats for the guarded dependency
func (g *Guard) Stats() CircuitBreakerStats {
	return g.breaker.Stats()
}

// Reset resets the underlying circuit breaker
func (g *Guard) Reset() {
	g.breaker.Reset()
}
