// Package resilience provides circuit breaker, retry, and graceful
// degradation primitives for calls to external dependencies such as
// model providers.
//
// # Circuit Breaker
//
// The circuit breaker stops calling a dependency after a run of
// consecutive failures and probes it for recovery after a timeout.
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//		Name:             "anthropic",
//		FailureThreshold: 5,
//		RecoveryTimeout:  60 * time.Second,
//	})
//
//	result, err := cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return provider.Generate(ctx, prompt)
//	})
//
// While the breaker is open, Execute returns *CircuitOpenError without
// invoking the operation.
//
// # Retry with Exponential Backoff
//
// The retrier re-runs failed operations with exponential backoff and
// jitter. Error types can be allow- or deny-listed, and a predicate
// gets the final say.
//
//	retrier := resilience.NewRetrier(resilience.DefaultRetryPolicy())
//	result, err := retrier.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return provider.Generate(ctx, prompt)
//	})
//
// When attempts are exhausted the last error is wrapped in
// *RetryExhaustedError.
//
// # Combined Usage
//
// Guard composes both patterns with the retrier on the outside, so
// every attempt counts against the breaker and an open breaker ends
// the retry loop immediately.
//
//	g := resilience.NewGuard("anthropic", cbConfig, policy)
//	result, err := g.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return provider.Generate(ctx, prompt)
//	})
//
// # Graceful Degradation
//
// The degradation manager tracks dependency health and sheds streaming
// and execution features as the system degrades.
//
// All types in this package are safe for concurrent use.
package resilience
