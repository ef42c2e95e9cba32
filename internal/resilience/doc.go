// Package resilience provides fault-tolerance primitives for calls to
// unreliable dependencies such as AI APIs, stock-media APIs and local media
// binaries.
//
// The package supports:
//   - Backoff: a pure exponential-with-cap delay calculator
//   - Retry and Do: re-invoke a single operation with backoff, classifying
//     errors as retryable or fatal
//   - Presets: retry policies tuned per dependency class (local tools,
//     stock-media APIs, AI APIs, generic network calls)
//   - CircuitBreaker: fail fast against a dependency observed to be unhealthy
//
// Usage example:
//
//	cb := resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig("gemini"))
//	script, err := resilience.Retry(ctx, resilience.AI(), func(ctx context.Context) (*Script, error) {
//	    return resilience.Call(ctx, cb, generate)
//	})
//
// These primitives guard a single call site. They are independent of the
// task package's worker pool, which applies its own job-level retry policy.
package resilience
