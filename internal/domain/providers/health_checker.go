package providers

import "context"

// HealthChecker probes a dependency's connectivity.
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

// Healthy calls f.
func (f HealthCheckerFunc) Healthy(ctx context.Context) error {
	return f(ctx)
}
