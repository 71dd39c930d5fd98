package memory

import "context"

// HealthCheck implements ports.HealthChecker. The store is always reachable.
type HealthCheck struct{}

// NewHealthCheck creates a memory health checker.
func NewHealthCheck() *HealthCheck {
	return &HealthCheck{}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (h *HealthCheck) Name() string {
	return "memory"
}
