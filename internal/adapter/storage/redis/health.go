package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// HealthCheck reports whether the nonce and rate-limit backend is reachable.
type HealthCheck struct {
	client goredis.UniversalClient
}

// NewHealthCheck wraps client.
func NewHealthCheck(client goredis.UniversalClient) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	if err := h.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Name returns the dependency name shown by /health.
func (h *HealthCheck) Name() string {
	return "redis"
}
