package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// HealthChecker pings the backup redis.
type HealthChecker struct {
	client func() redis.UniversalClient
}

// NewHealthChecker creates a checker over client.
func NewHealthChecker(client redis.UniversalClient) *HealthChecker {
	return &HealthChecker{client: func() redis.UniversalClient { return client }}
}

// Name implements component.HealthChecker.
func (h *HealthChecker) Name() string {
	return "redis"
}

// Check implements component.HealthChecker.
func (h *HealthChecker) Check(ctx context.Context) error {
	client := h.client()
	if client == nil {
		return errors.New("redis client not initialized")
	}
	return client.Ping(ctx).Err()
}
