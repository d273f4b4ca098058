package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/arbalert/arbalert/internal/domain"
)

const quotaKey = "arbalert:quota:remaining"

// QuotaTracker mirrors the provider's remaining monthly request budget in
// Redis so it survives process restarts and is shared across deployments.
type QuotaTracker struct {
	rdb *redis.Client
}

// NewQuotaTracker creates a QuotaTracker backed by the given Client.
func NewQuotaTracker(c *Client) *QuotaTracker {
	return &QuotaTracker{rdb: c.Underlying()}
}

var _ domain.QuotaTracker = (*QuotaTracker)(nil)

// Remaining returns the last recorded budget, or -1 when nothing has been
// recorded yet.
func (qt *QuotaTracker) Remaining(ctx context.Context) (int, error) {
	val, err := qt.rdb.Get(ctx, quotaKey).Result()
	if errors.Is(err, redis.Nil) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get quota: %w", err)
	}

	remaining, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("redis: parse quota %q: %w", val, err)
	}
	return remaining, nil
}

// Record stores the remaining budget reported by the provider.
func (qt *QuotaTracker) Record(ctx context.Context, remaining int) error {
	if err := qt.rdb.Set(ctx, quotaKey, strconv.Itoa(remaining), 0).Err(); err != nil {
		return fmt.Errorf("redis: record quota: %w", err)
	}
	return nil
}
