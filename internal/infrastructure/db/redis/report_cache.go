package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eduadmin/student-lifecycle/internal/core/ports"
)

const defaultReportTTL = 24 * time.Hour

// ReportCache remembers bulk provisioning reports by idempotency key.
// Key format: bulkreport:<idempotency_key>
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache creates a ReportCache. A non-positive ttl uses one day.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = defaultReportTTL
	}
	return &ReportCache{client: client, ttl: ttl}
}

// Load returns the cached report for key, or nil when there is none.
func (c *ReportCache) Load(ctx context.Context, key string) (*ports.BulkReport, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	var report ports.BulkReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

// Store saves report under key, expiring after the cache TTL.
func (c *ReportCache) Store(ctx context.Context, key string, report *ports.BulkReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	return nil
}

func (c *ReportCache) key(key string) string {
	return "bulkreport:" + key
}
