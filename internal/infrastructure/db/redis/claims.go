package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the claim only when it still holds our token, so an
// expired claim taken over by another request is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ClaimLocker hands out short-lived exclusive claims on string keys.
// Key format: claim:<key>
type ClaimLocker struct {
	client *redis.Client
}

// NewClaimLocker creates a ClaimLocker wrapping the given Redis client.
func NewClaimLocker(client *redis.Client) *ClaimLocker {
	return &ClaimLocker{client: client}
}

// Claim takes key for ttl. ok is false when someone else holds it.
func (c *ClaimLocker) Claim(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, c.key(key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("claim %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release gives key back if token still owns it.
func (c *ClaimLocker) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, c.client, []string{c.key(key)}, token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (c *ClaimLocker) key(key string) string {
	return "claim:" + key
}
