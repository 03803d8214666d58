package cache

import (
	"context"
	"time"

	"yt-pipeline/domain/repository"

	"github.com/redis/go-redis/v9"
)

const dedupPrefix = "yt:seen:"

// DedupCache remembers recently ingested video ids with a TTL.
// A nil client turns every call into a no-op so ingestion never depends on Redis.
type DedupCache struct {
	client *redis.Client
}

func NewDedupCache(client *redis.Client) repository.IDedupCache {
	return &DedupCache{client: client}
}

func (c *DedupCache) Seen(ctx context.Context, videoID string) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	n, err := c.client.Exists(ctx, dedupPrefix+videoID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *DedupCache) MarkSeen(ctx context.Context, videoID string, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, dedupPrefix+videoID, time.Now().UTC().Unix(), ttl).Err()
}
