package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/leadflow/pkg/logging"
)

const defaultCacheTTL = 5 * time.Minute

// CachedRepository caches integration lookups in Redis in front of another
// repository. Agents are always read from the underlying repository so that
// deactivation and prompt edits apply to the next message. Integration
// changes apply once the cached entry expires. Cache failures fall back to
// the underlying repository.
type CachedRepository struct {
	next   Repository
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedRepository wraps next with a Redis cache. A zero ttl uses the default.
func NewCachedRepository(next Repository, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedRepository{next: next, redis: client, ttl: ttl, logger: logger}
}

func integrationCacheKey(provider, key string) string {
	return fmt.Sprintf("leadflow:integration:%s:%s", provider, key)
}

// IntegrationByKey reads through the cache. Misses are not cached.
func (c *CachedRepository) IntegrationByKey(ctx context.Context, provider, correlationKey string) (*Integration, error) {
	key := integrationCacheKey(provider, correlationKey)
	var cached Integration
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}
	integration, err := c.next.IntegrationByKey(ctx, provider, correlationKey)
	if err != nil {
		return nil, err
	}
	c.save(ctx, key, integration)
	return integration, nil
}

// AgentByID is not cached.
func (c *CachedRepository) AgentByID(ctx context.Context, id string) (*Agent, error) {
	return c.next.AgentByID(ctx, id)
}

func (c *CachedRepository) load(ctx context.Context, key string, dest any) bool {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.logger.Warn("agents: cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("agents: cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedRepository) save(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("agents: cache write failed", "key", key, "error", err)
	}
}
