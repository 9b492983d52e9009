package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"meshgate/internal/resource"
	"meshgate/internal/utils"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient creates a Redis client
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// HashClient is the part of the Redis client the state cache uses
type HashClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

type write struct {
	address string
	value   resource.Value
}

// StateCache mirrors attribute values into one Redis hash so they survive
// a restart of the gateway
type StateCache struct {
	client  HashClient
	key     string
	writes  chan write
	timeout time.Duration
	log     *zerolog.Logger
}

// NewStateCache creates a cache writing to the hash at key
func NewStateCache(client HashClient, key string) *StateCache {
	if key == "" {
		key = "meshgate:resources"
	}
	return &StateCache{
		client:  client,
		key:     key,
		writes:  make(chan write, 512),
		timeout: 2 * time.Second,
		log:     utils.Logger("redis"),
	}
}

// Observe queues a value for mirroring. Values are dropped when the
// queue is full.
func (c *StateCache) Observe(address string, v resource.Value) {
	select {
	case c.writes <- write{address, v}:
	default:
		c.log.Warn().Str("address", address).Msg("state cache queue full, dropping value")
	}
}

// Run writes queued values until ctx is done
func (c *StateCache) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case w := <-c.writes:
			if err := c.Mirror(ctx, w.address, w.value); err != nil {
				c.log.Warn().Err(err).Str("address", w.address).Msg("failed to mirror attribute")
			}
		}
	}
}

// Mirror writes one value
func (c *StateCache) Mirror(ctx context.Context, address string, v resource.Value) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.HSet(ctx, c.key, address, string(data)).Err()
}

// Restore loads the mirrored values into the store
func (c *StateCache) Restore(ctx context.Context, store *resource.Store) (int, error) {
	m, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", c.key, err)
	}
	values := make(map[string]resource.Value, len(m))
	for address, raw := range m {
		var v resource.Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			c.log.Warn().Err(err).Str("address", address).Msg("skipping unreadable cached value")
			continue
		}
		values[address] = v
	}
	n := store.Restore(values)
	c.log.Info().Int("restored", n).Int("cached", len(m)).Msg("attribute values restored")
	return n, nil
}
