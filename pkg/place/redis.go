package place

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis place backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all place keys
	Prefix string

	// Timeout for Redis operations
	Timeout time.Duration

	// PoolSize is the maximum number of connections
	PoolSize int
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address:  address,
		Prefix:   "invoiceflow:places:",
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// RedisStore keeps default places in Redis so they survive restarts.
type RedisStore struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisStore creates a new Redis place backend.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{cfg: cfg, client: client}, nil
}

// key returns the Redis key for a user.
func (s *RedisStore) key(user string) string {
	return s.cfg.Prefix + user
}

// Get returns the user's default place.
func (s *RedisStore) Get(ctx context.Context, user string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	val, err := s.client.Get(ctx, s.key(user)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load place from Redis: %w", err)
	}
	return val, true, nil
}

// Set records the user's default place. Places never expire; they are
// explicit admin settings.
func (s *RedisStore) Set(ctx context.Context, user, place string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key(user), place, 0).Err(); err != nil {
		return fmt.Errorf("failed to save place to Redis: %w", err)
	}
	return nil
}

// Name returns "redis".
func (s *RedisStore) Name() string {
	return "redis"
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Verify interface compliance.
var _ Store = (*RedisStore)(nil)
