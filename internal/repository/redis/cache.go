// Package redis provides Redis caching and pub/sub functionality.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/limiquantix/addrpool/internal/config"
	"github.com/limiquantix/addrpool/internal/domain"
	"github.com/limiquantix/addrpool/internal/services/network"
)

// ErrCacheMiss indicates the key was not found in cache.
var ErrCacheMiss = errors.New("cache miss")

// EventsChannel is the pub/sub channel carrying profile and workload events.
const EventsChannel = "events:addrpool"

var (
	_ network.ProfileCache   = (*Cache)(nil)
	_ network.EventPublisher = (*Cache)(nil)
)

// Cache wraps a Redis client for caching operations.
type Cache struct {
	client     *redis.Client
	profileTTL time.Duration
	logger     *zap.Logger
}

// NewCache creates a new Redis cache connection. Profiles are cached for profileTTL.
func NewCache(cfg config.RedisConfig, profileTTL time.Duration, logger *zap.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Address()))

	return NewCacheWithClient(client, profileTTL, logger), nil
}

// NewCacheWithClient wraps an existing client.
func NewCacheWithClient(client *redis.Client, profileTTL time.Duration, logger *zap.Logger) *Cache {
	return &Cache{client: client, profileTTL: profileTTL, logger: logger}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health checks if Redis is reachable.
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// =============================================================================
// Generic Cache Operations
// =============================================================================

// Get retrieves a value from cache and unmarshals it into dest.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get error: %w", err)
	}

	return json.Unmarshal(val, dest)
}

// Set stores a value in cache with a TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes a key from cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// =============================================================================
// Profile Cache Operations
// =============================================================================

func profileKey(id string) string {
	return fmt.Sprintf("profile:%s", id)
}

// GetProfile retrieves a profile from cache.
func (c *Cache) GetProfile(ctx context.Context, id string) (*domain.NetworkProfile, error) {
	var p domain.NetworkProfile
	if err := c.Get(ctx, profileKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SetProfile stores a profile in cache.
func (c *Cache) SetProfile(ctx context.Context, profile *domain.NetworkProfile) error {
	return c.Set(ctx, profileKey(profile.ID), profile, c.profileTTL)
}

// InvalidateProfile removes a profile from cache.
func (c *Cache) InvalidateProfile(ctx context.Context, id string) error {
	return c.Delete(ctx, profileKey(id))
}

// =============================================================================
// Pub/Sub Operations for Real-time Updates
// =============================================================================

// PublishEvent publishes an event on EventsChannel.
func (c *Cache) PublishEvent(ctx context.Context, event domain.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return c.client.Publish(ctx, EventsChannel, data).Err()
}

// Subscribe subscribes to EventsChannel until ctx is done.
func (c *Cache) Subscribe(ctx context.Context) <-chan domain.Event {
	pubsub := c.client.Subscribe(ctx, EventsChannel)
	events := make(chan domain.Event, 100)

	go func() {
		defer close(events)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					c.logger.Warn("Failed to unmarshal event", zap.Error(err))
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events
}
