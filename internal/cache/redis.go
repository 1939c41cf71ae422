package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kioskwatch/backend/internal/models"
)

type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		ctx:    ctx,
	}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Kiosk presence mirror

// SetKioskOnline marks a kiosk online with a short TTL; the hub refreshes
// on re-register
func (r *RedisClient) SetKioskOnline(kioskID string) error {
	key := fmt.Sprintf("presence:kiosk:%s", kioskID)
	presence := models.KioskPresence{
		KioskID:  kioskID,
		Status:   "online",
		LastSeen: time.Now(),
	}

	data, err := json.Marshal(presence)
	if err != nil {
		return err
	}

	return r.client.Set(r.ctx, key, data, 5*time.Minute).Err()
}

// SetKioskOffline marks a kiosk offline
func (r *RedisClient) SetKioskOffline(kioskID string) error {
	key := fmt.Sprintf("presence:kiosk:%s", kioskID)
	presence := models.KioskPresence{
		KioskID:  kioskID,
		Status:   "offline",
		LastSeen: time.Now(),
	}

	data, err := json.Marshal(presence)
	if err != nil {
		return err
	}

	return r.client.Set(r.ctx, key, data, 24*time.Hour).Err()
}

// GetKioskPresence gets a kiosk's mirrored presence
func (r *RedisClient) GetKioskPresence(kioskID string) (*models.KioskPresence, error) {
	key := fmt.Sprintf("presence:kiosk:%s", kioskID)
	data, err := r.client.Get(r.ctx, key).Result()
	if err == redis.Nil {
		return &models.KioskPresence{
			KioskID:  kioskID,
			Status:   "offline",
			LastSeen: time.Now(),
		}, nil
	}
	if err != nil {
		return nil, err
	}

	var presence models.KioskPresence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return nil, err
	}

	return &presence, nil
}

// PublishKioskPresence publishes a presence update for other hub instances
func (r *RedisClient) PublishKioskPresence(presence models.KioskPresence) error {
	data, err := json.Marshal(presence)
	if err != nil {
		return err
	}

	return r.client.Publish(r.ctx, "kiosk-presence", data).Err()
}

// SubscribeToKioskPresence subscribes to kiosk presence updates
func (r *RedisClient) SubscribeToKioskPresence() *redis.PubSub {
	return r.client.Subscribe(r.ctx, "kiosk-presence")
}

// Stream token replay set (distributed variant)

// MarkStreamTokenUsed records a stream token's jti. Returns true if this was
// the first use; the entry expires with the token so the set stays bounded.
func (r *RedisClient) MarkStreamTokenUsed(jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	key := fmt.Sprintf("replay:stream-token:%s", jti)
	return r.client.SetNX(r.ctx, key, 1, ttl).Result()
}
