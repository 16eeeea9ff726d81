package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nihams/ueba/internal/bucketing"
	"github.com/nihams/ueba/internal/config"
	"github.com/nihams/ueba/internal/model"
	"github.com/nihams/ueba/internal/util"
)

// RedisClient is a write-through profile cache. The analyze run populates
// it after persisting the snapshot; the serve API reads single profiles
// from it before falling back to the snapshot file.
type RedisClient struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisClient(cfg *config.Config, logger *zap.Logger) (*RedisClient, error) {
	redisConfig := cfg.Redis

	opts, err := redis.ParseURL(redisConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.DB = redisConfig.DB
	opts.PoolSize = redisConfig.PoolSize
	opts.MinIdleConns = redisConfig.PoolSize / 2
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	util.Info("Redis client initialized",
		zap.String("url", redisConfig.URL),
		zap.Int("db", redisConfig.DB),
		zap.Int("pool_size", redisConfig.PoolSize),
	)

	return &RedisClient{
		client: client,
		config: &redisConfig,
	}, nil
}

func profileKey(bucket int, userID string) string {
	return fmt.Sprintf("ueba:profile:%d:%s", bucket, userID)
}

// CacheProfiles writes every profile through to Redis in one pipeline.
func (r *RedisClient) CacheProfiles(ctx context.Context, profiles map[string]*model.Profile, buckets *bucketing.Manager) error {
	if len(profiles) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for userID, p := range profiles {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal profile %s: %w", userID, err)
		}
		pipe.Set(ctx, profileKey(buckets.UserBucket(userID), userID), data, r.config.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache profiles: %w", err)
	}

	util.Info("cached profiles in Redis", zap.Int("count", len(profiles)))
	return nil
}

// GetProfile fetches one cached profile. A cache miss returns (nil, nil).
func (r *RedisClient) GetProfile(ctx context.Context, userID string, buckets *bucketing.Manager) (*model.Profile, error) {
	data, err := r.client.Get(ctx, profileKey(buckets.UserBucket(userID), userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile from cache: %w", err)
	}

	var p model.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse cached profile: %w", err)
	}
	return &p, nil
}

// HealthCheck verifies Redis connectivity.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			util.Error("failed to close Redis client", zap.Error(err))
			return err
		}
		util.Info("Redis client closed")
	}
	return nil
}
