package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arunesh/TalkLens-Vibe1/internal/domain"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// RedisRepository keeps settings and downloaded model records in Redis so that
// several service instances share them.
type RedisRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisRepository connects to Redis and verifies the connection
func NewRedisRepository(cfg RedisConfig, logger *zap.Logger) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "pagetrans:"
	}

	logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.String("prefix", prefix))
	return &RedisRepository{client: client, prefix: prefix, logger: logger}, nil
}

func (r *RedisRepository) settingsKey() string { return r.prefix + "settings" }
func (r *RedisRepository) modelsKey() string   { return r.prefix + "models" }

// LoadSettings returns the stored settings
func (r *RedisRepository) LoadSettings(ctx context.Context) (domain.AppSettings, bool, error) {
	data, err := r.client.Get(ctx, r.settingsKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AppSettings{}, false, nil
	}
	if err != nil {
		return domain.AppSettings{}, false, domain.NewStorageError("redis get settings", err)
	}

	var settings domain.AppSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return domain.AppSettings{}, false, domain.NewStorageError("decode settings", err)
	}
	return settings, true, nil
}

// SaveSettings replaces the stored settings
func (r *RedisRepository) SaveSettings(ctx context.Context, settings domain.AppSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return domain.NewStorageError("encode settings", err)
	}
	return domain.NewStorageError("redis set settings", r.client.Set(ctx, r.settingsKey(), data, 0).Err())
}

// IsRecorded reports whether a model is recorded as downloaded
func (r *RedisRepository) IsRecorded(ctx context.Context, code string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.modelsKey(), code).Result()
	if err != nil {
		return false, domain.NewStorageError("redis sismember", err)
	}
	return ok, nil
}

// Record marks a model as downloaded
func (r *RedisRepository) Record(ctx context.Context, code string) error {
	return domain.NewStorageError("redis sadd", r.client.SAdd(ctx, r.modelsKey(), code).Err())
}

// Remove forgets a model
func (r *RedisRepository) Remove(ctx context.Context, code string) error {
	return domain.NewStorageError("redis srem", r.client.SRem(ctx, r.modelsKey(), code).Err())
}

// List returns recorded model codes in lexical order
func (r *RedisRepository) List(ctx context.Context) ([]string, error) {
	codes, err := r.client.SMembers(ctx, r.modelsKey()).Result()
	if err != nil {
		return nil, domain.NewStorageError("redis smembers", err)
	}
	sort.Strings(codes)
	return codes, nil
}

// Reset removes every key owned by the repository
func (r *RedisRepository) Reset(ctx context.Context) error {
	return domain.NewStorageError("redis del", r.client.Del(ctx, r.settingsKey(), r.modelsKey()).Err())
}

// CheckConnection pings Redis
func (r *RedisRepository) CheckConnection(ctx context.Context) error {
	return domain.NewStorageError("redis ping", r.client.Ping(ctx).Err())
}

// EnsureCollections is a no-op: Redis keys are created on first write
func (r *RedisRepository) EnsureCollections(ctx context.Context) error {
	return nil
}

// Close closes the Redis connection
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

var (
	_ domain.SettingsStore    = (*RedisRepository)(nil)
	_ domain.ModelRecordStore = (*RedisRepository)(nil)
	_ domain.HealthChecker    = (*RedisRepository)(nil)
)
