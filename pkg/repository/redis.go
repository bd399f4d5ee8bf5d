package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/example/eshop/pkg/config"
	"github.com/example/eshop/pkg/models"
)

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func userRefKey(id primitive.ObjectID) string {
	return fmt.Sprintf("user:ref:%s", id.Hex())
}

func (r *RedisRepository) CacheUserRef(ctx context.Context, ref models.UserRef) error {
	return r.SetJSON(ctx, userRefKey(ref.ID), ref, r.config.TTL)
}

// GetUserRefs returns the cached refs among ids; misses are simply absent.
func (r *RedisRepository) GetUserRefs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserRef, error) {
	if len(ids) == 0 {
		return map[primitive.ObjectID]models.UserRef{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userRefKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[primitive.ObjectID]models.UserRef, len(ids))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var ref models.UserRef
		if err := json.Unmarshal([]byte(s), &ref); err != nil {
			continue
		}
		out[ids[i]] = ref
	}
	return out, nil
}

func (r *RedisRepository) InvalidateUserRef(ctx context.Context, id primitive.ObjectID) error {
	return r.Del(ctx, userRefKey(id))
}

type userRefFinder interface {
	FindUserRefs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserRef, error)
}

// CachedUserDirectory serves user display names from Redis and falls back to
// the backing store for misses. Cache failures never fail a lookup.
type CachedUserDirectory struct {
	cache   *RedisRepository
	backing userRefFinder
	logger  *zap.Logger
}

func NewCachedUserDirectory(cache *RedisRepository, backing userRefFinder, logger *zap.Logger) *CachedUserDirectory {
	return &CachedUserDirectory{
		cache:   cache,
		backing: backing,
		logger:  logger,
	}
}

func (d *CachedUserDirectory) FindUserRefs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserRef, error) {
	refs, err := d.cache.GetUserRefs(ctx, ids)
	if err != nil {
		d.logger.Warn("User cache lookup failed", zap.Error(err))
		refs = map[primitive.ObjectID]models.UserRef{}
	}

	var missing []primitive.ObjectID
	for _, id := range ids {
		if _, ok := refs[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return refs, nil
	}

	found, err := d.backing.FindUserRefs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, ref := range found {
		refs[id] = ref
		if err := d.cache.CacheUserRef(ctx, ref); err != nil {
			d.logger.Warn("Failed to cache user", zap.String("user_id", id.Hex()), zap.Error(err))
		}
	}
	return refs, nil
}
