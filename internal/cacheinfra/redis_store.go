package cacheinfra

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrEmptyKey is returned when a backend operation receives an empty key.
var ErrEmptyKey = goerrors.New("cache key cannot be empty", goerrors.CategoryBadInput)

// maxPrefixLength bounds the key prefix. Longer prefixes are replaced by
// their xxhash digest, so every key carries at most 17 extra bytes.
const maxPrefixLength = 32

// RedisStore is the Redis backend. Entries are plain string keys holding the
// encoded payload; tags are Redis sets of (unprefixed) keys.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection with a PING.
func NewRedisStore(cfg RedisConfig, prefix string, logger *zap.Logger) (*RedisStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	store := NewRedisStoreFromClient(client, prefix, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to connect to redis at "+cfg.Addr).
			WithTextCode("CACHE_UNAVAILABLE")
	}

	return store, nil
}

// NewRedisStoreFromClient wraps an existing client without pinging it.
func NewRedisStoreFromClient(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, prefix: KeyPrefix(prefix), logger: logger}
}

// KeyPrefix returns the prefix actually written in front of keys: prefix
// itself, or "x" and its hex xxhash digest when it exceeds maxPrefixLength.
func KeyPrefix(prefix string) string {
	if len(prefix) <= maxPrefixLength {
		return prefix
	}
	return "x" + strconv.FormatUint(xxhash.Sum64String(prefix), 16)
}

func (r *RedisStore) fullKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

// Get implements cache.Store.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}

	data, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Set implements cache.Store.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	return r.client.Set(ctx, r.fullKey(key), value, ttl).Err()
}

// AddToSet implements cache.Store. SADD and EXPIRE run in one MULTI/EXEC.
func (r *RedisStore) AddToSet(ctx context.Context, set, member string, ttl time.Duration) error {
	if set == "" || member == "" {
		return ErrEmptyKey
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, r.fullKey(set), member)
		if ttl > 0 {
			pipe.Expire(ctx, r.fullKey(set), ttl)
		}
		return nil
	})
	return err
}

// Members implements cache.Store.
func (r *RedisStore) Members(ctx context.Context, set string) ([]string, error) {
	if set == "" {
		return nil, ErrEmptyKey
	}

	members, err := r.client.SMembers(ctx, r.fullKey(set)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, err
	}
	return members, nil
}

// Delete implements cache.Store with a single DEL.
func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	full := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		full = append(full, r.fullKey(key))
	}
	if len(full) == 0 {
		return nil
	}

	return r.client.Del(ctx, full...).Err()
}

// SetTagged implements cache.TaggedWriter. The entry write and the tag
// membership are applied in one MULTI/EXEC so neither exists without the other.
func (r *RedisStore) SetTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tag string, tagTTL time.Duration) error {
	if key == "" || tag == "" {
		return ErrEmptyKey
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.fullKey(key), value, ttl)
		pipe.SAdd(ctx, r.fullKey(tag), key)
		if tagTTL > 0 {
			pipe.Expire(ctx, r.fullKey(tag), tagTTL)
		}
		return nil
	})
	if err != nil {
		r.logger.Debug("tagged write failed",
			zap.String("key", key),
			zap.String("tag", tag),
			zap.Error(err),
		)
	}
	return err
}

// Ping implements cache.Pinger.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client and its pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
