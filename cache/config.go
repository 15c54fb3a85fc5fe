package cache

import (
	"fmt"
	"io"
	"time"

	"github.com/goliatone/go-user-cache/internal/cacheinfra"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Invalidation policies.
const (
	// InvalidateBestEffort logs invalidation failures and lets the write succeed.
	InvalidateBestEffort = "best_effort"
	// InvalidateStrict reports invalidation failures to the caller after the write committed.
	InvalidateStrict = "strict"
)

// Backend names accepted in Config.Backend.
const (
	BackendRedis  = cacheinfra.BackendRedis
	BackendMemory = cacheinfra.BackendMemory
)

// RedisConfig holds the Redis connection options.
type RedisConfig = cacheinfra.RedisConfig

// MemoryConfig holds the in-process backend options.
type MemoryConfig = cacheinfra.MemoryConfig

// Backend is a Store that can also write tagged entries atomically, be pinged and be closed.
type Backend interface {
	Store
	TaggedWriter
	Pinger
	io.Closer
}

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	// Backend is "redis" or "memory".
	Backend string

	// TTL is the lifetime of every populated entry.
	TTL time.Duration

	// TagTTL is the lifetime of tag sets, re-armed on every membership add.
	// Zero leaves tag sets without expiration.
	TagTTL time.Duration

	// KeyPrefix namespaces keys in a shared Redis.
	KeyPrefix string

	// Codec is "json" or "msgpack".
	Codec string

	// InvalidationPolicy is InvalidateBestEffort or InvalidateStrict.
	InvalidationPolicy string

	// SingleFlight collapses concurrent misses on the same key into one load.
	SingleFlight bool

	// LoadTimeout bounds a collapsed miss load, which outlives the caller
	// that started it. Zero leaves it unbounded.
	LoadTimeout time.Duration

	Redis  RedisConfig
	Memory MemoryConfig
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	infra := cacheinfra.DefaultConfig()
	return Config{
		Backend:            infra.Backend,
		TTL:                60 * time.Second,
		TagTTL:             120 * time.Second,
		Codec:              CodecJSON,
		InvalidationPolicy: InvalidateBestEffort,
		SingleFlight:       true,
		LoadTimeout:        10 * time.Second,
		Redis:              infra.Redis,
		Memory:             infra.Memory,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if c.TTL <= 0 {
		return &cacheinfra.ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.TagTTL < 0 {
		return &cacheinfra.ConfigError{Field: "TagTTL", Message: "must be non-negative"}
	}

	if c.TagTTL > 0 && c.TagTTL < c.TTL {
		return &cacheinfra.ConfigError{Field: "TagTTL", Message: "must be zero or at least TTL"}
	}

	if c.LoadTimeout < 0 {
		return &cacheinfra.ConfigError{Field: "LoadTimeout", Message: "must be non-negative"}
	}

	if _, err := CodecByName(c.Codec); err != nil {
		return &cacheinfra.ConfigError{Field: "Codec", Message: err.Error()}
	}

	switch c.InvalidationPolicy {
	case "", InvalidateBestEffort, InvalidateStrict:
	default:
		return &cacheinfra.ConfigError{
			Field:   "InvalidationPolicy",
			Message: fmt.Sprintf("must be one of %s, %s", InvalidateBestEffort, InvalidateStrict),
		}
	}

	return c.toInternal().Validate()
}

// NewStore constructs the configured backend. Metrics are registered with reg
// when it is not nil.
func NewStore(cfg Config, logger *zap.Logger, reg prometheus.Registerer) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var metrics *cacheinfra.StoreMetrics
	if reg != nil {
		metrics = cacheinfra.NewStoreMetrics(reg)
	}

	return cacheinfra.NewBackend(cfg.toInternal(), logger, metrics)
}

func (c Config) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Backend:   c.Backend,
		KeyPrefix: c.KeyPrefix,
		Redis:     c.Redis,
		Memory:    c.Memory,
	}
}
