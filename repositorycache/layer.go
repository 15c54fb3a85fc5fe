package repositorycache

import (
	"context"
	"reflect"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-user-cache/cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Layer implements the tagged cache-aside protocol on top of a cache.Store.
// It is safe for concurrent use; all state lives in the store.
type Layer struct {
	store      cache.Store
	codec      cache.Codec
	serializer cache.KeySerializer
	ttl        time.Duration
	tagTTL     time.Duration
	strict     bool
	logger     *zap.Logger
	group      *singleflight.Group

	// loadTimeout bounds a shared miss load, which runs detached from the
	// context of the caller that started it.
	loadTimeout time.Duration
}

// Option configures a Layer.
type Option func(*Layer)

// WithLogger sets the logger used for swallowed cache failures.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Layer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithCodec sets the payload codec. Default: JSON.
func WithCodec(codec cache.Codec) Option {
	return func(l *Layer) {
		if codec != nil {
			l.codec = codec
		}
	}
}

// WithKeySerializer sets the serializer used to build keys.
func WithKeySerializer(serializer cache.KeySerializer) Option {
	return func(l *Layer) {
		if serializer != nil {
			l.serializer = serializer
		}
	}
}

// WithTTL sets the lifetime of populated entries.
func WithTTL(ttl time.Duration) Option {
	return func(l *Layer) { l.ttl = ttl }
}

// WithTagTTL sets the lifetime of tag sets. Zero disables tag expiration.
func WithTagTTL(ttl time.Duration) Option {
	return func(l *Layer) { l.tagTTL = ttl }
}

// WithStrictInvalidation makes Invalidate return backend failures instead of only logging them.
func WithStrictInvalidation(strict bool) Option {
	return func(l *Layer) { l.strict = strict }
}

// WithLoadTimeout bounds a collapsed miss load. Zero leaves it unbounded.
func WithLoadTimeout(timeout time.Duration) Option {
	return func(l *Layer) { l.loadTimeout = timeout }
}

// WithSingleFlight toggles collapsing of concurrent misses on the same key.
func WithSingleFlight(enabled bool) Option {
	return func(l *Layer) {
		if enabled {
			l.group = &singleflight.Group{}
		} else {
			l.group = nil
		}
	}
}

// NewLayer creates a Layer over store using cache.DefaultConfig values unless overridden.
func NewLayer(store cache.Store, opts ...Option) *Layer {
	defaults := cache.DefaultConfig()
	l := &Layer{
		store:       store,
		codec:       cache.NewJSONCodec(),
		serializer:  cache.NewDefaultKeySerializer(),
		ttl:         defaults.TTL,
		tagTTL:      defaults.TagTTL,
		logger:      zap.NewNop(),
		group:       &singleflight.Group{},
		loadTimeout: defaults.LoadTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewLayerFromConfig creates a Layer configured from cfg.
func NewLayerFromConfig(store cache.Store, cfg cache.Config, logger *zap.Logger) (*Layer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := cache.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	return NewLayer(store,
		WithLogger(logger),
		WithCodec(codec),
		WithTTL(cfg.TTL),
		WithTagTTL(cfg.TagTTL),
		WithStrictInvalidation(cfg.InvalidationPolicy == cache.InvalidateStrict),
		WithSingleFlight(cfg.SingleFlight),
		WithLoadTimeout(cfg.LoadTimeout),
	), nil
}

// Store returns the backing cache store.
func (l *Layer) Store() cache.Store { return l.store }

// KeySerializer returns the serializer used to build keys.
func (l *Layer) KeySerializer() cache.KeySerializer { return l.serializer }

// TTL returns the lifetime of populated entries.
func (l *Layer) TTL() time.Duration { return l.ttl }

// Ping checks the backing store.
func (l *Layer) Ping(ctx context.Context) error {
	return cache.Ping(ctx, l.store)
}

// GetOrPopulate returns the value cached under key. On a miss it calls
// loader, caches a non-empty result under key with the layer TTL and
// registers key in tag.
//
// Concurrent misses on the same key share one load. The shared load runs
// detached from every caller's context, bounded by the load timeout, so a
// caller that gives up only stops its own wait. Slices and maps handed to
// more than one caller are copied per caller.
//
// Loader errors are returned unchanged. Cache failures are logged and never
// returned: the loader result is authoritative.
func GetOrPopulate[T any](ctx context.Context, l *Layer, key, tag string, loader cache.FetchFn[T]) (T, error) {
	if value, ok := lookup[T](ctx, l, key); ok {
		return value, nil
	}

	if l.group == nil {
		return populate(ctx, l, key, tag, loader)
	}

	ch := l.group.DoChan(key, func() (any, error) {
		loadCtx := context.WithoutCancel(ctx)
		if l.loadTimeout > 0 {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithTimeout(loadCtx, l.loadTimeout)
			defer cancel()
		}
		return populate(loadCtx, l, key, tag, loader)
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		value, _ := res.Val.(T)
		if res.Shared {
			value = copyShared(value)
		}
		return value, nil
	}
}

// copyShared gives a caller its own copy of a slice or map result.
func copyShared[T any](value T) T {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		return value
	}

	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return value
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface().(T)
	case reflect.Map:
		if rv.IsNil() {
			return value
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface().(T)
	}

	return value
}

func lookup[T any](ctx context.Context, l *Layer, key string) (T, bool) {
	var zero T

	data, found, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Warn("cache read failed, falling back to store",
			zap.String("key", key),
			zap.Error(cache.Unavailable(err, "get")),
		)
		return zero, false
	}
	if !found {
		return zero, false
	}

	var value T
	if err := l.codec.Unmarshal(data, &value); err != nil {
		l.logger.Warn("dropping undecodable cache entry",
			zap.String("key", key),
			zap.String("codec", l.codec.Name()),
			zap.Error(err),
		)
		if err := l.store.Delete(ctx, key); err != nil {
			l.logger.Warn("failed to delete cache entry", zap.String("key", key), zap.Error(err))
		}
		return zero, false
	}

	return value, true
}

func populate[T any](ctx context.Context, l *Layer, key, tag string, loader cache.FetchFn[T]) (T, error) {
	value, err := loader(ctx)
	if err != nil {
		return value, err
	}

	if isEmpty(value) {
		return value, nil
	}

	data, err := l.codec.Marshal(value)
	if err != nil {
		l.logger.Warn("failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return value, nil
	}

	if tag == "" {
		if err := l.store.Set(ctx, key, data, l.ttl); err != nil {
			l.logger.Warn("failed to populate cache entry",
				zap.String("key", key),
				zap.Error(cache.Unavailable(err, "populate")),
			)
		}
		return value, nil
	}

	if err := cache.SetTagged(ctx, l.store, key, data, l.ttl, tag, l.tagTTL); err != nil {
		l.logger.Warn("failed to populate cache entry",
			zap.String("key", key),
			zap.String("tag", tag),
			zap.Error(cache.Unavailable(err, "populate")),
		)
	}

	return value, nil
}

// Invalidate removes every key registered under each tag, then the tag itself.
// Absent or empty tags are a no-op. With the best effort policy failures are
// logged and nil is returned; with the strict policy they are returned as a
// cache.TextCodeCacheUnavailable error.
func (l *Layer) Invalidate(ctx context.Context, tags ...string) error {
	var errs []error

	for _, tag := range dedupeStrings(tags) {
		if err := l.invalidateTag(ctx, tag); err != nil {
			l.logger.Warn("cache invalidation failed", zap.String("tag", tag), zap.Error(err))
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 || !l.strict {
		return nil
	}

	return cache.Unavailable(goerrors.Join(errs...), "invalidate")
}

func (l *Layer) invalidateTag(ctx context.Context, tag string) error {
	members, err := l.store.Members(ctx, tag)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	keys := make([]string, 0, len(members)+1)
	keys = append(keys, members...)
	keys = append(keys, tag)

	return l.store.Delete(ctx, keys...)
}

// isEmpty reports whether v is a result not worth caching: nil, a zero value,
// or an empty slice or map.
func isEmpty(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}

	return rv.IsZero()
}
