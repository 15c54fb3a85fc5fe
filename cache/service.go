package cache

import (
	"context"
	"time"
)

// KeySerializer builds a cache key from a tag name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(tag string, args ...any) string
}

// FetchFn is the function signature the cache-aside layer expects when loading from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Store is the key-value backend used by the cache-aside layer.
// Values are opaque bytes; sets hold the keys that were populated under a tag.
type Store interface {
	// Get returns the value stored under key. A missing key is reported
	// with found=false and a nil error.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value under key. A zero ttl means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// AddToSet adds member to the set named set. A non zero ttl (re)arms
	// the expiration of the whole set.
	AddToSet(ctx context.Context, set, member string, ttl time.Duration) error

	// Members returns the current members of set. An absent set yields an empty slice.
	Members(ctx context.Context, set string) ([]string, error)

	// Delete removes every key given in a single batch. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// TaggedWriter is implemented by stores that can write an entry and register
// it under a tag as a single step.
type TaggedWriter interface {
	SetTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tag string, tagTTL time.Duration) error
}

// Pinger is implemented by stores that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SetTagged writes value under key and adds key to tag. Stores implementing
// TaggedWriter do it in one step, everything else falls back to Set followed by AddToSet.
func SetTagged(ctx context.Context, store Store, key string, value []byte, ttl time.Duration, tag string, tagTTL time.Duration) error {
	if tw, ok := store.(TaggedWriter); ok {
		return tw.SetTagged(ctx, key, value, ttl, tag, tagTTL)
	}

	if err := store.Set(ctx, key, value, ttl); err != nil {
		return err
	}

	if err := store.AddToSet(ctx, tag, key, tagTTL); err != nil {
		// the entry must not outlive its membership
		_ = store.Delete(ctx, key)
		return err
	}

	return nil
}

// Ping checks the store when it supports it. Stores without a Ping are assumed reachable.
func Ping(ctx context.Context, store Store) error {
	if p, ok := store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
