// Package repositorycache implements tagged cache-aside reads and
// tag invalidation on top of a cache.Store, and a repository decorator
// built on them.
//
// # Overview
//
// Layer holds the store, codec, key serializer, TTLs and invalidation policy.
// GetOrPopulate and Layer.Invalidate implement the protocol; CachedRepository
// wraps a repository.Repository so reads go through the cache and writes
// invalidate what they may have changed.
//
// # Basic Usage
//
//	layer, err := repositorycache.NewLayerFromConfig(store, cfg, logger)
//	if err != nil {
//		return err
//	}
//
//	users := repositorycache.New[users.User](base, layer, "user")
//
//	page, err := users.List(ctx, 0, 100) // cached under "user_list_0:100"
//	user, err := users.Get(ctx, 42)      // cached under "user_get_42"
//
// # Reads
//
// GetOrPopulate looks the key up first. On a hit the payload is decoded and
// returned. On a miss the loader runs; a non-empty result is written with the
// layer TTL and the key is registered in its tag, atomically when the store
// implements cache.TaggedWriter. Empty results (nil, zero values, empty slices
// and maps) are returned but not cached. Concurrent misses on the same key
// share one loader call unless single flight is disabled.
//
// # Writes
//
//   - Create invalidates the list tag
//   - Update and Delete invalidate the list and get tags
//
// Invalidation runs only after the base repository committed. A failed write
// leaves the cache untouched.
//
// # Error Handling
//
// Loader errors are returned unchanged. Cache failures on the read path are
// logged and swallowed; a payload that fails to decode is deleted and
// reloaded. Invalidation failures are logged under the best effort policy and
// returned as a CACHE_UNAVAILABLE error under the strict policy, alongside the
// committed result.
//
// # See Also
//
// For stores, codecs and key serialization, see the cache package.
// For dependency injection setup, see the pkg/di package.
package repositorycache
