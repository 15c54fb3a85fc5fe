// Package cache provides the storage contract, payload codecs and key
// serialization used by the tagged cache-aside layer.
//
// # Overview
//
// This package exports the building blocks shared by every cache backend:
//
//   - Store: get/set of encoded entries plus tag sets (Redis sets of keys)
//   - Codec: turns values into payloads and back (JSON via sonic, or msgpack)
//   - KeySerializer: builds stable cache keys from a tag and arguments
//   - Config: backend selection, TTLs, codec and invalidation policy
//
// The protocol itself (GetOrPopulate and Invalidate) lives in the
// repositorycache package.
//
// # Basic Usage
//
// Build a backend from configuration and derive keys with the default serializer:
//
//	cfg := cache.DefaultConfig()
//	cfg.Redis.Addr = "localhost:6379"
//
//	store, err := cache.NewStore(cfg, logger, prometheus.DefaultRegisterer)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	keys := cache.NewDefaultKeySerializer()
//	cache.ItemKey(keys, "user_get", 42)        // "user_get_42"
//	cache.PageKey(keys, "user_list", 0, 100)   // "user_list_0:100"
//
// # Key Format
//
// Keys have the form "{tag}_{arg1}:{arg2}...". Without arguments the key is
// the tag itself, and a nil argument serializes as "nil". Numbers, strings
// and booleans are written verbatim; other values use their String method
// or fmt formatting.
//
// # Tags
//
// Every populated key is registered in a tag set. Store.Delete accepts both
// entry keys and tag names, so invalidating a tag is one Members lookup
// followed by one Delete of the members and the tag. Tag sets carry their own
// TTL (Config.TagTTL), re-armed on every add, which must be zero or at least
// the entry TTL.
//
// # Error Handling
//
// Backend failures are wrapped with Unavailable into a go-errors Error in the
// external category with the CACHE_UNAVAILABLE text code. Callers decide
// whether to log them or surface them; see IsUnavailable.
//
// # See Also
//
// For the cache-aside protocol and the repository decorator, see the
// repositorycache package. Backend implementations live in internal/cacheinfra.
package cache
