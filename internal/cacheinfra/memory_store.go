package cacheinfra

import (
	"context"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryTag struct {
	members   map[string]struct{}
	expiresAt time.Time
}

func expired(at time.Time, now time.Time) bool {
	return !at.IsZero() && !now.Before(at)
}

// MemoryStore is an in-process cache backend. Entries live in a sturdyc
// client, tag sets in an xsync map updated with Compute so concurrent adds
// to the same tag never lose members.
type MemoryStore struct {
	entries *sturdyc.Client[memoryEntry]
	tags    *xsync.MapOf[string, memoryTag]
	now     func() time.Time
}

// NewMemoryStore validates cfg and builds the sturdyc client backing the store.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[memoryEntry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.MaxTTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &MemoryStore{
		entries: client,
		tags:    xsync.NewMapOf[string, memoryTag](),
		now:     time.Now,
	}, nil
}

// Get implements cache.Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := s.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if expired(entry.expiresAt, s.now()) {
		s.entries.Delete(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements cache.Store.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries.Set(key, entry)
	return nil
}

// AddToSet implements cache.Store.
func (s *MemoryStore) AddToSet(_ context.Context, set, member string, ttl time.Duration) error {
	now := s.now()
	s.tags.Compute(set, func(old memoryTag, loaded bool) (memoryTag, bool) {
		if loaded && expired(old.expiresAt, now) {
			old = memoryTag{}
		}

		members := make(map[string]struct{}, len(old.members)+1)
		for m := range old.members {
			members[m] = struct{}{}
		}
		members[member] = struct{}{}

		next := memoryTag{members: members, expiresAt: old.expiresAt}
		if ttl > 0 {
			next.expiresAt = now.Add(ttl)
		}
		return next, false
	})
	return nil
}

// Members implements cache.Store. Members are returned sorted.
func (s *MemoryStore) Members(_ context.Context, set string) ([]string, error) {
	tag, ok := s.tags.Load(set)
	if !ok {
		return []string{}, nil
	}
	if expired(tag.expiresAt, s.now()) {
		s.tags.Delete(set)
		return []string{}, nil
	}

	members := make([]string, 0, len(tag.members))
	for m := range tag.members {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

// Delete implements cache.Store. A key may name an entry or a tag set.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.entries.Delete(key)
		s.tags.Delete(key)
	}
	return nil
}

// SetTagged implements cache.TaggedWriter.
func (s *MemoryStore) SetTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tag string, tagTTL time.Duration) error {
	if err := s.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return s.AddToSet(ctx, tag, key, tagTTL)
}

// Ping implements cache.Pinger. The in-process store is always reachable.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close releases nothing; it exists so callers can treat every backend alike.
func (s *MemoryStore) Close() error {
	return nil
}
