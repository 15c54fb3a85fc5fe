package repositorycache

import (
	"context"
	"reflect"

	"github.com/goliatone/go-user-cache/cache"
	"github.com/goliatone/go-user-cache/repository"
)

// Validatable is implemented by records and patches that check their own input.
type Validatable interface {
	Validate() error
}

// CachedRepository composes a repository.Repository with a Layer.
//
// Reads go through GetOrPopulate under the entity's list and get tags; writes
// pass through to the base repository and, on success, invalidate the tags
// whose cached reads they may have changed.
type CachedRepository[T any] struct {
	base    repository.Repository[T]
	layer   *Layer
	keys    cache.KeySerializer
	listTag string
	getTag  string
}

// New wraps base with caching. namespace prefixes the list and get tags
// ("{namespace}_list", "{namespace}_get") and every key stored under them.
func New[T any](base repository.Repository[T], layer *Layer, namespace string) *CachedRepository[T] {
	return &CachedRepository[T]{
		base:    base,
		layer:   layer,
		keys:    layer.KeySerializer(),
		listTag: ListTag(namespace),
		getTag:  GetTag(namespace),
	}
}

// ListTag returns the tag populated by List.
func (c *CachedRepository[T]) ListTag() string { return c.listTag }

// GetTag returns the tag populated by Get.
func (c *CachedRepository[T]) GetTag() string { return c.getTag }

// Base returns the wrapped repository.
func (c *CachedRepository[T]) Base() repository.Repository[T] { return c.base }

// List returns up to limit records ordered by id, skipping skip, cached under "{ns}_list_{skip}:{limit}".
func (c *CachedRepository[T]) List(ctx context.Context, skip, limit int) ([]T, error) {
	key := cache.PageKey(c.keys, c.listTag, skip, limit)
	records, err := GetOrPopulate(ctx, c.layer, key, c.listTag, func(ctx context.Context) ([]T, error) {
		return c.base.List(ctx, skip, limit)
	})
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// Get returns the record with id, cached under "{ns}_get_{id}".
func (c *CachedRepository[T]) Get(ctx context.Context, id int64) (T, error) {
	key := cache.ItemKey(c.keys, c.getTag, id)
	return GetOrPopulate(ctx, c.layer, key, c.getTag, func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, id)
	})
}

// Create validates and persists record, then invalidates the list tag.
func (c *CachedRepository[T]) Create(ctx context.Context, record T) (T, error) {
	if err := validate(record); err != nil {
		var zero T
		return zero, err
	}

	created, err := c.base.Create(ctx, record)
	if err != nil {
		return created, err
	}

	return created, c.layer.Invalidate(ctx, c.listTag)
}

// Update applies patch to the record with id, then invalidates both tags.
func (c *CachedRepository[T]) Update(ctx context.Context, id int64, patch repository.Patch[T]) (T, error) {
	if err := validate(patch); err != nil {
		var zero T
		return zero, err
	}

	updated, err := c.base.Update(ctx, id, patch)
	if err != nil {
		return updated, err
	}

	return updated, c.layer.Invalidate(ctx, c.listTag, c.getTag)
}

// Delete removes the record with id, then invalidates both tags.
// The prior state of the record is returned.
func (c *CachedRepository[T]) Delete(ctx context.Context, id int64) (T, error) {
	deleted, err := c.base.Delete(ctx, id)
	if err != nil {
		return deleted, err
	}

	return deleted, c.layer.Invalidate(ctx, c.listTag, c.getTag)
}

func validate(v any) error {
	if v == nil {
		return nil
	}
	if val, ok := v.(Validatable); ok {
		return val.Validate()
	}

	// value receivers are covered above, pointer receivers need an addressable copy
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		ptr := reflect.New(rv.Type())
		ptr.Elem().Set(rv)
		if val, ok := ptr.Interface().(Validatable); ok {
			return val.Validate()
		}
	}
	return nil
}
