package di

import (
	"github.com/goliatone/go-user-cache/cache"
	"github.com/goliatone/go-user-cache/repository"
	"github.com/goliatone/go-user-cache/repositorycache"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Container provides dependency injection for cache related components.
// It owns a single cache store and cache-aside layer and hands them to every
// cached repository it creates, so all repositories share one backend.
type Container struct {
	store      cache.Store
	closer     func() error
	layer      *repositorycache.Layer
	serializer cache.KeySerializer
	config     cache.Config
}

// NewContainer creates a container whose backend is built from config. When
// reg is non-nil the backend reports its operation metrics to it.
func NewContainer(config cache.Config, logger *zap.Logger, reg prometheus.Registerer) (*Container, error) {
	backend, err := cache.NewStore(config, logger, reg)
	if err != nil {
		return nil, err
	}

	c, err := NewContainerWithStore(config, backend, logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	c.closer = backend.Close

	return c, nil
}

// NewContainerWithStore creates a container over an existing store. The
// container does not close store.
func NewContainerWithStore(config cache.Config, store cache.Store, logger *zap.Logger) (*Container, error) {
	layer, err := repositorycache.NewLayerFromConfig(store, config, logger)
	if err != nil {
		return nil, err
	}

	return &Container{
		store:      store,
		layer:      layer,
		serializer: layer.KeySerializer(),
		config:     config,
	}, nil
}

// NewContainerWithDefaults creates a container backed by the in-process
// memory store with default settings.
func NewContainerWithDefaults() (*Container, error) {
	config := cache.DefaultConfig()
	config.Backend = cache.BackendMemory
	return NewContainer(config, nil, nil)
}

// Store returns the singleton cache store.
func (c *Container) Store() cache.Store {
	return c.store
}

// Layer returns the singleton cache-aside layer.
func (c *Container) Layer() *repositorycache.Layer {
	return c.layer
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.serializer
}

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Close releases the backend when the container created it.
func (c *Container) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// NewCachedRepository wraps base with the container's cache layer under namespace.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[User](container, baseUserRepository, "user")
func NewCachedRepository[T any](container *Container, base repository.Repository[T], namespace string) *repositorycache.CachedRepository[T] {
	return repositorycache.New(base, container.layer, namespace)
}
