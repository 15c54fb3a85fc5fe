package users

import (
	"context"

	"github.com/goliatone/go-user-cache/repository"
	"github.com/goliatone/go-user-cache/repositorycache"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Namespace prefixes the user cache tags: "user_list", "user_get".
const Namespace = "user"

// Service is the user resource as seen by transports.
type Service interface {
	List(ctx context.Context, skip, limit int) ([]User, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, record User) (User, error)
	Update(ctx context.Context, id int64, patch repository.Patch[User]) (User, error)
	Delete(ctx context.Context, id int64) (User, error)
}

var _ Service = (*repositorycache.CachedRepository[User])(nil)

// NewRepository returns the bun backed user store.
func NewRepository(db *bun.DB, logger *zap.Logger) *repository.BunRepository[User, *User] {
	return repository.NewBunRepository[User](db, repository.WithLogger(logger))
}

// NewService wraps base with the cache-aside layer under the user namespace.
func NewService(base repository.Repository[User], layer *repositorycache.Layer) *repositorycache.CachedRepository[User] {
	return repositorycache.New(base, layer, Namespace)
}
