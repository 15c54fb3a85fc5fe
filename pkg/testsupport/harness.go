package testsupport

import (
	"context"
	"database/sql"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goliatone/go-user-cache/internal/cacheinfra"
	"github.com/goliatone/go-user-cache/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// NewSQLiteDB opens a private in-memory sqlite database and creates the
// tables of models. The pool is pinned to one connection so every query
// sees the same database.
func NewSQLiteDB(t *testing.T, models ...any) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	db, err := database.Wrap(sqldb, database.DriverSQLite)
	if err != nil {
		t.Fatalf("failed to wrap sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := database.EnsureSchema(context.Background(), db, models...); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

// NewRedisStore starts a miniredis server and returns it with a RedisStore
// connected to it. Both are closed when the test ends.
func NewRedisStore(t *testing.T, prefix string) (*miniredis.Miniredis, *cacheinfra.RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := cacheinfra.NewRedisStoreFromClient(client, prefix, zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	return mr, store
}

// NewMemoryStore returns an in-process store with default settings.
func NewMemoryStore(t *testing.T) *cacheinfra.MemoryStore {
	t.Helper()

	store, err := cacheinfra.NewMemoryStore(cacheinfra.DefaultMemoryConfig())
	if err != nil {
		t.Fatalf("failed to create memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}
