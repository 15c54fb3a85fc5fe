package repository

import (
	"context"
	"reflect"
	"strconv"

	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/zap"
)

// Model is the capability set a bun model needs to be stored by BunRepository:
// a pointer to T that exposes its integer primary key.
type Model[T any] interface {
	*T
	GetID() int64
	SetID(id int64)
}

// BunOption configures a BunRepository.
type BunOption func(*bunOptions)

type bunOptions struct {
	entity      string
	idColumn    string
	touchColumn string
	logger      *zap.Logger
}

// WithEntityName overrides the entity name used in error messages.
func WithEntityName(name string) BunOption {
	return func(o *bunOptions) { o.entity = name }
}

// WithIDColumn sets the primary key column used for lookups and ordering. Default: "id".
func WithIDColumn(column string) BunOption {
	return func(o *bunOptions) { o.idColumn = column }
}

// WithTouchColumn sets the column always written on update. Default:
// "updated_at" when the model has it.
func WithTouchColumn(column string) BunOption {
	return func(o *bunOptions) { o.touchColumn = column }
}

// WithLogger sets the logger used for query failures.
func WithLogger(logger *zap.Logger) BunOption {
	return func(o *bunOptions) { o.logger = logger }
}

// BunRepository implements Repository[T] on top of a go-repository-bun
// repository. Writes run in their own transaction; reads use the pool directly.
type BunRepository[T any, PT Model[T]] struct {
	db          *bun.DB
	store       bunrepo.Repository[PT]
	entity      string
	idColumn    string
	touchColumn string
	lockRows    bool
	logger      *zap.Logger
}

var _ Repository[idOnly] = (*BunRepository[idOnly, *idOnly])(nil)

// NewBunRepository creates a repository for T. PT is normally inferred as *T.
func NewBunRepository[T any, PT Model[T]](db *bun.DB, opts ...BunOption) *BunRepository[T, PT] {
	typ := reflect.TypeOf((*T)(nil)).Elem()

	o := bunOptions{
		entity:   typ.Name(),
		idColumn: "id",
	}
	if db.Table(typ).HasField("updated_at") {
		o.touchColumn = "updated_at"
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return &BunRepository[T, PT]{
		db:          db,
		store:       bunrepo.NewRepository[PT](db, modelHandlers[T, PT](o.idColumn)),
		entity:      o.entity,
		idColumn:    o.idColumn,
		touchColumn: o.touchColumn,
		lockRows:    db.Dialect().Name() == dialect.PG,
		logger:      o.logger,
	}
}

// modelHandlers wires integer keyed models into go-repository-bun. Keys are
// assigned by the database, so the uuid hooks leave the record alone.
func modelHandlers[T any, PT Model[T]](idColumn string) bunrepo.ModelHandlers[PT] {
	return bunrepo.ModelHandlers[PT]{
		NewRecord:     func() PT { return PT(new(T)) },
		GetID:         func(PT) uuid.UUID { return uuid.Nil },
		SetID:         func(PT, uuid.UUID) {},
		GetIdentifier: func() string { return idColumn },
	}
}

// DB returns the underlying bun database.
func (r *BunRepository[T, PT]) DB() *bun.DB {
	return r.db
}

// Get implements Repository.
func (r *BunRepository[T, PT]) Get(ctx context.Context, id int64) (T, error) {
	record, err := r.store.GetTx(ctx, r.db, r.byID(id))
	if err != nil {
		var zero T
		return zero, r.readError(err, id, "get")
	}

	return *record, nil
}

// List implements Repository.
func (r *BunRepository[T, PT]) List(ctx context.Context, skip, limit int) ([]T, error) {
	out := make([]T, 0)
	if limit <= 0 {
		return out, nil
	}

	records, _, err := r.store.ListTx(ctx, r.db,
		bunrepo.SelectPaginate(limit, skip),
		bunrepo.OrderBy(r.idColumn+" ASC"),
	)
	if err != nil && !bunrepo.IsRecordNotFound(err) {
		r.logger.Error("list query failed", zap.String("entity", r.entity), zap.Error(err))
		return nil, storeError(err, TextCodePersistenceFailed, "list "+r.entity)
	}

	for _, record := range records {
		out = append(out, *record)
	}
	return out, nil
}

// Create implements Repository.
func (r *BunRepository[T, PT]) Create(ctx context.Context, record T) (T, error) {
	var created PT

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = r.store.CreateTx(ctx, tx, PT(&record))
		return err
	})
	if err != nil {
		r.logger.Error("create failed", zap.String("entity", r.entity), zap.Error(err))
		var zero T
		return zero, storeError(err, TextCodeCreateFailed, "create "+r.entity)
	}

	return *created, nil
}

// Update implements Repository. The row is locked with SELECT ... FOR UPDATE
// on PostgreSQL; SQLite serializes writers on its own.
func (r *BunRepository[T, PT]) Update(ctx context.Context, id int64, patch Patch[T]) (T, error) {
	var record PT

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if record, err = r.loadForWrite(ctx, tx, id); err != nil {
			return r.readError(err, id, "update")
		}

		columns := patch.Apply((*T)(record))
		if len(columns) == 0 {
			return nil
		}
		if r.touchColumn != "" {
			columns = append(columns, r.touchColumn)
		}

		record, err = r.store.UpdateTx(ctx, tx, record, bunrepo.UpdateColumns(columns...))
		return err
	})
	if err != nil {
		var zero T
		return zero, storeError(err, TextCodePersistenceFailed, "update "+r.entity)
	}

	return *record, nil
}

// Delete implements Repository.
func (r *BunRepository[T, PT]) Delete(ctx context.Context, id int64) (T, error) {
	var record PT

	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if record, err = r.loadForWrite(ctx, tx, id); err != nil {
			return r.readError(err, id, "delete")
		}
		return r.store.DeleteTx(ctx, tx, record)
	})
	if err != nil {
		var zero T
		return zero, storeError(err, TextCodePersistenceFailed, "delete "+r.entity)
	}

	return *record, nil
}

func (r *BunRepository[T, PT]) byID(id int64) bunrepo.SelectCriteria {
	return bunrepo.SelectBy(r.idColumn, "=", strconv.FormatInt(id, 10))
}

func (r *BunRepository[T, PT]) loadForWrite(ctx context.Context, tx bun.Tx, id int64) (PT, error) {
	criteria := []bunrepo.SelectCriteria{r.byID(id)}
	if r.lockRows {
		criteria = append(criteria, bunrepo.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.For("UPDATE")
		}))
	}
	return r.store.GetTx(ctx, tx, criteria...)
}

func (r *BunRepository[T, PT]) readError(err error, id int64, op string) error {
	if bunrepo.IsRecordNotFound(err) {
		return NotFound(r.entity, id)
	}
	r.logger.Error("query failed",
		zap.String("entity", r.entity),
		zap.String("operation", op),
		zap.Int64("id", id),
		zap.Error(err),
	)
	return storeError(err, TextCodePersistenceFailed, op+" "+r.entity)
}

// idOnly is the smallest Model, used for the compile time interface check.
type idOnly struct{}

func (*idOnly) GetID() int64 { return 0 }
func (*idOnly) SetID(int64)  {}
