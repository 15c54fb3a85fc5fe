package repository

import (
	"context"
)

// Repository is the durable source of truth for entities of type T keyed by an integer id.
//
// Missing records are reported with a NotFound error (see IsNotFound), never
// with a zero value and a nil error.
type Repository[T any] interface {
	// Get returns the record with the given id.
	Get(ctx context.Context, id int64) (T, error)

	// List returns up to limit records ordered by ascending id, skipping the first skip.
	List(ctx context.Context, skip, limit int) ([]T, error)

	// Create persists record and returns it with the server assigned id and timestamps.
	Create(ctx context.Context, record T) (T, error)

	// Update loads the record, applies patch and persists the changed
	// columns inside one transaction.
	Update(ctx context.Context, id int64, patch Patch[T]) (T, error)

	// Delete removes the record and returns its state prior to deletion.
	Delete(ctx context.Context, id int64) (T, error)
}

// Patch is a partial update. Apply mutates the loaded record in place and
// returns the columns it touched; an empty result leaves the row untouched.
type Patch[T any] interface {
	Apply(record *T) []string
}

// PatchFunc adapts an ordinary function to the Patch interface.
type PatchFunc[T any] func(record *T) []string

// Apply calls f(record).
func (f PatchFunc[T]) Apply(record *T) []string {
	return f(record)
}
