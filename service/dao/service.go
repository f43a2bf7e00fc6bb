// Package dao holds the persistence contracts shared by the document backed stores.
package dao

import (
	"context"
)

// Service persists entities of type T keyed by K
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	// Update replaces the entity under key with fn(current); a nil result leaves it unchanged
	Update(ctx context.Context, key K, fn func(current *T) *T) error

	Load(ctx context.Context, key K) (*T, error)

	Delete(ctx context.Context, key K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}
