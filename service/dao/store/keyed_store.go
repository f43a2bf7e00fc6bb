package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/chainorch/service/dao"
)

// KeyedStore is a generic dao.Service keeping entities of type *T mapped by
// key K in memory and mirroring the whole map to one JSON document after
// every mutation.
//
// Concrete DAOs embed it to avoid rewriting Save/Load/Delete/List for every
// persisted entity type. Stored entities never escape: values go in and come
// out as copies, made with the entity's Clone method when it has one.
type KeyedStore[K comparable, T any] struct {
	mu          sync.RWMutex
	records     map[K]*T
	keySelector func(*T) K
	document    *JSONStore[map[K]*T]
}

// NewKeyedStore creates a KeyedStore persisted at URL and loads existing records.
func NewKeyedStore[K comparable, T any](ctx context.Context, fs afs.Service, URL string, keySelector func(*T) K, opts ...Option) (*KeyedStore[K, T], error) {
	ret := &KeyedStore[K, T]{
		records:     make(map[K]*T),
		keySelector: keySelector,
		document:    NewJSONStore[map[K]*T](fs, URL, opts...),
	}
	loaded, err := ret.document.Load(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range loaded {
		if v != nil {
			ret.records[k] = v
		}
	}
	return ret, nil
}

// Save stores or overwrites a record.
func (s *KeyedStore[K, T]) Save(ctx context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(v)
	var zero K
	if key == zero {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = clone(v)
	return s.persist(ctx)
}

// Update applies fn to a copy of the record stored under key (nil when absent)
// and stores the result; a nil result leaves the record unchanged.
func (s *KeyedStore[K, T]) Update(ctx context.Context, key K, fn func(current *T) *T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := fn(clone(s.records[key]))
	if updated == nil {
		return nil
	}
	s.records[key] = clone(updated)
	return s.persist(ctx)
}

// Load returns a record by key, nil when absent.
func (s *KeyedStore[K, T]) Load(_ context.Context, key K) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.records[key]), nil
}

// Delete removes a record.
func (s *KeyedStore[K, T]) Delete(ctx context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return nil
	}
	delete(s.records, key)
	return s.persist(ctx)
}

// List returns all stored records.
func (s *KeyedStore[K, T]) List(_ context.Context, _ ...*dao.Parameter) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*T, 0, len(s.records))
	for _, v := range s.records {
		out = append(out, clone(v))
	}
	return out, nil
}

// Len returns number of stored records.
func (s *KeyedStore[K, T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *KeyedStore[K, T]) persist(ctx context.Context) error {
	if err := s.document.Save(ctx, s.records); err != nil {
		return fmt.Errorf("failed to persist records: %w", err)
	}
	return nil
}

func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	if cloner, ok := any(v).(interface{ Clone() *T }); ok {
		return cloner.Clone()
	}
	ret := *v
	return &ret
}
