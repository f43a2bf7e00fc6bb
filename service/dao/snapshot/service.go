package snapshot

import (
	"context"
	"sort"

	"github.com/viant/afs"
	"github.com/viant/chainorch/internal/clock"
	"github.com/viant/chainorch/internal/idgen"
	"github.com/viant/chainorch/model"
	"github.com/viant/chainorch/service/dao"
	"github.com/viant/chainorch/service/dao/store"
)

// Service stores standings snapshots keyed by a generated id
type Service struct {
	*store.KeyedStore[string, model.Snapshot]
}

var _ dao.Service[string, model.Snapshot] = (*Service)(nil)

// New creates snapshot service backed by the document at URL
func New(ctx context.Context, fs afs.Service, URL string, opts ...store.Option) (*Service, error) {
	keyed, err := store.NewKeyedStore[string, model.Snapshot](ctx, fs, URL, func(s *model.Snapshot) string {
		return s.ID
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{KeyedStore: keyed}, nil
}

// Capture persists a snapshot of the top ranked participants
func (s *Service) Capture(ctx context.Context, ranked []*model.PlayerStats, top int) (*model.Snapshot, error) {
	selected := ranked
	if top > 0 && len(selected) > top {
		selected = selected[:top]
	}
	snapshot := &model.Snapshot{
		ID:         idgen.New(),
		CreatedAt:  clock.UTC(),
		TopPlayers: selected,
		AllPlayers: len(ranked),
	}
	if err := s.Save(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// History returns snapshots, newest first
func (s *Service) History(ctx context.Context) ([]*model.Snapshot, error) {
	ret, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].CreatedAt.After(ret[j].CreatedAt) })
	return ret, nil
}
