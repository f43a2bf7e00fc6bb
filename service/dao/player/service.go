package player

import (
	"context"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/chainorch/internal/clock"
	"github.com/viant/chainorch/model"
	"github.com/viant/chainorch/service/dao"
	"github.com/viant/chainorch/service/dao/store"
)

// Service keeps per-participant statistics keyed by participant name
type Service struct {
	*store.KeyedStore[string, model.PlayerStats]
}

var _ dao.Service[string, model.PlayerStats] = (*Service)(nil)

// New creates participant statistics service backed by the document at URL
func New(ctx context.Context, fs afs.Service, URL string, opts ...store.Option) (*Service, error) {
	keyed, err := store.NewKeyedStore[string, model.PlayerStats](ctx, fs, URL, func(p *model.PlayerStats) string {
		return p.Username
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{KeyedStore: keyed}, nil
}

// Record indexes a submitted result for both participants
func (s *Service) Record(ctx context.Context, chainID string, result *model.MatchResult) error {
	if result == nil {
		return nil
	}
	now := clock.UTC()
	for _, name := range []string{result.Player1Username, result.Player2Username} {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		err := s.Update(ctx, name, func(current *model.PlayerStats) *model.PlayerStats {
			stats := current
			if stats == nil {
				stats = &model.PlayerStats{Username: name}
			}
			if chainID != "" && !stats.AddChain(chainID) {
				return stats
			}
			stats.TotalMatches++
			switch name {
			case result.WinnerUsername:
				stats.Wins++
			case result.LoserUsername:
				stats.Losses++
			}
			stats.LastPlayed = &now
			return stats
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Get returns a copy of participant statistics, nil when unknown
func (s *Service) Get(ctx context.Context, name string) (*model.PlayerStats, error) {
	return s.Load(ctx, name)
}

// Ranked returns copies of all statistics ordered by wins, then fewer losses, then name
func (s *Service) Ranked(ctx context.Context) ([]*model.PlayerStats, error) {
	ret, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Wins != ret[j].Wins {
			return ret[i].Wins > ret[j].Wins
		}
		if ret[i].Losses != ret[j].Losses {
			return ret[i].Losses < ret[j].Losses
		}
		return ret[i].Username < ret[j].Username
	})
	return ret, nil
}
