package record

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/chainorch/internal/clock"
	"github.com/viant/chainorch/internal/idgen"
	"github.com/viant/chainorch/model"
	"github.com/viant/chainorch/service/dao"
	"github.com/viant/chainorch/service/dao/criteria"
	"github.com/viant/chainorch/service/dao/store"
)

// Service tracks allocation records keyed by chain id (or by placeholder id
// while allocation is in progress). Every transition runs under one lock and
// is mirrored to disk before the lock is released.
type Service struct {
	mu       sync.Mutex
	records  map[string]*model.AllocationRecord
	document *store.JSONStore[map[string]*model.AllocationRecord]
	logger   logrus.FieldLogger
}

// New creates a record service backed by the document at URL
func New(ctx context.Context, fs afs.Service, URL string, options ...Option) (*Service, error) {
	ret := &Service{
		records: make(map[string]*model.AllocationRecord),
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range options {
		opt(ret)
	}
	ret.document = store.NewJSONStore[map[string]*model.AllocationRecord](fs, URL, store.WithLogger(ret.logger))
	if err := ret.load(ctx); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) load(ctx context.Context) error {
	loaded, err := s.document.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rearmed := 0
	for key, record := range loaded {
		if record == nil || key == "" {
			continue
		}
		// a submission interrupted by a crash can be retried
		if record.Status == model.StatusSubmitting {
			record.Status = model.StatusSubmitFailed
			record.Reason = "interrupted"
			rearmed++
		}
		s.records[key] = record
	}
	if rearmed > 0 {
		s.logger.WithField("count", rearmed).Warn("re-armed interrupted submissions")
		s.persist(ctx)
	}
	return nil
}

// BeginCreate inserts a creating placeholder and returns its temporary key
func (s *Service) BeginCreate(ctx context.Context, player1, player2 string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	placeholderID := idgen.Short()
	for _, ok := s.records[placeholderID]; ok; _, ok = s.records[placeholderID] {
		placeholderID = idgen.Short()
	}
	now := clock.UTC()
	s.records[placeholderID] = &model.AllocationRecord{
		MatchID:     placeholderID,
		Player1:     player1,
		Player2:     player2,
		Status:      model.StatusCreating,
		CreatedAt:   &now,
		SubmittedAt: model.Timestamp(now),
	}
	s.persist(ctx)
	return placeholderID, nil
}

// CompleteCreate replaces the placeholder with a created record keyed by chainID
func (s *Service) CompleteCreate(ctx context.Context, placeholderID, chainID, appID string) (*model.AllocationRecord, error) {
	if chainID == "" {
		return nil, fmt.Errorf("%w: chain id is required", model.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[chainID]; ok && chainID != placeholderID {
		return nil, fmt.Errorf("%w: chain %s already recorded as %s", model.ErrInvalidState, chainID, existing.Status)
	}
	now := clock.UTC()
	record := &model.AllocationRecord{
		MatchID:     chainID,
		ChainID:     chainID,
		AppID:       appID,
		Status:      model.StatusCreated,
		CreatedAt:   &now,
		SubmittedAt: model.Timestamp(now),
	}
	if placeholder, ok := s.records[placeholderID]; ok {
		record.Player1, record.Player2 = placeholder.Player1, placeholder.Player2
		if placeholder.CreatedAt != nil {
			record.CreatedAt = placeholder.CreatedAt
		}
		delete(s.records, placeholderID)
	}
	s.records[chainID] = record
	s.persist(ctx)
	return record.Clone(), nil
}

// BeginSubmit moves the record to submitting and returns its application id.
// It is the only place that admits a submission, so concurrent callers for the
// same chain cannot both pass it.
func (s *Service) BeginSubmit(ctx context.Context, chainID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[chainID]
	if !ok || chainID == "" {
		return "", fmt.Errorf("%w: no allocation record for chain %q", model.ErrInvalidState, chainID)
	}
	switch record.Status {
	case model.StatusSubmitted:
		return "", fmt.Errorf("%w: chain %s already submitted", model.ErrInvalidState, chainID)
	case model.StatusSubmitting:
		return "", fmt.Errorf("%w: chain %s submission in flight", model.ErrInvalidState, chainID)
	case model.StatusCreating, model.StatusCreateFailed:
		return "", fmt.Errorf("%w: chain %s is %s", model.ErrInvalidState, chainID, record.Status)
	}
	if record.AppID == "" {
		return "", fmt.Errorf("%w: chain %s has no application id", model.ErrInvalidState, chainID)
	}
	record.Status = model.StatusSubmitting
	record.MatchID = chainID
	record.Reason = ""
	record.SubmittedAt = model.Timestamp(clock.UTC())
	s.persist(ctx)
	return record.AppID, nil
}

// CompleteSubmit marks the record submitted with the remote receipt
func (s *Service) CompleteSubmit(ctx context.Context, chainID, receiptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[chainID]
	if !ok {
		return fmt.Errorf("%w: no allocation record for chain %q", model.ErrInvalidState, chainID)
	}
	if record.Status != model.StatusSubmitting {
		return fmt.Errorf("%w: chain %s is %s, expected %s", model.ErrInvalidState, chainID, record.Status, model.StatusSubmitting)
	}
	record.Status = model.StatusSubmitted
	record.SubmittedOpID = receiptID
	record.SubmittedAt = model.Timestamp(clock.UTC())
	s.persist(ctx)
	return nil
}

// MarkFailed moves the record under key to its failed terminal
func (s *Service) MarkFailed(ctx context.Context, key string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[key]
	if !ok {
		return fmt.Errorf("%w: no allocation record for %q", model.ErrInvalidState, key)
	}
	switch record.Status {
	case model.StatusSubmitted:
		return fmt.Errorf("%w: chain %s already submitted", model.ErrInvalidState, key)
	case model.StatusCreating, model.StatusCreateFailed:
		record.Status = model.StatusCreateFailed
	default:
		record.Status = model.StatusSubmitFailed
	}
	record.Reason = reason
	record.SubmittedAt = model.Timestamp(clock.UTC())
	s.persist(ctx)
	return nil
}

// Sweep removes failed records, records without a chain id and creating
// placeholders older than staleAfter. Submission failures younger than
// staleAfter and records whose chain id satisfies retain are kept. It returns
// the number of removed records.
func (s *Service) Sweep(ctx context.Context, staleAfter time.Duration, retain func(chainID string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := clock.Now()
	removed := 0
	for key, record := range s.records {
		if record.ChainID != "" && retain != nil && retain(record.ChainID) {
			continue
		}
		if !s.sweepable(record, now, staleAfter) {
			continue
		}
		delete(s.records, key)
		removed++
	}
	if removed > 0 {
		s.persist(ctx)
		s.logger.WithField("removed", removed).Info("swept allocation records")
	}
	return removed
}

func (s *Service) sweepable(record *model.AllocationRecord, now time.Time, staleAfter time.Duration) bool {
	if record.Status == model.StatusSubmitFailed && staleAfter > 0 {
		if failedAt, err := time.Parse(time.RFC3339, record.SubmittedAt); err == nil && now.Sub(failedAt) < staleAfter {
			return false
		}
	}
	if record.Status.IsFailed() {
		return true
	}
	if record.ChainID != "" {
		return false
	}
	if record.Status != model.StatusCreating {
		return true
	}
	return record.CreatedAt == nil || now.Sub(*record.CreatedAt) >= staleAfter
}

// Get returns a copy of the record stored under key, nil when absent
func (s *Service) Get(_ context.Context, key string) *model.AllocationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[key].Clone()
}

// List returns copies of all records, optionally filtered by Status parameter
func (s *Service) List(_ context.Context, parameters ...*dao.Parameter) []*model.AllocationRecord {
	s.mu.Lock()
	ret := make([]*model.AllocationRecord, 0, len(s.records))
	for _, record := range s.records {
		if criteria.FilterByStatus(string(record.Status), parameters) {
			ret = append(ret, record.Clone())
		}
	}
	s.mu.Unlock()
	sort.Slice(ret, func(i, j int) bool { return ret[i].MatchID < ret[j].MatchID })
	return ret
}

// ChainIDs returns the chain ids of all known records
func (s *Service) ChainIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]string, 0, len(s.records))
	for _, record := range s.records {
		if record.ChainID != "" {
			ret = append(ret, record.ChainID)
		}
	}
	return ret
}

// Len returns number of records
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// persist mirrors the map to disk; callers hold s.mu. Disk is a recovery
// mirror so a failed write is logged rather than undoing the transition.
func (s *Service) persist(ctx context.Context) {
	if err := s.document.Save(ctx, s.records); err != nil {
		s.logger.WithError(err).Error("failed to persist allocation records")
	}
}
