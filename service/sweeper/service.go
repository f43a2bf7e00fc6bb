// Package sweeper removes failed and abandoned allocation records on a cron schedule.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/viant/chainorch/metrics"
	"github.com/viant/chainorch/model"
)

// Records removes sweepable records and reports how many were removed
type Records interface {
	Sweep(ctx context.Context, staleAfter time.Duration, retain func(chainID string) bool) int
}

// Queue lists submissions still waiting for delivery; their records are never swept
type Queue interface {
	List() []*model.PendingSubmitRequest
}

// Option represents a sweeper option
type Option func(s *Service)

// WithQueue sets the queue whose chains are retained
func WithQueue(queue Queue) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// Config represents sweep configuration
type Config struct {
	Schedule   string        `yaml:"schedule"`
	StaleAfter time.Duration `yaml:"staleAfter"`
}

// DefaultConfig returns the default sweep configuration
func DefaultConfig() Config {
	return Config{Schedule: "@every 5m", StaleAfter: 10 * time.Minute}
}

// Service runs record sweeps
type Service struct {
	config  Config
	records Records
	queue   Queue
	cron    *cron.Cron
	mu      sync.Mutex
	ctx     context.Context
	running bool
	logger  logrus.FieldLogger
	metrics *metrics.Collector
}

// New creates a sweeper; the schedule uses cron syntax including @every descriptors
func New(records Records, config Config, logger logrus.FieldLogger, collector *metrics.Collector, options ...Option) (*Service, error) {
	if records == nil {
		return nil, fmt.Errorf("records are required")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ret := &Service{
		config:  config,
		records: records,
		cron:    cron.New(),
		ctx:     context.Background(),
		logger:  logger.WithField("component", "sweeper"),
		metrics: collector,
	}
	for _, option := range options {
		option(ret)
	}
	if config.Schedule != "" {
		if _, err := ret.cron.AddFunc(config.Schedule, ret.tick); err != nil {
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", config.Schedule, err)
		}
	}
	return ret, nil
}

// Start sweeps every non-submitted leftover once, then starts the schedule.
// No allocation can be in flight at startup, so creating placeholders are swept regardless of age.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()
	s.RunOnce(ctx, 0)
	s.cron.Start()
	return nil
}

// RunOnce performs one sweep
func (s *Service) RunOnce(ctx context.Context, staleAfter time.Duration) int {
	removed := s.records.Sweep(ctx, staleAfter, s.queued())
	s.metrics.Swept(removed)
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("swept allocation records")
	}
	return removed
}

// queued returns a predicate matching chains with a queued submission
func (s *Service) queued() func(chainID string) bool {
	if s.queue == nil {
		return nil
	}
	chains := map[string]bool{}
	for _, request := range s.queue.List() {
		chains[request.ChainID] = true
	}
	return func(chainID string) bool { return chains[chainID] }
}

func (s *Service) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	s.RunOnce(ctx, s.config.StaleAfter)
}

// Stop stops the schedule and waits for a running sweep
func (s *Service) Stop() {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()
	if !running {
		return
	}
	<-s.cron.Stop().Done()
}
