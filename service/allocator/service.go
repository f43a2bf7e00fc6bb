package allocator

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"github.com/viant/chainorch/internal/clock"
	"github.com/viant/chainorch/model"
	"github.com/viant/chainorch/service/envelope"
	"github.com/viant/chainorch/service/sender"
	"github.com/viant/chainorch/tracing"
)

// Sender sends a request body to URL with retry budgets
type Sender interface {
	Send(ctx context.Context, URL string, buildBody func() ([]byte, error), waitTimeout, attemptTimeout time.Duration, maxAttempts int) (*sender.Response, error)
}

// Records is the allocation record lifecycle used by the allocator
type Records interface {
	BeginCreate(ctx context.Context, player1, player2 string) (string, error)
	CompleteCreate(ctx context.Context, placeholderID, chainID, appID string) (*model.AllocationRecord, error)
	MarkFailed(ctx context.Context, key string, reason string) error
	ChainIDs() []string
}

// Config represents allocator configuration
type Config struct {
	// FactoryURL is the endpoint of the application that opens chains
	FactoryURL string

	SeedTimeout        time.Duration
	PollAttempts       int
	PollDelay          time.Duration
	SendWaitTimeout    time.Duration
	SendAttemptTimeout time.Duration
	SendMaxAttempts    int

	EnumerationQuery   string
	EnumerationField   string
	AllocationMutation string
	CompanionQuery     string
	CompanionField     string
}

// DefaultConfig returns the default allocator configuration
func DefaultConfig() Config {
	return Config{
		SeedTimeout:        5 * time.Second,
		PollAttempts:       5,
		PollDelay:          time.Second,
		SendWaitTimeout:    8 * time.Second,
		SendAttemptTimeout: 30 * time.Second,
		SendMaxAttempts:    3,
		EnumerationQuery:   "query { allOpenedChains }",
		EnumerationField:   "allOpenedChains",
		AllocationMutation: "mutation { openAndCreate }",
		CompanionQuery:     "query { allChildApps { chainId appId } }",
		CompanionField:     "allChildApps",
	}
}

// Service allocates chains
type Service struct {
	config  Config
	sender  Sender
	records Records
	claimed *xsync.MapOf[string, struct{}]
	logger  logrus.FieldLogger
}

// New creates a new allocator service
func New(sender Sender, records Records, config Config, logger logrus.FieldLogger) (*Service, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if records == nil {
		return nil, fmt.Errorf("records are required")
	}
	if config.FactoryURL == "" {
		return nil, fmt.Errorf("factory URL is required")
	}
	if config.PollAttempts <= 0 {
		config.PollAttempts = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		config:  config,
		sender:  sender,
		records: records,
		claimed: xsync.NewMapOf[string, struct{}](),
		logger:  logger.WithField("component", "allocator"),
	}, nil
}

// Allocate opens a new chain for the two participants and records it.
// The allocation request itself is never retried here; any failure after the
// placeholder exists marks it create failed.
func (s *Service) Allocate(ctx context.Context, player1, player2 string) (record *model.AllocationRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "allocator.Allocate", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	baseline := s.baseline(ctx)
	placeholderID, err := s.records.BeginCreate(ctx, player1, player2)
	if err != nil {
		return nil, err
	}
	logger := s.logger.WithField("placeholder", placeholderID)
	fail := func(cause error) (*model.AllocationRecord, error) {
		if markErr := s.records.MarkFailed(context.WithoutCancel(ctx), placeholderID, cause.Error()); markErr != nil {
			logger.WithError(markErr).Error("failed to mark allocation failed")
		}
		return nil, cause
	}

	if err = s.requestAllocation(ctx); err != nil {
		return fail(err)
	}
	chainID, err := s.discover(ctx, baseline)
	if err != nil {
		return fail(err)
	}
	span.WithAttributes(map[string]string{"chain.id": chainID})
	appID := s.resolve(ctx, chainID)
	if appID == "" {
		logger.WithField("chainId", chainID).Warn("application id not resolved, submissions will be rejected")
	}
	if record, err = s.records.CompleteCreate(ctx, placeholderID, chainID, appID); err != nil {
		return fail(err)
	}
	logger.WithFields(logrus.Fields{"chainId": chainID, "appId": appID}).Info("allocated chain")
	return record, nil
}

// baseline returns opened chains known remotely and locally before the allocation request
func (s *Service) baseline(ctx context.Context) map[string]bool {
	ret := map[string]bool{}
	for _, chainID := range s.records.ChainIDs() {
		ret[chainID] = true
	}
	chains, err := s.enumerate(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to read opened chains baseline")
	}
	for _, chainID := range chains {
		ret[chainID] = true
	}
	return ret
}

func (s *Service) requestAllocation(ctx context.Context) error {
	resp, err := s.sender.Send(ctx, s.config.FactoryURL, envelope.Body(s.config.AllocationMutation, nil),
		s.config.SendWaitTimeout, s.config.SendAttemptTimeout, s.config.SendMaxAttempts)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("%w: allocation answered %d: %s", model.ErrRemoteRejected, resp.StatusCode, string(resp.Body))
	}
	decoded, err := envelope.Decode(resp.Body)
	if err != nil {
		return err
	}
	return decoded.Err()
}

// discover polls the enumeration until an id outside baseline and not yet
// claimed by this process appears, and claims it.
func (s *Service) discover(ctx context.Context, baseline map[string]bool) (string, error) {
	for attempt := 1; attempt <= s.config.PollAttempts; attempt++ {
		if err := clock.Sleep(ctx, s.config.PollDelay); err != nil {
			return "", err
		}
		chains, err := s.enumerate(ctx)
		if err != nil {
			s.logger.WithError(err).WithField("attempt", attempt).Warn("failed to poll opened chains")
			continue
		}
		for _, chainID := range chains {
			if baseline[chainID] {
				continue
			}
			if _, loaded := s.claimed.LoadOrStore(chainID, struct{}{}); loaded {
				continue
			}
			return chainID, nil
		}
	}
	return "", fmt.Errorf("%w: no new chain after %d polls", model.ErrTimeout, s.config.PollAttempts)
}

// resolve looks up the application created on chainID, polling while it is not yet listed
func (s *Service) resolve(ctx context.Context, chainID string) string {
	for attempt := 1; attempt <= s.config.PollAttempts; attempt++ {
		resp, err := s.query(ctx, s.config.CompanionQuery)
		if err == nil {
			if appID := resp.Pairs(s.config.CompanionField, "chainId", "appId")[chainID]; appID != "" {
				return appID
			}
		} else {
			s.logger.WithError(err).WithField("chainId", chainID).Warn("failed to query child applications")
		}
		if attempt == s.config.PollAttempts || clock.Sleep(ctx, s.config.PollDelay) != nil {
			break
		}
	}
	return ""
}

func (s *Service) enumerate(ctx context.Context) ([]string, error) {
	decoded, err := s.query(ctx, s.config.EnumerationQuery)
	if err != nil {
		return nil, err
	}
	return decoded.Strings(s.config.EnumerationField), nil
}

func (s *Service) query(ctx context.Context, query string) (*envelope.Envelope, error) {
	resp, err := s.sender.Send(ctx, s.config.FactoryURL, envelope.Body(query, nil), s.config.SeedTimeout, s.config.SeedTimeout, 1)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: query answered %d", model.ErrRemoteRejected, resp.StatusCode)
	}
	decoded, err := envelope.Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	return decoded, decoded.Err()
}

// Claimed returns true when chainID was claimed by an allocation of this process
func (s *Service) Claimed(chainID string) bool {
	_, ok := s.claimed.Load(chainID)
	return ok
}
