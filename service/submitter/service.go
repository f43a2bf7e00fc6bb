// Package submitter records a match result against an allocated chain.
package submitter

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/viant/chainorch/model"
	"github.com/viant/chainorch/service/envelope"
	"github.com/viant/chainorch/service/sender"
	"github.com/viant/chainorch/tracing"
)

const (
	// Mutation records a match result on the chain application
	Mutation     = "mutation recordScore($matchResult: MatchResultInput!) { recordScore(matchResult: $matchResult) }"
	receiptField = "recordScore"
)

// Poster posts a request body with the default sender budgets
type Poster interface {
	Post(ctx context.Context, URL string, buildBody func() ([]byte, error)) (*sender.Response, error)
}

// Records is the submission side of the allocation record lifecycle
type Records interface {
	BeginSubmit(ctx context.Context, chainID string) (string, error)
	CompleteSubmit(ctx context.Context, chainID, receiptID string) error
	MarkFailed(ctx context.Context, key string, reason string) error
}

// Stats indexes submitted results per participant
type Stats interface {
	Record(ctx context.Context, chainID string, result *model.MatchResult) error
}

// Service submits match results
type Service struct {
	serviceURL string
	poster     Poster
	records    Records
	stats      Stats
	logger     logrus.FieldLogger
}

// Submit admits the chain for submission, sends the mutation and records the
// receipt. Any failure after admission leaves the record submit failed.
func (s *Service) Submit(ctx context.Context, chainID string, result *model.MatchResult) (receipt *model.SubmitReceipt, err error) {
	if result == nil {
		return nil, fmt.Errorf("%w: match result is required", model.ErrInvalidState)
	}
	ctx, span := tracing.StartSpan(ctx, "submitter.Submit", "INTERNAL")
	span.WithAttributes(map[string]string{"chain.id": chainID})
	defer func() { tracing.EndSpan(span, err) }()

	appID, err := s.records.BeginSubmit(ctx, chainID)
	if err != nil {
		return nil, err
	}
	logger := s.logger.WithFields(logrus.Fields{"chainId": chainID, "appId": appID})
	opID, err := s.send(ctx, chainID, appID, result)
	if err != nil {
		if markErr := s.records.MarkFailed(context.WithoutCancel(ctx), chainID, err.Error()); markErr != nil {
			logger.WithError(markErr).Error("failed to mark submission failed")
		}
		return nil, err
	}
	if err = s.records.CompleteSubmit(ctx, chainID, opID); err != nil {
		return nil, err
	}
	if s.stats != nil {
		if statsErr := s.stats.Record(ctx, chainID, result); statsErr != nil {
			logger.WithError(statsErr).Warn("failed to update participant statistics")
		}
	}
	logger.WithField("opId", opID).Info("submitted result")
	matchID := result.MatchID
	if matchID == "" {
		matchID = chainID
	}
	return &model.SubmitReceipt{ChainID: chainID, MatchID: matchID, OpID: opID}, nil
}

func (s *Service) send(ctx context.Context, chainID, appID string, result *model.MatchResult) (string, error) {
	URL := envelope.ApplicationURL(s.serviceURL, chainID, appID)
	resp, err := s.poster.Post(ctx, URL, envelope.Body(Mutation, map[string]interface{}{"matchResult": result}))
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("%w: submission answered %d: %s", model.ErrRemoteRejected, resp.StatusCode, string(resp.Body))
	}
	decoded, err := envelope.Decode(resp.Body)
	if err != nil {
		return "", err
	}
	if err = decoded.Err(); err != nil {
		return "", err
	}
	return decoded.Receipt(receiptField), nil
}

// New creates a submitter service
func New(serviceURL string, poster Poster, records Records, options ...Option) (*Service, error) {
	if serviceURL == "" {
		return nil, fmt.Errorf("service URL is required")
	}
	if poster == nil || records == nil {
		return nil, fmt.Errorf("poster and records are required")
	}
	ret := &Service{serviceURL: serviceURL, poster: poster, records: records, logger: logrus.StandardLogger()}
	for _, opt := range options {
		opt(ret)
	}
	ret.logger = ret.logger.WithField("component", "submitter")
	return ret, nil
}
